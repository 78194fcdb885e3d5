package transcript

import (
	"testing"

	"aicoach/ai"
	"aicoach/timeline"
)

const attrRate = 16000

func attrMs(v int64) int64 {
	return v * attrRate / 1000
}

// coverStore наполняет таймлайн точным покрытием через патч,
// минуя гистерезис
func coverStore(t *testing.T, frames []ai.DiarFrame) *timeline.Store {
	t.Helper()
	s := timeline.NewStore(attrRate, timeline.DefaultTunables())
	start := frames[0].Start
	end := frames[len(frames)-1].End
	p := &ai.DiarPatch{Start: start, End: end, Version: 1, Frames: frames}
	if !s.ApplyPatch(p) {
		t.Fatal("test coverage patch must apply")
	}
	return s
}

func TestAttributeDominantLabel(t *testing.T) {
	// 90% spk0, 10% тишины: атрибуция spk0, не OVERLAP
	store := coverStore(t, []ai.DiarFrame{
		{Start: 0, End: attrMs(900), Label: "spk0", Confidence: 0.9},
	})
	a := NewAttributor(DefaultAttributorConfig(), store, nil, nil, attrRate)

	out := a.Attribute(Sentence{ID: "s1", StartMs: 0, EndMs: 1000, Text: "test", Final: true})
	if len(out) != 1 {
		t.Fatalf("expected 1 sentence, got %d", len(out))
	}
	if out[0].Label != "spk0" {
		t.Errorf("expected spk0, got %q", out[0].Label)
	}
	if out[0].Overlap {
		t.Error("10%% silence must not mark OVERLAP at 50%% threshold")
	}
}

func TestAttributeSplitCoverageUncertain(t *testing.T) {
	// 60/40 между двумя треками, доминирования нет
	store := coverStore(t, []ai.DiarFrame{
		{Start: 0, End: attrMs(600), Label: "spk0", Confidence: 0.8},
		{Start: attrMs(600), End: attrMs(1000), Label: "spk1", Confidence: 0.8},
	})
	cfg := DefaultAttributorConfig()
	cfg.DominantThreshold = 0.7
	cfg.MinDominantThreshold = 0.65
	a := NewAttributor(cfg, store, nil, nil, attrRate)

	// encoder=nil: split не подтверждается, предложение остаётся целым
	out := a.Attribute(Sentence{ID: "s1", StartMs: 0, EndMs: 1000, Text: "test", Final: true})
	if len(out) != 1 {
		t.Fatalf("expected 1 sentence, got %d", len(out))
	}
	if out[0].Label != timeline.LabelUncertain || !out[0].Uncertain {
		t.Errorf("60/40 coverage must be UNCERTAIN, got %+v", out[0])
	}
}

func TestAttributeMostlySilentOverlap(t *testing.T) {
	// 30% покрытия, 70% тишины: OVERLAP
	store := coverStore(t, []ai.DiarFrame{
		{Start: 0, End: attrMs(300), Label: "spk0", Confidence: 0.9},
	})
	a := NewAttributor(DefaultAttributorConfig(), store, nil, nil, attrRate)

	out := a.Attribute(Sentence{ID: "s1", StartMs: 0, EndMs: 1000, Text: "test", Final: true})
	if out[0].Label != timeline.LabelOverlap || !out[0].Overlap {
		t.Errorf("mostly silent range must be OVERLAP, got %+v", out[0])
	}
}

func TestAttributeLowerConfidenceBand(t *testing.T) {
	// 55% покрытия: между MinDominant и Dominant, атрибуция с пониженной уверенностью
	store := coverStore(t, []ai.DiarFrame{
		{Start: 0, End: attrMs(550), Label: "spk0", Confidence: 0.9},
		{Start: attrMs(550), End: attrMs(1000), Label: "spk1", Confidence: 0.5},
	})
	a := NewAttributor(DefaultAttributorConfig(), store, nil, nil, attrRate)

	out := a.Attribute(Sentence{ID: "s1", StartMs: 0, EndMs: 1000, Text: "test", Final: true})
	if out[0].Label != "spk0" {
		t.Fatalf("expected spk0, got %+v", out[0])
	}
	if out[0].LabelConfidence >= 0.9 {
		t.Errorf("confidence must be scaled down in the lower band, got %f", out[0].LabelConfidence)
	}
}

func TestAttributePatchedFlag(t *testing.T) {
	store := coverStore(t, []ai.DiarFrame{
		{Start: 0, End: attrMs(1000), Label: "spk0", Confidence: 0.9},
	})
	a := NewAttributor(DefaultAttributorConfig(), store, nil, nil, attrRate)

	out := a.Attribute(Sentence{ID: "s1", StartMs: 0, EndMs: 1000, Text: "test", Final: true})
	if !out[0].Patched {
		t.Error("coverage from a patch must set the Patched flag")
	}
}
