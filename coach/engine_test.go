package coach

import (
	"testing"
	"time"

	"aicoach/transcript"
)

func sentence(startMs, endMs int64, label string) transcript.SpeakerSentence {
	return transcript.SpeakerSentence{
		Sentence: transcript.Sentence{ID: "s", StartMs: startMs, EndMs: endMs, Text: "...", Final: true},
		Label:    label,
	}
}

func testEngine() *Engine {
	cfg := DefaultConfig()
	cfg.DominanceWindowMs = 10000
	cfg.DominanceRatio = 0.75
	e := NewEngine(cfg)
	base := time.Now()
	e.now = func() time.Time { return base }
	return e
}

func TestDominanceNudgeFires(t *testing.T) {
	e := testEngine()

	// spk0 занимает почти всё окно
	var nudges []Nudge
	for _, s := range []transcript.SpeakerSentence{
		sentence(0, 4000, "spk0"),
		sentence(4200, 8000, "spk0"),
		sentence(8100, 8600, "spk1"),
		sentence(8700, 12000, "spk0"),
	} {
		nudges = append(nudges, e.Process(s)...)
	}

	found := false
	for _, n := range nudges {
		if n.Type == NudgeDominance && n.Label == "spk0" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dominance nudge for spk0, got %v", nudges)
	}
}

func TestDominanceRateLimited(t *testing.T) {
	e := testEngine()

	count := 0
	for end := int64(12000); end < 40000; end += 4000 {
		for _, n := range e.Process(sentence(end-4000, end, "spk0")) {
			if n.Type == NudgeDominance {
				count++
			}
		}
	}
	if count != 1 {
		t.Errorf("nudge must be rate limited per label, fired %d times", count)
	}
}

func TestBalancedConversationNoNudge(t *testing.T) {
	e := testEngine()

	label := "spk0"
	for end := int64(2000); end <= 20000; end += 2000 {
		if label == "spk0" {
			label = "spk1"
		} else {
			label = "spk0"
		}
		if nudges := e.Process(sentence(end-2000, end, label)); len(nudges) != 0 {
			t.Fatalf("balanced speech must not nudge, got %v", nudges)
		}
	}
}

func TestOverlapSentencesIgnored(t *testing.T) {
	e := testEngine()

	s := sentence(0, 20000, "OVERLAP")
	s.Overlap = true
	if nudges := e.Process(s); len(nudges) != 0 {
		t.Errorf("overlap sentences must be ignored, got %v", nudges)
	}
	if len(e.history) != 0 {
		t.Error("overlap sentences must not enter the window")
	}
}

func TestZeroDurationSentenceIgnored(t *testing.T) {
	e := testEngine()

	if out := e.Process(sentence(5000, 5000, "spk0")); out != nil {
		t.Fatalf("zero-duration sentence must be skipped, got %v", out)
	}
	if out := e.Process(sentence(5000, 4000, "spk0")); out != nil {
		t.Fatalf("inverted range must be skipped, got %v", out)
	}
	if len(e.history) != 0 {
		t.Errorf("skipped sentences must not enter the window, got %d", len(e.history))
	}
}
