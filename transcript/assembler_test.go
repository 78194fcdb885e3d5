package transcript

import (
	"strings"
	"testing"
	"time"

	"aicoach/ai"
	"aicoach/audio"
)

func seg(startMs, endMs int64, text string) ai.SttSegment {
	return ai.SttSegment{StartMs: startMs, EndMs: endMs, Text: text, Confidence: 0.9, Final: true}
}

func TestAssemblerTerminalPunctuation(t *testing.T) {
	a := NewAssembler(DefaultAssemblerConfig())

	out := a.AddSegment(seg(0, 1200, "Hello there."))
	if len(out) != 1 {
		t.Fatalf("expected 1 sentence, got %d", len(out))
	}
	if out[0].Text != "Hello there." {
		t.Errorf("unexpected text: %q", out[0].Text)
	}

	// Хвост без пунктуации копится до следующего триггера
	out = a.AddSegment(seg(1300, 2500, "How are you"))
	if len(out) != 0 {
		t.Fatalf("unterminated text must stay buffered, got %v", out)
	}

	s := a.Flush()
	if s == nil || s.Text != "How are you" {
		t.Fatalf("flush must finalize remainder, got %+v", s)
	}
}

func TestAssemblerAccumulatesFragments(t *testing.T) {
	a := NewAssembler(DefaultAssemblerConfig())

	if out := a.AddSegment(seg(0, 500, "today we will")); len(out) != 0 {
		t.Fatalf("expected buffering, got %v", out)
	}
	out := a.AddSegment(seg(500, 1500, "discuss the quarterly plan."))
	if len(out) != 1 {
		t.Fatalf("expected 1 sentence, got %d", len(out))
	}
	if out[0].Text != "today we will discuss the quarterly plan." {
		t.Errorf("unexpected text: %q", out[0].Text)
	}
	if len(out[0].Fragments) != 2 {
		t.Errorf("sub-fragments must be retained, got %d", len(out[0].Fragments))
	}
	if out[0].StartMs != 0 || out[0].EndMs != 1500 {
		t.Errorf("range must span all fragments: %+v", out[0])
	}
}

func TestAssemblerPauseBoundary(t *testing.T) {
	a := NewAssembler(DefaultAssemblerConfig())

	a.AddSegment(seg(0, 1000, "this sentence has no punctuation"))

	// Короткая пауза не закрывает буфер
	short := audio.PauseEvent{Start: 16000, End: 20000, Duration: 250 * time.Millisecond}
	if s := a.OnPause(short); s != nil {
		t.Fatalf("short pause must not finalize, got %+v", s)
	}

	long := audio.PauseEvent{Start: 16000, End: 32000, Duration: time.Second}
	s := a.OnPause(long)
	if s == nil || s.Text != "this sentence has no punctuation" {
		t.Fatalf("long pause must finalize buffer, got %+v", s)
	}
}

func TestAssemblerPauseFromDetectorUnits(t *testing.T) {
	// Детектор пауз отдаёт Duration в наносекундах; порог MinPauseMs
	// сравнивается с миллисекундами, не с семплами
	cfg := DefaultAssemblerConfig()
	cfg.MinPauseMs = 600
	a := NewAssembler(cfg)

	a.AddSegment(seg(0, 1000, "still talking without a boundary"))

	// 100 мс тишины при 16 кГц это 1600 семплов, но событие несёт
	// именно длительность, и финализации быть не должно
	ev := audio.PauseEvent{Start: 16000, End: 17600, Duration: 100 * time.Millisecond}
	if s := a.OnPause(ev); s != nil {
		t.Fatalf("100ms pause is below the 600ms gate, got %+v", s)
	}

	ev = audio.PauseEvent{Start: 16000, End: 27200, Duration: 700 * time.Millisecond}
	if s := a.OnPause(ev); s == nil {
		t.Fatal("700ms pause must finalize the buffer")
	}
}

func TestAssemblerMaxDuration(t *testing.T) {
	cfg := DefaultAssemblerConfig()
	cfg.MaxSentenceDurMs = 5000
	a := NewAssembler(cfg)

	a.AddSegment(seg(0, 2000, "first part"))
	out := a.AddSegment(seg(2000, 6000, "second part"))
	if len(out) != 1 {
		t.Fatalf("duration limit must finalize, got %v", out)
	}
}

func TestAssemblerMaxLengthSplitsAtWordBoundary(t *testing.T) {
	cfg := DefaultAssemblerConfig()
	cfg.MaxSentenceChars = 40
	a := NewAssembler(cfg)

	long := strings.Repeat("word ", 20) // 100 символов, без пунктуации
	out := a.AddSegment(seg(0, 5000, strings.TrimSpace(long)))
	if len(out) == 0 {
		t.Fatal("over-limit buffer must be split")
	}
	for _, s := range out {
		for _, w := range strings.Fields(s.Text) {
			if w != "word" {
				t.Errorf("split must not cut mid-word, got %q", s.Text)
			}
		}
	}
}

func TestAssemblerEmptySegmentIgnored(t *testing.T) {
	a := NewAssembler(DefaultAssemblerConfig())
	if out := a.AddSegment(seg(0, 100, "   ")); len(out) != 0 {
		t.Fatalf("blank segment must be ignored, got %v", out)
	}
	if s := a.Flush(); s != nil {
		t.Fatalf("nothing buffered, flush must return nil, got %+v", s)
	}
}
