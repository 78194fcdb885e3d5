package audio

import "testing"

func chunkerForTest() *Chunker {
	return NewChunker(ChunkerConfig{
		FrameSamples:  10,
		WindowSamples: 30,
		HopSamples:    10,
	})
}

func TestChunkerFramesExactlyOnce(t *testing.T) {
	c := chunkerForTest()

	var frames []Frame
	// Подаём по 7 семплов: границы чанков не совпадают с границами фреймов
	for pos := int64(0); pos < 70; pos += 7 {
		f, _ := c.Push(pos, make([]float32, 7))
		frames = append(frames, f...)
	}

	if len(frames) != 7 {
		t.Fatalf("frames = %d, want 7", len(frames))
	}
	for i, f := range frames {
		wantStart := int64(i * 10)
		if f.Start != wantStart || f.End != wantStart+10 {
			t.Errorf("frame %d: [%d,%d), want [%d,%d)", i, f.Start, f.End, wantStart, wantStart+10)
		}
		if len(f.Samples) != 10 {
			t.Errorf("frame %d: %d samples", i, len(f.Samples))
		}
	}
}

func TestChunkerWindowsOverlap(t *testing.T) {
	c := chunkerForTest()

	var windows []Window
	for pos := int64(0); pos < 60; pos += 10 {
		_, w := c.Push(pos, make([]float32, 10))
		windows = append(windows, w...)
	}

	// 60 семплов, окно 30, шаг 10: окна на 0, 10, 20, 30
	if len(windows) != 4 {
		t.Fatalf("windows = %d, want 4", len(windows))
	}
	for i, w := range windows {
		wantStart := int64(i * 10)
		if w.Start != wantStart || w.End != wantStart+30 {
			t.Errorf("window %d: [%d,%d), want [%d,%d)", i, w.Start, w.End, wantStart, wantStart+30)
		}
	}
}

func TestChunkerDiscontinuityRestarts(t *testing.T) {
	c := chunkerForTest()

	c.Push(0, make([]float32, 15))
	// Разрыв: семплы 15..100 потеряны
	frames, _ := c.Push(100, make([]float32, 25))

	// Ни один фрейм не должен перекрывать дыру
	for _, f := range frames {
		if f.Start < 100 {
			t.Errorf("frame [%d,%d) spans the gap", f.Start, f.End)
		}
	}
	if len(frames) != 2 {
		t.Fatalf("frames after restart = %d, want 2", len(frames))
	}
	if frames[0].Start != 100 {
		t.Errorf("first frame after restart at %d, want 100", frames[0].Start)
	}
}

func TestChunkerEmptyPush(t *testing.T) {
	c := chunkerForTest()
	f, w := c.Push(0, nil)
	if f != nil || w != nil {
		t.Error("empty push must produce nothing")
	}
}
