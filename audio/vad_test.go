package audio

import (
	"testing"
	"time"
)

const vadTestRate = 16000

// vadFrame фрейм 32ms с заданной амплитудой
func vadFrame(start int64, amplitude float32) Frame {
	n := vadTestRate * 32 / 1000
	samples := make([]float32, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return Frame{Start: start, End: start + int64(n), Samples: samples}
}

func feedFrames(d *PauseDetector, start int64, count int, amplitude float32) (int64, []*PauseEvent) {
	n := int64(vadTestRate * 32 / 1000)
	var events []*PauseEvent
	for i := 0; i < count; i++ {
		if ev := d.ProcessFrame(vadFrame(start, amplitude)); ev != nil {
			events = append(events, ev)
		}
		start += n
	}
	return start, events
}

func TestPauseDetectorFiresOnce(t *testing.T) {
	d := NewPauseDetector(VADConfig{
		SilenceThreshold: 0.015,
		MinPause:         600 * time.Millisecond,
		Hangover:         150 * time.Millisecond,
	}, vadTestRate)

	pos, events := feedFrames(d, 0, 10, 0.5)
	if len(events) != 0 {
		t.Fatalf("pause during speech: %d events", len(events))
	}

	silenceStart := pos
	// 1 секунда тишины: ровно одно событие
	_, events = feedFrames(d, pos, 32, 0.001)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Start != silenceStart {
		t.Errorf("pause start = %d, want %d", ev.Start, silenceStart)
	}
	if ev.Duration < 750*time.Millisecond {
		t.Errorf("pause duration = %v, want >= hangover+minPause", ev.Duration)
	}
}

func TestPauseDetectorMicroSilence(t *testing.T) {
	d := NewPauseDetector(DefaultVADConfig(), vadTestRate)

	pos, _ := feedFrames(d, 0, 10, 0.5)
	// 3 фрейма тишины (~96ms) короче hangover+minPause
	pos, events := feedFrames(d, pos, 3, 0.001)
	if len(events) != 0 {
		t.Fatalf("micro-silence produced %d events", len(events))
	}

	// Речь возобновилась, счёт сброшен
	pos, _ = feedFrames(d, pos, 5, 0.5)
	_, events = feedFrames(d, pos, 10, 0.001)
	if len(events) != 0 {
		t.Fatalf("short lull after resume produced %d events", len(events))
	}
}

func TestPauseDetectorNewLullFiresAgain(t *testing.T) {
	d := NewPauseDetector(DefaultVADConfig(), vadTestRate)

	pos, _ := feedFrames(d, 0, 10, 0.5)
	pos, events := feedFrames(d, pos, 32, 0.001)
	if len(events) != 1 {
		t.Fatalf("first lull: %d events", len(events))
	}

	pos, _ = feedFrames(d, pos, 10, 0.5)
	_, events = feedFrames(d, pos, 32, 0.001)
	if len(events) != 1 {
		t.Fatalf("second lull: %d events", len(events))
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f", got)
	}
	got := RMS([]float32{0.5, -0.5, 0.5, -0.5})
	if got < 0.49 || got > 0.51 {
		t.Errorf("RMS = %f, want 0.5", got)
	}
}
