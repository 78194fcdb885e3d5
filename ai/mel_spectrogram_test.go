package ai

import (
	"math"
	"testing"
)

func melTestConfig() MelConfig {
	return MelConfig{
		SampleRate: 16000,
		NMels:      80,
		HopLength:  160,
		WinLength:  400,
		NFFT:       512,
	}
}

func TestMelSpectrogramShape(t *testing.T) {
	p := NewMelProcessor(melTestConfig())

	// 1 секунда синуса 440Hz
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	mel, numFrames := p.Compute(samples)

	wantFrames := (16000-400)/160 + 1
	if numFrames != wantFrames {
		t.Errorf("frames = %d, want %d", numFrames, wantFrames)
	}
	if len(mel) != numFrames {
		t.Fatalf("len(mel) = %d, want %d", len(mel), numFrames)
	}
	for i, row := range mel {
		if len(row) != 80 {
			t.Fatalf("frame %d: %d mels, want 80", i, len(row))
		}
		for j, v := range row {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("frame %d mel %d: %f", i, j, v)
			}
		}
	}
}

func TestMelSpectrogramShortInput(t *testing.T) {
	p := NewMelProcessor(melTestConfig())

	mel, numFrames := p.Compute(make([]float32, 100))
	if numFrames != 1 || len(mel) != 1 {
		t.Errorf("short input: frames = %d, len = %d, want 1", numFrames, len(mel))
	}
}
