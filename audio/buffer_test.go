package audio

import (
	"errors"
	"testing"
)

func pcm16(values ...int16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func TestRingBufferSliceExact(t *testing.T) {
	b := NewRingBuffer(16000, 1000)

	if err := b.Append(0, pcm16(1, 2, 3, 4)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := b.Append(4, pcm16(5, 6)); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := b.Slice(1, 5)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	want := pcm16(2, 3, 4, 5)
	if string(got) != string(want) {
		t.Errorf("slice = %v, want %v", got, want)
	}
	if b.WriteHead() != 6 {
		t.Errorf("write head = %d, want 6", b.WriteHead())
	}
}

func TestRingBufferDiscontinuity(t *testing.T) {
	b := NewRingBuffer(16000, 1000)

	b.Append(0, pcm16(1, 2, 3))
	// Разрыв: семплы 3..9 потеряны
	b.Append(10, pcm16(11, 12, 13))

	// Диапазон поверх дыры недоступен
	if _, err := b.Slice(2, 11); !errors.Is(err, ErrUnavailable) {
		t.Errorf("slice across gap: err = %v, want ErrUnavailable", err)
	}

	// Оба непрерывных отрезка читаются
	if _, err := b.Slice(0, 3); err != nil {
		t.Errorf("slice first run: %v", err)
	}
	if _, err := b.Slice(10, 13); err != nil {
		t.Errorf("slice second run: %v", err)
	}
}

func TestRingBufferStaleAppend(t *testing.T) {
	b := NewRingBuffer(16000, 1000)

	b.Append(0, pcm16(1, 2, 3))
	if err := b.Append(1, pcm16(9)); err == nil {
		t.Error("append behind write head must fail")
	}
}

func TestRingBufferRetention(t *testing.T) {
	b := NewRingBuffer(16000, 4)

	b.Append(0, pcm16(1, 2, 3, 4, 5, 6))
	if b.Oldest() != 2 {
		t.Errorf("oldest = %d, want 2", b.Oldest())
	}

	// Вытесненные семплы недоступны
	if _, err := b.Slice(0, 2); !errors.Is(err, ErrUnavailable) {
		t.Errorf("slice of evicted range: err = %v, want ErrUnavailable", err)
	}
	got, err := b.Slice(2, 6)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if string(got) != string(pcm16(3, 4, 5, 6)) {
		t.Errorf("slice = %v", got)
	}
}

func TestRingBufferOddLength(t *testing.T) {
	b := NewRingBuffer(16000, 1000)
	if err := b.Append(0, []byte{1, 2, 3}); err == nil {
		t.Error("odd pcm length must fail")
	}
}

func TestPCM16Float32Conversion(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}
	back := PCM16ToFloat32(Float32ToPCM16(samples))

	if len(back) != len(samples) {
		t.Fatalf("len = %d, want %d", len(back), len(samples))
	}
	for i := range samples {
		diff := back[i] - samples[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.001 {
			t.Errorf("sample %d: %f -> %f", i, samples[i], back[i])
		}
	}
}
