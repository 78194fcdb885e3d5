// Package audio предоставляет примитивы для работы с потоковым PCM аудио:
// кольцевой буфер семплов, нарезку на фреймы/окна и детектор пауз
package audio

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrUnavailable возвращается когда запрошенный диапазон семплов
// недоступен (выпал из retention или ещё не записан)
var ErrUnavailable = errors.New("audio: range unavailable")

// run непрерывный отрезок аудио начиная с абсолютного индекса семпла.
// Разрывы во входном потоке порождают новый run, данные разных run
// никогда не склеиваются
type run struct {
	start int64 // абсолютный индекс первого семпла
	data  []byte
}

func (r *run) end() int64 {
	return r.start + int64(len(r.data)/2)
}

// RingBuffer хранит сырые PCM16LE семплы потока, адресуемые абсолютным
// индексом семпла. Держит ограниченный хвост (retention), старое удаляется
type RingBuffer struct {
	sampleRate int
	retention  int64 // максимум хранимых семплов

	runs      []run
	writeHead int64 // индекс следующего ожидаемого семпла
	total     int64 // всего семплов в буфере (по всем runs)

	mu sync.RWMutex
}

// NewRingBuffer создаёт буфер с retention в семплах
func NewRingBuffer(sampleRate int, retentionSamples int64) *RingBuffer {
	if retentionSamples <= 0 {
		retentionSamples = int64(sampleRate) * 60 // минута по умолчанию
	}
	return &RingBuffer{
		sampleRate: sampleRate,
		retention:  retentionSamples,
	}
}

// Append добавляет PCM данные начиная с абсолютного индекса startSample.
// Несовпадение с текущей позицией записи трактуется как разрыв потока:
// начинается новый непрерывный run, стыковка "на глаз" не выполняется.
// Данные позади writeHead отбрасываются
func (b *RingBuffer) Append(startSample int64, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if len(pcm)%2 != 0 {
		return fmt.Errorf("audio: pcm length must be even, got %d", len(pcm))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if startSample < b.writeHead && len(b.runs) > 0 {
		return fmt.Errorf("audio: stale append at %d, write head %d", startSample, b.writeHead)
	}

	if len(b.runs) == 0 || startSample != b.writeHead {
		if len(b.runs) > 0 {
			log.Printf("[RingBuffer] discontinuity: expected %d, got %d (new run)", b.writeHead, startSample)
		}
		b.runs = append(b.runs, run{start: startSample})
	}

	last := &b.runs[len(b.runs)-1]
	last.data = append(last.data, pcm...)
	b.writeHead = last.end()
	b.total += int64(len(pcm) / 2)

	b.trim()
	return nil
}

// trim удаляет старейшие данные сверх retention. Вызывать под mu
func (b *RingBuffer) trim() {
	excess := b.total - b.retention
	for excess > 0 && len(b.runs) > 0 {
		oldest := &b.runs[0]
		n := int64(len(oldest.data) / 2)
		if n <= excess {
			b.total -= n
			excess -= n
			b.runs = b.runs[1:]
			continue
		}
		cut := excess * 2
		oldest.data = oldest.data[cut:]
		oldest.start += excess
		b.total -= excess
		excess = 0
	}
}

// Slice возвращает ровно семплы [start, end) или ErrUnavailable если
// диапазон не лежит целиком внутри одного непрерывного run.
// Частичные или сфабрикованные данные не возвращаются никогда
func (b *RingBuffer) Slice(start, end int64) ([]byte, error) {
	if end <= start {
		return nil, fmt.Errorf("audio: invalid range [%d,%d)", start, end)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for i := range b.runs {
		r := &b.runs[i]
		if start >= r.start && end <= r.end() {
			off := (start - r.start) * 2
			n := (end - start) * 2
			out := make([]byte, n)
			copy(out, r.data[off:off+n])
			return out, nil
		}
	}
	return nil, ErrUnavailable
}

// Float32Slice возвращает диапазон [start, end) как float32 [-1, 1]
// (формат, который ожидают модельные бэкенды)
func (b *RingBuffer) Float32Slice(start, end int64) ([]float32, error) {
	pcm, err := b.Slice(start, end)
	if err != nil {
		return nil, err
	}
	return PCM16ToFloat32(pcm), nil
}

// Oldest возвращает индекс старейшего хранимого семпла
func (b *RingBuffer) Oldest() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.runs) == 0 {
		return 0
	}
	return b.runs[0].start
}

// WriteHead возвращает индекс следующего ожидаемого семпла
func (b *RingBuffer) WriteHead() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writeHead
}

// SampleRate возвращает частоту дискретизации буфера
func (b *RingBuffer) SampleRate() int {
	return b.sampleRate
}

// PCM16ToFloat32 конвертирует PCM16LE байты в float32 семплы [-1, 1]
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToPCM16 конвертирует float32 семплы в PCM16LE байты
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		s := int16(f * 32767)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
