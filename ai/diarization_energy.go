package ai

import (
	"log"

	"aicoach/audio"
)

// EnergyDiarizer тривиальный всегда-доступный фолбэк: единственный
// анонимный трек там где есть энергия речи, ничего на тишине.
// Патчи не эмитятся. Используется когда модельный бэкенд недоступен
type EnergyDiarizer struct {
	threshold  float64
	sampleRate int
	started    bool
}

// NewEnergyDiarizer создаёт фолбэк-диаризатор
func NewEnergyDiarizer(threshold float64) *EnergyDiarizer {
	if threshold <= 0 {
		threshold = 0.015
	}
	return &EnergyDiarizer{threshold: threshold}
}

// Start инициализирует движок
func (d *EnergyDiarizer) Start(streamID string, sampleRate int) error {
	d.sampleRate = sampleRate
	d.started = true
	log.Printf("[EnergyDiarizer] started for stream %s (threshold=%.3f)", streamID, d.threshold)
	return nil
}

// ProcessWindow помечает речевые участки окна меткой spk0.
// Решение принимается по блокам 100ms, смежные речевые блоки сливаются
func (d *EnergyDiarizer) ProcessWindow(w audio.Window) ([]DiarFrame, *DiarPatch, error) {
	if !d.started || len(w.Samples) == 0 {
		return nil, nil, nil
	}

	block := d.sampleRate / 10
	if block <= 0 {
		block = 1600
	}

	var frames []DiarFrame
	var cur *DiarFrame

	for off := 0; off < len(w.Samples); off += block {
		end := off + block
		if end > len(w.Samples) {
			end = len(w.Samples)
		}
		speech := audio.RMS(w.Samples[off:end]) >= d.threshold
		absStart := w.Start + int64(off)
		absEnd := w.Start + int64(end)

		if speech {
			if cur == nil {
				frames = append(frames, DiarFrame{
					Start:      absStart,
					End:        absEnd,
					Label:      "spk0",
					Confidence: 0.5,
				})
				cur = &frames[len(frames)-1]
			} else {
				cur.End = absEnd
			}
		} else {
			cur = nil
		}
	}

	return frames, nil, nil
}

// Reset сбрасывает состояние (для энергетического фолбэка это no-op)
func (d *EnergyDiarizer) Reset() {}

// Close освобождает ресурсы
func (d *EnergyDiarizer) Close() {
	d.started = false
}
