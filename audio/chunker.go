package audio

import (
	"log"
)

// Frame фиксированный отрезок PCM для VAD и диаризации
type Frame struct {
	Start   int64 // абсолютный индекс первого семпла
	End     int64 // полуоткрытый конец
	Samples []float32
}

// Window скользящее окно с перекрытием (hop < length) для бэкендов,
// которым нужен контекст шире одного фрейма
type Window struct {
	Start   int64
	End     int64
	Samples []float32
}

// ChunkerConfig параметры нарезки
type ChunkerConfig struct {
	FrameSamples  int // длина фрейма
	WindowSamples int // длина окна
	HopSamples    int // шаг окна (меньше длины)
}

// DefaultChunkerConfig нарезка для 16kHz: фреймы 32ms, окна 3s с шагом 1s
func DefaultChunkerConfig(sampleRate int) ChunkerConfig {
	return ChunkerConfig{
		FrameSamples:  sampleRate * 32 / 1000,
		WindowSamples: sampleRate * 3,
		HopSamples:    sampleRate,
	}
}

// Chunker ведёт курсор непрерывности по потоку и выдаёт каждый фрейм и
// каждое окно ровно один раз, в порядке возрастания. Фрейм или окно
// никогда не перекрывает обнаруженный разрыв: при разрыве накопленное
// сбрасывается и нарезка начинается заново с нового начала
type Chunker struct {
	cfg ChunkerConfig

	cursor  int64 // ожидаемый индекс следующего семпла
	started bool

	frameBuf   []float32
	frameStart int64

	windowBuf   []float32
	windowStart int64
}

// NewChunker создаёт новый chunker
func NewChunker(cfg ChunkerConfig) *Chunker {
	return &Chunker{cfg: cfg}
}

// Push принимает очередной чанк потока и возвращает все фреймы и окна,
// чей полный диапазон стал доступен
func (c *Chunker) Push(startSample int64, samples []float32) ([]Frame, []Window) {
	if len(samples) == 0 {
		return nil, nil
	}

	if !c.started || startSample != c.cursor {
		if c.started && startSample != c.cursor {
			// Разрыв: не выдаём ничего поверх дыры, начинаем заново
			log.Printf("[Chunker] discontinuity at %d (expected %d), restarting", startSample, c.cursor)
		}
		c.restartAt(startSample)
	}
	c.cursor = startSample + int64(len(samples))

	c.frameBuf = append(c.frameBuf, samples...)
	c.windowBuf = append(c.windowBuf, samples...)

	var frames []Frame
	for len(c.frameBuf) >= c.cfg.FrameSamples {
		out := make([]float32, c.cfg.FrameSamples)
		copy(out, c.frameBuf[:c.cfg.FrameSamples])
		frames = append(frames, Frame{
			Start:   c.frameStart,
			End:     c.frameStart + int64(c.cfg.FrameSamples),
			Samples: out,
		})
		c.frameBuf = c.frameBuf[c.cfg.FrameSamples:]
		c.frameStart += int64(c.cfg.FrameSamples)
	}

	var windows []Window
	for len(c.windowBuf) >= c.cfg.WindowSamples {
		out := make([]float32, c.cfg.WindowSamples)
		copy(out, c.windowBuf[:c.cfg.WindowSamples])
		windows = append(windows, Window{
			Start:   c.windowStart,
			End:     c.windowStart + int64(c.cfg.WindowSamples),
			Samples: out,
		})
		c.windowBuf = c.windowBuf[c.cfg.HopSamples:]
		c.windowStart += int64(c.cfg.HopSamples)
	}

	// Ограничиваем pending-буфер окна небольшим кратным длины окна
	maxPending := c.cfg.WindowSamples * 3
	if len(c.windowBuf) > maxPending {
		drop := len(c.windowBuf) - maxPending
		c.windowBuf = c.windowBuf[drop:]
		c.windowStart += int64(drop)
	}

	return frames, windows
}

// restartAt сбрасывает накопленное и начинает нарезку с нового индекса
func (c *Chunker) restartAt(startSample int64) {
	c.started = true
	c.cursor = startSample
	c.frameBuf = c.frameBuf[:0]
	c.frameStart = startSample
	c.windowBuf = c.windowBuf[:0]
	c.windowStart = startSample
}

// FrameSamples возвращает длину фрейма в семплах
func (c *Chunker) FrameSamples() int {
	return c.cfg.FrameSamples
}
