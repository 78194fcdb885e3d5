// Package ai предоставляет SherpaDiarizer - модельный бэкенд диаризации
// на базе sherpa-onnx (pyannote сегментация + wespeaker эмбеддинги)
package ai

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"aicoach/audio"
)

// SherpaDiarizerConfig конфигурация для SherpaDiarizer
type SherpaDiarizerConfig struct {
	SegmentationModelPath string  // Путь к модели сегментации (pyannote)
	EmbeddingModelPath    string  // Путь к модели эмбеддингов (wespeaker/3dspeaker)
	NumThreads            int     // Количество потоков
	ClusteringThreshold   float32 // Порог кластеризации (0.0-1.0)
	MinDurationOn         float32 // Минимальная длительность речи (сек)
	MinDurationOff        float32 // Минимальная длительность паузы (сек)
	Provider              string  // ONNX provider: cpu, cuda, coreml, auto

	// Потоковый режим: хвостовое окно по которому пересчитывается
	// прошлое, и интервал эмиссии патчей
	TrailSeconds         float32 // длина хвоста для патчей (сек)
	PatchIntervalSeconds float32 // минимум между патчами (сек)
}

// DefaultSherpaDiarizerConfig возвращает конфигурацию по умолчанию
func DefaultSherpaDiarizerConfig(segmentationPath, embeddingPath string) SherpaDiarizerConfig {
	return SherpaDiarizerConfig{
		SegmentationModelPath: segmentationPath,
		EmbeddingModelPath:    embeddingPath,
		NumThreads:            4,
		ClusteringThreshold:   0.5,
		MinDurationOn:         0.3,
		MinDurationOff:        0.5,
		Provider:              "auto",
		TrailSeconds:          20,
		PatchIntervalSeconds:  5,
	}
}

// detectBestProvider определяет лучший provider для текущей платформы
func detectBestProvider() string {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return "coreml"
	}
	return "cpu"
}

// SherpaDiarizer потоковый адаптер поверх офлайновой диаризации sherpa-onnx.
// На каждое окно выдаёт провизорные фреймы по самому окну; раз в интервал
// эмиссии пересчитывает хвостовой диапазон целиком и выдаёт его как патч.
// Локальные номера спикеров каждого прогона сводятся к стабильным меткам
// сессии через максимальное перекрытие с предыдущей выдачей
type SherpaDiarizer struct {
	config   SherpaDiarizerConfig
	diarizer *sherpa.OfflineSpeakerDiarization

	sampleRate int
	streamID   string

	// Хвостовой буфер для патчей
	trail      []float32
	trailStart int64 // абсолютный семпл первого элемента trail

	// Стабилизация меток между прогонами
	prev        []DiarFrame // последняя выдача, для сведения меток
	nextSpeaker int

	lastPatchEnd int64  // конец диапазона последнего патча
	version      uint64 // монотонный номер патча

	mu          sync.Mutex
	initialized bool
}

// NewSherpaDiarizer создаёт диаризатор на базе sherpa-onnx
func NewSherpaDiarizer(config SherpaDiarizerConfig) (*SherpaDiarizer, error) {
	if _, err := os.Stat(config.SegmentationModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("segmentation model not found: %s", config.SegmentationModelPath)
	}
	if _, err := os.Stat(config.EmbeddingModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("embedding model not found: %s", config.EmbeddingModelPath)
	}

	provider := config.Provider
	if provider == "auto" || provider == "" {
		provider = detectBestProvider()
	}

	sherpaConfig := &sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote: sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{
				Model: config.SegmentationModelPath,
			},
			NumThreads: config.NumThreads,
			Debug:      0,
			Provider:   provider,
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model:      config.EmbeddingModelPath,
			NumThreads: config.NumThreads,
			Debug:      0,
			Provider:   provider,
		},
		Clustering: sherpa.FastClusteringConfig{
			NumClusters: -1, // автоматическое определение числа спикеров
			Threshold:   config.ClusteringThreshold,
		},
		MinDurationOn:  config.MinDurationOn,
		MinDurationOff: config.MinDurationOff,
	}

	diarizer := sherpa.NewOfflineSpeakerDiarization(sherpaConfig)
	if diarizer == nil {
		// Если аппаратный provider не сработал, пробуем CPU
		if provider != "cpu" {
			log.Printf("[SherpaDiarizer] %s provider failed, falling back to CPU", provider)
			sherpaConfig.Segmentation.Provider = "cpu"
			sherpaConfig.Embedding.Provider = "cpu"
			diarizer = sherpa.NewOfflineSpeakerDiarization(sherpaConfig)
		}
		if diarizer == nil {
			return nil, fmt.Errorf("failed to create sherpa-onnx diarizer")
		}
	}

	log.Printf("[SherpaDiarizer] initialized: provider=%s, trail=%.0fs, patch every %.0fs",
		provider, config.TrailSeconds, config.PatchIntervalSeconds)

	return &SherpaDiarizer{
		config:      config,
		diarizer:    diarizer,
		initialized: true,
	}, nil
}

// Start инициализирует движок для потока
func (d *SherpaDiarizer) Start(streamID string, sampleRate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return fmt.Errorf("sherpa diarizer not initialized")
	}
	if want := d.diarizer.SampleRate(); want != 0 && want != sampleRate {
		return fmt.Errorf("sherpa diarizer expects %d Hz, stream is %d Hz", want, sampleRate)
	}

	d.streamID = streamID
	d.sampleRate = sampleRate
	d.resetLocked()
	d.prev = nil
	d.nextSpeaker = 0
	d.version = 0
	return nil
}

// ProcessWindow выдаёт провизорные фреймы по окну и периодический патч
func (d *SherpaDiarizer) ProcessWindow(w audio.Window) ([]DiarFrame, *DiarPatch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, nil, fmt.Errorf("sherpa diarizer not initialized")
	}
	if len(w.Samples) == 0 {
		return nil, nil, nil
	}

	d.appendTrail(w)

	// Провизорные фреймы: прогон только по окну
	segs := d.diarizer.Process(w.Samples)
	frames := d.framesFromSegments(segs, w.Start, false)
	frames = d.remapLabels(frames)
	d.rememberEmitted(frames)

	// Патч: пересчёт хвоста не чаще раза в интервал эмиссии
	var patch *DiarPatch
	patchStep := int64(d.config.PatchIntervalSeconds * float32(d.sampleRate))
	trailEnd := d.trailStart + int64(len(d.trail))
	if patchStep > 0 && trailEnd-d.lastPatchEnd >= patchStep && len(d.trail) > 0 {
		patch = d.emitPatch(trailEnd)
	}

	return frames, patch, nil
}

// emitPatch пересчитывает хвостовой диапазон и упаковывает его как патч.
// Вызывать под mu
func (d *SherpaDiarizer) emitPatch(trailEnd int64) *DiarPatch {
	segs := d.diarizer.Process(d.trail)
	frames := d.framesFromSegments(segs, d.trailStart, true)
	frames = d.remapLabels(frames)
	d.rememberEmitted(frames)

	d.version++
	d.lastPatchEnd = trailEnd

	return &DiarPatch{
		Start:   d.trailStart,
		End:     trailEnd,
		Version: d.version,
		Frames:  frames,
	}
}

// appendTrail добавляет новую часть окна в хвостовой буфер,
// отбрасывая перекрытие с уже накопленным. Вызывать под mu
func (d *SherpaDiarizer) appendTrail(w audio.Window) {
	trailEnd := d.trailStart + int64(len(d.trail))

	switch {
	case len(d.trail) == 0:
		d.trailStart = w.Start
		d.trail = append(d.trail, w.Samples...)
	case w.Start > trailEnd:
		// Разрыв: хвост бесполезен, начинаем заново
		d.trail = d.trail[:0]
		d.trailStart = w.Start
		d.trail = append(d.trail, w.Samples...)
	case w.End > trailEnd:
		skip := trailEnd - w.Start
		d.trail = append(d.trail, w.Samples[skip:]...)
	}

	maxTrail := int(d.config.TrailSeconds * float32(d.sampleRate))
	if maxTrail > 0 && len(d.trail) > maxTrail {
		drop := len(d.trail) - maxTrail
		d.trail = d.trail[drop:]
		d.trailStart += int64(drop)
	}
}

// framesFromSegments конвертирует сегменты sherpa в DiarFrame с локальными
// метками прогона; пересечения сегментов разных спикеров дают OVERLAP
func (d *SherpaDiarizer) framesFromSegments(segs []sherpa.OfflineSpeakerDiarizationSegment, base int64, isPatch bool) []DiarFrame {
	if len(segs) == 0 {
		return nil
	}

	sr := float32(d.sampleRate)
	frames := make([]DiarFrame, 0, len(segs))
	for _, seg := range segs {
		frames = append(frames, DiarFrame{
			Start:      base + int64(seg.Start*sr),
			End:        base + int64(seg.End*sr),
			Label:      fmt.Sprintf("run%d", seg.Speaker), // локальная метка, сводится в remapLabels
			Confidence: 0.9,
			IsPatch:    isPatch,
		})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Start < frames[j].Start })

	var out []DiarFrame
	for i, f := range frames {
		for j := i + 1; j < len(frames) && frames[j].Start < f.End; j++ {
			g := frames[j]
			if g.Label == f.Label {
				continue
			}
			ovEnd := f.End
			if g.End < ovEnd {
				ovEnd = g.End
			}
			out = append(out, DiarFrame{Start: g.Start, End: ovEnd, Label: LabelOverlap, Confidence: 0.9, IsPatch: isPatch})
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// remapLabels сводит локальные метки прогона ("runN") к стабильным меткам
// сессии ("spkN") по максимальному перекрытию с предыдущей выдачей
func (d *SherpaDiarizer) remapLabels(frames []DiarFrame) []DiarFrame {
	if len(frames) == 0 {
		return frames
	}

	// overlap[local][global] = суммарное перекрытие в семплах
	overlap := make(map[string]map[string]int64)
	for _, f := range frames {
		if f.Label == LabelOverlap || f.Label == LabelUncertain {
			continue
		}
		for _, p := range d.prev {
			if p.Label == LabelOverlap || p.Label == LabelUncertain {
				continue
			}
			ov := minInt64(f.End, p.End) - maxInt64(f.Start, p.Start)
			if ov <= 0 {
				continue
			}
			if overlap[f.Label] == nil {
				overlap[f.Label] = make(map[string]int64)
			}
			overlap[f.Label][p.Label] += ov
		}
	}

	mapping := make(map[string]string)
	for _, f := range frames {
		if f.Label == LabelOverlap || f.Label == LabelUncertain {
			continue
		}
		if _, ok := mapping[f.Label]; ok {
			continue
		}
		best, bestOv := "", int64(0)
		for global, ov := range overlap[f.Label] {
			if ov > bestOv {
				best, bestOv = global, ov
			}
		}
		if best == "" {
			best = fmt.Sprintf("spk%d", d.nextSpeaker)
			d.nextSpeaker++
		}
		mapping[f.Label] = best
	}

	out := make([]DiarFrame, len(frames))
	for i, f := range frames {
		out[i] = f
		if m, ok := mapping[f.Label]; ok {
			out[i].Label = m
		}
	}
	return out
}

// rememberEmitted запоминает последнюю выдачу для сведения меток
// следующего прогона; хвост за горизонтом trail отбрасывается
func (d *SherpaDiarizer) rememberEmitted(frames []DiarFrame) {
	if len(frames) == 0 {
		return
	}
	d.prev = append(d.prev, frames...)
	horizon := d.trailStart
	keep := d.prev[:0]
	for _, f := range d.prev {
		if f.End > horizon {
			keep = append(keep, f)
		}
	}
	d.prev = keep
}

// Reset перезапускает потоковое состояние (хвост и счётчик патчей).
// Стабильные метки сессии сохраняются
func (d *SherpaDiarizer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	log.Printf("[SherpaDiarizer] reset (stream %s)", d.streamID)
}

func (d *SherpaDiarizer) resetLocked() {
	d.trail = d.trail[:0]
	d.trailStart = 0
	d.lastPatchEnd = 0
}

// Close освобождает ресурсы
func (d *SherpaDiarizer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.diarizer != nil {
		sherpa.DeleteOfflineSpeakerDiarization(d.diarizer)
		d.diarizer = nil
	}
	d.initialized = false
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
