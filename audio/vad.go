package audio

import (
	"math"
	"time"
)

// PauseEvent пауза в речи, достаточно длинная чтобы служить границей
// предложения. Диапазон в абсолютных семплах
type PauseEvent struct {
	Start      int64
	End        int64
	Duration   time.Duration
	Confidence float32
}

// VADConfig параметры энергетического детектора речи
type VADConfig struct {
	SilenceThreshold float64       // RMS ниже которого фрейм считается тишиной
	MinPause         time.Duration // минимальная длительность паузы для события
	Hangover         time.Duration // сколько тишина должна продержаться прежде чем счёт начнётся
}

// DefaultVADConfig возвращает параметры по умолчанию
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SilenceThreshold: 0.015,
		MinPause:         600 * time.Millisecond,
		Hangover:         150 * time.Millisecond,
	}
}

// PauseDetector классифицирует фреймы речь/тишина и выдаёт события пауз.
// Hangover защищает от дробления на микропаузах: тишина короче hangover
// не прерывает речь
type PauseDetector struct {
	cfg        VADConfig
	sampleRate int

	inSilence    bool
	silenceStart int64 // индекс семпла начала тишины
	fired        bool  // пауза уже отдана для текущего затишья

	rmsEMA float64 // сглаженная энергия, для confidence
}

// NewPauseDetector создаёт детектор пауз
func NewPauseDetector(cfg VADConfig, sampleRate int) *PauseDetector {
	return &PauseDetector{cfg: cfg, sampleRate: sampleRate}
}

// Speech возвращает true если фрейм содержит речь
func (d *PauseDetector) Speech(f Frame) bool {
	return RMS(f.Samples) >= d.cfg.SilenceThreshold
}

// ProcessFrame обрабатывает очередной фрейм. Возвращает PauseEvent когда
// тишина продержалась не меньше MinPause (ровно одно событие на затишье)
func (d *PauseDetector) ProcessFrame(f Frame) *PauseEvent {
	rms := RMS(f.Samples)
	d.rmsEMA = 0.9*d.rmsEMA + 0.1*rms

	if rms >= d.cfg.SilenceThreshold {
		d.inSilence = false
		d.fired = false
		return nil
	}

	if !d.inSilence {
		d.inSilence = true
		d.silenceStart = f.Start
		return nil
	}

	if d.fired {
		return nil
	}

	elapsed := d.samplesToDuration(f.End - d.silenceStart)
	if elapsed < d.cfg.Hangover+d.cfg.MinPause {
		return nil
	}

	d.fired = true

	// Чем тише затишье относительно средней энергии, тем увереннее пауза
	conf := float32(1.0)
	if d.rmsEMA > 0 {
		conf = float32(1.0 - rms/math.Max(d.rmsEMA, d.cfg.SilenceThreshold))
		if conf < 0 {
			conf = 0
		}
	}

	return &PauseEvent{
		Start:      d.silenceStart,
		End:        f.End,
		Duration:   elapsed,
		Confidence: conf,
	}
}

func (d *PauseDetector) samplesToDuration(n int64) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(d.sampleRate)
}

// RMS вычисляет среднеквадратичную энергию семплов
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
