package audio

import (
	"log"
	"math"
)

// FilterConfig конфигурация фильтров предобработки входного аудио
type FilterConfig struct {
	// Noise Gate - подавление шума ниже порога
	NoiseGateEnabled   bool
	NoiseGateThreshold float32

	// Normalization - нормализация громкости
	NormalizationEnabled bool
	TargetPeakLevel      float32

	// High-Pass Filter - фильтрация низкочастотного гула
	HighPassEnabled bool
	HighPassCutoff  float32 // Частота среза в Hz

	// De-click - удаление щелчков
	DeClickEnabled   bool
	DeClickThreshold float32
}

// DefaultFilterConfig возвращает конфигурацию по умолчанию
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		NoiseGateEnabled:     true,
		NoiseGateThreshold:   0.008, // Очень тихие сигналы - помехи
		NormalizationEnabled: true,
		TargetPeakLevel:      0.9,
		HighPassEnabled:      true,
		HighPassCutoff:       80, // Убираем гул ниже 80 Hz
		DeClickEnabled:       true,
		DeClickThreshold:     0.4,
	}
}

// ApplyFilters применяет все включённые фильтры к семплам.
// Исходный срез не изменяется
func ApplyFilters(samples []float32, sampleRate int, config FilterConfig) []float32 {
	if len(samples) == 0 {
		return samples
	}

	result := make([]float32, len(samples))
	copy(result, samples)

	// High-pass первым: убирает DC offset и низкочастотный гул
	if config.HighPassEnabled {
		result = applyHighPass(result, sampleRate, config.HighPassCutoff)
	}
	if config.DeClickEnabled {
		result = applyDeClick(result, config.DeClickThreshold)
	}
	if config.NoiseGateEnabled {
		result = applyNoiseGate(result, sampleRate, config.NoiseGateThreshold)
	}
	// Нормализация в конце, после очистки
	if config.NormalizationEnabled {
		result = applyNormalization(result, config.TargetPeakLevel)
	}

	return result
}

// applyHighPass IIR фильтр высоких частот первого порядка
func applyHighPass(samples []float32, sampleRate int, cutoffHz float32) []float32 {
	if len(samples) == 0 || cutoffHz <= 0 {
		return samples
	}

	rc := 1.0 / (2.0 * math.Pi * float64(cutoffHz))
	dt := 1.0 / float64(sampleRate)
	alpha := float32(rc / (rc + dt))

	result := make([]float32, len(samples))
	result[0] = samples[0]

	prevInput := samples[0]
	prevOutput := samples[0]

	for i := 1; i < len(samples); i++ {
		// y[i] = alpha * (y[i-1] + x[i] - x[i-1])
		result[i] = alpha * (prevOutput + samples[i] - prevInput)
		prevInput = samples[i]
		prevOutput = result[i]
	}

	return result
}

// applyDeClick обнаруживает резкие скачки амплитуды и интерполирует их
func applyDeClick(samples []float32, threshold float32) []float32 {
	if len(samples) < 3 {
		return samples
	}

	result := make([]float32, len(samples))
	copy(result, samples)

	for i := 1; i < len(samples)-1; i++ {
		diffPrev := abs32(samples[i] - samples[i-1])
		diffNext := abs32(samples[i] - samples[i+1])

		// Резкий скачок в обе стороны - щелчок
		if diffPrev > threshold && diffNext > threshold {
			result[i] = (samples[i-1] + samples[i+1]) / 2
		}
	}

	return result
}

// applyNoiseGate подавляет окна ниже порогового RMS.
// Плавное затухание вместо обнуления, чтобы не создавать артефактов
func applyNoiseGate(samples []float32, sampleRate int, threshold float32) []float32 {
	if len(samples) == 0 {
		return samples
	}

	windowSize := sampleRate / 100 // 10ms
	if windowSize < 1 {
		windowSize = 1
	}

	result := make([]float32, len(samples))
	copy(result, samples)

	for i := 0; i < len(samples); i += windowSize {
		end := i + windowSize
		if end > len(samples) {
			end = len(samples)
		}

		rms := float32(RMS(samples[i:end]))
		if rms >= threshold {
			continue
		}

		attenuation := rms / threshold
		if attenuation < 0.1 {
			attenuation = 0.1
		}
		for j := i; j < end; j++ {
			result[j] *= attenuation
		}
	}

	return result
}

// applyNormalization нормализует громкость к целевому пиковому уровню
func applyNormalization(samples []float32, targetPeak float32) []float32 {
	if len(samples) == 0 || targetPeak <= 0 {
		return samples
	}

	var maxAbs float32
	for _, s := range samples {
		if a := abs32(s); a > maxAbs {
			maxAbs = a
		}
	}

	if maxAbs < 0.001 {
		// Сигнал слишком тихий, усиление поднимет только шум
		return samples
	}

	gain := targetPeak / maxAbs
	if gain > 20 {
		gain = 20
		log.Printf("[AudioFilter] normalization gain limited to 20x (peak=%.4f)", maxAbs)
	}

	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = s * gain
	}
	return result
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
