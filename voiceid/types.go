// Package voiceid сопоставляет анонимные треки диаризации с
// зарегистрированными голосовыми профилями
package voiceid

import "time"

// Identity зарегистрированный голосовой профиль.
// У профиля может быть несколько embedding'ов с разных записей
type Identity struct {
	ID         string      `json:"id"`   // UUID
	Name       string      `json:"name"` // Имя спикера (например, "Иван")
	Embeddings [][]float32 `json:"embeddings"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Notes      string      `json:"notes,omitempty"` // Заметки пользователя
}

// IdentityFile структура для хранения в JSON файле
type IdentityFile struct {
	Version    int        `json:"version"` // Версия формата (для миграций)
	Identities []Identity `json:"identities"`
}

// MatchResult результат поиска совпадения
type MatchResult struct {
	Identity   *Identity
	Score      float32 // Перцентиль косинусных сходств по embedding'ам профиля
	RunnerUp   float32 // Балл второго кандидата (для проверки margin)
	Confidence string  // "high", "medium", "low", "none"
}

// MatcherConfig пороги сопоставления и анти-мерцания
type MatcherConfig struct {
	MatchThreshold  float32 // минимальный балл лучшего кандидата
	MatchMargin     float32 // отрыв от второго кандидата
	ScorePercentile float64 // какой перцентиль сходств брать (0..1)

	// Анти-мерцание: предложенный профиль должен продержаться
	// N атрибуций подряд или заданное время, прежде чем заменит
	// отображаемый
	FlickerConfirmCount int
	FlickerConfirmAge   time.Duration

	CleanAudioMaxSeconds int // предел чистого аудио на трек
	MinCleanAudioSeconds int // минимум аудио для первой попытки сопоставления
}

// DefaultMatcherConfig возвращает пороги по умолчанию
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		MatchThreshold:       0.62,
		MatchMargin:          0.08,
		ScorePercentile:      0.5,
		FlickerConfirmCount:  3,
		FlickerConfirmAge:    10 * time.Second,
		CleanAudioMaxSeconds: 12,
		MinCleanAudioSeconds: 2,
	}
}

// Пороги уверенности (косинусное сходство)
const (
	ThresholdHigh   float32 = 0.80
	ThresholdMedium float32 = 0.70
	ThresholdLow    float32 = 0.55
)

// GetConfidence возвращает уровень уверенности для балла
func GetConfidence(score float32) string {
	switch {
	case score >= ThresholdHigh:
		return "high"
	case score >= ThresholdMedium:
		return "medium"
	case score >= ThresholdLow:
		return "low"
	default:
		return "none"
	}
}

// CurrentVersion текущая версия формата хранения
const CurrentVersion = 1
