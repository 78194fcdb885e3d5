// Package coach выводит поведенческие подсказки из потока
// атрибутированных реплик
package coach

import (
	"fmt"
	"time"

	"aicoach/transcript"
)

// Nudge советное событие. Нигде не сохраняется
type Nudge struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Типы подсказок
const (
	NudgeDominance = "dominance"
)

// Config пороги правил
type Config struct {
	DominanceRatio    float32       // доля времени речи одного спикера
	DominanceWindowMs int64         // окно наблюдения
	NudgeCooldown     time.Duration // минимум между подсказками одного типа и метки
}

// DefaultConfig возвращает пороги по умолчанию
func DefaultConfig() Config {
	return Config{
		DominanceRatio:    0.75,
		DominanceWindowMs: 60000,
		NudgeCooldown:     2 * time.Minute,
	}
}

// spokenRange учтённая реплика
type spokenRange struct {
	startMs int64
	endMs   int64
	label   string
}

// Engine оценивает правила по скользящему окну реплик.
// Ошибки правил никогда не блокируют транскрипт: Process не
// возвращает error, неприменимые входы просто пропускаются
type Engine struct {
	config Config

	history   []spokenRange
	lastNudge map[string]time.Time
	now       func() time.Time
}

// NewEngine создаёт движок подсказок
func NewEngine(config Config) *Engine {
	return &Engine{
		config:    config,
		lastNudge: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Process учитывает финализированную реплику и возвращает подсказки
func (e *Engine) Process(ss transcript.SpeakerSentence) []Nudge {
	if ss.Overlap || ss.Uncertain || ss.DurationMs() <= 0 {
		return nil
	}

	e.history = append(e.history, spokenRange{
		startMs: ss.StartMs,
		endMs:   ss.EndMs,
		label:   ss.Label,
	})
	e.trim(ss.EndMs)

	return e.checkDominance(ss.EndMs)
}

// trim отбрасывает реплики за пределами окна наблюдения
func (e *Engine) trim(nowMs int64) {
	horizon := nowMs - e.config.DominanceWindowMs
	keep := e.history[:0]
	for _, r := range e.history {
		if r.endMs > horizon {
			keep = append(keep, r)
		}
	}
	e.history = keep
}

// checkDominance правило доминирования: один спикер занимает слишком
// большую долю времени речи в окне
func (e *Engine) checkDominance(nowMs int64) []Nudge {
	windowStart := nowMs - e.config.DominanceWindowMs
	if windowStart < 0 {
		windowStart = 0
	}
	if nowMs-windowStart < e.config.DominanceWindowMs {
		// Окно ещё не накоплено
		return nil
	}

	perLabel := make(map[string]int64)
	total := int64(0)
	for _, r := range e.history {
		start := r.startMs
		if start < windowStart {
			start = windowStart
		}
		dur := r.endMs - start
		if dur <= 0 {
			continue
		}
		perLabel[r.label] += dur
		total += dur
	}
	if total == 0 {
		return nil
	}

	var out []Nudge
	for label, dur := range perLabel {
		if float32(dur)/float32(total) < e.config.DominanceRatio {
			continue
		}
		key := NudgeDominance + ":" + label
		if last, ok := e.lastNudge[key]; ok && e.now().Sub(last) < e.config.NudgeCooldown {
			continue
		}
		e.lastNudge[key] = e.now()
		out = append(out, Nudge{
			Type:  NudgeDominance,
			Label: label,
			Text:  fmt.Sprintf("%s говорит большую часть времени, дайте высказаться остальным", label),
		})
	}
	return out
}
