package session

import (
	"aicoach/coach"
	"aicoach/transcript"
)

// SentencePatch пере-атрибуция ранее выданного предложения.
// Потребитель применяет патч по (SentenceID, Version), отбрасывая
// устаревшие версии
type SentencePatch struct {
	SentenceID      string  `json:"sentence_id"`
	Version         uint64  `json:"version"`
	Label           string  `json:"label"`
	LabelConfidence float32 `json:"label_confidence"`
	VoiceID         string  `json:"voice_id,omitempty"`
	SpeakerName     string  `json:"speaker_name,omitempty"`
}

// Batch результат обработки одного входного чанка.
// Все элементы несут id и версии, так что применение идемпотентно
type Batch struct {
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`

	// Промежуточный текст (ещё не финализирован распознавателем)
	Provisional []transcript.Sentence `json:"provisional,omitempty"`

	// Финализированные атрибутированные реплики
	Sentences []transcript.SpeakerSentence `json:"sentences,omitempty"`

	// Пере-атрибуции после ретроспективных патчей диаризации
	Patches []SentencePatch `json:"patches,omitempty"`

	Nudges []coach.Nudge `json:"nudges,omitempty"`
}

// Empty true если батч не несёт событий
func (b *Batch) Empty() bool {
	return len(b.Provisional) == 0 && len(b.Sentences) == 0 &&
		len(b.Patches) == 0 && len(b.Nudges) == 0
}
