package api

import (
	"aicoach/session"
)

// Message структура WebSocket сообщения. Аудио чанки идут отдельными
// бинарными фреймами: 8 байт little-endian стартового семпла + PCM16
type Message struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`

	// Параметры start_session
	SessionID  string `json:"sessionId,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`

	// Ответы
	Batch *session.Batch `json:"batch,omitempty"`
	Error string         `json:"error,omitempty"`

	// Активные сессии
	Sessions []string `json:"sessions,omitempty"`
}
