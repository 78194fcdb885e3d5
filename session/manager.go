package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"aicoach/ai"
	"aicoach/voiceid"
)

// Ошибки уровня сессий
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionStopped  = errors.New("session stopped")
)

// Backends фабрики внешних движков. nil-фабрика означает деградацию:
// диаризация падает на энергетический fallback, распознавание
// отключается
type Backends struct {
	NewDiarizer   func(sampleRate int) (ai.Diarizer, error)
	NewRecognizer func(sampleRate int) (ai.Recognizer, error)
	Encoder       ai.EmbeddingExtractor
	Identities    *voiceid.Store
}

// Manager управляет сессиями конвейера
type Manager struct {
	backends Backends
	opts     func(sampleRate int) Options

	mu       sync.RWMutex
	sessions map[string]*Orchestrator
}

// NewManager создаёт менеджер. optsFn допускает nil (настройки по
// умолчанию)
func NewManager(backends Backends, optsFn func(sampleRate int) Options) *Manager {
	if optsFn == nil {
		optsFn = DefaultOptions
	}
	return &Manager{
		backends: backends,
		opts:     optsFn,
		sessions: make(map[string]*Orchestrator),
	}
}

// StartSession создаёт конвейер для потока. Недоступность основного
// бэкенда не срывает старт: сессия деградирует до fallback'ов.
// Отказ возможен только если не инициализируется ничего
func (m *Manager) StartSession(ctx context.Context, id string, sampleRate int) error {
	if id == "" || sampleRate <= 0 {
		return fmt.Errorf("invalid session params: id=%q rate=%d", id, sampleRate)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; ok {
		return ErrSessionExists
	}

	diarizer, err := m.buildDiarizer(id, sampleRate)
	if err != nil {
		return fmt.Errorf("session %s refused: %w", id, err)
	}

	recognizer := m.buildRecognizer(id, sampleRate)

	o := NewOrchestrator(ctx, id, sampleRate, m.opts(sampleRate),
		diarizer, recognizer, m.backends.Encoder, m.backends.Identities)
	m.sessions[id] = o

	log.Printf("[Manager] session %s started (rate=%d)", id, sampleRate)
	return nil
}

// buildDiarizer создаёт и стартует бэкенд диаризации с fallback'ом
// на энергетический
func (m *Manager) buildDiarizer(id string, sampleRate int) (ai.Diarizer, error) {
	if m.backends.NewDiarizer != nil {
		d, err := m.backends.NewDiarizer(sampleRate)
		if err == nil {
			if err = d.Start(id, sampleRate); err == nil {
				return d, nil
			}
			d.Close()
		}
		log.Printf("[Manager] primary diarizer unavailable (%v), falling back to energy", err)
	}

	fallback := ai.NewEnergyDiarizer(0)
	if err := fallback.Start(id, sampleRate); err != nil {
		return nil, fmt.Errorf("energy diarizer failed to start: %w", err)
	}
	return fallback, nil
}

// buildRecognizer создаёт распознаватель; при недоступности сессия
// работает без текста
func (m *Manager) buildRecognizer(id string, sampleRate int) ai.Recognizer {
	if m.backends.NewRecognizer != nil {
		r, err := m.backends.NewRecognizer(sampleRate)
		if err == nil {
			if err = r.Start(id, sampleRate); err == nil {
				return r
			}
			r.Stop()
		}
		log.Printf("[Manager] recognizer unavailable (%v), running without text", err)
	}

	r := ai.NewNullRecognizer()
	r.Start(id, sampleRate)
	return r
}

// ProcessAudioChunk прогоняет чанк через конвейер сессии
func (m *Manager) ProcessAudioChunk(id string, startSample int64, pcm []byte) (*Batch, error) {
	m.mu.RLock()
	o, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	return o.ProcessChunk(startSample, pcm)
}

// StopSession останавливает конвейер и освобождает состояние.
// Возвращает финальный батч с остатком текста
func (m *Manager) StopSession(id string) (*Batch, error) {
	m.mu.Lock()
	o, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	batch, err := o.Stop()
	log.Printf("[Manager] session %s released", id)
	return batch, err
}

// ActiveSessions возвращает id активных сессий
func (m *Manager) ActiveSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// StopAll останавливает все сессии (завершение процесса)
func (m *Manager) StopAll() {
	for _, id := range m.ActiveSessions() {
		if _, err := m.StopSession(id); err != nil {
			log.Printf("[Manager] stop %s: %v", id, err)
		}
	}
}
