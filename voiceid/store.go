package voiceid

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store хранилище зарегистрированных голосовых профилей.
// Для сессии используется только на чтение: профили загружаются один
// раз при старте. Запись нужна только утилите регистрации
type Store struct {
	path string
	data IdentityFile
	mu   sync.RWMutex
}

// NewStore загружает профили из JSON файла.
// Отсутствующий файл - это пустое хранилище, не ошибка
func NewStore(path string) (*Store, error) {
	store := &Store{
		path: path,
		data: IdentityFile{Version: CurrentVersion},
	}

	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load identities: %w", err)
	}

	log.Printf("[VoiceID] Store loaded: %s (%d identities)", path, len(store.data.Identities))
	return store, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.data); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(s.path), err)
	}
	return nil
}

// GetAll возвращает копию всех профилей
func (s *Store) GetAll() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Identity, len(s.data.Identities))
	copy(result, s.data.Identities)
	return result
}

// Get возвращает профиль по ID
func (s *Store) Get(id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.data.Identities {
		if s.data.Identities[i].ID == id {
			ident := s.data.Identities[i]
			return &ident, nil
		}
	}
	return nil, fmt.Errorf("identity not found: %s", id)
}

// Count возвращает количество профилей
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Identities)
}

// Enroll добавляет embedding к профилю с данным именем, создавая
// профиль при необходимости. Используется утилитой регистрации
func (s *Store) Enroll(name string, embedding []float32) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emb := make([]float32, len(embedding))
	copy(emb, embedding)

	now := time.Now()
	for i := range s.data.Identities {
		if s.data.Identities[i].Name == name {
			s.data.Identities[i].Embeddings = append(s.data.Identities[i].Embeddings, emb)
			s.data.Identities[i].UpdatedAt = now
			if err := s.saveUnsafe(); err != nil {
				return nil, err
			}
			ident := s.data.Identities[i]
			log.Printf("[VoiceID] Enrolled sample %d for %s", len(ident.Embeddings), name)
			return &ident, nil
		}
	}

	ident := Identity{
		ID:         uuid.New().String(),
		Name:       name,
		Embeddings: [][]float32{emb},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.data.Identities = append(s.data.Identities, ident)

	if err := s.saveUnsafe(); err != nil {
		s.data.Identities = s.data.Identities[:len(s.data.Identities)-1]
		return nil, err
	}

	log.Printf("[VoiceID] Added identity: %s (%s)", ident.Name, ident.ID[:8])
	return &ident, nil
}

// saveUnsafe сохраняет атомарно через временный файл
// (вызывать только при удержании lock)
func (s *Store) saveUnsafe() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identities: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
