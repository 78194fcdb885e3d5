package models

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ProgressCallback функция обратного вызова для прогресса
type ProgressCallback func(modelID string, progress float64, status ModelStatus, err error)

// Manager менеджер моделей
type Manager struct {
	modelsDir  string
	downloads  map[string]context.CancelFunc // Активные загрузки
	mu         sync.RWMutex
	onProgress ProgressCallback
}

// NewManager создаёт новый менеджер моделей
func NewManager(modelsDir string) (*Manager, error) {
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &Manager{
		modelsDir: modelsDir,
		downloads: make(map[string]context.CancelFunc),
	}, nil
}

// SetProgressCallback устанавливает callback для прогресса
func (m *Manager) SetProgressCallback(cb ProgressCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProgress = cb
}

// GetModelsDir возвращает путь к директории моделей
func (m *Manager) GetModelsDir() string {
	return m.modelsDir
}

// GetModelPath возвращает путь к модели. Для распознавателей это
// директория с файлами transducer'а, для остальных - .onnx файл
func (m *Manager) GetModelPath(modelID string) string {
	info := GetModelByID(modelID)
	if info == nil {
		return ""
	}

	if info.IsArchive {
		extractDir := filepath.Join(m.modelsDir, modelID)
		if info.Role == RoleRecognizer {
			return extractDir
		}
		// Архивные модели сегментации: ищем .onnx внутри
		onnxPath, err := FindOnnxModelInDir(extractDir)
		if err == nil {
			return onnxPath
		}
		return filepath.Join(extractDir, "model.onnx")
	}

	return filepath.Join(m.modelsDir, modelID+".onnx")
}

// IsModelDownloaded проверяет, скачана ли модель
func (m *Manager) IsModelDownloaded(modelID string) bool {
	info := GetModelByID(modelID)
	if info == nil {
		return false
	}

	if info.IsArchive {
		extractDir := filepath.Join(m.modelsDir, modelID)
		if stat, err := os.Stat(extractDir); err != nil || !stat.IsDir() {
			return false
		}
		if info.Role == RoleRecognizer {
			// У transducer'а должны быть словарь и энкодер
			if _, err := os.Stat(filepath.Join(extractDir, "tokens.txt")); err != nil {
				return false
			}
			return hasFileWithPrefix(extractDir, "encoder")
		}
		_, err := FindOnnxModelInDir(extractDir)
		return err == nil
	}

	stat, err := os.Stat(m.GetModelPath(modelID))
	if err != nil {
		return false
	}
	// Обрезанный файл после прерванной загрузки
	return stat.Size() >= 1000000
}

// PathForRole возвращает путь первой скачанной модели роли.
// Пустая строка - ничего не скачано
func (m *Manager) PathForRole(role ModelRole) string {
	for _, info := range GetModelsByRole(role) {
		if m.IsModelDownloaded(info.ID) {
			return m.GetModelPath(info.ID)
		}
	}
	return ""
}

// GetAllModelsState возвращает состояние всех моделей
func (m *Manager) GetAllModelsState() []ModelState {
	m.mu.RLock()
	downloads := make(map[string]bool)
	for id := range m.downloads {
		downloads[id] = true
	}
	m.mu.RUnlock()

	states := make([]ModelState, len(Registry))
	for i, info := range Registry {
		state := ModelState{
			ModelInfo: info,
			Path:      m.GetModelPath(info.ID),
		}

		if downloads[info.ID] {
			state.Status = ModelStatusDownloading
		} else if m.IsModelDownloaded(info.ID) {
			state.Status = ModelStatusDownloaded
		} else {
			state.Status = ModelStatusNotDownloaded
		}

		states[i] = state
	}

	return states
}

// DownloadModel скачивает модель в фоне; прогресс через callback
func (m *Manager) DownloadModel(modelID string) error {
	info := GetModelByID(modelID)
	if info == nil {
		return fmt.Errorf("unknown model: %s", modelID)
	}

	m.mu.Lock()
	if _, exists := m.downloads[modelID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("model %s is already downloading", modelID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.downloads[modelID] = cancel
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.downloads, modelID)
			m.mu.Unlock()
		}()

		progressCb := func(progress float64) {
			m.notifyProgress(modelID, progress, ModelStatusDownloading, nil)
		}

		var err error
		if info.IsArchive {
			extractDir := filepath.Join(m.modelsDir, modelID)
			err = DownloadAndExtractTarBz2(ctx, info.DownloadURL, extractDir, info.SizeBytes, progressCb)
		} else {
			err = DownloadFile(ctx, info.DownloadURL, m.GetModelPath(modelID), info.SizeBytes, progressCb)
		}

		if err != nil {
			if ctx.Err() == context.Canceled {
				log.Printf("[Models] download cancelled: %s", modelID)
				m.notifyProgress(modelID, 0, ModelStatusNotDownloaded, nil)
			} else {
				log.Printf("[Models] download failed: %s: %v", modelID, err)
				m.notifyProgress(modelID, 0, ModelStatusError, err)
			}
			m.cleanupPartialDownload(modelID)
			return
		}

		log.Printf("[Models] download completed: %s", modelID)
		m.notifyProgress(modelID, 100, ModelStatusDownloaded, nil)
	}()

	return nil
}

// CancelDownload отменяет скачивание модели
func (m *Manager) CancelDownload(modelID string) error {
	m.mu.Lock()
	cancel, exists := m.downloads[modelID]
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("model %s is not downloading", modelID)
	}

	cancel()
	return nil
}

// DeleteModel удаляет скачанную модель
func (m *Manager) DeleteModel(modelID string) error {
	if !m.IsModelDownloaded(modelID) {
		return fmt.Errorf("model %s is not downloaded", modelID)
	}

	info := GetModelByID(modelID)
	if info.IsArchive {
		if err := os.RemoveAll(filepath.Join(m.modelsDir, modelID)); err != nil {
			return fmt.Errorf("failed to delete model directory: %w", err)
		}
	} else {
		if err := os.Remove(m.GetModelPath(modelID)); err != nil {
			return fmt.Errorf("failed to delete model: %w", err)
		}
	}

	log.Printf("[Models] model deleted: %s", modelID)
	return nil
}

func (m *Manager) notifyProgress(modelID string, progress float64, status ModelStatus, err error) {
	m.mu.RLock()
	cb := m.onProgress
	m.mu.RUnlock()

	if cb != nil {
		cb(modelID, progress, status, err)
	}
}

// cleanupPartialDownload удаляет остатки прерванной загрузки
func (m *Manager) cleanupPartialDownload(modelID string) {
	info := GetModelByID(modelID)
	if info == nil {
		return
	}

	if info.IsArchive {
		os.RemoveAll(filepath.Join(m.modelsDir, modelID))
		return
	}

	path := m.GetModelPath(modelID)
	os.Remove(path)
	os.Remove(path + ".tmp")
}

// hasFileWithPrefix проверяет наличие файла с префиксом имени в директории
func hasFileWithPrefix(dir, prefix string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			return true
		}
	}
	return false
}
