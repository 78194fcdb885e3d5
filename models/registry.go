// Package models предоставляет скачивание и учёт ONNX моделей конвейера
package models

// ModelRole роль модели в конвейере
type ModelRole string

const (
	RoleSegmentation ModelRole = "segmentation" // Pyannote сегментация спикеров
	RoleEmbedding    ModelRole = "embedding"    // Speaker embedding для диаризации
	RoleRecognizer   ModelRole = "recognizer"   // Online transducer распознавание речи
	RoleSpeaker      ModelRole = "speaker"      // Эмбеддинги для идентификации голосов
)

// ModelInfo информация о модели
type ModelInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Role        ModelRole `json:"role"`
	Size        string    `json:"size"`
	SizeBytes   int64     `json:"sizeBytes"`
	Description string    `json:"description"`
	Languages   []string  `json:"languages"`
	Recommended bool      `json:"recommended,omitempty"`
	DownloadURL string    `json:"downloadUrl"`
	IsArchive   bool      `json:"isArchive,omitempty"` // tar.bz2 архив с файлами модели
}

// ModelStatus статус модели на устройстве
type ModelStatus string

const (
	ModelStatusNotDownloaded ModelStatus = "not_downloaded"
	ModelStatusDownloading   ModelStatus = "downloading"
	ModelStatusDownloaded    ModelStatus = "downloaded"
	ModelStatusError         ModelStatus = "error"
)

// ModelState состояние модели с информацией
type ModelState struct {
	ModelInfo
	Status   ModelStatus `json:"status"`
	Progress float64     `json:"progress,omitempty"` // 0-100
	Error    string      `json:"error,omitempty"`
	Path     string      `json:"path,omitempty"` // Путь к скачанной модели
}

// Registry реестр доступных моделей
var Registry = []ModelInfo{
	// ===== Сегментация спикеров =====
	{
		ID:          "pyannote-segmentation-3.0",
		Name:        "Pyannote Segmentation 3.0",
		Role:        RoleSegmentation,
		Size:        "5.9 MB",
		SizeBytes:   5_900_000,
		Description: "Сегментация спикеров (pyannote.audio)",
		Languages:   []string{"multi"},
		Recommended: true,
		IsArchive:   true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-segmentation-models/sherpa-onnx-pyannote-segmentation-3-0.tar.bz2",
	},

	// ===== Speaker embedding для диаризации =====
	{
		ID:          "3dspeaker-speech-eres2net",
		Name:        "3D-Speaker ERes2Net",
		Role:        RoleEmbedding,
		Size:        "25 MB",
		SizeBytes:   25_000_000,
		Description: "Speaker embedding (3D-Speaker, Alibaba)",
		Languages:   []string{"multi"},
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/3dspeaker_speech_eres2net_base_sv_zh-cn_3dspeaker_16k.onnx",
	},
	{
		ID:          "wespeaker-voxceleb-resnet34",
		Name:        "WeSpeaker ResNet34",
		Role:        RoleEmbedding,
		Size:        "26 MB",
		SizeBytes:   26_851_029,
		Description: "Speaker embedding (WeSpeaker ResNet34)",
		Languages:   []string{"multi"},
		Recommended: true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/wespeaker_en_voxceleb_resnet34.onnx",
	},

	// ===== Распознавание речи (online transducer) =====
	{
		ID:          "streaming-zipformer-en",
		Name:        "Streaming Zipformer (EN)",
		Role:        RoleRecognizer,
		Size:        "~300 MB",
		SizeBytes:   300_000_000,
		Description: "Потоковый zipformer transducer, английский",
		Languages:   []string{"en"},
		Recommended: true,
		IsArchive:   true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/sherpa-onnx-streaming-zipformer-en-2023-06-26.tar.bz2",
	},
	{
		ID:          "streaming-zipformer-bilingual-zh-en",
		Name:        "Streaming Zipformer (ZH+EN)",
		Role:        RoleRecognizer,
		Size:        "~300 MB",
		SizeBytes:   300_000_000,
		Description: "Потоковый zipformer transducer, китайский + английский",
		Languages:   []string{"zh", "en"},
		IsArchive:   true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/sherpa-onnx-streaming-zipformer-bilingual-zh-en-2023-02-20.tar.bz2",
	},

	// ===== Идентификация голосов =====
	{
		ID:          "wespeaker-voxceleb-resnet34-voiceid",
		Name:        "WeSpeaker ResNet34 (voice ID)",
		Role:        RoleSpeaker,
		Size:        "26 MB",
		SizeBytes:   26_851_029,
		Description: "Эмбеддинги для сопоставления с базой голосов",
		Languages:   []string{"multi"},
		Recommended: true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/wespeaker_en_voxceleb_resnet34.onnx",
	},
}

// GetModelByID возвращает модель по ID
func GetModelByID(id string) *ModelInfo {
	for _, m := range Registry {
		if m.ID == id {
			return &m
		}
	}
	return nil
}

// GetModelsByRole возвращает модели для роли конвейера
func GetModelsByRole(role ModelRole) []ModelInfo {
	var result []ModelInfo
	for _, m := range Registry {
		if m.Role == role {
			result = append(result, m)
		}
	}
	return result
}

// GetRecommendedModels возвращает рекомендуемые модели
func GetRecommendedModels() []ModelInfo {
	var result []ModelInfo
	for _, m := range Registry {
		if m.Recommended {
			result = append(result, m)
		}
	}
	return result
}
