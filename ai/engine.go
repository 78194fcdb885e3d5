// Package ai предоставляет подключаемые бэкенды диаризации, распознавания
// речи и извлечения голосовых эмбеддингов
package ai

import (
	"aicoach/audio"
)

// Метки диаризации помимо анонимных треков "spk<N>"
const (
	LabelOverlap   = "OVERLAP"   // несколько голосов одновременно
	LabelUncertain = "UNCERTAIN" // бэкенд не уверен в спикере
)

// DiarFrame провизорный вердикт диаризации для диапазона семплов [Start, End)
type DiarFrame struct {
	Start      int64
	End        int64
	Label      string // "spk0", "spk1", ... или OVERLAP/UNCERTAIN
	Confidence float32
	IsPatch    bool // фрейм пришёл в составе ретроактивного патча
}

// DiarPatch ретроактивная коррекция ранее выданных фреймов.
// Применение патча удаляет всё прежнее покрытие [Start, End) и вставляет
// Frames. Version строго растёт в пределах потока
type DiarPatch struct {
	Start   int64
	End     int64
	Version uint64
	Frames  []DiarFrame
}

// Diarizer контракт подключаемого движка диаризации.
// Реализация может быть модельной или тривиальной энергетической;
// оркестратор обязан работать с любой, не завязываясь на конкретную
type Diarizer interface {
	// Start инициализирует движок для потока
	Start(streamID string, sampleRate int) error

	// ProcessWindow обрабатывает окно аудио и возвращает провизорные
	// фреймы и, не чаще раза в интервал эмиссии, патч по прошлому диапазону
	ProcessWindow(w audio.Window) ([]DiarFrame, *DiarPatch, error)

	// Reset перезапускает внутреннее состояние движка. Вызывается при
	// разрыве тайминга больше одного фрейма, чтобы модель не дрейфовала
	// на неучтённой тишине
	Reset()

	// Close освобождает ресурсы
	Close()
}

// SttSegment фрагмент распознанного текста с таймингом в миллисекундах
type SttSegment struct {
	StartMs    int64
	EndMs      int64
	Text       string
	Confidence float32
	Final      bool // только финальные сегменты идут дальше по пайплайну
}

// Recognizer контракт подключаемого потокового распознавателя речи
type Recognizer interface {
	Start(streamID string, sampleRate int) error

	// ProcessChunk принимает очередной PCM16 чанк и возвращает готовые
	// сегменты (промежуточные и финальные)
	ProcessChunk(startSample int64, pcm []byte) ([]SttSegment, error)

	Stop() error
}

// EmbeddingExtractor контракт извлечения голосового эмбеддинга из PCM клипа.
// Возвращает вектор фиксированной длины либо ошибку ("unavailable")
type EmbeddingExtractor interface {
	Encode(samples []float32) ([]float32, error)
	Close()
}
