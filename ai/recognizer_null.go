package ai

import "log"

// NullRecognizer заглушка для режима без распознавания текста:
// диаризация и таймлайн спикеров продолжают работать, текст не отдаётся
type NullRecognizer struct{}

// NewNullRecognizer создаёт заглушку
func NewNullRecognizer() *NullRecognizer {
	log.Printf("[NullRecognizer] speech recognition disabled, running diarization-only")
	return &NullRecognizer{}
}

func (n *NullRecognizer) Start(streamID string, sampleRate int) error { return nil }

func (n *NullRecognizer) ProcessChunk(startSample int64, pcm []byte) ([]SttSegment, error) {
	return nil, nil
}

func (n *NullRecognizer) Stop() error { return nil }
