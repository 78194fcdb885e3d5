package transcript

// Fragment исходный кусок распознанного текста со своим диапазоном.
// Сохраняется внутри предложения для последующей пере-атрибуции
type Fragment struct {
	Text    string `json:"text"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// Sentence собранное предложение
type Sentence struct {
	ID        string     `json:"id"`
	StartMs   int64      `json:"start_ms"`
	EndMs     int64      `json:"end_ms"`
	Text      string     `json:"text"`
	Final     bool       `json:"final"`
	Fragments []Fragment `json:"fragments,omitempty"`
}

// SpeakerSentence предложение с атрибуцией спикера
type SpeakerSentence struct {
	Sentence
	Label           string  `json:"label"`
	LabelConfidence float32 `json:"label_confidence"`
	Coverage        float32 `json:"coverage"`
	Overlap         bool    `json:"overlap,omitempty"`
	Uncertain       bool    `json:"uncertain,omitempty"`
	Patched         bool    `json:"patched,omitempty"`
	VoiceID         string  `json:"voice_id,omitempty"`
	Version         uint64  `json:"version"`
}

// DurationMs длительность предложения
func (s *Sentence) DurationMs() int64 {
	return s.EndMs - s.StartMs
}
