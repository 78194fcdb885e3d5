package ai

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"aicoach/audio"
)

// SherpaRecognizerConfig конфигурация потокового распознавателя
type SherpaRecognizerConfig struct {
	EncoderPath string // zipformer transducer encoder
	DecoderPath string
	JoinerPath  string
	TokensPath  string
	NumThreads  int
	Provider    string

	// Endpoint-правила: сколько хвостовой тишины закрывает высказывание
	Rule1TrailingSilence float32 // после без-декодной тишины (сек)
	Rule2TrailingSilence float32 // после декодированного текста (сек)
	Rule3MinUtterance    float32 // максимум длины высказывания (сек)
}

// DefaultSherpaRecognizerConfig возвращает конфигурацию по умолчанию
func DefaultSherpaRecognizerConfig(modelDir string) SherpaRecognizerConfig {
	return SherpaRecognizerConfig{
		EncoderPath:          modelDir + "/encoder.onnx",
		DecoderPath:          modelDir + "/decoder.onnx",
		JoinerPath:           modelDir + "/joiner.onnx",
		TokensPath:           modelDir + "/tokens.txt",
		NumThreads:           2,
		Provider:             "cpu",
		Rule1TrailingSilence: 2.4,
		Rule2TrailingSilence: 1.2,
		Rule3MinUtterance:    20,
	}
}

// SherpaRecognizer потоковый распознаватель на базе online transducer
// sherpa-onnx. Финальные сегменты отдаются на endpoint'ах
type SherpaRecognizer struct {
	config     SherpaRecognizerConfig
	recognizer *sherpa.OnlineRecognizer
	stream     *sherpa.OnlineStream

	sampleRate int
	streamID   string

	utterStart int64 // абсолютный семпл начала текущего высказывания
	fedSamples int64 // абсолютный семпл конца поданного аудио

	mu          sync.Mutex
	initialized bool
}

// NewSherpaRecognizer создаёт распознаватель
func NewSherpaRecognizer(config SherpaRecognizerConfig) (*SherpaRecognizer, error) {
	for _, p := range []string{config.EncoderPath, config.DecoderPath, config.JoinerPath, config.TokensPath} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("recognizer model file not found: %s", p)
		}
	}

	c := sherpa.OnlineRecognizerConfig{}
	c.FeatConfig = sherpa.FeatureConfig{SampleRate: 16000, FeatureDim: 80}
	c.ModelConfig = sherpa.OnlineModelConfig{
		Transducer: sherpa.OnlineTransducerModelConfig{
			Encoder: config.EncoderPath,
			Decoder: config.DecoderPath,
			Joiner:  config.JoinerPath,
		},
		Tokens:     config.TokensPath,
		NumThreads: config.NumThreads,
		Provider:   config.Provider,
		Debug:      0,
	}
	c.DecodingMethod = "greedy_search"
	c.EnableEndpoint = 1
	c.Rule1MinTrailingSilence = config.Rule1TrailingSilence
	c.Rule2MinTrailingSilence = config.Rule2TrailingSilence
	c.Rule3MinUtteranceLength = config.Rule3MinUtterance

	recognizer := sherpa.NewOnlineRecognizer(&c)
	if recognizer == nil {
		return nil, fmt.Errorf("failed to create sherpa online recognizer")
	}

	log.Printf("[SherpaRecognizer] initialized (provider=%s, threads=%d)", config.Provider, config.NumThreads)

	return &SherpaRecognizer{
		config:      config,
		recognizer:  recognizer,
		initialized: true,
	}, nil
}

// Start открывает поток распознавания
func (r *SherpaRecognizer) Start(streamID string, sampleRate int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return fmt.Errorf("sherpa recognizer not initialized")
	}
	if r.stream != nil {
		sherpa.DeleteOnlineStream(r.stream)
	}

	r.stream = sherpa.NewOnlineStream(r.recognizer)
	if r.stream == nil {
		return fmt.Errorf("failed to create sherpa online stream")
	}

	r.streamID = streamID
	r.sampleRate = sampleRate
	r.utterStart = 0
	r.fedSamples = 0
	return nil
}

// ProcessChunk подаёт PCM чанк и собирает сегменты.
// Промежуточный текст отдаётся с Final=false, на endpoint'е - с Final=true
func (r *SherpaRecognizer) ProcessChunk(startSample int64, pcm []byte) ([]SttSegment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream == nil {
		return nil, fmt.Errorf("recognizer stream not started")
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	samples := audio.PCM16ToFloat32(pcm)
	if r.fedSamples == 0 {
		r.utterStart = startSample
	}
	r.stream.AcceptWaveform(r.sampleRate, samples)
	r.fedSamples = startSample + int64(len(samples))

	var segments []SttSegment
	for r.recognizer.IsReady(r.stream) {
		r.recognizer.Decode(r.stream)
	}

	result := r.recognizer.GetResult(r.stream)
	text := strings.TrimSpace(result.Text)

	if r.recognizer.IsEndpoint(r.stream) {
		if text != "" {
			segments = append(segments, r.segment(text, true))
		}
		r.recognizer.Reset(r.stream)
		r.utterStart = r.fedSamples
	} else if text != "" {
		segments = append(segments, r.segment(text, false))
	}

	return segments, nil
}

func (r *SherpaRecognizer) segment(text string, final bool) SttSegment {
	return SttSegment{
		StartMs:    r.utterStart * 1000 / int64(r.sampleRate),
		EndMs:      r.fedSamples * 1000 / int64(r.sampleRate),
		Text:       text,
		Confidence: 0.9,
		Final:      final,
	}
}

// Stop закрывает поток, финализируя остаток
func (r *SherpaRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		r.stream.InputFinished()
		for r.recognizer.IsReady(r.stream) {
			r.recognizer.Decode(r.stream)
		}
		sherpa.DeleteOnlineStream(r.stream)
		r.stream = nil
	}
	return nil
}

// Close освобождает ресурсы движка
func (r *SherpaRecognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		sherpa.DeleteOnlineStream(r.stream)
		r.stream = nil
	}
	if r.recognizer != nil {
		sherpa.DeleteOnlineRecognizer(r.recognizer)
		r.recognizer = nil
	}
	r.initialized = false
}
