package config

import (
	"flag"
	"path/filepath"
)

type Config struct {
	Port string

	// Модели (пустой путь = движок отключён, работает fallback)
	ModelsDir         string
	SegmentationModel string
	EmbeddingModel    string
	RecognizerDir     string
	SpeakerModel      string

	// База голосовых профилей
	SpeakersFile string

	SampleRate int

	// Пороги конвейера
	RetentionSeconds int
	DominanceRatio   float64
	StitchGapMs      int64
}

func Load() *Config {
	port := flag.String("port", "8080", "Server port")
	modelsDir := flag.String("models", "models", "Directory with ONNX models")
	segModel := flag.String("segmentation", "", "Pyannote segmentation model (default: modelsDir/segmentation.onnx)")
	embModel := flag.String("embedding", "", "Speaker embedding model for diarization (default: modelsDir/embedding.onnx)")
	recDir := flag.String("recognizer", "", "Online transducer model dir (empty = no speech recognition)")
	spkModel := flag.String("speaker", "", "WeSpeaker model for voice identity (empty = no identity matching)")
	speakers := flag.String("speakers", "speakers.json", "Enrolled voice identities file")
	rate := flag.Int("rate", 16000, "Input sample rate")
	retention := flag.Int("retention", 300, "Audio retention horizon, seconds")
	dominance := flag.Float64("dominance", 0.75, "Speaking-time share that triggers a nudge")
	stitchGap := flag.Int64("stitch-gap", 1200, "Max gap between merged sentences, ms")
	flag.Parse()

	cfg := &Config{
		Port:              *port,
		ModelsDir:         *modelsDir,
		SegmentationModel: *segModel,
		EmbeddingModel:    *embModel,
		RecognizerDir:     *recDir,
		SpeakerModel:      *spkModel,
		SpeakersFile:      *speakers,
		SampleRate:        *rate,
		RetentionSeconds:  *retention,
		DominanceRatio:    *dominance,
		StitchGapMs:       *stitchGap,
	}

	if cfg.SegmentationModel == "" {
		cfg.SegmentationModel = filepath.Join(cfg.ModelsDir, "segmentation.onnx")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = filepath.Join(cfg.ModelsDir, "embedding.onnx")
	}

	return cfg
}
