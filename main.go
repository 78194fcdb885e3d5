package main

import (
	"log"
	"os"

	"aicoach/ai"
	"aicoach/internal/api"
	"aicoach/internal/config"
	"aicoach/models"
	"aicoach/session"
	"aicoach/voiceid"
)

func main() {
	log.Println("AICoach backend starting...")

	cfg := config.Load()
	log.Printf("Models directory: %s", cfg.ModelsDir)

	// Скачанные через fetchmodels модели подхватываются, если
	// явные пути не заданы или не существуют
	modelMgr, err := models.NewManager(cfg.ModelsDir)
	if err != nil {
		log.Fatalf("Failed to init model manager: %v", err)
	}
	if !fileExists(cfg.SegmentationModel) {
		cfg.SegmentationModel = modelMgr.PathForRole(models.RoleSegmentation)
	}
	if !fileExists(cfg.EmbeddingModel) {
		cfg.EmbeddingModel = modelMgr.PathForRole(models.RoleEmbedding)
	}
	if cfg.RecognizerDir == "" {
		cfg.RecognizerDir = modelMgr.PathForRole(models.RoleRecognizer)
	}
	if cfg.SpeakerModel == "" {
		cfg.SpeakerModel = modelMgr.PathForRole(models.RoleSpeaker)
	}

	// База голосовых профилей. Отсутствующий файл — пустая база
	identities, err := voiceid.NewStore(cfg.SpeakersFile)
	if err != nil {
		log.Fatalf("Failed to load voice identities: %v", err)
	}
	log.Printf("Voice identities loaded: %d", identities.Count())

	backends := session.Backends{
		Identities: identities,
	}

	// Диаризация: нужны обе ONNX модели, иначе энергетический fallback
	if fileExists(cfg.SegmentationModel) && fileExists(cfg.EmbeddingModel) {
		segPath, embPath := cfg.SegmentationModel, cfg.EmbeddingModel
		backends.NewDiarizer = func(sampleRate int) (ai.Diarizer, error) {
			return ai.NewSherpaDiarizer(ai.DefaultSherpaDiarizerConfig(segPath, embPath))
		}
		log.Printf("Diarization: sherpa-onnx (%s)", segPath)
	} else {
		log.Println("Diarization: ONNX models not found, using energy fallback")
	}

	// Распознавание речи: опционально
	if cfg.RecognizerDir != "" {
		recDir := cfg.RecognizerDir
		backends.NewRecognizer = func(sampleRate int) (ai.Recognizer, error) {
			return ai.NewSherpaRecognizer(ai.DefaultSherpaRecognizerConfig(recDir))
		}
		log.Printf("Recognition: online transducer (%s)", recDir)
	} else {
		log.Println("Recognition: disabled, diarization-only mode")
	}

	// Идентификация голосов: опционально
	if cfg.SpeakerModel != "" {
		encoder, err := ai.NewSpeakerEncoder(ai.DefaultSpeakerEncoderConfig(cfg.SpeakerModel))
		if err != nil {
			log.Printf("Warning: failed to load speaker encoder: %v", err)
		} else {
			backends.Encoder = encoder
			defer encoder.Close()
			log.Printf("Voice identity: wespeaker (%s)", cfg.SpeakerModel)
		}
	} else {
		log.Println("Voice identity: disabled")
	}

	sessionMgr := session.NewManager(backends, func(sampleRate int) session.Options {
		opts := session.DefaultOptions(sampleRate)
		opts.RetentionSeconds = cfg.RetentionSeconds
		opts.Coach.DominanceRatio = float32(cfg.DominanceRatio)
		opts.Stitcher.StitchGapMs = cfg.StitchGapMs
		return opts
	})
	defer sessionMgr.StopAll()

	server := api.NewServer(cfg, sessionMgr)
	server.Start()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
