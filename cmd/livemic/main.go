// Живая диаризация с микрофона.
// Запуск: go run ./cmd/livemic -segmentation models/segmentation.onnx -embedding models/embedding.onnx
// Остановка: Ctrl+C

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"aicoach/ai"
	"aicoach/audio"
	"aicoach/session"
	"aicoach/voiceid"
)

func main() {
	segModel := flag.String("segmentation", "", "Pyannote segmentation model")
	embModel := flag.String("embedding", "", "Speaker embedding model")
	recDir := flag.String("recognizer", "", "Online transducer model dir")
	spkModel := flag.String("speaker", "", "WeSpeaker model for voice identity")
	speakers := flag.String("speakers", "speakers.json", "Enrolled voice identities file")
	rate := flag.Int("rate", 16000, "Capture sample rate")
	flag.Parse()

	log.Println("=== Живая диаризация с микрофона ===")
	log.Println("Нажмите Ctrl+C для остановки...")

	identities, err := voiceid.NewStore(*speakers)
	if err != nil {
		log.Fatalf("Ошибка загрузки профилей: %v", err)
	}

	backends := session.Backends{Identities: identities}
	if *segModel != "" && *embModel != "" {
		seg, emb := *segModel, *embModel
		backends.NewDiarizer = func(sampleRate int) (ai.Diarizer, error) {
			return ai.NewSherpaDiarizer(ai.DefaultSherpaDiarizerConfig(seg, emb))
		}
	} else {
		log.Println("Модели не указаны, энергетический fallback")
	}
	if *recDir != "" {
		dir := *recDir
		backends.NewRecognizer = func(sampleRate int) (ai.Recognizer, error) {
			return ai.NewSherpaRecognizer(ai.DefaultSherpaRecognizerConfig(dir))
		}
	}
	if *spkModel != "" {
		encoder, err := ai.NewSpeakerEncoder(ai.DefaultSpeakerEncoderConfig(*spkModel))
		if err != nil {
			log.Fatalf("Ошибка загрузки speaker encoder: %v", err)
		}
		defer encoder.Close()
		backends.Encoder = encoder
	}

	capture, err := audio.NewCapture(*rate)
	if err != nil {
		log.Fatalf("Ошибка инициализации захвата: %v", err)
	}
	defer capture.Close()

	mgr := session.NewManager(backends, nil)
	const sessID = "livemic"
	if err := mgr.StartSession(context.Background(), sessID, *rate); err != nil {
		log.Fatalf("Ошибка старта сессии: %v", err)
	}

	if err := capture.Start(); err != nil {
		log.Fatalf("Ошибка старта захвата: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var written int64
	for {
		select {
		case <-sigChan:
			capture.Stop()
			final, err := mgr.StopSession(sessID)
			if err != nil {
				log.Fatalf("Ошибка остановки: %v", err)
			}
			printBatch(final, identities)
			log.Printf("Записано %.1f сек", float64(written)/float64(*rate))
			return

		case samples := <-capture.Data():
			pcm := audio.Float32ToPCM16(samples)
			batch, err := mgr.ProcessAudioChunk(sessID, written, pcm)
			if err != nil {
				log.Printf("Ошибка обработки: %v", err)
				continue
			}
			written += int64(len(samples))
			printBatch(batch, identities)
		}
	}
}

func printBatch(batch *session.Batch, identities *voiceid.Store) {
	if batch == nil || batch.Empty() {
		return
	}
	for _, s := range batch.Sentences {
		who := s.Label
		if s.VoiceID != "" {
			if ident, err := identities.Get(s.VoiceID); err == nil {
				who = ident.Name
			}
		}
		fmt.Printf("[%7.2f-%7.2f] %-10s %s\n",
			float64(s.StartMs)/1000, float64(s.EndMs)/1000, who, s.Text)
	}
	for _, n := range batch.Nudges {
		fmt.Printf("  ! подсказка [%s] %s\n", n.Label, n.Text)
	}
}
