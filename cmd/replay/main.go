// Прогон записанного файла через конвейер диаризации и атрибуции.
// Запуск: go run ./cmd/replay -file call.wav -segmentation models/segmentation.onnx -embedding models/embedding.onnx
// Без моделей работает энергетический fallback

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"aicoach/ai"
	"aicoach/audio"
	"aicoach/session"
	"aicoach/voiceid"
)

const chunkMs = 100

func main() {
	file := flag.String("file", "", "WAV or MP3 file to replay")
	segModel := flag.String("segmentation", "", "Pyannote segmentation model")
	embModel := flag.String("embedding", "", "Speaker embedding model")
	recDir := flag.String("recognizer", "", "Online transducer model dir")
	spkModel := flag.String("speaker", "", "WeSpeaker model for voice identity")
	speakers := flag.String("speakers", "speakers.json", "Enrolled voice identities file")
	rate := flag.Int("rate", 16000, "Pipeline sample rate")
	useFilters := flag.Bool("filters", false, "Apply noise filters before processing")
	realtime := flag.Bool("realtime", false, "Pace chunks at wall-clock speed")
	flag.Parse()

	if *file == "" {
		log.Fatal("Usage: replay -file <audio.wav|audio.mp3>")
	}

	samples, err := readAudio(*file, *rate)
	if err != nil {
		log.Fatalf("Ошибка чтения файла: %v", err)
	}
	log.Printf("Файл: %s, %d семплов (%.1f сек)", *file, len(samples), float64(len(samples))/float64(*rate))

	if *useFilters {
		samples = audio.ApplyFilters(samples, *rate, audio.DefaultFilterConfig())
		log.Println("Фильтры применены")
	}

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

	mgr := session.NewManager(backends, nil)
	sessID := strings.TrimSuffix(filepath.Base(*file), filepath.Ext(*file))
	if err := mgr.StartSession(context.Background(), sessID, *rate); err != nil {
		log.Fatalf("Ошибка старта сессии: %v", err)
	}

	chunkSamples := *rate * chunkMs / 1000
	for pos := 0; pos < len(samples); pos += chunkSamples {
		end := pos + chunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		pcm := audio.Float32ToPCM16(samples[pos:end])

		batch, err := mgr.ProcessAudioChunk(sessID, int64(pos), pcm)
		if err != nil {
			log.Fatalf("Ошибка обработки чанка: %v", err)
		}
		printBatch(batch, identities)

		if *realtime {
			time.Sleep(chunkMs * time.Millisecond)
		}
	}

	final, err := mgr.StopSession(sessID)
	if err != nil {
		log.Fatalf("Ошибка остановки: %v", err)
	}
	printBatch(final, identities)
	log.Println("Готово")
}

func readAudio(path string, targetRate int) ([]float32, error) {
	if strings.HasSuffix(strings.ToLower(path), ".mp3") {
		return audio.ReadMP3(path, targetRate)
	}
	samples, rate, err := audio.ReadWAV(path)
	if err != nil {
		return nil, err
	}
	if rate != targetRate {
		samples = audio.ResampleLinear(samples, rate, targetRate)
	}
	return samples, nil
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
	for _, p := range batch.Patches {
		who := p.Label
		if p.SpeakerName != "" {
			who = p.SpeakerName
		}
		fmt.Printf("  ~ правка %s -> %s (v%d)\n", p.SentenceID[:8], who, p.Version)
	}
	for _, n := range batch.Nudges {
		fmt.Printf("  ! подсказка [%s] %s\n", n.Label, n.Text)
	}
}
