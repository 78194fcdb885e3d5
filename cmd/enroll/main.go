// Регистрация голосового профиля из записи.
// Запуск: go run ./cmd/enroll -name "Иван" -file ivan.wav -speaker models/wespeaker.onnx
// Повторный запуск с тем же именем добавляет эмбеддинг к профилю

package main

import (
	"flag"
	"log"
	"strings"

	"aicoach/ai"
	"aicoach/audio"
	"aicoach/voiceid"
)

func main() {
	name := flag.String("name", "", "Speaker name")
	file := flag.String("file", "", "WAV or MP3 with clean speech of the speaker")
	spkModel := flag.String("speaker", "", "WeSpeaker model path")
	speakers := flag.String("speakers", "speakers.json", "Enrolled voice identities file")
	useFilters := flag.Bool("filters", true, "Apply noise filters before encoding")
	flag.Parse()

	if *name == "" || *file == "" || *spkModel == "" {
		log.Fatal("Usage: enroll -name <имя> -file <audio.wav> -speaker <model.onnx>")
	}

	encCfg := ai.DefaultSpeakerEncoderConfig(*spkModel)
	encoder, err := ai.NewSpeakerEncoder(encCfg)
	if err != nil {
		log.Fatalf("Ошибка загрузки speaker encoder: %v", err)
	}
	defer encoder.Close()

	targetRate := encCfg.SampleRate
	var samples []float32
	if strings.HasSuffix(strings.ToLower(*file), ".mp3") {
		samples, err = audio.ReadMP3(*file, targetRate)
	} else {
		var rate int
		samples, rate, err = audio.ReadWAV(*file)
		if err == nil && rate != targetRate {
			samples = audio.ResampleLinear(samples, rate, targetRate)
		}
	}
	if err != nil {
		log.Fatalf("Ошибка чтения файла: %v", err)
	}
	if len(samples) < targetRate {
		log.Fatalf("Слишком короткая запись: %.1f сек, нужно минимум 1 сек", float64(len(samples))/float64(targetRate))
	}

	if *useFilters {
		samples = audio.ApplyFilters(samples, targetRate, audio.DefaultFilterConfig())
	}

	embedding, err := encoder.Encode(samples)
	if err != nil {
		log.Fatalf("Ошибка вычисления эмбеддинга: %v", err)
	}

	store, err := voiceid.NewStore(*speakers)
	if err != nil {
		log.Fatalf("Ошибка загрузки профилей: %v", err)
	}

	ident, err := store.Enroll(*name, embedding)
	if err != nil {
		log.Fatalf("Ошибка регистрации: %v", err)
	}

	log.Printf("Профиль %q сохранён: id=%s, эмбеддингов=%d", ident.Name, ident.ID, len(ident.Embeddings))
}
