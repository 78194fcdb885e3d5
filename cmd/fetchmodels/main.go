// Скачивание ONNX моделей конвейера.
// Запуск: go run ./cmd/fetchmodels -list
//         go run ./cmd/fetchmodels -get pyannote-segmentation-3.0
//         go run ./cmd/fetchmodels -recommended

package main

import (
	"flag"
	"fmt"
	"log"
	"sync"

	"aicoach/models"
)

func main() {
	modelsDir := flag.String("models", "models", "Directory for downloaded models")
	list := flag.Bool("list", false, "List available models")
	get := flag.String("get", "", "Download model by ID")
	recommended := flag.Bool("recommended", false, "Download all recommended models")
	flag.Parse()

	mgr, err := models.NewManager(*modelsDir)
	if err != nil {
		log.Fatalf("Ошибка инициализации: %v", err)
	}

	if *list {
		for _, state := range mgr.GetAllModelsState() {
			mark := " "
			if state.Status == models.ModelStatusDownloaded {
				mark = "+"
			}
			fmt.Printf("[%s] %-40s %-12s %-8s %s\n", mark, state.ID, state.Role, state.Size, state.Description)
		}
		return
	}

	var ids []string
	switch {
	case *get != "":
		ids = []string{*get}
	case *recommended:
		for _, info := range models.GetRecommendedModels() {
			ids = append(ids, info.ID)
		}
	default:
		log.Fatal("Usage: fetchmodels -list | -get <id> | -recommended")
	}

	var wg sync.WaitGroup
	mgr.SetProgressCallback(func(modelID string, progress float64, status models.ModelStatus, err error) {
		switch status {
		case models.ModelStatusDownloading:
			fmt.Printf("\r%s: %.1f%%", modelID, progress)
		case models.ModelStatusDownloaded:
			fmt.Printf("\r%s: готово (%s)\n", modelID, mgr.GetModelPath(modelID))
			wg.Done()
		case models.ModelStatusError:
			fmt.Printf("\r%s: ошибка: %v\n", modelID, err)
			wg.Done()
		case models.ModelStatusNotDownloaded:
			fmt.Printf("\r%s: отменено\n", modelID)
			wg.Done()
		}
	})

	for _, id := range ids {
		if mgr.IsModelDownloaded(id) {
			log.Printf("%s уже скачана: %s", id, mgr.GetModelPath(id))
			continue
		}
		wg.Add(1)
		if err := mgr.DownloadModel(id); err != nil {
			wg.Done()
			log.Printf("Ошибка запуска загрузки %s: %v", id, err)
		}
	}
	wg.Wait()
}
