package session

import (
	"context"
	"testing"
	"time"

	"aicoach/ai"
	"aicoach/audio"
	"aicoach/transcript"
)

const testRate = 16000

// stubDiarizer помечает каждое окно единственным треком
type stubDiarizer struct{}

func (stubDiarizer) Start(streamID string, sampleRate int) error { return nil }

func (stubDiarizer) ProcessWindow(w audio.Window) ([]ai.DiarFrame, *ai.DiarPatch, error) {
	return []ai.DiarFrame{{Start: w.Start, End: w.End, Label: "spk0", Confidence: 0.9}}, nil, nil
}

func (stubDiarizer) Reset() {}
func (stubDiarizer) Close() {}

// stubSegment заготовленный сегмент и момент потока, в который
// распознаватель его "дожмёт"
type stubSegment struct {
	seg       ai.SttSegment
	releaseMs int64
}

// stubRecognizer отдаёт заготовленные финальные сегменты по мере
// продвижения потока
type stubRecognizer struct {
	segments []stubSegment
	fed      int64
}

func (r *stubRecognizer) Start(streamID string, sampleRate int) error { return nil }

func (r *stubRecognizer) ProcessChunk(startSample int64, pcm []byte) ([]ai.SttSegment, error) {
	r.fed = startSample + int64(len(pcm)/2)
	fedMs := r.fed * 1000 / testRate

	var out []ai.SttSegment
	rest := r.segments[:0]
	for _, s := range r.segments {
		if s.releaseMs <= fedMs {
			out = append(out, s.seg)
		} else {
			rest = append(rest, s)
		}
	}
	r.segments = rest
	return out, nil
}

func (r *stubRecognizer) Stop() error { return nil }

// feed прогоняет непрерывный поток чанков по 100ms и собирает батчи
func feed(t *testing.T, m *Manager, id string, fromMs, toMs int64) []*Batch {
	t.Helper()
	chunkSamples := testRate / 10

	var batches []*Batch
	for ms := fromMs; ms < toMs; ms += 100 {
		start := ms * testRate / 1000
		pcm := make([]byte, chunkSamples*2)
		for i := 0; i < chunkSamples; i++ {
			// Негромкий меандр, чтобы VAD видел речь
			v := int16(3000)
			if i%2 == 0 {
				v = -3000
			}
			pcm[i*2] = byte(v)
			pcm[i*2+1] = byte(v >> 8)
		}
		b, err := m.ProcessAudioChunk(id, start, pcm)
		if err != nil {
			t.Fatalf("chunk at %dms: %v", ms, err)
		}
		batches = append(batches, b)
	}
	return batches
}

func testManager(rec *stubRecognizer) *Manager {
	return NewManager(Backends{
		NewDiarizer:   func(int) (ai.Diarizer, error) { return stubDiarizer{}, nil },
		NewRecognizer: func(int) (ai.Recognizer, error) { return rec, nil },
	}, nil)
}

func allSentences(batches []*Batch) []transcript.SpeakerSentence {
	var out []transcript.SpeakerSentence
	for _, b := range batches {
		out = append(out, b.Sentences...)
	}
	return out
}

func TestPipelineProducesAttributedSentence(t *testing.T) {
	rec := &stubRecognizer{segments: []stubSegment{
		// Сегмент отдаётся после того, как таймлайн уже накрыл его диапазон
		{seg: ai.SttSegment{StartMs: 200, EndMs: 2800, Text: "Добрый день, коллеги.", Confidence: 0.9, Final: true}, releaseMs: 4000},
	}}
	m := testManager(rec)

	if err := m.StartSession(context.Background(), "s1", testRate); err != nil {
		t.Fatalf("start: %v", err)
	}

	batches := feed(t, m, "s1", 0, 4000)
	// Даём воркеру диаризации обработать накопленные окна
	time.Sleep(200 * time.Millisecond)
	batches = append(batches, feed(t, m, "s1", 4000, 5400)...)
	time.Sleep(200 * time.Millisecond)
	batches = append(batches, feed(t, m, "s1", 5400, 5800)...)

	final, err := m.StopSession("s1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	batches = append(batches, final)

	sentences := allSentences(batches)
	if len(sentences) == 0 {
		t.Fatal("pipeline produced no sentences")
	}

	found := false
	for _, ss := range sentences {
		if ss.Text == "Добрый день, коллеги." && ss.Label == "spk0" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sentence attributed to spk0, got %+v", sentences)
	}
}

func TestDegradedSessionWithoutBackends(t *testing.T) {
	// nil-фабрики: энергетический диаризатор, без распознавания
	m := NewManager(Backends{}, nil)

	if err := m.StartSession(context.Background(), "s1", testRate); err != nil {
		t.Fatalf("degraded session must start: %v", err)
	}

	batches := feed(t, m, "s1", 0, 2000)
	for _, b := range batches {
		if len(b.Sentences) != 0 {
			t.Fatalf("no recognizer, no sentences expected, got %+v", b.Sentences)
		}
	}

	if _, err := m.StopSession("s1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStopFlushesPendingText(t *testing.T) {
	rec := &stubRecognizer{segments: []stubSegment{
		{seg: ai.SttSegment{StartMs: 100, EndMs: 900, Text: "незаконченная мысль", Confidence: 0.9, Final: true}, releaseMs: 1000},
	}}
	m := testManager(rec)

	if err := m.StartSession(context.Background(), "s1", testRate); err != nil {
		t.Fatalf("start: %v", err)
	}
	batches := feed(t, m, "s1", 0, 1500)
	time.Sleep(200 * time.Millisecond)

	final, err := m.StopSession("s1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	batches = append(batches, final)

	// Текст без терминальной пунктуации не должен пропасть при остановке
	found := false
	for _, ss := range allSentences(batches) {
		if ss.Text == "незаконченная мысль" {
			found = true
		}
	}
	if !found {
		t.Fatalf("pending text lost on stop, final batch: %+v", final)
	}
}

func TestDuplicateSessionRefused(t *testing.T) {
	m := NewManager(Backends{}, nil)

	if err := m.StartSession(context.Background(), "s1", testRate); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.StopSession("s1")

	if err := m.StartSession(context.Background(), "s1", testRate); err == nil {
		t.Fatal("duplicate session id must be refused")
	}
}

func TestProcessAfterStopFails(t *testing.T) {
	m := NewManager(Backends{}, nil)

	if err := m.StartSession(context.Background(), "s1", testRate); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.StopSession("s1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := m.ProcessAudioChunk("s1", 0, make([]byte, 320)); err == nil {
		t.Fatal("chunk after stop must fail")
	}
}

func TestOverlappingWindowFramesIngestedOnce(t *testing.T) {
	o := &Orchestrator{}

	// Первое окно покрывает [0, 48000)
	out := o.freshFrames([]ai.DiarFrame{{Start: 0, End: 48000, Label: "spk0"}})
	if len(out) != 1 || out[0].Start != 0 || out[0].End != 48000 {
		t.Fatalf("first window must pass intact, got %+v", out)
	}

	// Окна перекрываются: следующее начинается внутри уже учтённого
	// диапазона и должно быть подрезано до свежей части
	out = o.freshFrames([]ai.DiarFrame{{Start: 16000, End: 64000, Label: "spk0"}})
	if len(out) != 1 {
		t.Fatalf("expected clipped frame, got %+v", out)
	}
	if out[0].Start != 48000 || out[0].End != 64000 {
		t.Errorf("frame must be clipped to fresh range, got [%d,%d)", out[0].Start, out[0].End)
	}

	// Полностью покрытый диапазон отбрасывается целиком
	out = o.freshFrames([]ai.DiarFrame{{Start: 20000, End: 40000, Label: "spk1"}})
	if len(out) != 0 {
		t.Errorf("fully covered frame must be dropped, got %+v", out)
	}
}
