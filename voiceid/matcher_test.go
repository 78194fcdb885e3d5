package voiceid

import (
	"path/filepath"
	"testing"
)

// stubEncoder возвращает первый семпл как готовый вектор направления:
// аудио из единиц даёт вектор профиля A, из минус единиц - профиля B
type stubEncoder struct{}

func (stubEncoder) Encode(samples []float32) ([]float32, error) {
	v := samples[0]
	return []float32{v, 1 - absf(v), 0}, nil
}

func (stubEncoder) Close() {}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func constSamples(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "speakers.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := store.Enroll("Иван", []float32{1, 0, 0}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, err := store.Enroll("Мария", []float32{-1, 0, 0}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	return store
}

func testMatcher(t *testing.T) *Matcher {
	t.Helper()
	cfg := DefaultMatcherConfig()
	cfg.FlickerConfirmCount = 3
	cfg.MinCleanAudioSeconds = 1
	return NewMatcher(cfg, testStore(t), stubEncoder{}, 16000)
}

func TestUnionFindUnseenLabelIsSingleton(t *testing.T) {
	uf := NewUnionFind()
	if got := uf.Find("spk42"); got != "spk42" {
		t.Errorf("unseen label must resolve to itself, got %q", got)
	}
}

func TestUnionFindMergeAndPathCompression(t *testing.T) {
	uf := NewUnionFind()
	uf.Union("spk0", "spk1")
	uf.Union("spk1", "spk2")

	root := uf.Find("spk0")
	if uf.Find("spk1") != root || uf.Find("spk2") != root {
		t.Errorf("all merged labels must share a root: %q %q %q",
			uf.Find("spk0"), uf.Find("spk1"), uf.Find("spk2"))
	}
}

func TestMatcherAntiFlicker(t *testing.T) {
	m := testMatcher(t)

	m.AddCleanAudio("spk0", constSamples(1, 32000))

	// Первые две атрибуции: предложение копится, но не отображается
	for i := 0; i < 2; i++ {
		res := m.Resolve("spk0")
		if res.VoiceID != "" {
			t.Fatalf("identity must not be displayed before confirmation (attempt %d): %+v", i+1, res)
		}
	}

	// Третья атрибуция подтверждает
	res := m.Resolve("spk0")
	if res.Name != "Иван" {
		t.Fatalf("expected confirmed identity after %d attributions, got %+v", 3, res)
	}
}

func TestMatcherMergesTracksBoundToSameIdentity(t *testing.T) {
	m := testMatcher(t)

	m.AddCleanAudio("spk0", constSamples(1, 32000))
	m.AddCleanAudio("spk3", constSamples(1, 32000))

	for i := 0; i < 3; i++ {
		m.Resolve("spk0")
	}
	for i := 0; i < 3; i++ {
		m.Resolve("spk3")
	}

	a := m.Resolve("spk0")
	b := m.Resolve("spk3")
	if a.Label != b.Label {
		t.Errorf("tracks bound to one identity must canonicalize together: %q vs %q", a.Label, b.Label)
	}
	if a.Name != "Иван" || b.Name != "Иван" {
		t.Errorf("both tracks must resolve to the same identity: %+v %+v", a, b)
	}
}

func TestMatcherNoCommitWithoutAudio(t *testing.T) {
	m := testMatcher(t)

	res := m.Resolve("spk0")
	if res.VoiceID != "" {
		t.Errorf("track without clean audio must stay anonymous, got %+v", res)
	}
	if res.Label != "spk0" {
		t.Errorf("label must pass through, got %q", res.Label)
	}
}

func TestMatcherRespectsMargin(t *testing.T) {
	// Два почти одинаковых профиля: лучший балл высокий, но отрыв
	// от второго мизерный
	store, err := NewStore(filepath.Join(t.TempDir(), "speakers.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := store.Enroll("Иван", []float32{1, 0, 0}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, err := store.Enroll("Пётр", []float32{1, 0.05, 0}); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	cfg := DefaultMatcherConfig()
	cfg.MinCleanAudioSeconds = 1
	cfg.MatchThreshold = 0.1
	m := NewMatcher(cfg, store, stubEncoder{}, 16000)

	m.AddCleanAudio("spk0", constSamples(1, 32000))
	for i := 0; i < 5; i++ {
		if res := m.Resolve("spk0"); res.VoiceID != "" {
			t.Fatalf("margin below threshold must block commit, got %+v", res)
		}
	}
}

func TestMatcherResetCacheRestartsConfirmation(t *testing.T) {
	m := testMatcher(t)

	m.AddCleanAudio("spk0", constSamples(1, 32000))

	// Два из трёх подтверждений накоплено, сброс кэша обнуляет счёт
	for i := 0; i < 2; i++ {
		m.Resolve("spk0")
	}
	m.ResetCache()

	for i := 0; i < 2; i++ {
		if res := m.Resolve("spk0"); res.VoiceID != "" {
			t.Fatalf("pending proposal must not survive a cache reset (attempt %d): %+v", i+1, res)
		}
	}
	if res := m.Resolve("spk0"); res.Name != "Иван" {
		t.Fatalf("confirmation must restart cleanly after reset, got %+v", res)
	}

	// Уже подтверждённая привязка сброс переживает
	m.ResetCache()
	if res := m.Resolve("spk0"); res.Name != "Иван" {
		t.Errorf("committed identity must survive a cache reset, got %+v", res)
	}
}
