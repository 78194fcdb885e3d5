package voiceid

import (
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"aicoach/ai"
)

// trackState состояние одного анонимного трека
type trackState struct {
	clean []float32 // чистое аудио (без перекрытий), ограничено по размеру

	display string // подтверждённый профиль (ID), "" = аноним

	proposal      string // предложенный профиль, ждёт подтверждения
	proposalCount int
	proposalSince time.Time
}

// Resolution результат разрешения трека в отображаемую личность
type Resolution struct {
	Label   string // каноническая метка трека
	VoiceID string // ID профиля, "" если не распознан
	Name    string // имя профиля
}

// Matcher сопоставляет анонимные треки с голосовыми профилями.
// Пишется и читается из стадии атрибуции и воркера диаризации,
// поэтому защищён мьютексом
type Matcher struct {
	config     MatcherConfig
	store      *Store
	encoder    ai.EmbeddingExtractor // nil = распознавание отключено
	sampleRate int

	mu            sync.Mutex
	uf            *UnionFind
	tracks        map[string]*trackState
	identityTrack map[string]string // ID профиля -> каноническая метка трека
	now           func() time.Time  // подменяется в тестах
}

// NewMatcher создаёт matcher. encoder допускает nil
func NewMatcher(config MatcherConfig, store *Store, encoder ai.EmbeddingExtractor, sampleRate int) *Matcher {
	return &Matcher{
		config:        config,
		store:         store,
		encoder:       encoder,
		sampleRate:    sampleRate,
		uf:            NewUnionFind(),
		tracks:        make(map[string]*trackState),
		identityTrack: make(map[string]string),
		now:           time.Now,
	}
}

// AddCleanAudio копит чистое аудио трека (речь без перекрытий)
func (m *Matcher) AddCleanAudio(label string, samples []float32) {
	if len(samples) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.track(m.uf.Find(label))
	st.clean = append(st.clean, samples...)

	maxLen := m.config.CleanAudioMaxSeconds * m.sampleRate
	if len(st.clean) > maxLen {
		st.clean = st.clean[len(st.clean)-maxLen:]
	}
}

// Resolve разрешает метку трека в отображаемую личность.
// Каждый вызов считается одной атрибуцией для анти-мерцания
func (m *Matcher) Resolve(label string) Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()

	canonical := m.uf.Find(label)
	st := m.track(canonical)

	m.tryMatch(canonical, st)

	res := Resolution{Label: canonical}
	if st.display != "" {
		if ident, err := m.store.Get(st.display); err == nil {
			res.VoiceID = ident.ID
			res.Name = ident.Name
		}
	}
	return res
}

// ResetCache сбрасывает неподтверждённые предложения и
// реканонизирует union-find
func (m *Matcher) ResetCache() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.tracks {
		st.proposal = ""
		st.proposalCount = 0
	}
	m.uf.Canonicalize()
}

// tryMatch выполняет попытку сопоставления и анти-мерцание.
// Вызывается при удержании мьютекса
func (m *Matcher) tryMatch(canonical string, st *trackState) {
	if m.encoder == nil || m.store == nil || m.store.Count() == 0 {
		return
	}
	if len(st.clean) < m.config.MinCleanAudioSeconds*m.sampleRate {
		return
	}

	emb, err := m.encoder.Encode(st.clean)
	if err != nil {
		log.Printf("[VoiceID] embedding failed for %s: %v", canonical, err)
		return
	}

	match := m.bestMatch(emb)
	if match == nil {
		st.proposal = ""
		st.proposalCount = 0
		return
	}
	if match.Score < m.config.MatchThreshold {
		st.proposal = ""
		st.proposalCount = 0
		return
	}
	if match.Score-match.RunnerUp < m.config.MatchMargin {
		return
	}

	proposed := match.Identity.ID
	if proposed == st.display {
		st.proposal = ""
		st.proposalCount = 0
		return
	}

	// Анти-мерцание: предложение должно продержаться
	if proposed != st.proposal {
		st.proposal = proposed
		st.proposalCount = 1
		st.proposalSince = m.now()
		return
	}
	st.proposalCount++

	confirmed := st.proposalCount >= m.config.FlickerConfirmCount ||
		m.now().Sub(st.proposalSince) >= m.config.FlickerConfirmAge
	if !confirmed {
		return
	}

	m.commit(canonical, st, match)
}

// commit привязывает трек к профилю; если профиль уже привязан к
// другому треку, треки объединяются
func (m *Matcher) commit(canonical string, st *trackState, match *MatchResult) {
	st.display = match.Identity.ID
	st.proposal = ""
	st.proposalCount = 0

	if other, ok := m.identityTrack[match.Identity.ID]; ok && m.uf.Find(other) != canonical {
		root := m.uf.Union(other, canonical)
		m.mergeTracks(root, canonical, m.uf.Find(other))
		log.Printf("[VoiceID] tracks %s and %s merged into %s (%s)",
			canonical, other, root, match.Identity.Name)
		m.identityTrack[match.Identity.ID] = root
		return
	}

	m.identityTrack[match.Identity.ID] = canonical
	log.Printf("[VoiceID] track %s resolved to %s (score=%.2f, %s)",
		canonical, match.Identity.Name, match.Score, match.Confidence)
}

// mergeTracks сливает состояния после объединения меток
func (m *Matcher) mergeTracks(root string, labels ...string) {
	rootState := m.track(root)
	for _, l := range labels {
		if l == root {
			continue
		}
		if st, ok := m.tracks[l]; ok {
			if rootState.display == "" {
				rootState.display = st.display
			}
			delete(m.tracks, l)
		}
	}
}

// bestMatch ищет лучший и второй по баллу профиль
func (m *Matcher) bestMatch(embedding []float32) *MatchResult {
	identities := m.store.GetAll()
	if len(identities) == 0 {
		return nil
	}

	var best *MatchResult
	runnerUp := float32(-1)
	haveRunnerUp := false

	for i := range identities {
		ident := &identities[i]
		score := m.identityScore(embedding, ident)
		if best == nil || score > best.Score {
			if best != nil {
				runnerUp = best.Score
				haveRunnerUp = true
			}
			identCopy := *ident
			best = &MatchResult{
				Identity:   &identCopy,
				Score:      score,
				Confidence: GetConfidence(score),
			}
		} else if !haveRunnerUp || score > runnerUp {
			runnerUp = score
			haveRunnerUp = true
		}
	}

	if best != nil {
		if !haveRunnerUp {
			runnerUp = -1
		}
		best.RunnerUp = runnerUp
	}
	return best
}

// identityScore балл профиля: перцентиль косинусных сходств по всем
// его embedding'ам. Устойчивее к одному выбросу, чем максимум
func (m *Matcher) identityScore(embedding []float32, ident *Identity) float32 {
	if len(ident.Embeddings) == 0 {
		return 0
	}
	if len(ident.Embeddings) == 1 {
		return CosineSimilarity(embedding, ident.Embeddings[0])
	}

	sims := make([]float64, 0, len(ident.Embeddings))
	for _, e := range ident.Embeddings {
		sims = append(sims, float64(CosineSimilarity(embedding, e)))
	}
	sort.Float64s(sims)
	return float32(stat.Quantile(m.config.ScorePercentile, stat.Empirical, sims, nil))
}

func (m *Matcher) track(canonical string) *trackState {
	st, ok := m.tracks[canonical]
	if !ok {
		st = &trackState{}
		m.tracks[canonical] = st
	}
	return st
}

// CosineSimilarity вычисляет косинусное сходство между двумя векторами.
// Возвращает значение от -1 до 1, где 1 = идентичные
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}
