package transcript

import (
	"log"
	"math"

	"github.com/google/uuid"

	"aicoach/ai"
	"aicoach/audio"
	"aicoach/timeline"
)

// AttributorConfig пороги атрибуции спикера
type AttributorConfig struct {
	OverlapThreshold         float32 // доля непокрытого времени для OVERLAP
	DominantThreshold        float32 // доля покрытия для уверенной атрибуции
	MinDominantThreshold     float32 // доля покрытия для атрибуции с пониженной уверенностью
	SplitSimilarityThreshold float32 // косинусное сходство клипов, ниже которого режем предложение
	SplitClipMs              int64   // длина клипа с каждой стороны границы
}

// DefaultAttributorConfig возвращает пороги по умолчанию
func DefaultAttributorConfig() AttributorConfig {
	return AttributorConfig{
		OverlapThreshold:         0.5,
		DominantThreshold:        0.7,
		MinDominantThreshold:     0.45,
		SplitSimilarityThreshold: 0.6,
		SplitClipMs:              1200,
	}
}

// Attributor определяет спикера финализированного предложения по
// таймлайну. Также умеет резать предложение на границе смены спикера,
// подтверждая границу сравнением голосовых векторов
type Attributor struct {
	config     AttributorConfig
	store      *timeline.Store
	ring       *audio.RingBuffer
	encoder    ai.EmbeddingExtractor // может быть nil: split отключается
	sampleRate int
}

// NewAttributor создаёт атрибутор. encoder допускает nil
func NewAttributor(config AttributorConfig, store *timeline.Store, ring *audio.RingBuffer, encoder ai.EmbeddingExtractor, sampleRate int) *Attributor {
	return &Attributor{
		config:     config,
		store:      store,
		ring:       ring,
		encoder:    encoder,
		sampleRate: sampleRate,
	}
}

// Attribute атрибутирует предложение. Обычно возвращает один результат;
// два, если внутри подтверждена смена спикера
func (a *Attributor) Attribute(s Sentence) []SpeakerSentence {
	startSample := a.msToSamples(s.StartMs)
	endSample := a.msToSamples(s.EndMs)

	if splitMs, ok := a.findSpeakerChange(s, startSample, endSample); ok {
		if a.confirmSplit(splitMs) {
			left, right := splitSentence(s, splitMs)
			return []SpeakerSentence{
				a.attributeRange(left),
				a.attributeRange(right),
			}
		}
	}

	return []SpeakerSentence{a.attributeRange(s)}
}

// AttributeSentence атрибутирует предложение без попытки разреза.
// Используется для пере-атрибуции после патчей таймлайна
func (a *Attributor) AttributeSentence(s Sentence) SpeakerSentence {
	return a.attributeRange(s)
}

// attributeRange применяет политику покрытия к диапазону предложения
func (a *Attributor) attributeRange(s Sentence) SpeakerSentence {
	startSample := a.msToSamples(s.StartMs)
	endSample := a.msToSamples(s.EndMs)
	total := endSample - startSample

	out := SpeakerSentence{Sentence: s}
	if total <= 0 {
		out.Label = timeline.LabelUncertain
		out.Uncertain = true
		return out
	}

	intervals := a.store.Query(startSample, endSample)

	covered := int64(0)
	shares := make(map[string]int64)
	bestConf := make(map[string]float32)
	patched := false
	for _, iv := range intervals {
		dur := iv.End - iv.Start
		covered += dur
		shares[iv.Label] += dur
		if iv.Confidence > bestConf[iv.Label] {
			bestConf[iv.Label] = iv.Confidence
		}
		if iv.IsPatch {
			patched = true
		}
	}
	out.Patched = patched

	silentFrac := float32(total-covered) / float32(total)
	if silentFrac > a.config.OverlapThreshold {
		out.Label = timeline.LabelOverlap
		out.Overlap = true
		out.Coverage = 1 - silentFrac
		return out
	}

	bestLabel := ""
	bestShare := int64(0)
	for label, dur := range shares {
		if label == timeline.LabelOverlap || label == timeline.LabelUncertain {
			continue
		}
		if dur > bestShare {
			bestLabel = label
			bestShare = dur
		}
	}

	if bestLabel == "" {
		out.Label = timeline.LabelUncertain
		out.Uncertain = true
		return out
	}

	share := float32(bestShare) / float32(total)
	out.Coverage = share
	switch {
	case share >= a.config.DominantThreshold:
		out.Label = bestLabel
		out.LabelConfidence = bestConf[bestLabel]
	case share >= a.config.MinDominantThreshold:
		out.Label = bestLabel
		out.LabelConfidence = bestConf[bestLabel] * share
	default:
		out.Label = timeline.LabelUncertain
		out.Uncertain = true
	}
	return out
}

// findSpeakerChange ищет устойчивую смену метки на внутренней границе
// фрагментов предложения
func (a *Attributor) findSpeakerChange(s Sentence, startSample, endSample int64) (int64, bool) {
	if len(s.Fragments) < 2 {
		return 0, false
	}

	for i := 0; i < len(s.Fragments)-1; i++ {
		boundaryMs := s.Fragments[i].EndMs
		b := a.msToSamples(boundaryMs)
		before := a.dominantLabel(startSample, b)
		after := a.dominantLabel(b, endSample)
		if before != "" && after != "" && before != after &&
			before != timeline.LabelOverlap && after != timeline.LabelOverlap &&
			before != timeline.LabelUncertain && after != timeline.LabelUncertain {
			return boundaryMs, true
		}
	}
	return 0, false
}

// dominantLabel метка с наибольшим покрытием диапазона
func (a *Attributor) dominantLabel(start, end int64) string {
	if end <= start {
		return ""
	}
	shares := make(map[string]int64)
	for _, iv := range a.store.Query(start, end) {
		shares[iv.Label] += iv.End - iv.Start
	}
	best := ""
	bestDur := int64(0)
	for label, dur := range shares {
		if dur > bestDur {
			best = label
			bestDur = dur
		}
	}
	// Метка должна покрывать хотя бы половину диапазона
	if bestDur*2 < end-start {
		return ""
	}
	return best
}

// confirmSplit сверяет голосовые векторы по обе стороны границы.
// Без энкодера или при ошибке извлечения split не подтверждается
func (a *Attributor) confirmSplit(boundaryMs int64) bool {
	if a.encoder == nil || a.ring == nil {
		return false
	}

	clip := a.msToSamples(a.config.SplitClipMs)
	b := a.msToSamples(boundaryMs)

	left, err := a.ring.Float32Slice(b-clip, b)
	if err != nil {
		return false
	}
	right, err := a.ring.Float32Slice(b, b+clip)
	if err != nil {
		return false
	}

	embLeft, err := a.encoder.Encode(left)
	if err != nil {
		log.Printf("[Attributor] embedding failed, skipping split: %v", err)
		return false
	}
	embRight, err := a.encoder.Encode(right)
	if err != nil {
		log.Printf("[Attributor] embedding failed, skipping split: %v", err)
		return false
	}

	sim := cosineSimilarity(embLeft, embRight)
	return sim < a.config.SplitSimilarityThreshold
}

// splitSentence режет предложение по границе фрагментов
func splitSentence(s Sentence, boundaryMs int64) (Sentence, Sentence) {
	var headFrags, tailFrags []Fragment
	for _, f := range s.Fragments {
		if f.EndMs <= boundaryMs {
			headFrags = append(headFrags, f)
		} else {
			tailFrags = append(tailFrags, f)
		}
	}

	head := Sentence{
		ID:        s.ID,
		StartMs:   s.StartMs,
		EndMs:     boundaryMs,
		Text:      joinFragments(headFrags),
		Final:     true,
		Fragments: headFrags,
	}
	tail := Sentence{
		ID:        uuid.NewString(),
		StartMs:   boundaryMs,
		EndMs:     s.EndMs,
		Text:      joinFragments(tailFrags),
		Final:     true,
		Fragments: tailFrags,
	}
	return head, tail
}

func joinFragments(frags []Fragment) string {
	out := ""
	for i, f := range frags {
		if i > 0 {
			out += " "
		}
		out += f.Text
	}
	return out
}

func (a *Attributor) msToSamples(ms int64) int64 {
	return ms * int64(a.sampleRate) / 1000
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
