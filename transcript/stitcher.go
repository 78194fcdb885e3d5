package transcript

// StitcherConfig пороги склейки подряд идущих реплик одного спикера
type StitcherConfig struct {
	StitchGapMs      int64 // максимальный разрыв между предложениями
	MaxStitchedDurMs int64 // предел длительности склеенной реплики
}

// DefaultStitcherConfig возвращает пороги по умолчанию
func DefaultStitcherConfig() StitcherConfig {
	return StitcherConfig{
		StitchGapMs:      1200,
		MaxStitchedDurMs: 30000,
	}
}

// Stitcher склеивает новое предложение с предыдущим, если спикер тот же
// и разрыв короткий. Чистая функция от последней реплики потока
type Stitcher struct {
	config StitcherConfig
	last   *SpeakerSentence
}

// NewStitcher создаёт склейщик
func NewStitcher(config StitcherConfig) *Stitcher {
	return &Stitcher{config: config}
}

// Stitch обрабатывает финализированное предложение.
// merged=true: out — расширенная предыдущая реплика (тот же ID,
// версия увеличена), потребитель применяет её как обновление.
// merged=false: out — новая независимая реплика
func (st *Stitcher) Stitch(ss SpeakerSentence) (out SpeakerSentence, merged bool) {
	if st.canMerge(ss) {
		prev := *st.last
		prev.EndMs = ss.EndMs
		prev.Text = prev.Text + " " + ss.Text
		prev.Fragments = append(prev.Fragments, ss.Fragments...)
		prev.Version++
		if ss.LabelConfidence > prev.LabelConfidence {
			prev.LabelConfidence = ss.LabelConfidence
		}
		prev.Patched = prev.Patched || ss.Patched
		st.last = &prev
		return prev, true
	}

	st.last = &ss
	return ss, false
}

func (st *Stitcher) canMerge(ss SpeakerSentence) bool {
	if st.last == nil {
		return false
	}
	if ss.Label != st.last.Label || ss.Overlap || ss.Uncertain {
		return false
	}
	gap := ss.StartMs - st.last.EndMs
	if gap < 0 || gap >= st.config.StitchGapMs {
		return false
	}
	if ss.EndMs-st.last.StartMs > st.config.MaxStitchedDurMs {
		return false
	}
	return true
}

// Reset сбрасывает последнюю реплику (например, после патча таймлайна)
func (st *Stitcher) Reset() {
	st.last = nil
}
