package transcript

import (
	"strings"

	"github.com/google/uuid"

	"aicoach/ai"
	"aicoach/audio"
)

// AssemblerConfig пороги сборки предложений
type AssemblerConfig struct {
	MinSentenceChars int   // минимум для финализации по сильной пунктуации/паузе
	MinSoftChars     int   // минимум для финализации по мягкой пунктуации
	MaxSentenceChars int   // жёсткий предел длины, дальше принудительный split
	MaxSentenceDurMs int64 // предел длительности накопления
	MinPauseMs       int64 // минимальная пауза для границы по тишине
}

// DefaultAssemblerConfig возвращает пороги по умолчанию
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		MinSentenceChars: 10,
		MinSoftChars:     40,
		MaxSentenceChars: 280,
		MaxSentenceDurMs: 15000,
		MinPauseMs:       600,
	}
}

// Assembler копит финальные STT-сегменты и нарезает их на предложения
// по пунктуации, длительности и паузам. Один на поток
type Assembler struct {
	config    AssemblerConfig
	fragments []Fragment
}

// NewAssembler создаёт сборщик предложений
func NewAssembler(config AssemblerConfig) *Assembler {
	return &Assembler{config: config}
}

// AddSegment добавляет финальный сегмент распознавания.
// Возвращает финализированные предложения (может быть несколько
// при принудительном разбиении длинного буфера)
func (a *Assembler) AddSegment(seg ai.SttSegment) []Sentence {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return nil
	}

	a.fragments = append(a.fragments, Fragment{
		Text:    text,
		StartMs: seg.StartMs,
		EndMs:   seg.EndMs,
	})

	var out []Sentence
	for {
		s, ok := a.tryFinalize()
		if !ok {
			break
		}
		out = append(out, s)
	}
	return out
}

// OnPause обрабатывает событие паузы: достаточно длинная тишина
// закрывает накопленный буфер
func (a *Assembler) OnPause(ev audio.PauseEvent) *Sentence {
	if len(a.fragments) == 0 {
		return nil
	}
	if ev.Duration.Milliseconds() < a.config.MinPauseMs {
		return nil
	}
	if len(a.bufferText()) < a.config.MinSentenceChars {
		return nil
	}
	s := a.finalize(a.fragments)
	a.fragments = nil
	return &s
}

// Flush финализирует остаток буфера. Вызывается при остановке сессии
func (a *Assembler) Flush() *Sentence {
	if len(a.fragments) == 0 {
		return nil
	}
	s := a.finalize(a.fragments)
	a.fragments = nil
	return &s
}

// tryFinalize проверяет правила финализации в порядке приоритета
func (a *Assembler) tryFinalize() (Sentence, bool) {
	if len(a.fragments) == 0 {
		return Sentence{}, false
	}
	text := a.bufferText()

	// (a) сильная терминальная пунктуация
	if endsWithStrongPunct(text) && len([]rune(text)) >= a.config.MinSentenceChars {
		s := a.finalize(a.fragments)
		a.fragments = nil
		return s, true
	}

	// (b) мягкая пунктуация при достаточной длине
	if endsWithSoftPunct(text) && len([]rune(text)) >= a.config.MinSoftChars {
		s := a.finalize(a.fragments)
		a.fragments = nil
		return s, true
	}

	// (c) предел длительности
	dur := a.fragments[len(a.fragments)-1].EndMs - a.fragments[0].StartMs
	if dur >= a.config.MaxSentenceDurMs {
		s := a.finalize(a.fragments)
		a.fragments = nil
		return s, true
	}

	// (e) предел длины: режем по лучшей границе, не по середине слова
	if len([]rune(text)) >= a.config.MaxSentenceChars {
		head, tail := a.splitFragments()
		if len(head) > 0 {
			s := a.finalize(head)
			a.fragments = tail
			return s, true
		}
	}

	return Sentence{}, false
}

// splitFragments делит буфер по лучшей границе: предпочитаем фрагмент,
// заканчивающийся пунктуацией, иначе режем по последнему целому
// фрагменту до лимита
func (a *Assembler) splitFragments() ([]Fragment, []Fragment) {
	limit := a.config.MaxSentenceChars
	count := 0
	cut := -1
	softCut := -1
	for i, f := range a.fragments {
		count += len([]rune(f.Text)) + 1
		if count > limit {
			break
		}
		cut = i
		if endsWithSoftPunct(f.Text) || endsWithStrongPunct(f.Text) {
			softCut = i
		}
	}
	if softCut >= 0 {
		cut = softCut
	}
	if cut < 0 {
		// Один фрагмент длиннее лимита: режем его текст по пробелу
		return a.splitSingleFragment()
	}
	head := append([]Fragment(nil), a.fragments[:cut+1]...)
	tail := append([]Fragment(nil), a.fragments[cut+1:]...)
	return head, tail
}

// splitSingleFragment режет одиночный сверхдлинный фрагмент по
// ближайшему к лимиту пробелу, интерполируя тайминг
func (a *Assembler) splitSingleFragment() ([]Fragment, []Fragment) {
	f := a.fragments[0]
	runes := []rune(f.Text)
	limit := a.config.MaxSentenceChars
	if limit >= len(runes) {
		limit = len(runes) - 1
	}

	cut := -1
	for i := limit; i > 0; i-- {
		if runes[i] == ' ' {
			cut = i
			break
		}
	}
	if cut <= 0 {
		return nil, a.fragments
	}

	midMs := f.StartMs + (f.EndMs-f.StartMs)*int64(cut)/int64(len(runes))
	head := Fragment{Text: strings.TrimSpace(string(runes[:cut])), StartMs: f.StartMs, EndMs: midMs}
	tail := Fragment{Text: strings.TrimSpace(string(runes[cut:])), StartMs: midMs, EndMs: f.EndMs}

	rest := append([]Fragment{tail}, a.fragments[1:]...)
	return []Fragment{head}, rest
}

func (a *Assembler) bufferText() string {
	parts := make([]string, len(a.fragments))
	for i, f := range a.fragments {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}

func (a *Assembler) finalize(frags []Fragment) Sentence {
	parts := make([]string, len(frags))
	for i, f := range frags {
		parts[i] = f.Text
	}
	return Sentence{
		ID:        uuid.NewString(),
		StartMs:   frags[0].StartMs,
		EndMs:     frags[len(frags)-1].EndMs,
		Text:      strings.Join(parts, " "),
		Final:     true,
		Fragments: append([]Fragment(nil), frags...),
	}
}

func endsWithStrongPunct(text string) bool {
	runes := []rune(text)
	if len(runes) == 0 {
		return false
	}
	switch runes[len(runes)-1] {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func endsWithSoftPunct(text string) bool {
	runes := []rune(text)
	if len(runes) == 0 {
		return false
	}
	switch runes[len(runes)-1] {
	case ',', ';', ':':
		return true
	}
	return false
}
