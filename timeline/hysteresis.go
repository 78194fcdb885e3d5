package timeline

import (
	"aicoach/ai"
)

// Tunables пороги стабилизации таймлайна спикеров.
// Все длительности в миллисекундах, внутри переводятся в семплы
type Tunables struct {
	EMAAlpha         float32 // сглаживание уверенности (0..1, больше = быстрее реагирует)
	ConfidenceMargin float32 // насколько кандидат должен превысить текущего
	MinSwitchMs      int64   // минимальная непрерывная длительность кандидата
	SwitchCooldownMs int64   // пауза после переключения
	MinTurnMs        int64   // минимальная длительность текущей реплики
	RetentionSeconds int     // горизонт хранения интервалов
}

// DefaultTunables возвращает пороги по умолчанию
func DefaultTunables() Tunables {
	return Tunables{
		EMAAlpha:         0.3,
		ConfidenceMargin: 0.1,
		MinSwitchMs:      500,
		SwitchCooldownMs: 800,
		MinTurnMs:        700,
		RetentionSeconds: 300,
	}
}

// hysteresis стабилизирует сырые диаризационные фреймы: текущая метка
// держится, пока конкурирующая не наберёт достаточно непрерывной
// длительности и запаса уверенности. Защита от мерцания меток
type hysteresis struct {
	tun        Tunables
	sampleRate int

	current     string  // текущая стабильная метка ("" = ещё не было речи)
	currentConf float32 // EMA уверенности текущей метки
	runStart    int64   // начало текущей реплики (семплы)
	lastSwitch  int64   // семпл последнего переключения

	candidate      string  // конкурирующая метка
	candidateConf  float32 // EMA уверенности кандидата
	candidateStart int64   // начало непрерывного накопления кандидата
	candidateEnd   int64
}

func newHysteresis(sampleRate int, tun Tunables) *hysteresis {
	return &hysteresis{
		tun:        tun,
		sampleRate: sampleRate,
		lastSwitch: -1 << 62,
	}
}

func (h *hysteresis) msToSamples(ms int64) int64 {
	return ms * int64(h.sampleRate) / 1000
}

// Process пропускает один фрейм через гистерезис и возвращает
// стабилизированный интервал для его диапазона.
// OVERLAP/UNCERTAIN проходят без стабилизации
func (h *hysteresis) Process(f ai.DiarFrame) Interval {
	if f.Label == ai.LabelOverlap || f.Label == ai.LabelUncertain {
		// Спецметки не участвуют в гистерезисе и не сбрасывают текущую реплику
		return Interval{Start: f.Start, End: f.End, Label: f.Label, Confidence: f.Confidence, IsPatch: f.IsPatch}
	}

	if h.current == "" {
		// Первая речь в потоке: принимаем без условий
		h.current = f.Label
		h.currentConf = f.Confidence
		h.runStart = f.Start
		h.candidate = ""
		return h.emit(f)
	}

	if f.Label == h.current {
		h.currentConf = h.ema(h.currentConf, f.Confidence)
		h.candidate = ""
		return h.emit(f)
	}

	// Конкурирующая метка: копим непрерывную длительность
	if f.Label != h.candidate || f.Start > h.candidateEnd {
		h.candidate = f.Label
		h.candidateConf = f.Confidence
		h.candidateStart = f.Start
	} else {
		h.candidateConf = h.ema(h.candidateConf, f.Confidence)
	}
	h.candidateEnd = f.End

	if h.shouldSwitch(f.End) {
		h.current = h.candidate
		h.currentConf = h.candidateConf
		h.runStart = h.candidateStart
		h.lastSwitch = f.End
		h.candidate = ""
		return h.emit(f)
	}

	// Переключение не подтверждено: фрейм приписывается текущей метке
	out := f
	out.Label = h.current
	out.Confidence = h.currentConf
	return h.emit(out)
}

// shouldSwitch проверяет все условия переключения на кандидата
func (h *hysteresis) shouldSwitch(now int64) bool {
	accrued := h.candidateEnd - h.candidateStart
	if accrued < h.msToSamples(h.tun.MinSwitchMs) {
		return false
	}
	if h.candidateConf < h.currentConf+h.tun.ConfidenceMargin {
		return false
	}
	if now-h.lastSwitch < h.msToSamples(h.tun.SwitchCooldownMs) {
		return false
	}
	if h.candidateStart-h.runStart < h.msToSamples(h.tun.MinTurnMs) {
		return false
	}
	return true
}

func (h *hysteresis) emit(f ai.DiarFrame) Interval {
	return Interval{Start: f.Start, End: f.End, Label: f.Label, Confidence: f.Confidence, IsPatch: f.IsPatch}
}

func (h *hysteresis) ema(prev, next float32) float32 {
	a := h.tun.EMAAlpha
	return prev*(1-a) + next*a
}
