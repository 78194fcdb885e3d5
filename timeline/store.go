package timeline

import (
	"log"
	"sort"
	"sync"

	"aicoach/ai"
)

// Спецметки диапазонов без однозначного спикера
const (
	LabelOverlap   = ai.LabelOverlap
	LabelUncertain = ai.LabelUncertain
)

// Interval стабилизированный непересекающийся отрезок таймлайна:
// кто говорил в [Start, End) (семплы)
type Interval struct {
	Start      int64
	End        int64
	Label      string
	Confidence float32
	IsPatch    bool
}

// Store таймлайн спикеров одного потока. Единственная структура,
// в которую пишут два контекста (воркер диаризации и атрибуция),
// поэтому все методы сериализованы мьютексом
type Store struct {
	mu         sync.Mutex
	sampleRate int
	tun        Tunables

	intervals []Interval // отсортированы по Start, не пересекаются
	hyst      *hysteresis

	lastPatchVersion uint64
}

// NewStore создаёт таймлайн для потока
func NewStore(sampleRate int, tun Tunables) *Store {
	return &Store{
		sampleRate: sampleRate,
		tun:        tun,
		hyst:       newHysteresis(sampleRate, tun),
	}
}

// Ingest принимает сырые фреймы диаризации, прогоняет через гистерезис
// и вставляет стабилизированные интервалы
func (s *Store) Ingest(frames []ai.DiarFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range frames {
		if f.End <= f.Start {
			continue
		}
		iv := s.hyst.Process(f)
		s.insert(iv)
	}
}

// ApplyPatch применяет ретроспективную коррекцию: удаляет всё покрытие,
// пересекающее диапазон патча, и вставляет его фреймы.
// Устаревшие версии отбрасываются
func (s *Store) ApplyPatch(p *ai.DiarPatch) bool {
	if p == nil || p.End <= p.Start {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Version <= s.lastPatchVersion {
		log.Printf("[Timeline] stale patch v%d ignored (have v%d)", p.Version, s.lastPatchVersion)
		return false
	}
	s.lastPatchVersion = p.Version

	s.deleteRange(p.Start, p.End)
	for _, f := range p.Frames {
		if f.End <= f.Start {
			continue
		}
		s.insert(Interval{
			Start:      maxI64(f.Start, p.Start),
			End:        minI64(f.End, p.End),
			Label:      f.Label,
			Confidence: f.Confidence,
			IsPatch:    true,
		})
	}
	return true
}

// Query возвращает интервалы, пересекающие [start, end), обрезанные
// по границам запроса. Возвращает копии под мьютексом
func (s *Store) Query(start, end int64) []Interval {
	s.mu.Lock()
	defer s.mu.Unlock()

	if end <= start {
		return nil
	}

	var out []Interval
	for _, iv := range s.intervals {
		if iv.End <= start {
			continue
		}
		if iv.Start >= end {
			break
		}
		clipped := iv
		if clipped.Start < start {
			clipped.Start = start
		}
		if clipped.End > end {
			clipped.End = end
		}
		out = append(out, clipped)
	}
	return out
}

// Prune удаляет интервалы старше oldest, ограничивая память
func (s *Store) Prune(oldest int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := s.intervals[:0]
	for _, iv := range s.intervals {
		if iv.End <= oldest {
			continue
		}
		if iv.Start < oldest {
			iv.Start = oldest
		}
		keep = append(keep, iv)
	}
	s.intervals = keep
}

// deleteRange вырезает [start, end) из покрытия, расщепляя граничные интервалы
func (s *Store) deleteRange(start, end int64) {
	var out []Interval
	for _, iv := range s.intervals {
		if iv.End <= start || iv.Start >= end {
			out = append(out, iv)
			continue
		}
		// Левый остаток
		if iv.Start < start {
			left := iv
			left.End = start
			out = append(out, left)
		}
		// Правый остаток
		if iv.End > end {
			right := iv
			right.Start = end
			out = append(out, right)
		}
	}
	s.intervals = out
}

// insert вставляет интервал, вытесняя пересечения и сливая соседние
// интервалы с той же меткой. Инвариант: покрытие не пересекается
func (s *Store) insert(iv Interval) {
	if iv.End <= iv.Start {
		return
	}

	s.deleteRange(iv.Start, iv.End)

	idx := sort.Search(len(s.intervals), func(i int) bool {
		return s.intervals[i].Start >= iv.Start
	})
	s.intervals = append(s.intervals, Interval{})
	copy(s.intervals[idx+1:], s.intervals[idx:])
	s.intervals[idx] = iv

	s.mergeAround(idx)
}

// mergeAround сливает интервал по индексу с соседями той же метки
func (s *Store) mergeAround(idx int) {
	// Слева
	if idx > 0 {
		prev := s.intervals[idx-1]
		cur := s.intervals[idx]
		if prev.Label == cur.Label && prev.End == cur.Start && prev.IsPatch == cur.IsPatch {
			prev.End = cur.End
			if cur.Confidence > prev.Confidence {
				prev.Confidence = cur.Confidence
			}
			s.intervals[idx-1] = prev
			s.intervals = append(s.intervals[:idx], s.intervals[idx+1:]...)
			idx--
		}
	}
	// Справа
	if idx+1 < len(s.intervals) {
		cur := s.intervals[idx]
		next := s.intervals[idx+1]
		if cur.Label == next.Label && cur.End == next.Start && cur.IsPatch == next.IsPatch {
			cur.End = next.End
			if next.Confidence > cur.Confidence {
				cur.Confidence = next.Confidence
			}
			s.intervals[idx] = cur
			s.intervals = append(s.intervals[:idx+1], s.intervals[idx+2:]...)
		}
	}
}

// LastPatchVersion возвращает версию последнего применённого патча
func (s *Store) LastPatchVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPatchVersion
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
