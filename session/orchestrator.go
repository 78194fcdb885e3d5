package session

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"aicoach/ai"
	"aicoach/audio"
	"aicoach/coach"
	"aicoach/timeline"
	"aicoach/transcript"
	"aicoach/voiceid"
)

// Options настройки конвейера одной сессии
type Options struct {
	RetentionSeconds int // горизонт хранения аудио и таймлайна

	Chunker    audio.ChunkerConfig
	VAD        audio.VADConfig
	Timeline   timeline.Tunables
	Assembler  transcript.AssemblerConfig
	Attributor transcript.AttributorConfig
	Stitcher   transcript.StitcherConfig
	Matcher    voiceid.MatcherConfig
	Coach      coach.Config

	DiarQueueLen        int // ёмкость очереди окон диаризации
	SttQueueLen         int // ёмкость очереди распознавания
	MaxTrackedSentences int // сколько выданных реплик помнить для пере-атрибуции
	MatcherResetSeconds int // период реканонизации кэша voice-матчинга, 0 отключает
}

// DefaultOptions возвращает настройки по умолчанию
func DefaultOptions(sampleRate int) Options {
	return Options{
		RetentionSeconds:    300,
		Chunker:             audio.DefaultChunkerConfig(sampleRate),
		VAD:                 audio.DefaultVADConfig(),
		Timeline:            timeline.DefaultTunables(),
		Assembler:           transcript.DefaultAssemblerConfig(),
		Attributor:          transcript.DefaultAttributorConfig(),
		Stitcher:            transcript.DefaultStitcherConfig(),
		Matcher:             voiceid.DefaultMatcherConfig(),
		Coach:               coach.DefaultConfig(),
		DiarQueueLen:        8,
		SttQueueLen:         16,
		MaxTrackedSentences: 64,
		MatcherResetSeconds: 60,
	}
}

// sttJob задание воркеру распознавания
type sttJob struct {
	startSample int64
	pcm         []byte
}

// Orchestrator конвейер одной сессии: кольцевой буфер, нарезка, VAD,
// диаризация, распознавание, сборка и атрибуция предложений.
// Диаризация и распознавание работают на своих горутинах с
// ограниченными очередями; при переполнении старейший элемент
// отбрасывается
type Orchestrator struct {
	id         string
	sampleRate int
	opts       Options

	ring       *audio.RingBuffer
	chunker    *audio.Chunker
	vad        *audio.PauseDetector
	diarizer   ai.Diarizer
	store      *timeline.Store
	recognizer ai.Recognizer
	assembler  *transcript.Assembler
	attributor *transcript.Attributor
	stitcher   *transcript.Stitcher
	matcher    *voiceid.Matcher
	coach      *coach.Engine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	diarCh chan audio.Window
	sttCh  chan sttJob

	// Результаты воркеров, забираются при обработке следующего чанка
	pendingMu       sync.Mutex
	pendingSegments []ai.SttSegment
	pendingPatches  []*ai.DiarPatch

	// Верхняя граница уже учтённых провизорных фреймов. Окна
	// перекрываются, и бэкенд размечает каждое целиком, так что без
	// отсечки один и тот же диапазон попадал бы в таймлайн и в
	// буфер чистой речи до трёх раз. Трогает только diarWorker
	ingestHead int64

	mu         sync.Mutex
	stopped    bool
	started    bool
	nextSample int64 // ожидаемое начало следующего чанка
	seq        uint64
	liveID     string // id текущего промежуточного предложения

	lastMatcherReset int64 // позиция потока последней реканонизации кэша

	// Недавно выданные реплики для пере-атрибуции после патчей
	emitted []transcript.SpeakerSentence
}

// NewOrchestrator собирает конвейер. diarizer и recognizer уже
// стартованы менеджером; encoder и identities допускают nil
func NewOrchestrator(ctx context.Context, id string, sampleRate int, opts Options,
	diarizer ai.Diarizer, recognizer ai.Recognizer,
	encoder ai.EmbeddingExtractor, identities *voiceid.Store) *Orchestrator {

	retention := int64(opts.RetentionSeconds) * int64(sampleRate)
	ring := audio.NewRingBuffer(sampleRate, retention)
	store := timeline.NewStore(sampleRate, opts.Timeline)

	octx, cancel := context.WithCancel(ctx)

	o := &Orchestrator{
		id:         id,
		sampleRate: sampleRate,
		opts:       opts,
		ring:       ring,
		chunker:    audio.NewChunker(opts.Chunker),
		vad:        audio.NewPauseDetector(opts.VAD, sampleRate),
		diarizer:   diarizer,
		store:      store,
		recognizer: recognizer,
		assembler:  transcript.NewAssembler(opts.Assembler),
		attributor: transcript.NewAttributor(opts.Attributor, store, ring, encoder, sampleRate),
		stitcher:   transcript.NewStitcher(opts.Stitcher),
		matcher:    voiceid.NewMatcher(opts.Matcher, identities, encoder, sampleRate),
		coach:      coach.NewEngine(opts.Coach),
		ctx:        octx,
		cancel:     cancel,
		diarCh:     make(chan audio.Window, opts.DiarQueueLen),
		sttCh:      make(chan sttJob, opts.SttQueueLen),
		liveID:     uuid.NewString(),
	}

	o.wg.Add(2)
	go o.diarWorker()
	go o.sttWorker()

	return o
}

// ProcessChunk обрабатывает очередной PCM16 чанк и возвращает батч
// событий. Вызовы для одной сессии должны идти последовательно
func (o *Orchestrator) ProcessChunk(startSample int64, pcm []byte) (*Batch, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return nil, ErrSessionStopped
	}

	batch := &Batch{SessionID: o.id}

	// Разрыв тайминга больше одного фрейма: сбрасываем бэкенд,
	// чтобы модель не дрейфовала на неучтённой тишине
	if o.started && startSample != o.nextSample {
		gap := startSample - o.nextSample
		if gap > int64(o.opts.Chunker.FrameSamples) || gap < 0 {
			log.Printf("[Session %s] timing gap of %d samples, resetting diarizer", o.id, gap)
			o.diarizer.Reset()
		}
	}

	if err := o.ring.Append(startSample, pcm); err != nil {
		// Некорректный вход отбрасываем локально, сессию не роняем
		log.Printf("[Session %s] chunk rejected: %v", o.id, err)
		o.finishBatch(batch)
		return batch, nil
	}

	samples := audio.PCM16ToFloat32(pcm)
	o.started = true
	o.nextSample = startSample + int64(len(samples))

	frames, windows := o.chunker.Push(startSample, samples)

	var pauses []audio.PauseEvent
	for _, f := range frames {
		if ev := o.vad.ProcessFrame(f); ev != nil {
			pauses = append(pauses, *ev)
		}
	}

	for _, w := range windows {
		o.enqueueWindow(w)
	}
	o.enqueueStt(sttJob{startSample: startSample, pcm: pcm})

	// Забираем накопленное воркерами
	segments, patches := o.takePending()

	var finalized []transcript.Sentence
	for _, seg := range segments {
		if !seg.Final {
			o.appendProvisional(batch, seg)
			continue
		}
		finalized = append(finalized, o.assembler.AddSegment(seg)...)
	}
	for _, ev := range pauses {
		if s := o.assembler.OnPause(ev); s != nil {
			finalized = append(finalized, *s)
		}
	}

	for _, s := range finalized {
		o.emitSentence(batch, s)
	}

	for _, p := range patches {
		o.reattribute(batch, p)
	}

	o.prune()
	o.finishBatch(batch)
	return batch, nil
}

// Stop останавливает конвейер: сигналит воркерам, дожидается их,
// финализирует остаток текста и возвращает финальный батч
func (o *Orchestrator) Stop() (*Batch, error) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil, ErrSessionStopped
	}
	o.stopped = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()

	if err := o.recognizer.Stop(); err != nil {
		log.Printf("[Session %s] recognizer stop: %v", o.id, err)
	}
	o.diarizer.Close()

	o.mu.Lock()
	defer o.mu.Unlock()

	batch := &Batch{SessionID: o.id}

	// Остаток распознанного текста не теряем
	segments, patches := o.takePending()
	var finalized []transcript.Sentence
	for _, seg := range segments {
		if seg.Final {
			finalized = append(finalized, o.assembler.AddSegment(seg)...)
		}
	}
	if s := o.assembler.Flush(); s != nil {
		finalized = append(finalized, *s)
	}
	for _, s := range finalized {
		o.emitSentence(batch, s)
	}
	for _, p := range patches {
		o.reattribute(batch, p)
	}

	o.finishBatch(batch)
	log.Printf("[Session %s] stopped (seq=%d)", o.id, o.seq)
	return batch, nil
}

// diarWorker гоняет окна через бэкенд диаризации
func (o *Orchestrator) diarWorker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case w := <-o.diarCh:
			frames, patch, err := o.diarizer.ProcessWindow(w)
			if err != nil {
				log.Printf("[Session %s] diarization window failed: %v", o.id, err)
				continue
			}
			fresh := o.freshFrames(frames)
			o.store.Ingest(fresh)
			o.collectCleanAudio(fresh)
			if patch != nil && o.store.ApplyPatch(patch) {
				o.pendingMu.Lock()
				o.pendingPatches = append(o.pendingPatches, patch)
				o.pendingMu.Unlock()
			}
		}
	}
}

// sttWorker гоняет чанки через распознаватель
func (o *Orchestrator) sttWorker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case job := <-o.sttCh:
			segments, err := o.recognizer.ProcessChunk(job.startSample, job.pcm)
			if err != nil {
				log.Printf("[Session %s] recognition failed: %v", o.id, err)
				continue
			}
			if len(segments) == 0 {
				continue
			}
			o.pendingMu.Lock()
			o.pendingSegments = append(o.pendingSegments, segments...)
			o.pendingMu.Unlock()
		}
	}
}

// freshFrames отсекает покрытие ниже ingestHead: фреймы целиком
// позади отбрасываются, пограничные подрезаются. Ретроактивные патчи
// идут мимо отсечки, они правят прошлое по определению
func (o *Orchestrator) freshFrames(frames []ai.DiarFrame) []ai.DiarFrame {
	out := frames[:0]
	for _, f := range frames {
		if f.End <= o.ingestHead {
			continue
		}
		if f.Start < o.ingestHead {
			f.Start = o.ingestHead
		}
		out = append(out, f)
		o.ingestHead = f.End
	}
	return out
}

// collectCleanAudio копит чистую речь треков для voice-матчинга.
// Перекрытия и неуверенные диапазоны пропускаются
func (o *Orchestrator) collectCleanAudio(frames []ai.DiarFrame) {
	for _, f := range frames {
		if f.Label == ai.LabelOverlap || f.Label == ai.LabelUncertain {
			continue
		}
		samples, err := o.ring.Float32Slice(f.Start, f.End)
		if err != nil {
			continue
		}
		o.matcher.AddCleanAudio(f.Label, samples)
	}
}

// enqueueWindow кладёт окно в очередь диаризации, вытесняя старейшее
// при переполнении
func (o *Orchestrator) enqueueWindow(w audio.Window) {
	select {
	case o.diarCh <- w:
		return
	default:
	}
	select {
	case old := <-o.diarCh:
		log.Printf("[Session %s] diarization queue full, dropped window [%d,%d)", o.id, old.Start, old.End)
	default:
	}
	select {
	case o.diarCh <- w:
	default:
	}
}

func (o *Orchestrator) enqueueStt(job sttJob) {
	select {
	case o.sttCh <- job:
		return
	default:
	}
	select {
	case old := <-o.sttCh:
		log.Printf("[Session %s] stt queue full, dropped chunk at %d", o.id, old.startSample)
	default:
	}
	select {
	case o.sttCh <- job:
	default:
	}
}

func (o *Orchestrator) takePending() ([]ai.SttSegment, []*ai.DiarPatch) {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	segments := o.pendingSegments
	patches := o.pendingPatches
	o.pendingSegments = nil
	o.pendingPatches = nil
	return segments, patches
}

// appendProvisional добавляет промежуточный текст. Все промежуточные
// версии одного высказывания несут один id, потребитель заменяет на
// месте
func (o *Orchestrator) appendProvisional(batch *Batch, seg ai.SttSegment) {
	batch.Provisional = append(batch.Provisional, transcript.Sentence{
		ID:      o.liveID,
		StartMs: seg.StartMs,
		EndMs:   seg.EndMs,
		Text:    seg.Text,
		Final:   false,
	})
}

// emitSentence атрибутирует и выдаёт финализированное предложение
func (o *Orchestrator) emitSentence(batch *Batch, s transcript.Sentence) {
	o.liveID = uuid.NewString()

	for _, ss := range o.attributor.Attribute(s) {
		if !ss.Overlap && !ss.Uncertain {
			res := o.matcher.Resolve(ss.Label)
			ss.Label = res.Label
			ss.VoiceID = res.VoiceID
		}

		for _, n := range o.coach.Process(ss) {
			batch.Nudges = append(batch.Nudges, n)
		}

		out, merged := o.stitcher.Stitch(ss)
		batch.Sentences = append(batch.Sentences, out)
		if merged {
			o.replaceEmitted(out)
		} else {
			o.trackEmitted(out)
		}
	}
}

// reattribute пересматривает выданные реплики, задетые патчем таймлайна
func (o *Orchestrator) reattribute(batch *Batch, p *ai.DiarPatch) {
	startMs := p.Start * 1000 / int64(o.sampleRate)
	endMs := p.End * 1000 / int64(o.sampleRate)

	changed := false
	for i := range o.emitted {
		ss := &o.emitted[i]
		if ss.EndMs <= startMs || ss.StartMs >= endMs {
			continue
		}

		updated := o.attributor.AttributeSentence(ss.Sentence)
		if !updated.Overlap && !updated.Uncertain {
			res := o.matcher.Resolve(updated.Label)
			updated.Label = res.Label
			updated.VoiceID = res.VoiceID
		}

		if updated.Label == ss.Label && updated.VoiceID == ss.VoiceID {
			continue
		}

		ss.Label = updated.Label
		ss.LabelConfidence = updated.LabelConfidence
		ss.Overlap = updated.Overlap
		ss.Uncertain = updated.Uncertain
		ss.VoiceID = updated.VoiceID
		ss.Patched = true
		ss.Version++
		changed = true

		var name string
		if ss.VoiceID != "" {
			name = o.matcher.Resolve(ss.Label).Name
		}
		batch.Patches = append(batch.Patches, SentencePatch{
			SentenceID:      ss.ID,
			Version:         ss.Version,
			Label:           ss.Label,
			LabelConfidence: ss.LabelConfidence,
			VoiceID:         ss.VoiceID,
			SpeakerName:     name,
		})
	}

	// Метка последней склеенной реплики могла смениться, продолжать
	// склейку через границу патча нельзя
	if changed {
		o.stitcher.Reset()
	}
}

func (o *Orchestrator) trackEmitted(ss transcript.SpeakerSentence) {
	o.emitted = append(o.emitted, ss)
	if len(o.emitted) > o.opts.MaxTrackedSentences {
		o.emitted = o.emitted[len(o.emitted)-o.opts.MaxTrackedSentences:]
	}
}

func (o *Orchestrator) replaceEmitted(ss transcript.SpeakerSentence) {
	for i := range o.emitted {
		if o.emitted[i].ID == ss.ID {
			o.emitted[i] = ss
			return
		}
	}
	o.trackEmitted(ss)
}

// prune держит таймлайн в пределах горизонта хранения и периодически
// реканонизирует кэш voice-матчинга
func (o *Orchestrator) prune() {
	head := o.ring.WriteHead()
	horizon := head - int64(o.opts.RetentionSeconds)*int64(o.sampleRate)
	if horizon > 0 {
		o.store.Prune(horizon)
	}

	interval := int64(o.opts.MatcherResetSeconds) * int64(o.sampleRate)
	if interval > 0 && head-o.lastMatcherReset >= interval {
		o.matcher.ResetCache()
		o.lastMatcherReset = head
	}
}

func (o *Orchestrator) finishBatch(batch *Batch) {
	o.seq++
	batch.Seq = o.seq
}
