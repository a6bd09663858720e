package interview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prepstudio/mockview/internal/media"
	"github.com/prepstudio/mockview/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var orchestratorTracer trace.Tracer = otel.Tracer("mockview/internal/interview")

var (
	// ErrInvalidPhase is returned when a user intent is not valid in the
	// session's current phase.
	ErrInvalidPhase = errors.New("interview: intent not valid in current phase")

	// ErrSessionClosed is returned for intents sent after teardown.
	ErrSessionClosed = errors.New("interview: session closed")
)

type cmdKind int

const (
	cmdStartRecording cmdKind = iota
	cmdStopRecording
	cmdConfirm
	cmdRetry
	cmdFinish
	cmdRetryLoad

	evQuestionsLoaded
	evDraftDone
	evFinalDone
	evEvaluateDone
	evReportDone
	evExpired
)

// command is the single currency of the orchestrator loop: user intents
// and async completions alike are serialized through one channel, so no
// two handlers ever touch session state concurrently.
type command struct {
	kind  cmdKind
	gen   uint64
	reply chan error

	sessionID string
	questions []Question
	result    TranscriptionResult
	text      string
	err       error
}

// Options configure a session orchestrator.
type Options struct {
	SessionID string
	// Questions, when supplied, skip the remote fetch entirely.
	Questions []Question
	// ResumeSummary triggers remote question generation when no question
	// list and no session id with stored questions is available.
	ResumeSummary string
	Duration      time.Duration
	TimerOptions  []TimerOption
	Logger        *log.Logger
	Metrics       *telemetry.Metrics
}

// Orchestrator drives one interview from question acquisition through
// per-question recording and confirmation to completion. All state below
// the mutex-guarded snapshot is owned by the run goroutine exclusively.
type Orchestrator struct {
	sessionID   string
	resume      string
	logger      *log.Logger
	metrics     *telemetry.Metrics
	recorder    Recorder
	transcriber Transcriber
	source      QuestionSource
	store       SessionStore
	timer       *SessionTimer

	cmds      chan command
	closed    chan struct{}
	closeOnce sync.Once
	closeMu   sync.RWMutex
	down      bool

	mu   sync.RWMutex
	snap Snapshot
	subs map[chan Snapshot]struct{}

	// state owned by the run goroutine
	phase         Phase
	questions     []Question
	index         int
	ledger        *Ledger
	clip          *media.Clip
	transcription string
	feedback      string
	report        string
	lastErr       string
	processing    bool
	gen           uint64
}

// New creates the orchestrator, starts its event loop and countdown, and
// kicks off question acquisition.
func New(opts Options, recorder Recorder, transcriber Transcriber, source QuestionSource, store SessionStore) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	}
	o := &Orchestrator{
		sessionID:   opts.SessionID,
		resume:      opts.ResumeSummary,
		logger:      logger,
		metrics:     opts.Metrics,
		recorder:    recorder,
		transcriber: transcriber,
		source:      source,
		store:       store,
		timer:       NewSessionTimer(opts.Duration, opts.TimerOptions...),
		cmds:        make(chan command, 16),
		closed:      make(chan struct{}),
		subs:        make(map[chan Snapshot]struct{}),
		phase:       PhaseLoading,
	}
	o.snap = Snapshot{
		SessionID:       o.sessionID,
		Phase:           PhaseLoading,
		TimeRemainingMS: opts.Duration.Milliseconds(),
		Clock:           FormatClock(opts.Duration.Milliseconds()),
	}

	go o.run()

	// The countdown runs regardless of what phase the session is in.
	o.timer.Start(o.onTick, func() {
		o.post(command{kind: evExpired})
	})

	o.metrics.SessionStarted()
	o.load(opts, 0)
	return o
}

// load resolves the question list: supplied directly, generated from a
// resume, or fetched with bounded retries. gen must be the generation
// current at spawn time.
func (o *Orchestrator) load(opts Options, gen uint64) {
	if len(opts.Questions) > 0 {
		o.post(command{kind: evQuestionsLoaded, gen: gen, sessionID: opts.SessionID, questions: opts.Questions})
		return
	}
	go func() {
		ctx, span := orchestratorTracer.Start(context.Background(), "interview.load_questions",
			trace.WithAttributes(attribute.String("session.id", opts.SessionID)))
		defer span.End()

		var (
			qs        []Question
			sessionID = opts.SessionID
			err       error
		)
		if opts.ResumeSummary != "" {
			sessionID, qs, err = o.source.Generate(ctx, opts.ResumeSummary)
		} else {
			qs, err = o.source.Questions(ctx, sessionID, o.onFetchAttempt)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		o.post(command{kind: evQuestionsLoaded, gen: gen, sessionID: sessionID, questions: qs, err: err})
	}()
}

// onFetchAttempt surfaces retry progress to the snapshot. It runs on the
// loader goroutine but only touches the presentational snapshot fields.
func (o *Orchestrator) onFetchAttempt(attempt, max int) {
	if attempt > 1 {
		o.metrics.FetchRetried()
	}
	o.mu.Lock()
	o.snap.RetryAttempt = attempt
	o.snap.RetryMax = max
	snap := o.snap
	subs := o.subscribers()
	o.mu.Unlock()
	notify(subs, snap)
}

// onTick keeps the remaining-time field fresh without entering the loop.
func (o *Orchestrator) onTick(remaining time.Duration) {
	o.mu.Lock()
	o.snap.TimeRemainingMS = remaining.Milliseconds()
	o.snap.Clock = FormatClock(o.snap.TimeRemainingMS)
	snap := o.snap
	subs := o.subscribers()
	o.mu.Unlock()
	notify(subs, snap)
}

// post delivers a command to the loop unless the session is closed. The
// send happens under the read lock so Close cannot mark the session down
// while a command is in flight; anything accepted here is either handled
// by the loop or answered ErrSessionClosed by the teardown drain.
func (o *Orchestrator) post(cmd command) {
	o.closeMu.RLock()
	if o.down {
		o.closeMu.RUnlock()
		o.reply(cmd, ErrSessionClosed)
		return
	}
	o.cmds <- cmd
	o.closeMu.RUnlock()
}

func (o *Orchestrator) intent(kind cmdKind) error {
	reply := make(chan error, 1)
	o.post(command{kind: kind, reply: reply})
	return <-reply
}

// StartRecording begins capture for the current question.
func (o *Orchestrator) StartRecording() error { return o.intent(cmdStartRecording) }

// StopRecording halts capture and submits the clip as a draft.
func (o *Orchestrator) StopRecording() error { return o.intent(cmdStopRecording) }

// ConfirmAnswer resubmits the clip as final and advances on success.
func (o *Orchestrator) ConfirmAnswer() error { return o.intent(cmdConfirm) }

// RetryAnswer discards the draft and starts a fresh capture for the same
// question.
func (o *Orchestrator) RetryAnswer() error { return o.intent(cmdRetry) }

// FinishInterview requests the final report once the session is complete.
func (o *Orchestrator) FinishInterview() error { return o.intent(cmdFinish) }

// RetryLoad retries question acquisition after fetch exhaustion.
func (o *Orchestrator) RetryLoad() error { return o.intent(cmdRetryLoad) }

// Snapshot returns the current read-only view of the session.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap
}

// Subscribe returns a channel receiving a snapshot on every state change,
// plus a cancel func. Slow consumers miss intermediate snapshots rather
// than blocking the session.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	o.mu.Lock()
	o.subs[ch] = struct{}{}
	o.mu.Unlock()
	cancel := func() {
		o.mu.Lock()
		delete(o.subs, ch)
		o.mu.Unlock()
	}
	return ch, cancel
}

// Close tears the session down: countdown cancelled, capture released,
// in-flight network calls orphaned. Idempotent.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.timer.Cancel()
		o.closeMu.Lock()
		o.down = true
		o.closeMu.Unlock()
		close(o.closed)
		o.recorder.Release()
	})
}

func (o *Orchestrator) run() {
	for {
		select {
		case <-o.closed:
			o.drainCmds()
			return
		case cmd := <-o.cmds:
			o.handle(cmd)
			o.checkInvariants()
			o.publish()
		}
	}
}

// drainCmds answers commands that were buffered before teardown marked the
// session down. No new sends can arrive once the drain runs.
func (o *Orchestrator) drainCmds() {
	for {
		select {
		case cmd := <-o.cmds:
			o.reply(cmd, ErrSessionClosed)
		default:
			return
		}
	}
}

func (o *Orchestrator) handle(cmd command) {
	// Async completions tagged with a stale generation belong to a
	// superseded state (timeout or teardown raced them); their results
	// must not mutate anything.
	if cmd.kind >= evQuestionsLoaded && cmd.kind != evExpired && cmd.gen != o.gen {
		o.logger.Printf("session %s: discarding stale %s completion", o.sessionID, eventName(cmd.kind))
		return
	}

	switch cmd.kind {
	case cmdStartRecording:
		o.reply(cmd, o.startRecording())
	case cmdStopRecording:
		o.reply(cmd, o.stopRecording())
	case cmdConfirm:
		o.reply(cmd, o.confirm())
	case cmdRetry:
		o.reply(cmd, o.retryAnswer())
	case cmdFinish:
		o.reply(cmd, o.finish())
	case cmdRetryLoad:
		o.reply(cmd, o.retryLoad())

	case evQuestionsLoaded:
		o.questionsLoaded(cmd)
	case evDraftDone:
		o.draftDone(cmd)
	case evFinalDone:
		o.finalDone(cmd)
	case evEvaluateDone:
		if cmd.err != nil {
			o.logger.Printf("session %s: evaluation failed: %v", o.sessionID, cmd.err)
			o.lastErr = "evaluation failed"
			return
		}
		o.feedback = cmd.text
	case evReportDone:
		if cmd.err != nil {
			o.logger.Printf("session %s: report generation failed: %v", o.sessionID, cmd.err)
			o.lastErr = "report generation failed"
			return
		}
		o.report = cmd.text
	case evExpired:
		o.expired()
	}
}

func (o *Orchestrator) reply(cmd command, err error) {
	if cmd.reply != nil {
		cmd.reply <- err
	}
}

func (o *Orchestrator) phaseErr() error {
	return fmt.Errorf("%w: phase=%s", ErrInvalidPhase, o.phase)
}

func (o *Orchestrator) startRecording() error {
	if o.phase != PhaseReady {
		return o.phaseErr()
	}
	return o.beginCapture()
}

// beginCapture is shared by the start intent and the post-draft retry
// path. Device failures keep the session on the same question.
func (o *Orchestrator) beginCapture() error {
	if err := o.recorder.Start(context.Background()); err != nil {
		o.logger.Printf("session %s: capture start failed: %v", o.sessionID, err)
		o.phase = PhaseReady
		o.lastErr = "failed to access recording device"
		var devErr *media.DeviceError
		if errors.As(err, &devErr) || errors.Is(err, media.ErrAlreadyRecording) {
			return err
		}
		return &media.DeviceError{Cause: err}
	}
	o.phase = PhaseRecording
	o.lastErr = ""
	return nil
}

func (o *Orchestrator) stopRecording() error {
	if o.phase != PhaseRecording || o.processing {
		return o.phaseErr()
	}
	clip, err := o.recorder.Stop()
	if err != nil {
		o.logger.Printf("session %s: capture stop failed: %v", o.sessionID, err)
		o.phase = PhaseReady
		o.lastErr = "nothing was recorded, please try again"
		return err
	}
	o.clip = &clip
	o.processing = true
	o.submit(clip, false)
	return nil
}

// submit runs a transcription submission off-loop and posts the result
// back tagged with the current generation.
func (o *Orchestrator) submit(clip media.Clip, final bool) {
	gen := o.gen
	question := o.questions[o.index]
	kind := evDraftDone
	if final {
		kind = evFinalDone
	}
	go func() {
		ctx, span := orchestratorTracer.Start(context.Background(), "interview.transcribe",
			trace.WithAttributes(
				attribute.String("session.id", o.sessionID),
				attribute.Bool("final", final),
			))
		defer span.End()

		started := time.Now()
		res, err := o.transcriber.Submit(ctx, clip, question, o.sessionID, final)
		o.metrics.TranscriptionObserved(final, time.Since(started), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		o.post(command{kind: kind, gen: gen, result: res, err: err})
	}()
}

func (o *Orchestrator) draftDone(cmd command) {
	o.processing = false
	if cmd.err != nil {
		// A failed draft does not retain the clip for auto-retry; the
		// user records again.
		o.clip = nil
		o.phase = PhaseReady
		o.lastErr = "failed to transcribe audio, please record again"
		return
	}
	o.transcription = cmd.result.Transcription
	o.phase = PhaseAwaitingConfirmation
	o.lastErr = ""
}

func (o *Orchestrator) confirm() error {
	if o.phase != PhaseAwaitingConfirmation {
		return o.phaseErr()
	}
	if o.clip == nil {
		return fmt.Errorf("%w: no clip to confirm", ErrInvalidPhase)
	}
	o.phase = PhaseSubmitting
	o.submit(*o.clip, true)
	return nil
}

func (o *Orchestrator) finalDone(cmd command) {
	if cmd.err != nil {
		// Confirmation can be retried without re-recording.
		o.phase = PhaseAwaitingConfirmation
		o.lastErr = "failed to confirm answer, please try again"
		return
	}
	question := o.questions[o.index]
	rec := AnswerRecord{
		QuestionID:  question.ID,
		Question:    question.Text,
		Answer:      cmd.result.Transcription,
		Evaluation:  cmd.result.Evaluation,
		ConfirmedAt: cmd.result.Timestamp,
	}
	if rec.ConfirmedAt.IsZero() {
		rec.ConfirmedAt = time.Now()
	}
	if err := o.ledger.Append(rec); err != nil {
		// Out-of-order append means the phase machine itself is broken;
		// the session cannot continue.
		o.fail(fmt.Sprintf("ledger violation: %v", err))
		return
	}
	o.index++
	o.clip = nil
	o.transcription = ""
	o.lastErr = ""
	if o.index == len(o.questions) {
		o.complete()
		return
	}
	o.phase = PhaseReady
}

func (o *Orchestrator) complete() {
	o.phase = PhaseComplete
	o.timer.Cancel()
	o.metrics.SessionCompleted()

	gen := o.gen
	sub := o.ledger.FinalSubmission()
	go func() {
		ctx, span := orchestratorTracer.Start(context.Background(), "interview.evaluate",
			trace.WithAttributes(attribute.String("session.id", o.sessionID)))
		defer span.End()

		feedback, err := o.store.Evaluate(ctx, sub)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		o.post(command{kind: evEvaluateDone, gen: gen, text: feedback, err: err})
	}()
}

func (o *Orchestrator) finish() error {
	if o.phase != PhaseComplete {
		return o.phaseErr()
	}
	gen := o.gen
	req := ReportRequest{
		SessionID:   o.sessionID,
		Questions:   o.questions,
		Answers:     o.ledger.Records(),
		Feedback:    o.feedback,
		CompletedAt: time.Now(),
	}
	go func() {
		ctx, span := orchestratorTracer.Start(context.Background(), "interview.generate_report",
			trace.WithAttributes(attribute.String("session.id", o.sessionID)))
		defer span.End()

		report, err := o.store.GenerateReport(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		o.post(command{kind: evReportDone, gen: gen, text: report, err: err})
	}()
	return nil
}

func (o *Orchestrator) retryAnswer() error {
	if o.phase != PhaseAwaitingConfirmation {
		return o.phaseErr()
	}
	o.clip = nil
	o.transcription = ""
	return o.beginCapture()
}

func (o *Orchestrator) retryLoad() error {
	if o.phase != PhaseFailed {
		return o.phaseErr()
	}
	o.phase = PhaseLoading
	o.lastErr = ""
	// re-run the same acquisition path the session was created with; a
	// resume-generated session retries generation, not a fetch of an id
	// the backend never issued
	o.load(Options{SessionID: o.sessionID, ResumeSummary: o.resume}, o.gen)
	return nil
}

func (o *Orchestrator) questionsLoaded(cmd command) {
	if o.phase != PhaseLoading {
		return
	}
	if cmd.err != nil {
		o.logger.Printf("session %s: question load failed: %v", o.sessionID, cmd.err)
		o.phase = PhaseFailed
		o.lastErr = "failed to load questions, please try again later"
		return
	}
	if len(cmd.questions) == 0 {
		o.phase = PhaseFailed
		o.lastErr = "no questions found for this session"
		return
	}
	if cmd.sessionID != "" {
		o.sessionID = cmd.sessionID
	}
	// once loaded, any later reload goes by id
	o.resume = ""
	o.questions = cmd.questions
	o.index = 0
	o.ledger = NewLedger(o.sessionID, o.questions)
	o.phase = PhaseReady
	o.lastErr = ""
}

// expired forces the terminal timeout transition: whatever is in flight is
// abandoned, the capture is torn down, and the confirmed ledger is saved
// best-effort.
func (o *Orchestrator) expired() {
	if o.phase.Terminal() {
		return
	}
	o.phase = PhaseTimedOut
	o.lastErr = "session timed out"
	o.gen++ // orphan in-flight completions
	o.processing = false
	o.clip = nil
	o.recorder.Release()
	o.metrics.SessionTimedOut()

	if o.ledger == nil {
		return
	}
	snap := o.ledger.PartialSnapshot(time.Now())
	go func() {
		ctx, span := orchestratorTracer.Start(context.Background(), "interview.save_partial",
			trace.WithAttributes(attribute.String("session.id", o.sessionID)))
		defer span.End()

		if err := o.store.SavePartial(ctx, snap); err != nil {
			// No recovery path exists at this point; log and count.
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.logger.Printf("session %s: partial save failed: %v", o.sessionID, err)
			o.metrics.PartialSaveFailed()
		}
	}()
}

func (o *Orchestrator) fail(reason string) {
	o.logger.Printf("session %s: fatal: %s", o.sessionID, reason)
	o.phase = PhaseFailed
	o.lastErr = reason
	o.gen++
	o.processing = false
	o.clip = nil
	o.timer.Cancel()
	o.recorder.Release()
	o.metrics.SessionFailed()
}

// checkInvariants enforces ledger/index agreement in the normal-flow
// phases. A breach is a programming error and ends the session.
func (o *Orchestrator) checkInvariants() {
	if o.ledger == nil {
		return
	}
	switch o.phase {
	case PhaseReady, PhaseRecording, PhaseAwaitingConfirmation:
		if o.ledger.Len() != o.index {
			o.fail(fmt.Sprintf("invariant violation: ledger=%d index=%d", o.ledger.Len(), o.index))
		}
	}
}

// publish refreshes the shared snapshot from loop-owned state and fans it
// out to subscribers.
func (o *Orchestrator) publish() {
	snap := Snapshot{
		SessionID:      o.sessionID,
		Phase:          o.phase,
		CurrentIndex:   o.index,
		TotalQuestions: len(o.questions),
		Transcription:  o.transcription,
		Processing:     o.processing,
		Feedback:       o.feedback,
		Report:         o.report,
		Error:          o.lastErr,
	}
	if o.ledger != nil {
		snap.Answered = o.ledger.Len()
	}
	if o.index < len(o.questions) {
		q := o.questions[o.index]
		snap.Question = &q
	}
	snap.TimeRemainingMS = o.timer.Remaining().Milliseconds()
	snap.Clock = FormatClock(snap.TimeRemainingMS)

	o.mu.Lock()
	snap.RetryAttempt = o.snap.RetryAttempt
	snap.RetryMax = o.snap.RetryMax
	o.snap = snap
	subs := o.subscribers()
	o.mu.Unlock()
	notify(subs, snap)
}

// subscribers must be called with o.mu held.
func (o *Orchestrator) subscribers() []chan Snapshot {
	out := make([]chan Snapshot, 0, len(o.subs))
	for ch := range o.subs {
		out = append(out, ch)
	}
	return out
}

func notify(subs []chan Snapshot, snap Snapshot) {
	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func eventName(kind cmdKind) string {
	switch kind {
	case evQuestionsLoaded:
		return "questions-loaded"
	case evDraftDone:
		return "draft-submit"
	case evFinalDone:
		return "final-submit"
	case evEvaluateDone:
		return "evaluate"
	case evReportDone:
		return "report"
	default:
		return "unknown"
	}
}
