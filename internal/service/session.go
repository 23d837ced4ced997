package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/annotation"
	"github.com/stemsi/exstem-runner/internal/ledger"
	"github.com/stemsi/exstem-runner/internal/model"
	"github.com/stemsi/exstem-runner/internal/repository"
	"github.com/stemsi/exstem-runner/internal/timer"
)

// Synchronizer is the remote question service as seen by a session.
type Synchronizer interface {
	Submit(ctx context.Context, sessionID, questionID string, upd model.InteractionUpdate) (model.InteractionResult, error)
	Finalize(ctx context.Context, sessionID string) error
	Cancel(ctx context.Context, sessionID string) error
	InFlight(sessionID, questionID string) bool
}

// Session drives one test attempt. It owns the ledger, the annotation
// store and the countdown, and is the only place remote outcomes are
// turned into navigation or termination.
type Session struct {
	test        *model.TestSession
	ledger      *ledger.Ledger
	annotations *annotation.Store
	timer       *timer.Controller
	remote      Synchronizer
	snapshots   repository.SnapshotRepository
	log         zerolog.Logger
	notify      func(Event)
	defaultSecs int

	mu         sync.Mutex
	current    int
	status     model.SessionStatus
	finalizing bool
	hidden     map[int]bool
	runCtx     context.Context
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithNotifier registers the sink for push events.
func WithNotifier(f func(Event)) SessionOption {
	return func(s *Session) { s.notify = f }
}

// WithDefaultQuestionSeconds sets the duration used when a timer is
// forced without one.
func WithDefaultQuestionSeconds(secs int) SessionOption {
	return func(s *Session) {
		if secs > 0 {
			s.defaultSecs = secs
		}
	}
}

// WithAnnotationStore replaces the annotation store.
func WithAnnotationStore(st *annotation.Store) SessionOption {
	return func(s *Session) { s.annotations = st }
}

// NewSession initializes an attempt from its bootstrap payload. Every
// interaction starts empty, annotations are restored from the snapshot
// repository and the current question is 0.
func NewSession(ctx context.Context, b model.Bootstrap, remote Synchronizer, snapshots repository.SnapshotRepository, opts ...SessionOption) (*Session, error) {
	test, err := model.NewTestSession(b)
	if err != nil {
		return nil, err
	}

	s := &Session{
		test:        test,
		ledger:      ledger.New(test.Questions),
		remote:      remote,
		snapshots:   snapshots,
		log:         zerolog.Nop(),
		defaultSecs: timer.DefaultQuestionSeconds,
		status:      model.SessionStatusActive,
		hidden:      make(map[int]bool),
		runCtx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("session_id", test.ID).Logger()
	if s.annotations == nil {
		s.annotations = annotation.NewStore()
	}
	s.timer = timer.New(test.TimerMode, test.DurationSeconds,
		timer.OnExpire(s.handleExpiry),
		timer.OnTick(s.handleTick),
		timer.InFlight(s.inFlightAt),
		timer.WithLogger(s.log),
	)

	s.restore(ctx)

	s.log.Info().
		Int("questions", test.Len()).
		Str("timer_mode", string(test.TimerMode)).
		Msg("Session initialized")
	return s, nil
}

func (s *Session) restore(ctx context.Context) {
	st, err := s.snapshots.Load(ctx, s.test.ID)
	if err != nil {
		s.log.Warn().Err(err).Msg("Snapshot load failed, continuing without annotations")
		return
	}
	s.annotations.Restore(st)
}

func (s *Session) persist(ctx context.Context) {
	if err := s.snapshots.Save(ctx, s.test.ID, s.annotations.State()); err != nil {
		s.log.Warn().Err(err).Msg("Snapshot save failed")
	}
}

func (s *Session) purge(ctx context.Context) {
	s.annotations.Clear()
	if err := s.snapshots.Purge(ctx, s.test.ID); err != nil {
		s.log.Warn().Err(err).Msg("Snapshot purge failed")
	}
}

func (s *Session) emit(t EventType, data any) {
	if s.notify == nil {
		return
	}
	s.notify(Event{Type: t, SessionID: s.test.ID, Data: data})
}

func (s *Session) reportError(err error) {
	s.log.Error().Err(err).Msg("Background action failed")
	s.emit(EventError, map[string]string{"message": err.Error()})
}

// ID returns the session id.
func (s *Session) ID() string { return s.test.ID }

// Test returns the immutable session definition.
func (s *Session) Test() *model.TestSession { return s.test }

// Status returns the lifecycle state.
func (s *Session) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentIndex returns the index of the question on screen.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Interaction returns a copy of the interaction at index i.
func (s *Session) Interaction(i int) (model.Interaction, error) {
	return s.ledger.Get(i)
}

// Statuses returns the navigation status of every question.
func (s *Session) Statuses() []model.QuestionStatus {
	return s.ledger.Statuses()
}

// activeIndex returns the current index when the session accepts user
// actions.
func (s *Session) activeIndex() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.SessionStatusActive || s.finalizing {
		return 0, model.ErrSessionClosed
	}
	return s.current, nil
}

// GoTo moves to question index. Indices outside [0, n-1] leave the current
// question unchanged.
func (s *Session) GoTo(index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.SessionStatusActive {
		return s.current, model.ErrSessionClosed
	}
	s.moveLocked(index)
	return s.current, nil
}

// Next moves to the following question, if any.
func (s *Session) Next() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.SessionStatusActive {
		return s.current, model.ErrSessionClosed
	}
	s.moveLocked(s.current + 1)
	return s.current, nil
}

// Previous moves to the preceding question, if any.
func (s *Session) Previous() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.SessionStatusActive {
		return s.current, model.ErrSessionClosed
	}
	s.moveLocked(s.current - 1)
	return s.current, nil
}

func (s *Session) moveLocked(index int) bool {
	if index < 0 || index >= s.test.Len() || index == s.current {
		return false
	}
	s.current = index
	s.timer.Enter(index)
	return true
}

// SelectAnswer records a draft answer for the current question.
func (s *Session) SelectAnswer(option int) error {
	i, err := s.activeIndex()
	if err != nil {
		return err
	}
	return s.ledger.SelectAnswer(i, option, len(s.test.Questions[i].Options))
}

// ActionOutcome describes a committed action.
type ActionOutcome struct {
	Index     int                  `json:"index"`
	Status    model.QuestionStatus `json:"status"`
	Current   int                  `json:"current_index"`
	Advanced  bool                 `json:"advanced"`
	Finalized bool                 `json:"finalized"`
}

// RecordAction submits, flags or skips the current question. A submit or
// skip advances to the next question, or finalizes the test when it was
// the last one. On failure the ledger is left untouched.
func (s *Session) RecordAction(ctx context.Context, kind model.ActionKind) (ActionOutcome, error) {
	i, err := s.activeIndex()
	if err != nil {
		return ActionOutcome{}, err
	}
	return s.recordActionAt(ctx, i, kind)
}

func (s *Session) recordActionAt(ctx context.Context, i int, kind model.ActionKind) (ActionOutcome, error) {
	it, err := s.commitAction(ctx, i, kind)
	if err != nil {
		return ActionOutcome{}, err
	}
	out := ActionOutcome{Index: i, Status: it.Status()}

	if kind == model.ActionFlag {
		out.Current = s.CurrentIndex()
		return out, nil
	}

	if i < s.test.Len()-1 {
		s.mu.Lock()
		if s.status == model.SessionStatusActive && s.current == i {
			out.Advanced = s.moveLocked(i + 1)
		}
		out.Current = s.current
		s.mu.Unlock()
		if out.Advanced {
			s.emit(EventAdvanced, out)
		}
		return out, nil
	}

	out.Current = s.CurrentIndex()
	err = s.EndTest(ctx)
	out.Finalized = err == nil || errors.Is(err, model.ErrFinalizeIncomplete)
	return out, err
}

// commitAction sends one action for question i and applies the confirmed
// result to the ledger.
func (s *Session) commitAction(ctx context.Context, i int, kind model.ActionKind) (model.Interaction, error) {
	upd, err := s.ledger.PrepareAction(i, kind)
	if err != nil {
		return model.Interaction{}, err
	}
	qid := s.test.Questions[i].ID

	res, err := s.remote.Submit(ctx, s.test.ID, qid, upd)
	if err != nil {
		return model.Interaction{}, err
	}

	it, err := s.ledger.ApplyResult(i, kind, upd, res)
	if err != nil {
		return model.Interaction{}, err
	}
	s.log.Debug().
		Int("index", i).
		Str("question_id", qid).
		Str("action", string(kind)).
		Str("status", string(it.Status())).
		Msg("Interaction committed")
	return it, nil
}

// SaveNote sends the note of the current question and stores it once
// confirmed. Notes are accepted before and after submission.
func (s *Session) SaveNote(ctx context.Context, note string) error {
	i, err := s.activeIndex()
	if err != nil {
		return err
	}
	qid := s.test.Questions[i].ID
	if _, err := s.remote.Submit(ctx, s.test.ID, qid, model.InteractionUpdate{Note: &note}); err != nil {
		return err
	}
	return s.ledger.SetNote(i, note)
}

// AddHighlight records a highlight on the current question.
func (s *Session) AddHighlight(ctx context.Context, target model.HighlightTarget, span model.TextSpan, color string) (model.Highlight, error) {
	i, err := s.activeIndex()
	if err != nil {
		return model.Highlight{}, err
	}
	h, err := s.annotations.AddHighlight(s.test.Questions[i].ID, target, span, color)
	if err != nil {
		return model.Highlight{}, err
	}
	s.persist(ctx)
	return h, nil
}

// RemoveHighlight deletes a highlight by key and reports whether it existed.
func (s *Session) RemoveHighlight(ctx context.Context, key string) (bool, error) {
	if _, err := s.activeIndex(); err != nil {
		return false, err
	}
	if !s.annotations.RemoveHighlight(key) {
		return false, nil
	}
	s.persist(ctx)
	return true, nil
}

// ToggleStrike flips the struck state of an option of the current question
// and returns the new state.
func (s *Session) ToggleStrike(ctx context.Context, option int) (bool, error) {
	i, err := s.activeIndex()
	if err != nil {
		return false, err
	}
	q := s.test.Questions[i]
	if option < 0 || option >= len(q.Options) {
		return false, model.ErrOptionOutOfRange
	}
	struck := s.annotations.ToggleStrike(q.ID, option)
	s.persist(ctx)
	return struck, nil
}

// ToggleExplanation hides or shows the explanation of the current question
// and returns whether it is now visible.
func (s *Session) ToggleExplanation() (bool, error) {
	i, err := s.activeIndex()
	if err != nil {
		return false, err
	}
	it, err := s.ledger.Get(i)
	if err != nil {
		return false, err
	}
	if !it.IsSubmitted() {
		return false, model.ErrExplanationLocked
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden[i] = !s.hidden[i]
	return !s.hidden[i], nil
}

// ConfigureTimer switches the countdown policy. A timer mode without a
// positive duration uses the default question duration.
func (s *Session) ConfigureTimer(mode model.TimerMode, secs int) error {
	if _, err := s.activeIndex(); err != nil {
		return err
	}
	if mode != model.TimerNone && secs <= 0 {
		secs = s.defaultSecs
	}
	s.timer.Configure(mode, secs)
	return nil
}

// Timer returns the countdown state.
func (s *Session) Timer() timer.State {
	return s.timer.State()
}

// Tick advances the countdown by one second.
func (s *Session) Tick() bool {
	return s.timer.Tick()
}

// Run ticks the countdown every interval until ctx is done or the session
// ends. Timer-driven actions use ctx.
func (s *Session) Run(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
	s.timer.Run(ctx, interval)
}

func (s *Session) inFlightAt(index int) bool {
	if index < 0 || index >= s.test.Len() {
		return false
	}
	return s.remote.InFlight(s.test.ID, s.test.Questions[index].ID)
}

func (s *Session) handleTick(st timer.State) {
	s.emit(EventTick, st)
}

// handleExpiry skips the expired question when it is still unsubmitted.
// A whole-test expiry finalizes the attempt.
func (s *Session) handleExpiry(e timer.Expiry) {
	s.mu.Lock()
	ctx := s.runCtx
	idle := s.status != model.SessionStatusActive || s.finalizing
	current := s.current
	s.mu.Unlock()
	if idle {
		return
	}
	s.emit(EventExpired, e)

	if e.Mode == model.TimerWholeTest {
		if err := s.EndTest(ctx); err != nil {
			s.reportError(err)
		}
		return
	}

	if current != e.Index {
		return
	}
	it, err := s.ledger.Get(e.Index)
	if err != nil || it.IsSubmitted() {
		return
	}
	s.log.Info().Int("index", e.Index).Msg("Question timed out, skipping")
	if _, err := s.recordActionAt(ctx, e.Index, model.ActionSkip); err != nil {
		s.reportError(err)
	}
}

// EndTest skips every unsubmitted question, then finalizes the attempt
// once. Skip failures do not stop the sweep; they are reported as a
// *model.FinalizeIncompleteError after a successful finalize. A failed
// finalize returns its own error and leaves the session active so it can be
// retried. Calling EndTest on a finalized session is a no-op.
func (s *Session) EndTest(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.status == model.SessionStatusFinalized:
		s.mu.Unlock()
		return nil
	case s.status != model.SessionStatusActive:
		s.mu.Unlock()
		return model.ErrSessionClosed
	case s.finalizing:
		s.mu.Unlock()
		return model.ErrAlreadyInFlight
	}
	s.finalizing = true
	s.mu.Unlock()

	var failures []model.QuestionFailure
	for _, i := range s.ledger.Unsubmitted() {
		if _, err := s.commitAction(ctx, i, model.ActionSkip); err != nil {
			qid := s.test.Questions[i].ID
			s.log.Warn().Err(err).Int("index", i).Str("question_id", qid).Msg("Skip failed during finalization")
			failures = append(failures, model.QuestionFailure{Index: i, QuestionID: qid, Err: err})
		}
	}

	if err := s.remote.Finalize(ctx, s.test.ID); err != nil {
		s.mu.Lock()
		s.finalizing = false
		s.mu.Unlock()
		s.log.Error().Err(err).Int("skip_failures", len(failures)).Msg("Finalize failed")
		return err
	}

	s.mu.Lock()
	s.status = model.SessionStatusFinalized
	s.finalizing = false
	s.hidden = make(map[int]bool)
	s.mu.Unlock()

	s.timer.Stop()
	s.purge(ctx)
	s.log.Info().Int("skip_failures", len(failures)).Msg("Session finalized")
	s.emit(EventFinalized, map[string]string{"results": s.test.ID})

	if len(failures) > 0 {
		return &model.FinalizeIncompleteError{Failures: failures}
	}
	return nil
}

// Cancel abandons the attempt. Local state is purged whatever the remote
// outcome; the returned error only reports the remote call.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.status != model.SessionStatusActive:
		s.mu.Unlock()
		return model.ErrSessionClosed
	case s.finalizing:
		s.mu.Unlock()
		return model.ErrAlreadyInFlight
	}
	s.status = model.SessionStatusCanceled
	s.hidden = make(map[int]bool)
	s.mu.Unlock()

	err := s.remote.Cancel(ctx, s.test.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("Remote cancel failed, purging local state anyway")
	}

	s.timer.Stop()
	s.purge(ctx)
	s.emit(EventCanceled, nil)
	return err
}
