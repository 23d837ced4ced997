package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stemsi/exstem-runner/internal/annotation"
	"github.com/stemsi/exstem-runner/internal/model"
	"github.com/stemsi/exstem-runner/internal/repository"
)

type remoteCall struct {
	op         string
	questionID string
	upd        model.InteractionUpdate
}

// fakeRemote grades against a fixed answer key and records every call.
type fakeRemote struct {
	mu          sync.Mutex
	answers     map[string]int
	calls       []remoteCall
	submitErr   map[string][]error
	finalizeErr []error
	cancelErr   error
	inFlight    map[string]bool
	flags       map[string]bool
	results     model.TestResults
}

func newFakeRemote(answers map[string]int) *fakeRemote {
	return &fakeRemote{
		answers:   answers,
		submitErr: make(map[string][]error),
		inFlight:  make(map[string]bool),
		flags:     make(map[string]bool),
	}
}

// failSubmit queues errors returned by the next submits for qid.
func (f *fakeRemote) failSubmit(qid string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr[qid] = append(f.submitErr[qid], errs...)
}

func (f *fakeRemote) Submit(_ context.Context, _ string, qid string, upd model.InteractionUpdate) (model.InteractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op := classify(upd, f.flags[qid])
	f.calls = append(f.calls, remoteCall{op: op, questionID: qid, upd: upd})
	if errs := f.submitErr[qid]; len(errs) > 0 {
		f.submitErr[qid] = errs[1:]
		return model.InteractionResult{}, errs[0]
	}
	if op == "flag" {
		f.flags[qid] = *upd.IsFlagged
	}
	res := model.InteractionResult{SelectedAnswer: upd.SelectedAnswer}
	if upd.IsFlagged != nil {
		res.IsFlagged = *upd.IsFlagged
	}
	if upd.SelectedAnswer != nil {
		res.IsCorrect = f.answers[qid] == *upd.SelectedAnswer
	}
	return res, nil
}

func (f *fakeRemote) Finalize(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, remoteCall{op: "finalize"})
	if len(f.finalizeErr) > 0 {
		err := f.finalizeErr[0]
		f.finalizeErr = f.finalizeErr[1:]
		return err
	}
	return nil
}

func (f *fakeRemote) Cancel(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, remoteCall{op: "cancel"})
	return f.cancelErr
}

func (f *fakeRemote) InFlight(_, qid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight[qid]
}

func (f *fakeRemote) Results(_ context.Context, sessionID string) (model.TestResults, error) {
	r := f.results
	r.SessionID = sessionID
	return r, nil
}

// classify names the action behind an interaction update. A flag-only
// update that changes the recorded flag is a flag toggle, otherwise a skip.
func classify(upd model.InteractionUpdate, flagged bool) string {
	switch {
	case upd.Note != nil:
		return "note"
	case upd.SelectedAnswer != nil:
		return "submit"
	case upd.IsFlagged != nil && *upd.IsFlagged != flagged:
		return "flag"
	}
	return "skip"
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (f *fakeRemote) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// failingSnapshots fails every call.
type failingSnapshots struct{}

func (failingSnapshots) Save(context.Context, string, model.AnnotationState) error {
	return errors.New("disk full")
}

func (failingSnapshots) Load(context.Context, string) (model.AnnotationState, error) {
	return model.AnnotationState{}, errors.New("corrupt")
}

func (failingSnapshots) Purge(context.Context, string) error {
	return errors.New("disk full")
}

func testBootstrap(id string, n int) model.Bootstrap {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:           fmt.Sprintf("q%d", i+1),
			QuestionText: fmt.Sprintf("Question number %d", i+1),
			Options:      []model.Option{{Text: "A"}, {Text: "B"}, {Text: "C"}},
			Explanation:  &model.Explanation{Text: "Because."},
		}
	}
	return model.Bootstrap{SessionID: id, Questions: qs}
}

func newTestSession(t *testing.T, b model.Bootstrap, remote *fakeRemote, snaps repository.SnapshotRepository) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), b, remote, snaps)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func mustInteraction(t *testing.T, s *Session, i int) model.Interaction {
	t.Helper()
	it, err := s.Interaction(i)
	if err != nil {
		t.Fatalf("Interaction(%d): %v", i, err)
	}
	return it
}

func TestNewSessionRejectsInvalidBootstrap(t *testing.T) {
	remote := newFakeRemote(nil)
	snaps := repository.NewMemorySnapshotRepository()

	tests := []struct {
		name string
		b    model.Bootstrap
	}{
		{"missing id", model.Bootstrap{Questions: testBootstrap("x", 1).Questions}},
		{"no questions", model.Bootstrap{SessionID: "s1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(context.Background(), tt.b, remote, snaps)
			if !errors.Is(err, model.ErrInvalidBootstrap) {
				t.Fatalf("err = %v, want ErrInvalidBootstrap", err)
			}
		})
	}
}

func TestNewSessionStartsEmpty(t *testing.T) {
	s := newTestSession(t, testBootstrap("s1", 3), newFakeRemote(nil), repository.NewMemorySnapshotRepository())
	if s.CurrentIndex() != 0 {
		t.Fatalf("CurrentIndex = %d, want 0", s.CurrentIndex())
	}
	for i, st := range s.Statuses() {
		if st != model.StatusUnanswered {
			t.Fatalf("status[%d] = %s, want unanswered", i, st)
		}
	}
	if s.Status() != model.SessionStatusActive {
		t.Fatalf("Status = %s", s.Status())
	}
}

func TestNavigation(t *testing.T) {
	s := newTestSession(t, testBootstrap("s1", 3), newFakeRemote(nil), repository.NewMemorySnapshotRepository())

	steps := []struct {
		name string
		do   func() (int, error)
		want int
	}{
		{"goto 2", func() (int, error) { return s.GoTo(2) }, 2},
		{"next at end", s.Next, 2},
		{"goto out of range", func() (int, error) { return s.GoTo(7) }, 2},
		{"goto negative", func() (int, error) { return s.GoTo(-1) }, 2},
		{"previous", s.Previous, 1},
		{"previous", s.Previous, 0},
		{"previous at start", s.Previous, 0},
		{"next", s.Next, 1},
	}
	for _, st := range steps {
		got, err := st.do()
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if got != st.want {
			t.Fatalf("%s: index = %d, want %d", st.name, got, st.want)
		}
	}
}

// Q1 answered correctly, Q2 flagged, Q3 times out under a forced 1 second
// per-question timer, then the test is ended.
func TestSessionScenarioAnswerFlagTimeout(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(map[string]int{"q1": 0, "q2": 1, "q3": 2})
	snaps := repository.NewMemorySnapshotRepository()
	s := newTestSession(t, testBootstrap("scenario", 3), remote, snaps)

	if _, err := s.AddHighlight(ctx, model.TargetPrompt, model.TextSpan{Start: 0, End: 8}, "#ff0"); err != nil {
		t.Fatalf("AddHighlight: %v", err)
	}
	if st, _ := snaps.Load(ctx, "scenario"); st.IsEmpty() {
		t.Fatal("highlight was not persisted")
	}

	if err := s.SelectAnswer(0); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	out, err := s.RecordAction(ctx, model.ActionSubmitAnswer)
	if err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if out.Status != model.StatusSubmittedCorrect || out.Current != 1 || !out.Advanced {
		t.Fatalf("submit q1 outcome = %+v", out)
	}

	out, err = s.RecordAction(ctx, model.ActionFlag)
	if err != nil {
		t.Fatalf("flag q2: %v", err)
	}
	if out.Status != model.StatusFlagged || out.Current != 1 || out.Advanced {
		t.Fatalf("flag q2 outcome = %+v", out)
	}

	if _, err := s.GoTo(2); err != nil {
		t.Fatalf("GoTo: %v", err)
	}
	if err := s.ConfigureTimer(model.TimerPerQuestion, 1); err != nil {
		t.Fatalf("ConfigureTimer: %v", err)
	}
	if !s.Tick() {
		t.Fatal("expected expiry on first tick")
	}
	for i := 0; i < 3; i++ {
		if s.Tick() {
			t.Fatal("expiry raised again after reaching zero")
		}
	}

	q3 := mustInteraction(t, s, 2)
	sub, ok := q3.Submission()
	if !ok || sub.IsCorrect {
		t.Fatalf("q3 = %+v, want submitted incorrect", q3.State)
	}

	// Timing out the last question finalizes the test, skipping the flagged
	// Q2 with its flag preserved.
	q2 := mustInteraction(t, s, 1)
	if !q2.IsSubmitted() || !q2.IsFlagged() {
		t.Fatalf("q2 = %+v, want submitted with flag preserved", q2.State)
	}
	skips := remote.count("skip")
	if skips != 2 {
		t.Fatalf("skip calls = %d, want 2 (timeout and flagged q2)", skips)
	}

	if err := s.EndTest(ctx); err != nil {
		t.Fatalf("EndTest: %v", err)
	}
	if n := remote.count("skip"); n != skips {
		t.Fatalf("EndTest issued %d further skips, want 0", n-skips)
	}
	if n := remote.count("finalize"); n != 1 {
		t.Fatalf("finalize calls = %d, want 1", n)
	}
	st, err := snaps.Load(ctx, "scenario")
	if err != nil || !st.IsEmpty() {
		t.Fatalf("snapshot after finalize = %+v, %v; want empty", st, err)
	}
	if s.Status() != model.SessionStatusFinalized {
		t.Fatalf("Status = %s, want FINALIZED", s.Status())
	}

	want := []model.QuestionStatus{model.StatusSubmittedCorrect, model.StatusSubmittedIncorrect, model.StatusSubmittedIncorrect}
	for i, got := range s.Statuses() {
		if got != want[i] {
			t.Fatalf("status[%d] = %s, want %s", i, got, want[i])
		}
	}
}

func TestSubmitSyncFailureLeavesLedgerAndRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(map[string]int{"q1": 1})
	s := newTestSession(t, testBootstrap("s1", 2), remote, repository.NewMemorySnapshotRepository())

	remote.failSubmit("q1", &model.SyncError{Op: "submit interaction", Kind: model.SyncKindServer, Status: 500})

	if err := s.SelectAnswer(1); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	_, err := s.RecordAction(ctx, model.ActionSubmitAnswer)
	if !errors.Is(err, model.ErrSyncFailure) {
		t.Fatalf("err = %v, want ErrSyncFailure", err)
	}

	it := mustInteraction(t, s, 0)
	if it.IsSubmitted() || it.Draft == nil || *it.Draft != 1 {
		t.Fatalf("ledger changed after failure: %+v", it)
	}
	if s.CurrentIndex() != 0 {
		t.Fatalf("advanced after failure")
	}

	out, err := s.RecordAction(ctx, model.ActionSubmitAnswer)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if out.Status != model.StatusSubmittedCorrect || out.Current != 1 {
		t.Fatalf("retry outcome = %+v", out)
	}
}

func TestUnauthorizedSurfacesSessionExpired(t *testing.T) {
	remote := newFakeRemote(nil)
	s := newTestSession(t, testBootstrap("s1", 2), remote, repository.NewMemorySnapshotRepository())
	remote.failSubmit("q1", &model.SyncError{Op: "submit interaction", Kind: model.SyncKindUnauthorized, Status: 401})

	_, err := s.RecordAction(context.Background(), model.ActionSkip)
	if !errors.Is(err, model.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if errors.Is(err, model.ErrSyncFailure) {
		t.Fatal("SessionExpired must be distinct from SyncFailure")
	}
	if mustInteraction(t, s, 0).IsSubmitted() {
		t.Fatal("ledger changed after unauthorized")
	}
}

func TestSubmittedInteractionIsFrozen(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(map[string]int{"q1": 2})
	s := newTestSession(t, testBootstrap("s1", 3), remote, repository.NewMemorySnapshotRepository())

	if err := s.SelectAnswer(2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordAction(ctx, model.ActionSubmitAnswer); err != nil {
		t.Fatal(err)
	}
	before := mustInteraction(t, s, 0)

	if _, err := s.GoTo(0); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectAnswer(0); !errors.Is(err, model.ErrAlreadySubmitted) {
		t.Fatalf("SelectAnswer err = %v", err)
	}
	for _, kind := range []model.ActionKind{model.ActionSubmitAnswer, model.ActionFlag, model.ActionSkip} {
		if _, err := s.RecordAction(ctx, kind); !errors.Is(err, model.ErrAlreadySubmitted) {
			t.Fatalf("%s err = %v, want ErrAlreadySubmitted", kind, err)
		}
	}
	if err := s.SaveNote(ctx, "revisit"); err != nil {
		t.Fatalf("SaveNote after submit: %v", err)
	}

	after := mustInteraction(t, s, 0)
	if after.State != before.State {
		t.Fatalf("submitted state changed: %+v -> %+v", before.State, after.State)
	}
	if after.Note != "revisit" {
		t.Fatalf("Note = %q", after.Note)
	}
}

func TestFlagForeclosedByDraft(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(nil)
	s := newTestSession(t, testBootstrap("s1", 2), remote, repository.NewMemorySnapshotRepository())

	if _, err := s.RecordAction(ctx, model.ActionFlag); err != nil {
		t.Fatalf("flag: %v", err)
	}
	if _, err := s.RecordAction(ctx, model.ActionFlag); err != nil {
		t.Fatalf("unflag: %v", err)
	}
	if got := s.Statuses()[0]; got != model.StatusUnanswered {
		t.Fatalf("after unflag status = %s", got)
	}

	if err := s.SelectAnswer(1); err != nil {
		t.Fatal(err)
	}
	calls := remote.totalCalls()
	if _, err := s.RecordAction(ctx, model.ActionFlag); !errors.Is(err, model.ErrFlagForeclosed) {
		t.Fatalf("err = %v, want ErrFlagForeclosed", err)
	}
	if remote.totalCalls() != calls {
		t.Fatal("rejected flag reached the remote service")
	}
}

func TestTimeoutPreservesFlag(t *testing.T) {
	remote := newFakeRemote(nil)
	s := newTestSession(t, testBootstrap("s1", 2), remote, repository.NewMemorySnapshotRepository())

	if _, err := s.RecordAction(context.Background(), model.ActionFlag); err != nil {
		t.Fatal(err)
	}
	if err := s.ConfigureTimer(model.TimerPerQuestion, 2); err != nil {
		t.Fatal(err)
	}
	s.Tick()
	if !s.Tick() {
		t.Fatal("expected expiry on second tick")
	}

	it := mustInteraction(t, s, 0)
	if !it.IsSubmitted() || !it.IsFlagged() {
		t.Fatalf("q1 = %+v, want submitted with flag preserved", it.State)
	}
	if s.CurrentIndex() != 1 {
		t.Fatalf("CurrentIndex = %d, want 1", s.CurrentIndex())
	}
	if n := remote.count("skip"); n != 1 {
		t.Fatalf("skip calls = %d, want 1", n)
	}
}

func TestTimerPausedWhileInFlight(t *testing.T) {
	remote := newFakeRemote(nil)
	s := newTestSession(t, testBootstrap("s1", 2), remote, repository.NewMemorySnapshotRepository())
	if err := s.ConfigureTimer(model.TimerPerQuestion, 1); err != nil {
		t.Fatal(err)
	}

	remote.mu.Lock()
	remote.inFlight["q1"] = true
	remote.mu.Unlock()
	if s.Tick() {
		t.Fatal("expired while a submission was in flight")
	}
	if got := s.Timer().Remaining; got != 1 {
		t.Fatalf("Remaining = %d, want 1", got)
	}

	remote.mu.Lock()
	remote.inFlight["q1"] = false
	remote.mu.Unlock()
	if !s.Tick() {
		t.Fatal("expected expiry once the submission resolved")
	}
}

func TestEndTestSkipsEveryUnsubmittedQuestion(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(map[string]int{"q1": 0})
	s := newTestSession(t, testBootstrap("s1", 5), remote, repository.NewMemorySnapshotRepository())

	if err := s.SelectAnswer(0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordAction(ctx, model.ActionSubmitAnswer); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordAction(ctx, model.ActionSkip); err != nil {
		t.Fatal(err)
	}

	if err := s.EndTest(ctx); err != nil {
		t.Fatalf("EndTest: %v", err)
	}
	if n := remote.count("skip"); n != 4 {
		t.Fatalf("skip calls = %d, want 1 explicit + 3 at finalization", n)
	}
	if n := remote.count("finalize"); n != 1 {
		t.Fatalf("finalize calls = %d, want 1", n)
	}

	if err := s.EndTest(ctx); err != nil {
		t.Fatalf("second EndTest: %v", err)
	}
	if n := remote.count("finalize"); n != 1 {
		t.Fatalf("finalize called again on a finalized session")
	}
	if _, err := s.RecordAction(ctx, model.ActionSkip); !errors.Is(err, model.ErrSessionClosed) {
		t.Fatalf("action after finalize err = %v", err)
	}
}

func TestEndTestFinalizeFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(nil)
	snaps := repository.NewMemorySnapshotRepository()
	s := newTestSession(t, testBootstrap("s1", 2), remote, snaps)
	if _, err := s.ToggleStrike(ctx, 1); err != nil {
		t.Fatal(err)
	}

	remote.finalizeErr = []error{&model.SyncError{Op: "finalize session", Kind: model.SyncKindNetwork}}
	if err := s.EndTest(ctx); !errors.Is(err, model.ErrSyncFailure) {
		t.Fatalf("err = %v, want ErrSyncFailure", err)
	}
	if s.Status() != model.SessionStatusActive {
		t.Fatalf("Status = %s, want ACTIVE after failed finalize", s.Status())
	}
	if st, _ := snaps.Load(ctx, "s1"); st.IsEmpty() {
		t.Fatal("snapshot purged although finalize failed")
	}

	if err := s.EndTest(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := remote.count("skip"); n != 2 {
		t.Fatalf("skip calls = %d, want 2", n)
	}
	if n := remote.count("finalize"); n != 2 {
		t.Fatalf("finalize calls = %d, want 2", n)
	}
	if st, _ := snaps.Load(ctx, "s1"); !st.IsEmpty() {
		t.Fatal("snapshot not purged after finalize")
	}
}

func TestEndTestSkipFailuresAreBestEffort(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(nil)
	s := newTestSession(t, testBootstrap("s1", 3), remote, repository.NewMemorySnapshotRepository())

	remote.failSubmit("q2", &model.SyncError{Op: "submit interaction", Kind: model.SyncKindServer, Status: 502})

	err := s.EndTest(ctx)
	if !errors.Is(err, model.ErrFinalizeIncomplete) {
		t.Fatalf("err = %v, want ErrFinalizeIncomplete", err)
	}
	var fe *model.FinalizeIncompleteError
	if !errors.As(err, &fe) || len(fe.Failures) != 1 || fe.Failures[0].QuestionID != "q2" {
		t.Fatalf("failures = %+v", fe)
	}
	if !mustInteraction(t, s, 0).IsSubmitted() || !mustInteraction(t, s, 2).IsSubmitted() {
		t.Fatal("sweep stopped at the failing question")
	}
	if n := remote.count("finalize"); n != 1 {
		t.Fatalf("finalize calls = %d, want 1", n)
	}
	if s.Status() != model.SessionStatusFinalized {
		t.Fatalf("Status = %s", s.Status())
	}
}

func TestSubmittingLastQuestionFinalizes(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(map[string]int{"q2": 0})
	s := newTestSession(t, testBootstrap("s1", 2), remote, repository.NewMemorySnapshotRepository())

	if _, err := s.GoTo(1); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectAnswer(0); err != nil {
		t.Fatal(err)
	}
	out, err := s.RecordAction(ctx, model.ActionSubmitAnswer)
	if err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	if !out.Finalized || out.Advanced {
		t.Fatalf("outcome = %+v, want finalized", out)
	}
	if !mustInteraction(t, s, 0).IsSubmitted() {
		t.Fatal("earlier question not skipped at finalization")
	}
}

func TestWholeTestExpiryFinalizes(t *testing.T) {
	b := testBootstrap("s1", 3)
	b.TimerMode = model.TimerWholeTest
	b.DurationSeconds = 2
	remote := newFakeRemote(nil)
	s := newTestSession(t, b, remote, repository.NewMemorySnapshotRepository())

	if _, err := s.Next(); err != nil {
		t.Fatal(err)
	}
	s.Tick()
	if !s.Tick() {
		t.Fatal("expected expiry")
	}
	if s.Status() != model.SessionStatusFinalized {
		t.Fatalf("Status = %s, want FINALIZED", s.Status())
	}
	if n := remote.count("skip"); n != 3 {
		t.Fatalf("skip calls = %d, want 3", n)
	}
}

func TestCancelPurgesEvenWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(nil)
	remote.cancelErr = &model.SyncError{Op: "cancel session", Kind: model.SyncKindNetwork}
	snaps := repository.NewMemorySnapshotRepository()
	s := newTestSession(t, testBootstrap("s1", 2), remote, snaps)

	if _, err := s.AddHighlight(ctx, model.TargetPrompt, model.TextSpan{Start: 0, End: 3}, "red"); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(ctx); !errors.Is(err, model.ErrSyncFailure) {
		t.Fatalf("err = %v, want remote failure surfaced", err)
	}
	if st, _ := snaps.Load(ctx, "s1"); !st.IsEmpty() {
		t.Fatal("snapshot survived cancel")
	}
	if s.Status() != model.SessionStatusCanceled {
		t.Fatalf("Status = %s", s.Status())
	}
	if err := s.Cancel(ctx); !errors.Is(err, model.ErrSessionClosed) {
		t.Fatalf("second cancel err = %v", err)
	}
}

func TestAnnotationsRestoredOnReload(t *testing.T) {
	ctx := context.Background()
	snaps := repository.NewMemorySnapshotRepository()
	b := testBootstrap("reload", 2)

	first := newTestSession(t, b, newFakeRemote(nil), snaps)
	h, err := first.AddHighlight(ctx, model.TargetPrompt, model.TextSpan{Start: 0, End: 8}, "#ff0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.ToggleStrike(ctx, 2); err != nil {
		t.Fatal(err)
	}

	second := newTestSession(t, b, newFakeRemote(nil), snaps)
	v := second.View()
	if !v.Options[2].Struck || v.Options[0].Struck {
		t.Fatalf("struck options not restored: %+v", v.Options)
	}
	want := first.View().Prompt
	if v.Prompt != want {
		t.Fatalf("Prompt = %q, want %q", v.Prompt, want)
	}

	removed, err := second.RemoveHighlight(ctx, h.Key)
	if err != nil || !removed {
		t.Fatalf("RemoveHighlight = %v, %v", removed, err)
	}
	if second.View().Prompt != b.Questions[0].QuestionText {
		t.Fatal("highlight still rendered after removal")
	}
}

func TestCustomAnnotationStore(t *testing.T) {
	ctx := context.Background()
	store := annotation.NewStore(
		annotation.WithKeyFunc(func() string { return "k1" }),
		annotation.WithMarker(func(h model.Highlight, text string) string {
			return "<" + text + ":" + h.Key + ">"
		}),
	)
	s, err := NewSession(ctx, testBootstrap("s1", 1), newFakeRemote(nil),
		repository.NewMemorySnapshotRepository(), WithAnnotationStore(store))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	h, err := s.AddHighlight(ctx, model.TargetPrompt, model.TextSpan{Start: 0, End: 8}, "red")
	if err != nil {
		t.Fatalf("AddHighlight: %v", err)
	}
	if h.Key != "k1" {
		t.Fatalf("Key = %q, want k1", h.Key)
	}
	if got, want := s.View().Prompt, "<Question:k1> number 1"; got != want {
		t.Fatalf("Prompt = %q, want %q", got, want)
	}
}

func TestSnapshotFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, testBootstrap("s1", 1), newFakeRemote(nil), failingSnapshots{})

	if _, err := s.AddHighlight(ctx, model.TargetPrompt, model.TextSpan{Start: 0, End: 3}, "red"); err != nil {
		t.Fatalf("AddHighlight: %v", err)
	}
	if struck, err := s.ToggleStrike(ctx, 0); err != nil || !struck {
		t.Fatalf("ToggleStrike = %v, %v", struck, err)
	}
	if err := s.EndTest(ctx); err != nil {
		t.Fatalf("EndTest: %v", err)
	}
}

func TestToggleStrikeValidatesOption(t *testing.T) {
	s := newTestSession(t, testBootstrap("s1", 1), newFakeRemote(nil), repository.NewMemorySnapshotRepository())
	if _, err := s.ToggleStrike(context.Background(), 3); !errors.Is(err, model.ErrOptionOutOfRange) {
		t.Fatalf("err = %v, want ErrOptionOutOfRange", err)
	}
}

func TestToggleExplanation(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, testBootstrap("s1", 2), newFakeRemote(nil), repository.NewMemorySnapshotRepository())

	if _, err := s.ToggleExplanation(); !errors.Is(err, model.ErrExplanationLocked) {
		t.Fatalf("err = %v, want ErrExplanationLocked", err)
	}
	if v := s.View(); v.ExplanationVisible || v.Explanation != "" {
		t.Fatalf("explanation shown before submission: %+v", v)
	}

	if _, err := s.RecordAction(ctx, model.ActionSkip); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Previous(); err != nil {
		t.Fatal(err)
	}
	if v := s.View(); !v.ExplanationVisible || v.Explanation != "Because." {
		t.Fatalf("explanation hidden after submission: %+v", v)
	}

	visible, err := s.ToggleExplanation()
	if err != nil || visible {
		t.Fatalf("ToggleExplanation = %v, %v; want hidden", visible, err)
	}
	if s.View().ExplanationVisible {
		t.Fatal("view still shows the explanation")
	}
}

func TestViewProjectsCurrentQuestion(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(map[string]int{"q1": 1})
	b := testBootstrap("s1", 2)
	b.Questions[0].CorrectAnswers = []int{1}
	s := newTestSession(t, b, remote, repository.NewMemorySnapshotRepository())

	if err := s.SelectAnswer(2); err != nil {
		t.Fatal(err)
	}
	v := s.View()
	if v.Draft == nil || *v.Draft != 2 || !v.Options[2].Selected || v.Options[2].Correct != nil {
		t.Fatalf("draft view = %+v", v)
	}
	if v.Timer.Display != "00:00" || v.Total != 2 {
		t.Fatalf("view = %+v", v)
	}

	if _, err := s.RecordAction(ctx, model.ActionSubmitAnswer); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GoTo(0); err != nil {
		t.Fatal(err)
	}
	v = s.View()
	if !v.Submitted || v.IsCorrect == nil || *v.IsCorrect || v.Status != model.StatusSubmittedIncorrect {
		t.Fatalf("submitted view = %+v", v)
	}
	if v.Options[1].Correct == nil || !*v.Options[1].Correct || !v.Options[2].Selected {
		t.Fatalf("options = %+v", v.Options)
	}
}

func TestConfigureTimerDefaultsDuration(t *testing.T) {
	s := newTestSession(t, testBootstrap("s1", 1), newFakeRemote(nil), repository.NewMemorySnapshotRepository())
	if err := s.ConfigureTimer(model.TimerPerQuestion, 0); err != nil {
		t.Fatal(err)
	}
	if st := s.Timer(); st.Remaining != 90 || st.Display != "01:30" {
		t.Fatalf("timer = %+v, want 90s", st)
	}
}

func TestEventsPublished(t *testing.T) {
	ctx := context.Background()
	hub := NewEventHub()
	ch, unsubscribe := hub.Subscribe("s1")
	defer unsubscribe()

	s, err := NewSession(ctx, testBootstrap("s1", 2), newFakeRemote(nil), repository.NewMemorySnapshotRepository(),
		WithNotifier(hub.Publish))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordAction(ctx, model.ActionSkip); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordAction(ctx, model.ActionSkip); err != nil {
		t.Fatal(err)
	}

	var got []EventType
	for len(ch) > 0 {
		got = append(got, (<-ch).Type)
	}
	want := []EventType{EventAdvanced, EventFinalized}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}
