// Package ledger is the authoritative in-memory record of every question's
// interaction within one test session.
package ledger

import (
	"sync"

	"github.com/stemsi/exstem-runner/internal/model"
)

// Ledger holds one Interaction per question, in session order.
type Ledger struct {
	mu        sync.RWMutex
	items     []model.Interaction
	submitted []string
}

// New builds a ledger with every interaction empty and unanswered.
func New(questions []model.Question) *Ledger {
	items := make([]model.Interaction, len(questions))
	for i, q := range questions {
		items[i] = model.Interaction{QuestionID: q.ID, State: model.Unanswered{}}
	}
	return &Ledger{items: items}
}

// Len returns the number of questions.
func (l *Ledger) Len() int {
	return len(l.items)
}

// Get returns a copy of the interaction at index i.
func (l *Ledger) Get(i int) (model.Interaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.items) {
		return model.Interaction{}, model.ErrIndexOutOfRange
	}
	return l.items[i], nil
}

// SelectAnswer records a draft answer. Submitted interactions are frozen.
func (l *Ledger) SelectAnswer(i, option, optionCount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.items) {
		return model.ErrIndexOutOfRange
	}
	if option < 0 || option >= optionCount {
		return model.ErrOptionOutOfRange
	}
	it := &l.items[i]
	if it.IsSubmitted() {
		return model.ErrAlreadySubmitted
	}
	it.Draft = &option
	return nil
}

// PrepareAction validates kind against the current state of question i and
// builds the request for the question service. The ledger is not changed.
func (l *Ledger) PrepareAction(i int, kind model.ActionKind) (model.InteractionUpdate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.items) {
		return model.InteractionUpdate{}, model.ErrIndexOutOfRange
	}
	it := l.items[i]
	if it.IsSubmitted() {
		return model.InteractionUpdate{}, model.ErrAlreadySubmitted
	}

	switch kind {
	case model.ActionSubmitAnswer:
		if it.Draft == nil {
			return model.InteractionUpdate{}, model.ErrNoAnswerSelected
		}
		answer := *it.Draft
		return model.InteractionUpdate{SelectedAnswer: &answer}, nil
	case model.ActionFlag:
		if it.Draft != nil {
			return model.InteractionUpdate{}, model.ErrFlagForeclosed
		}
		flag := !it.IsFlagged()
		return model.InteractionUpdate{IsFlagged: &flag}, nil
	case model.ActionSkip:
		flag := it.IsFlagged()
		return model.InteractionUpdate{IsFlagged: &flag, ClearAnswer: true}, nil
	}
	return model.InteractionUpdate{}, model.ErrInvalidAction
}

// ApplyResult commits a server-confirmed outcome. Submit and skip make the
// interaction terminal; flag only moves between Unanswered and Flagged.
func (l *Ledger) ApplyResult(i int, kind model.ActionKind, sent model.InteractionUpdate, res model.InteractionResult) (model.Interaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.items) {
		return model.Interaction{}, model.ErrIndexOutOfRange
	}
	it := &l.items[i]
	if it.IsSubmitted() {
		return *it, model.ErrAlreadySubmitted
	}

	switch kind {
	case model.ActionFlag:
		if res.IsFlagged {
			it.State = model.Flagged{}
		} else {
			it.State = model.Unanswered{}
		}
	case model.ActionSubmitAnswer, model.ActionSkip:
		selected := res.SelectedAnswer
		if selected == nil && kind == model.ActionSubmitAnswer {
			selected = sent.SelectedAnswer
		}
		it.State = model.Submitted{
			SelectedAnswer: selected,
			IsCorrect:      res.IsCorrect,
			WasFlagged:     res.IsFlagged,
		}
		it.Draft = nil
		l.submitted = append(l.submitted, it.QuestionID)
	default:
		return *it, model.ErrInvalidAction
	}
	return *it, nil
}

// SetNote stores a server-confirmed note. Notes never touch answer state.
func (l *Ledger) SetNote(i int, note string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.items) {
		return model.ErrIndexOutOfRange
	}
	l.items[i].Note = note
	return nil
}

// Submitted returns the ids of submitted questions in submission order.
func (l *Ledger) Submitted() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.submitted))
	copy(out, l.submitted)
	return out
}

// Unsubmitted returns the indices of questions without a submission.
func (l *Ledger) Unsubmitted() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []int
	for i, it := range l.items {
		if !it.IsSubmitted() {
			out = append(out, i)
		}
	}
	return out
}

// Interactions returns a copy of every interaction.
func (l *Ledger) Interactions() []model.Interaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Interaction, len(l.items))
	copy(out, l.items)
	return out
}

// Statuses projects the navigation status of every question. It is derived
// on every call and never cached.
func (l *Ledger) Statuses() []model.QuestionStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.QuestionStatus, len(l.items))
	for i, it := range l.items {
		out[i] = it.Status()
	}
	return out
}
