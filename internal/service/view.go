package service

import (
	"github.com/stemsi/exstem-runner/internal/model"
	"github.com/stemsi/exstem-runner/internal/timer"
)

// OptionView is one answer choice as displayed.
type OptionView struct {
	Index    int      `json:"index"`
	Text     string   `json:"text"`
	Media    []string `json:"media,omitempty"`
	Struck   bool     `json:"struck"`
	Selected bool     `json:"selected"`
	// Correct is only revealed once the question is submitted.
	Correct *bool `json:"correct,omitempty"`
}

// QuestionView is the projection of the current question.
type QuestionView struct {
	SessionID          string                 `json:"session_id"`
	SessionStatus      model.SessionStatus    `json:"session_status"`
	Index              int                    `json:"index"`
	Total              int                    `json:"total"`
	QuestionID         string                 `json:"question_id"`
	Prompt             string                 `json:"prompt"`
	Media              []string               `json:"media,omitempty"`
	Options            []OptionView           `json:"options"`
	Status             model.QuestionStatus   `json:"status"`
	Flagged            bool                   `json:"flagged"`
	Draft              *int                   `json:"draft,omitempty"`
	Submitted          bool                   `json:"submitted"`
	SelectedAnswer     *int                   `json:"selected_answer,omitempty"`
	IsCorrect          *bool                  `json:"is_correct,omitempty"`
	Note               string                 `json:"note"`
	ExplanationVisible bool                   `json:"explanation_visible"`
	Explanation        string                 `json:"explanation,omitempty"`
	ExplanationMedia   []string               `json:"explanation_media,omitempty"`
	Timer              timer.State            `json:"timer"`
	Statuses           []model.QuestionStatus `json:"statuses"`
}

// View projects the current question with its annotations rendered in.
func (s *Session) View() QuestionView {
	s.mu.Lock()
	i := s.current
	status := s.status
	hidden := s.hidden[i]
	s.mu.Unlock()

	q := s.test.Questions[i]
	it, _ := s.ledger.Get(i)

	v := QuestionView{
		SessionID:     s.test.ID,
		SessionStatus: status,
		Index:         i,
		Total:         s.test.Len(),
		QuestionID:    q.ID,
		Prompt:        s.annotations.Render(q.QuestionText, q.ID, model.TargetPrompt),
		Media:         q.Media,
		Status:        it.Status(),
		Flagged:       it.IsFlagged(),
		Draft:         it.Draft,
		Note:          it.Note,
		Timer:         s.timer.State(),
		Statuses:      s.ledger.Statuses(),
	}

	sub, submitted := it.Submission()
	if submitted {
		correct := sub.IsCorrect
		v.Submitted = true
		v.SelectedAnswer = sub.SelectedAnswer
		v.IsCorrect = &correct
		v.ExplanationVisible = !hidden
		if v.ExplanationVisible {
			v.Explanation = s.annotations.Render(q.ExplanationText(), q.ID, model.TargetExplanation)
			if q.Explanation != nil {
				v.ExplanationMedia = q.Explanation.Media
			}
		}
	}

	v.Options = make([]OptionView, len(q.Options))
	for idx, opt := range q.Options {
		ov := OptionView{
			Index:  idx,
			Text:   opt.Text,
			Media:  opt.Media,
			Struck: s.annotations.IsStruck(q.ID, idx),
		}
		switch {
		case submitted && sub.SelectedAnswer != nil:
			ov.Selected = *sub.SelectedAnswer == idx
		case !submitted && it.Draft != nil:
			ov.Selected = *it.Draft == idx
		}
		if submitted {
			correct := q.IsCorrectOption(idx)
			ov.Correct = &correct
		}
		v.Options[idx] = ov
	}
	return v
}
