package app

import (
	"fmt"
	"time"

	"live-quiz-service/internal/domain"
)

// Collector owns the answer window of the current question.
type Collector struct {
	questionID string
	open       bool
	expired    bool
	openedAt   time.Time
	deadline   time.Time
	answered   int
}

func NewCollector() *Collector { return &Collector{} }

// Open starts the window for a new question.
func (c *Collector) Open(questionID string, at, deadline time.Time) {
	*c = Collector{questionID: questionID, open: true, openedAt: at, deadline: deadline}
}

// Reopen resumes the window after a pause. Expired windows stay closed.
func (c *Collector) Reopen(at, deadline time.Time) bool {
	if c.expired || c.questionID == "" {
		return false
	}
	c.open = true
	c.openedAt = at
	c.deadline = deadline
	return true
}

// Close shuts the window temporarily (pause).
func (c *Collector) Close() { c.open = false }

// Expire shuts the window for good. It reports false if already expired.
func (c *Collector) Expire() bool {
	if c.expired {
		return false
	}
	c.open = false
	c.expired = true
	return true
}

// Reset forgets the current question entirely.
func (c *Collector) Reset() { *c = Collector{} }

func (c *Collector) IsOpen() bool  { return c.open }
func (c *Collector) Answered() int { return c.answered }

// Evaluate checks a submission against the window and the player's history and
// scores it. It does not mutate the player; the caller applies the award.
func (c *Collector) Evaluate(p *domain.Player, q domain.Question, sub domain.AnswerSubmission) (domain.AnswerFeedback, error) {
	if sub.QuestionID != "" && sub.QuestionID != q.ID {
		return domain.AnswerFeedback{}, fmt.Errorf("question %q is not live: %w", sub.QuestionID, domain.ErrNotAccepting)
	}
	if !c.open || c.questionID != q.ID {
		return domain.AnswerFeedback{}, fmt.Errorf("question %q window closed: %w", q.ID, domain.ErrNotAccepting)
	}
	if sub.SubmittedAt.Before(c.openedAt) || sub.SubmittedAt.After(c.deadline) {
		return domain.AnswerFeedback{}, fmt.Errorf("submission outside answer window: %w", domain.ErrNotAccepting)
	}
	if _, done := p.Answered[q.ID]; done {
		return domain.AnswerFeedback{}, domain.ErrDuplicateAnswer
	}
	option := domain.NormalizeOption(sub.Option)
	if !domain.IsOptionLabel(option) {
		return domain.AnswerFeedback{}, fmt.Errorf("option %q: %w", sub.Option, domain.ErrNotFound)
	}

	correct := option == q.CorrectOption
	awarded := 0
	if correct {
		awarded = q.Points
	}
	return domain.AnswerFeedback{
		Correct:       correct,
		CorrectAnswer: q.CorrectOption,
		Score:         p.Score + awarded,
		Awarded:       awarded,
	}, nil
}

// Recorded counts an accepted answer toward the host progress view.
func (c *Collector) Recorded() { c.answered++ }
