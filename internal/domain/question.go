package domain

import "strings"

// IsOptionLabel reports whether label is one of A–D.
func IsOptionLabel(label string) bool {
	for _, l := range OptionLabels {
		if l == label {
			return true
		}
	}
	return false
}

// NormalizeOption upper-cases and trims a client supplied option label.
func NormalizeOption(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// ValidateQuestions checks the invariants the session relies on: unique ids,
// positions contiguous from 0, exactly four options labeled A–D, a correct
// option among them, a positive duration and non-negative points.
func ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return &ValidationError{Reason: "no valid questions found"}
	}
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		row := i + 1
		if strings.TrimSpace(q.ID) == "" {
			return &ValidationError{Row: row, Field: "id", Reason: "is empty"}
		}
		if _, dup := seen[q.ID]; dup {
			return &ValidationError{Row: row, Field: "id", Reason: "is duplicated: " + q.ID}
		}
		seen[q.ID] = struct{}{}
		if q.Position != i {
			return &ValidationError{Row: row, Field: "position", Reason: "is not contiguous"}
		}
		if strings.TrimSpace(q.Prompt) == "" {
			return &ValidationError{Row: row, Field: "question", Reason: "is empty"}
		}
		if len(q.Options) != len(OptionLabels) {
			return &ValidationError{Row: row, Field: "options", Reason: "must have exactly four entries"}
		}
		for j, opt := range q.Options {
			if opt.Label != OptionLabels[j] {
				return &ValidationError{Row: row, Field: "options", Reason: "must be labeled A, B, C, D in order"}
			}
			if strings.TrimSpace(opt.Text) == "" {
				return &ValidationError{Row: row, Field: "option " + opt.Label, Reason: "is empty"}
			}
		}
		if !IsOptionLabel(q.CorrectOption) {
			return &ValidationError{Row: row, Field: "correct_answer", Reason: "must be one of A, B, C, D"}
		}
		if q.Duration <= 0 {
			return &ValidationError{Row: row, Field: "duration", Reason: "must be positive"}
		}
		if q.Points < 0 {
			return &ValidationError{Row: row, Field: "points", Reason: "must not be negative"}
		}
	}
	return nil
}

// NewOptions builds the A–D option list from four texts.
func NewOptions(a, b, c, d string) []Option {
	return []Option{
		{Label: "A", Text: a},
		{Label: "B", Text: b},
		{Label: "C", Text: c},
		{Label: "D", Text: d},
	}
}
