package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// QuestionSetLoader reads and writes the question bank. Questions are stored
// as a JSONB array per set.
type QuestionSetLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionSetLoader(pool *pgxpool.Pool) *QuestionSetLoader {
	return &QuestionSetLoader{pool: pool}
}

func (l *QuestionSetLoader) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	var (
		title string
		raw   []byte
	)
	err := l.pool.QueryRow(ctx, `SELECT title, data FROM question_sets WHERE id=$1`, setID).Scan(&title, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionSet{}, fmt.Errorf("question set %q: %w", setID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load question set: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("unmarshal question set: %w", err)
	}
	return domain.QuestionSet{ID: setID, Title: title, Questions: questions}, nil
}

// SaveQuestionSet inserts or replaces a set in the bank.
func (l *QuestionSetLoader) SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error {
	data, err := json.Marshal(set.Questions)
	if err != nil {
		return fmt.Errorf("marshal question set: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO question_sets (id, title, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, data=EXCLUDED.data, updated_at=now()`,
		set.ID, set.Title, string(data))
	if err != nil {
		return fmt.Errorf("save question set: %w", err)
	}
	return nil
}

// ListQuestionSets returns the bank, most recently updated first.
func (l *QuestionSetLoader) ListQuestionSets(ctx context.Context) ([]domain.QuestionSetSummary, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, title, jsonb_array_length(data), updated_at
		FROM question_sets
		ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list question sets: %w", err)
	}
	defer rows.Close()

	var out []domain.QuestionSetSummary
	for rows.Next() {
		var s domain.QuestionSetSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Count, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan question set: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
