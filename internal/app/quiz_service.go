package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

// QuestionSetRepository loads question sets (from cache/backing store).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// SnapshotStore abstracts where committed snapshots are mirrored (in-memory, Redis, etc).
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap domain.Snapshot) error
}

// QuizService wires the session authority to its external collaborators.
type QuizService struct {
	session *Session
	sets    QuestionSetRepository
	logger  *zap.Logger
}

func NewQuizService(session *Session, sets QuestionSetRepository, logger *zap.Logger) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{session: session, sets: sets, logger: logger}
}

func (s *QuizService) Session() *Session { return s.session }

// LoadSet fetches a stored question set and hands it to the session.
func (s *QuizService) LoadSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	set, err := s.sets.GetQuestionSet(ctx, setID)
	if err != nil {
		return domain.QuestionSet{}, err
	}
	if err := s.session.LoadQuestions(ctx, set); err != nil {
		return domain.QuestionSet{}, err
	}
	return set, nil
}

// MirrorSnapshots writes every committed snapshot to store until ctx is done.
// Intermediate snapshots may be skipped; the latest one always wins.
func (s *QuizService) MirrorSnapshots(ctx context.Context, store SnapshotStore, timeout time.Duration) error {
	ch, cancel := s.session.Subscribe()
	defer cancel()

	var lastVersion uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			if snap.Version == lastVersion {
				continue
			}
			writeCtx, done := context.WithTimeout(ctx, timeout)
			err := store.SaveSnapshot(writeCtx, snap)
			done()
			if err != nil {
				s.logger.Warn("snapshot mirror failed", zap.Uint64("version", snap.Version), zap.Error(err))
				continue
			}
			lastVersion = snap.Version
		}
	}
}
