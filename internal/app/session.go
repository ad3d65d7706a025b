package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

// Options configures a Session. Zero values fall back to production defaults.
type Options struct {
	Clock              Clock
	TickInterval       time.Duration
	FinishOnLastExpiry bool
	QueueSize          int
	Logger             *zap.Logger
	NewID              func() string
}

// Session is the single authority for the live quiz. Every mutation runs on
// the goroutine executing Run; other goroutines talk to it through commands.
type Session struct {
	pub    Publisher
	clock  Clock
	logger *zap.Logger
	newID  func() string
	opts   Options

	cmds chan func()
	done chan struct{}

	// Owned by the Run goroutine.
	id               string
	status           domain.Status
	index            int
	setID            string
	questions        []domain.Question
	registry         *Registry
	collector        *Collector
	timer            *Timer
	activation       uint64
	closedActivation uint64
	startedAt        time.Time
	pausedAt         time.Time
	version          uint64

	last  atomic.Pointer[domain.Snapshot]
	subMu sync.Mutex
	subs  map[chan domain.Snapshot]struct{}
}

func NewSession(pub Publisher, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.TickInterval == 0 {
		opts.TickInterval = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if pub == nil {
		pub = PublisherFunc(func(Event) {})
	}

	s := &Session{
		pub:       pub,
		clock:     opts.Clock,
		logger:    opts.Logger,
		newID:     opts.NewID,
		opts:      opts,
		cmds:      make(chan func(), opts.QueueSize),
		done:      make(chan struct{}),
		id:        opts.NewID(),
		status:    domain.StatusWaiting,
		index:     -1,
		registry:  NewRegistry(opts.NewID),
		collector: NewCollector(),
		subs:      make(map[chan domain.Snapshot]struct{}),
	}
	s.timer = NewTimer(opts.Clock, opts.TickInterval, s.onTick, s.onExpire)
	s.commit()
	return s
}

// Run drains the command queue until ctx is cancelled. It must be called once.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.timer.Stop()
	s.logger.Info("session authority started", zap.String("session_id", s.id))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session authority stopped")
			return nil
		case cmd := <-s.cmds:
			cmd()
		}
	}
}

// exec runs fn on the authority and waits for its result.
func (s *Session) exec(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	cmd := func() { errc <- fn() }
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		select {
		case err := <-errc:
			return err
		default:
			return domain.ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues fn without waiting. Used by timer callbacks.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

func (s *Session) onTick(act uint64, remaining int) {
	s.post(func() {
		if act != s.activation || s.status != domain.StatusActive {
			return
		}
		s.pub.Publish(TimerTicked{QuestionID: s.questions[s.index].ID, Remaining: remaining})
		s.commit()
	})
}

func (s *Session) onExpire(act uint64) {
	s.post(func() { s.handleExpiry(act) })
}

func (s *Session) handleExpiry(act uint64) {
	if act == 0 || act != s.activation || act == s.closedActivation {
		return
	}
	if s.status != domain.StatusActive && s.status != domain.StatusPaused {
		return
	}
	s.closeQuestion()
	if s.opts.FinishOnLastExpiry && s.status == domain.StatusActive && s.index == len(s.questions)-1 {
		s.finishLocked()
	}
	s.commit()
}

// LoadQuestions replaces the question set. Only allowed while waiting.
func (s *Session) LoadQuestions(ctx context.Context, set domain.QuestionSet) error {
	return s.exec(ctx, func() error {
		if s.status != domain.StatusWaiting {
			return fmt.Errorf("load questions while %s: %w", s.status, domain.ErrInvalidState)
		}
		if err := domain.ValidateQuestions(set.Questions); err != nil {
			return err
		}
		qs := make([]domain.Question, len(set.Questions))
		copy(qs, set.Questions)
		s.questions = qs
		s.setID = set.ID
		s.logger.Info("questions loaded", zap.String("set_id", set.ID), zap.Int("count", len(qs)))
		s.pub.Publish(QuestionsLoaded{SetID: set.ID, Title: set.Title, Count: len(qs)})
		s.commit()
		return nil
	})
}

func (s *Session) Start(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.status != domain.StatusWaiting {
			return fmt.Errorf("start while %s: %w", s.status, domain.ErrInvalidState)
		}
		if len(s.questions) == 0 {
			return fmt.Errorf("start with no questions: %w", domain.ErrInvalidState)
		}
		s.status = domain.StatusActive
		s.index = 0
		s.startedAt = s.clock.Now()
		s.logger.Info("quiz started", zap.String("session_id", s.id), zap.Int("questions", len(s.questions)))
		s.pub.Publish(QuizStarted{SessionID: s.id, Total: len(s.questions)})
		s.openQuestion()
		s.commit()
		return nil
	})
}

func (s *Session) Pause(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.status != domain.StatusActive {
			return fmt.Errorf("pause while %s: %w", s.status, domain.ErrInvalidState)
		}
		remaining, expired := s.timer.Pause()
		s.collector.Close()
		if expired {
			s.closeQuestion()
			if s.opts.FinishOnLastExpiry && s.index == len(s.questions)-1 {
				// Expiry was due first, so the policy finishes instead of pausing.
				s.finishLocked()
				s.commit()
				return nil
			}
		}
		s.status = domain.StatusPaused
		s.pausedAt = s.clock.Now()
		s.pub.Publish(QuizPaused{QuestionID: s.questions[s.index].ID, Remaining: remaining})
		s.commit()
		return nil
	})
}

func (s *Session) Resume(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.status != domain.StatusPaused {
			return fmt.Errorf("resume while %s: %w", s.status, domain.ErrInvalidState)
		}
		remaining, running := s.timer.Resume()
		reopened := running && s.collector.Reopen(s.clock.Now(), s.timer.Deadline())
		s.status = domain.StatusActive
		q := s.questions[s.index]
		s.pub.Publish(QuizResumed{QuestionID: q.ID, Remaining: remaining})
		// An expired question stays closed; clients already got question_closed.
		if reopened {
			s.pub.Publish(QuestionOpened{Question: q.View(len(s.questions), remaining)})
		}
		s.commit()
		return nil
	})
}

func (s *Session) Next(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.status != domain.StatusActive {
			return fmt.Errorf("next while %s: %w", s.status, domain.ErrInvalidState)
		}
		if s.index >= len(s.questions)-1 {
			return fmt.Errorf("next at last question: %w", domain.ErrInvalidState)
		}
		s.timer.Stop()
		s.closeQuestion()
		s.index++
		s.openQuestion()
		s.commit()
		return nil
	})
}

// Finish ends the quiz. Only allowed from the last question.
func (s *Session) Finish(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.status != domain.StatusActive {
			return fmt.Errorf("finish while %s: %w", s.status, domain.ErrInvalidState)
		}
		if s.index != len(s.questions)-1 {
			return fmt.Errorf("finish before last question: %w", domain.ErrInvalidState)
		}
		s.finishLocked()
		s.commit()
		return nil
	})
}

// Reset returns to waiting with a new session id. Players are kept with zero scores.
func (s *Session) Reset(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.status == domain.StatusWaiting {
			return fmt.Errorf("reset while waiting: %w", domain.ErrInvalidState)
		}
		s.timer.Stop()
		s.activation = 0
		s.closedActivation = 0
		s.collector.Reset()
		s.registry.ResetScores()
		s.index = -1
		s.status = domain.StatusWaiting
		s.startedAt = time.Time{}
		s.pausedAt = time.Time{}
		s.id = s.newID()
		s.logger.Info("quiz reset", zap.String("session_id", s.id))
		s.pub.Publish(QuizReset{SessionID: s.id})
		s.pub.Publish(LeaderboardChanged{Leaderboard: s.registry.Leaderboard()})
		s.commit()
		return nil
	})
}

// Join registers a new player for connID. Allowed in any status.
func (s *Session) Join(ctx context.Context, connID, name string) (domain.PlayerView, error) {
	var view domain.PlayerView
	err := s.exec(ctx, func() error {
		p, err := s.registry.Register(name, s.clock.Now())
		if err != nil {
			return err
		}
		view = playerView(p)
		s.logger.Info("player joined", zap.String("player_id", p.ID), zap.String("name", p.Name))
		s.pub.Publish(PlayerJoined{ConnID: connID, Player: view, Players: s.registry.Roster()})
		s.commit()
		return nil
	})
	return view, err
}

// Rejoin binds connID to an existing player and marks them connected.
func (s *Session) Rejoin(ctx context.Context, connID, playerID string) (domain.PlayerView, error) {
	var view domain.PlayerView
	err := s.exec(ctx, func() error {
		p, _, err := s.registry.MarkReconnected(playerID)
		if err != nil {
			return err
		}
		view = playerView(p)
		s.logger.Info("player rejoined", zap.String("player_id", p.ID))
		s.pub.Publish(PlayerJoined{ConnID: connID, Player: view, Players: s.registry.Roster(), Rejoined: true})
		s.commit()
		return nil
	})
	return view, err
}

// Disconnect marks the player offline. Scores and answers are kept.
func (s *Session) Disconnect(ctx context.Context, playerID string) error {
	return s.exec(ctx, func() error {
		_, changed, err := s.registry.MarkDisconnected(playerID)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		s.logger.Info("player disconnected", zap.String("player_id", playerID))
		s.pub.Publish(PlayerLeft{PlayerID: playerID, Players: s.registry.Roster()})
		s.commit()
		return nil
	})
}

// Submit records an answer for the live question. The submission time is
// taken when the call is made, before the command is queued.
func (s *Session) Submit(ctx context.Context, playerID, questionID, option string) (domain.AnswerFeedback, error) {
	at := s.clock.Now()
	var fb domain.AnswerFeedback
	err := s.exec(ctx, func() error {
		p, err := s.registry.Get(playerID)
		if err != nil {
			return err
		}
		if s.status != domain.StatusActive {
			return fmt.Errorf("submit while %s: %w", s.status, domain.ErrNotAccepting)
		}
		q := s.questions[s.index]
		fb, err = s.collector.Evaluate(p, q, domain.AnswerSubmission{
			PlayerID:    playerID,
			QuestionID:  questionID,
			Option:      option,
			SubmittedAt: at,
		})
		if err != nil {
			return err
		}
		if _, err := s.registry.Award(p.ID, q.ID, fb.Awarded); err != nil {
			return err
		}
		s.collector.Recorded()

		s.pub.Publish(AnswerAccepted{PlayerID: p.ID, Feedback: fb})
		s.pub.Publish(AnswerProgress{
			QuestionID: q.ID,
			Answered:   s.collector.Answered(),
			Connected:  s.registry.ConnectedCount(),
		})
		if fb.Awarded > 0 {
			s.pub.Publish(LeaderboardChanged{Leaderboard: s.registry.Leaderboard()})
		}
		s.commit()
		return nil
	})
	return fb, err
}

// Resync publishes the current snapshot to a single connection, ordered with
// every other event.
func (s *Session) Resync(ctx context.Context, connID string) error {
	return s.exec(ctx, func() error {
		s.pub.Publish(StateSynced{ConnID: connID, Snapshot: s.snapshot()})
		return nil
	})
}

// Snapshot reads the current state through the authority.
func (s *Session) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.exec(ctx, func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// LastSnapshot returns the most recently committed snapshot without a round trip.
func (s *Session) LastSnapshot() domain.Snapshot {
	return *s.last.Load()
}

// Subscribe returns a channel that always holds the latest committed snapshot.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	ch <- *s.last.Load()
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Session) openQuestion() {
	q := s.questions[s.index]
	now := s.clock.Now()
	s.activation = s.timer.Start(time.Duration(q.Duration) * time.Second)
	s.collector.Open(q.ID, now, s.timer.Deadline())
	s.logger.Debug("question opened", zap.String("question_id", q.ID), zap.Int("position", q.Position))
	s.pub.Publish(QuestionOpened{Question: q.View(len(s.questions), q.Duration)})
}

// closeQuestion shuts the current window for good, at most once per activation.
func (s *Session) closeQuestion() {
	if s.index < 0 || s.index >= len(s.questions) || s.closedActivation == s.activation {
		return
	}
	s.closedActivation = s.activation
	s.collector.Expire()
	q := s.questions[s.index]
	s.pub.Publish(QuestionClosed{QuestionID: q.ID, CorrectAnswer: q.CorrectOption})
}

func (s *Session) finishLocked() {
	s.timer.Stop()
	s.closeQuestion()
	s.activation = 0
	s.status = domain.StatusFinished
	lb := s.registry.Leaderboard()
	s.logger.Info("quiz finished", zap.String("session_id", s.id), zap.Int("players", len(lb)))
	s.pub.Publish(QuizFinished{Leaderboard: lb})
}

func (s *Session) snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:        s.id,
		Version:          s.version,
		Status:           s.status,
		CurrentQuestion:  s.index,
		TotalQuestions:   len(s.questions),
		AnswerWindowOpen: s.collector.IsOpen(),
		Players:          s.registry.Roster(),
		Leaderboard:      s.registry.Leaderboard(),
		UpdatedAt:        s.clock.Now(),
	}
	if (s.status == domain.StatusActive || s.status == domain.StatusPaused) && s.index >= 0 {
		snap.Remaining = s.timer.Remaining()
		view := s.questions[s.index].View(len(s.questions), snap.Remaining)
		snap.Question = &view
	}
	return snap
}

// commit bumps the version and hands the snapshot to subscribers, dropping
// any value a slow subscriber has not read yet.
func (s *Session) commit() {
	s.version++
	snap := s.snapshot()
	s.last.Store(&snap)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func playerView(p *domain.Player) domain.PlayerView {
	return domain.PlayerView{ID: p.ID, Name: p.Name, Score: p.Score, Connected: p.Connected}
}
