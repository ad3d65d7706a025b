package app

import "live-quiz-service/internal/domain"

// Event is a domain event emitted by the session authority, in commit order.
type Event interface {
	eventName() string
}

// Publisher receives events from the authority. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }

type QuestionsLoaded struct {
	SetID string
	Title string
	Count int
}

// PlayerJoined is emitted on registration and on rejoin. ConnID is the
// connection that issued the command.
type PlayerJoined struct {
	ConnID   string
	Player   domain.PlayerView
	Players  []domain.PlayerView
	Rejoined bool
}

type PlayerLeft struct {
	PlayerID string
	Players  []domain.PlayerView
}

type QuizStarted struct {
	SessionID string
	Total     int
}

type QuestionOpened struct {
	Question domain.QuestionView
}

type TimerTicked struct {
	QuestionID string
	Remaining  int
}

type QuestionClosed struct {
	QuestionID    string
	CorrectAnswer string
}

type QuizPaused struct {
	QuestionID string
	Remaining  int
}

type QuizResumed struct {
	QuestionID string
	Remaining  int
}

// AnswerAccepted carries feedback for the submitting player only.
type AnswerAccepted struct {
	PlayerID string
	Feedback domain.AnswerFeedback
}

// AnswerProgress is for the host display.
type AnswerProgress struct {
	QuestionID string
	Answered   int
	Connected  int
}

type LeaderboardChanged struct {
	Leaderboard []domain.LeaderboardEntry
}

type QuizFinished struct {
	Leaderboard []domain.LeaderboardEntry
}

type QuizReset struct {
	SessionID string
}

// StateSynced answers a resync request from a single connection.
type StateSynced struct {
	ConnID   string
	Snapshot domain.Snapshot
}

func (QuestionsLoaded) eventName() string    { return "questions_loaded" }
func (PlayerJoined) eventName() string       { return "player_joined" }
func (PlayerLeft) eventName() string         { return "player_left" }
func (QuizStarted) eventName() string        { return "quiz_started" }
func (QuestionOpened) eventName() string     { return "question" }
func (TimerTicked) eventName() string        { return "timer_tick" }
func (QuestionClosed) eventName() string     { return "question_closed" }
func (QuizPaused) eventName() string         { return "quiz_paused" }
func (QuizResumed) eventName() string        { return "quiz_resumed" }
func (AnswerAccepted) eventName() string     { return "answer_feedback" }
func (AnswerProgress) eventName() string     { return "answer_progress" }
func (LeaderboardChanged) eventName() string { return "leaderboard" }
func (QuizFinished) eventName() string       { return "quiz_finished" }
func (QuizReset) eventName() string          { return "quiz_reset" }
func (StateSynced) eventName() string        { return "session_state" }

// EventName returns the wire message name of ev.
func EventName(ev Event) string { return ev.eventName() }
