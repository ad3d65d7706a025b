package domain

import "time"

// Status is the lifecycle state of the quiz session.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// OptionLabels are the four answer labels, in display order.
var OptionLabels = [4]string{"A", "B", "C", "D"}

// Option is one labeled answer choice.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is a validated multiple choice question.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"question"`
	Options       []Option `json:"options"`
	CorrectOption string   `json:"correct_answer"`
	Points        int      `json:"points"`
	Duration      int      `json:"duration"` // seconds
	Position      int      `json:"position"`
}

// QuestionSet is an ordered list of questions handed to the session by a loader.
type QuestionSet struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// QuestionView is what clients see while a question is live; the correct option is omitted.
type QuestionView struct {
	ID        string   `json:"id"`
	Prompt    string   `json:"question"`
	Options   []Option `json:"options"`
	Points    int      `json:"points"`
	Duration  int      `json:"duration"`
	Remaining int      `json:"remaining"`
	Number    int      `json:"question_number"`
	Total     int      `json:"total_questions"`
}

// View strips the answer from q.
func (q Question) View(total, remaining int) QuestionView {
	opts := make([]Option, len(q.Options))
	copy(opts, q.Options)
	return QuestionView{
		ID:        q.ID,
		Prompt:    q.Prompt,
		Options:   opts,
		Points:    q.Points,
		Duration:  q.Duration,
		Remaining: remaining,
		Number:    q.Position + 1,
		Total:     total,
	}
}

// Player is a registered participant. Players are never removed, only marked disconnected.
type Player struct {
	ID        string
	Name      string
	Score     int
	Connected bool
	Answered  map[string]struct{}
	JoinedAt  time.Time
	Seq       int // registration order
}

// PlayerView is the roster entry sent to clients.
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

// LeaderboardEntry is one ranked row; equal scores keep registration order.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Seq      int    `json:"-"`
}

// AnswerSubmission is a single answer as received by the session.
type AnswerSubmission struct {
	PlayerID    string
	QuestionID  string
	Option      string
	SubmittedAt time.Time
}

// AnswerFeedback is returned to the submitting player only.
type AnswerFeedback struct {
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer"`
	Score         int    `json:"score"`
	Awarded       int    `json:"awarded"`
}

// Snapshot is the full resync state for newly connecting or reloading clients.
type Snapshot struct {
	SessionID        string             `json:"session_id"`
	Version          uint64             `json:"version"`
	Status           Status             `json:"status"`
	CurrentQuestion  int                `json:"current_question"`
	TotalQuestions   int                `json:"total_questions"`
	Question         *QuestionView      `json:"question,omitempty"`
	Remaining        int                `json:"remaining"`
	AnswerWindowOpen bool               `json:"answer_window_open"`
	Players          []PlayerView       `json:"players"`
	Leaderboard      []LeaderboardEntry `json:"leaderboard"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// QuestionSetSummary is one row of a question bank listing.
type QuestionSetSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}
