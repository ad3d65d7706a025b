package app

import (
	"fmt"
	"strings"
	"time"

	"live-quiz-service/internal/domain"
)

// Registry tracks every player that joined during the process lifetime.
// It is owned by the session authority and is not safe for concurrent use.
type Registry struct {
	players map[string]*domain.Player
	order   []*domain.Player
	newID   func() string
	seq     int
}

func NewRegistry(newID func() string) *Registry {
	return &Registry{
		players: make(map[string]*domain.Player),
		newID:   newID,
	}
}

// Register adds a new connected player with a zero score. Duplicate names are
// allowed; players are told apart by id.
func (r *Registry) Register(name string, now time.Time) (*domain.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "is empty"}
	}
	r.seq++
	p := &domain.Player{
		ID:        r.newID(),
		Name:      name,
		Connected: true,
		Answered:  make(map[string]struct{}),
		JoinedAt:  now,
		Seq:       r.seq,
	}
	r.players[p.ID] = p
	r.order = append(r.order, p)
	return p, nil
}

func (r *Registry) Get(id string) (*domain.Player, error) {
	p, ok := r.players[id]
	if !ok {
		return nil, fmt.Errorf("player %q: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// MarkDisconnected flips liveness only. changed is false when the player was already offline.
func (r *Registry) MarkDisconnected(id string) (p *domain.Player, changed bool, err error) {
	p, err = r.Get(id)
	if err != nil {
		return nil, false, err
	}
	if !p.Connected {
		return p, false, nil
	}
	p.Connected = false
	return p, true, nil
}

// MarkReconnected flips liveness only.
func (r *Registry) MarkReconnected(id string) (p *domain.Player, changed bool, err error) {
	p, err = r.Get(id)
	if err != nil {
		return nil, false, err
	}
	if p.Connected {
		return p, false, nil
	}
	p.Connected = true
	return p, true, nil
}

// Award records that the player answered questionID and adds points.
func (r *Registry) Award(id, questionID string, points int) (int, error) {
	p, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	if points < 0 {
		points = 0
	}
	p.Answered[questionID] = struct{}{}
	p.Score += points
	return p.Score, nil
}

// ResetScores starts a new session run for every known player.
func (r *Registry) ResetScores() {
	for _, p := range r.order {
		p.Score = 0
		p.Answered = make(map[string]struct{})
	}
}

func (r *Registry) Roster() []domain.PlayerView {
	out := make([]domain.PlayerView, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, domain.PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Score:     p.Score,
			Connected: p.Connected,
		})
	}
	return out
}

// Leaderboard is the roster ordered by score, ties by registration order.
func (r *Registry) Leaderboard() []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(r.order))
	for _, p := range r.order {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
			Seq:      p.Seq,
		})
	}
	domain.SortLeaderboard(entries)
	return entries
}

func (r *Registry) ConnectedCount() int {
	n := 0
	for _, p := range r.order {
		if p.Connected {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int { return len(r.order) }
