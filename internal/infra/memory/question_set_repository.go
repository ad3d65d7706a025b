package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// QuestionSetLoader fetches question sets from a backing store (e.g., Postgres).
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// QuestionSetRepository caches question sets with TTL to avoid repeated DB hits.
type QuestionSetRepository struct {
	loader QuestionSetLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionSetRepository(loader QuestionSetLoader, ttl time.Duration) *QuestionSetRepository {
	return &QuestionSetRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (r *QuestionSetRepository) GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := r.lookup(setID); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(setID, func() (interface{}, error) {
		if set, ok := r.lookup(setID); ok {
			return set, nil
		}

		set, err := r.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		r.mu.Lock()
		r.cache[setID] = cachedSet{
			set:       set,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

// Invalidate drops a cached set so the next read goes to the loader.
func (r *QuestionSetRepository) Invalidate(_ context.Context, setID string) error {
	r.mu.Lock()
	delete(r.cache, setID)
	r.mu.Unlock()
	return nil
}

func (r *QuestionSetRepository) lookup(setID string) (domain.QuestionSet, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[setID]; ok && entry.expiresAt.After(now) {
		return entry.set, true
	}
	return domain.QuestionSet{}, false
}

func (r *QuestionSetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionSetLoader is a loader backed by an in-memory map. It doubles as
// the question bank when no Postgres is configured.
type StaticQuestionSetLoader struct {
	mu      sync.RWMutex
	sets    map[string]domain.QuestionSet
	updated map[string]time.Time
}

func NewStaticQuestionSetLoader(sets ...domain.QuestionSet) *StaticQuestionSetLoader {
	l := &StaticQuestionSetLoader{
		sets:    make(map[string]domain.QuestionSet, len(sets)),
		updated: make(map[string]time.Time, len(sets)),
	}
	now := time.Now()
	for _, set := range sets {
		l.sets[set.ID] = set
		l.updated[set.ID] = now
	}
	return l
}

// SaveQuestionSet stores or replaces a set.
func (l *StaticQuestionSetLoader) SaveQuestionSet(_ context.Context, set domain.QuestionSet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sets[set.ID] = set
	l.updated[set.ID] = time.Now()
	return nil
}

// ListQuestionSets returns the stored sets, most recently updated first.
func (l *StaticQuestionSetLoader) ListQuestionSets(context.Context) ([]domain.QuestionSetSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.QuestionSetSummary, 0, len(l.sets))
	for id, set := range l.sets {
		out = append(out, domain.QuestionSetSummary{ID: id, Title: set.Title, Count: len(set.Questions), UpdatedAt: l.updated[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (l *StaticQuestionSetLoader) LoadQuestionSet(_ context.Context, setID string) (domain.QuestionSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if set, ok := l.sets[setID]; ok {
		return set, nil
	}
	return domain.QuestionSet{}, fmt.Errorf("question set %q: %w", setID, domain.ErrNotFound)
}

// SampleQuestionSet is the built-in demo set, the same rows the spreadsheet template ships with.
func SampleQuestionSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:    "sample",
		Title: "Family Quiz",
		Questions: []domain.Question{
			{
				ID:            "Q1",
				Prompt:        "Quelle est la capitale de la France ?",
				Options:       domain.NewOptions("Berlin", "Madrid", "Paris", "Rome"),
				CorrectOption: "C",
				Duration:      30,
				Points:        10,
				Position:      0,
			},
			{
				ID:            "Q2",
				Prompt:        "Combien font 3 x 4 ?",
				Options:       domain.NewOptions("10", "12", "14", "16"),
				CorrectOption: "B",
				Duration:      20,
				Points:        5,
				Position:      1,
			},
			{
				ID:            "Q3",
				Prompt:        "Qui a peint la Joconde ?",
				Options:       domain.NewOptions("Picasso", "Léonard de Vinci", "Van Gogh", "Monet"),
				CorrectOption: "B",
				Duration:      25,
				Points:        15,
				Position:      2,
			},
		},
	}
}
