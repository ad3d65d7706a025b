package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestQuestionSetRepositoryCaches(t *testing.T) {
	loader := &countingLoader{QuestionSetLoader: NewStaticQuestionSetLoader(SampleQuestionSet())}
	repo := NewQuestionSetRepository(loader, time.Minute)

	if _, err := repo.GetQuestionSet(context.Background(), "sample"); err != nil {
		t.Fatalf("get set: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := repo.GetQuestionSet(context.Background(), "sample"); err != nil {
		t.Fatalf("get set 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}

	if err := repo.Invalidate(context.Background(), "sample"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetQuestionSet(context.Background(), "sample")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionSetRepositoryExpires(t *testing.T) {
	loader := &countingLoader{QuestionSetLoader: NewStaticQuestionSetLoader(SampleQuestionSet())}
	repo := NewQuestionSetRepository(loader, time.Minute)
	now := time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuestionSet(context.Background(), "sample")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuestionSet(context.Background(), "sample")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionSetRepositoryCollapsesConcurrentMisses(t *testing.T) {
	gate := make(chan struct{})
	loader := &countingLoader{QuestionSetLoader: NewStaticQuestionSetLoader(SampleQuestionSet()), gate: gate}
	repo := NewQuestionSetRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuestionSet(context.Background(), "sample"); err != nil {
				t.Errorf("get set: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected a single load, got %d", loader.calls.Load())
	}
}

func TestStaticLoaderUnknownSet(t *testing.T) {
	_, err := NewStaticQuestionSetLoader().LoadQuestionSet(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStaticLoaderServesSavedSets(t *testing.T) {
	ctx := context.Background()
	bank := NewStaticQuestionSetLoader(SampleQuestionSet())
	upload := domain.QuestionSet{ID: "upload-1", Title: "Uploaded", Questions: SampleQuestionSet().Questions[:2]}
	if err := bank.SaveQuestionSet(ctx, upload); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := bank.LoadQuestionSet(ctx, "upload-1")
	if err != nil || len(got.Questions) != 2 {
		t.Fatalf("expected saved set back, got %+v (%v)", got, err)
	}
	sets, err := bank.ListQuestionSets(ctx)
	if err != nil || len(sets) != 2 {
		t.Fatalf("expected two sets listed, got %+v (%v)", sets, err)
	}
	counts := map[string]int{}
	for _, s := range sets {
		counts[s.ID] = s.Count
	}
	if counts["upload-1"] != 2 || counts["sample"] != 3 {
		t.Fatalf("unexpected listing %+v", sets)
	}
}

func TestSavedSetIsReloadedAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	bank := NewStaticQuestionSetLoader(SampleQuestionSet())
	repo := NewQuestionSetRepository(bank, time.Minute)
	if _, err := repo.GetQuestionSet(ctx, "sample"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	changed := SampleQuestionSet()
	changed.Title = "Family Quiz v2"
	if err := bank.SaveQuestionSet(ctx, changed); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, _ := repo.GetQuestionSet(ctx, "sample"); got.Title != "Family Quiz" {
		t.Fatalf("expected cached copy before invalidate, got %q", got.Title)
	}
	if err := repo.Invalidate(ctx, "sample"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if got, _ := repo.GetQuestionSet(ctx, "sample"); got.Title != "Family Quiz v2" {
		t.Fatalf("expected fresh copy after invalidate, got %q", got.Title)
	}
}

func TestSampleQuestionSetIsValid(t *testing.T) {
	if err := domain.ValidateQuestions(SampleQuestionSet().Questions); err != nil {
		t.Fatalf("sample set invalid: %v", err)
	}
}

func TestSnapshotStoreKeepsNewest(t *testing.T) {
	store := NewSnapshotStore()
	if _, ok := store.Latest(); ok {
		t.Fatalf("expected empty store")
	}
	ctx := context.Background()
	_ = store.SaveSnapshot(ctx, domain.Snapshot{SessionID: "s1", Version: 5})
	_ = store.SaveSnapshot(ctx, domain.Snapshot{SessionID: "s1", Version: 3})
	if snap, _ := store.Latest(); snap.Version != 5 {
		t.Fatalf("older snapshot overwrote newer: %d", snap.Version)
	}
	_ = store.SaveSnapshot(ctx, domain.Snapshot{SessionID: "s2", Version: 1})
	if snap, _ := store.Latest(); snap.SessionID != "s2" {
		t.Fatalf("expected new session snapshot, got %s", snap.SessionID)
	}
}

type countingLoader struct {
	QuestionSetLoader
	calls atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.QuestionSetLoader.LoadQuestionSet(ctx, setID)
}
