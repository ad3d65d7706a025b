package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

const (
	snapshotKey     = "quiz:session:current"
	snapshotChannel = "quiz:session:updates"
)

// SnapshotStore mirrors the latest committed session snapshot into Redis so
// out-of-process readers (the status command, other tooling) can see it.
// Every save is also announced on a pub/sub channel.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, snapshotKey, body, s.ttl)
	pipe.Publish(ctx, snapshotChannel, body)
	_, err = pipe.Exec(ctx)
	return err
}

// Latest reads the mirrored snapshot. It returns domain.ErrNotFound when no
// live session has written one within the TTL.
func (s *SnapshotStore) Latest(ctx context.Context) (domain.Snapshot, error) {
	body, err := s.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, fmt.Errorf("session snapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Snapshot{}, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode session snapshot: %w", err)
	}
	return snap, nil
}

// Watch calls handler for every snapshot announced until ctx is done.
func (s *SnapshotStore) Watch(ctx context.Context, handler func(domain.Snapshot)) error {
	pubsub := s.client.Subscribe(ctx, snapshotChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var snap domain.Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				continue
			}
			handler(snap)
		}
	}
}
