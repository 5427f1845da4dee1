package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const summaryTTL = 24 * time.Hour

// Store caches rolling summaries in redis so rehydration of a busy
// conversation avoids a database read. The database stays authoritative.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func summaryKey(conversationID string) string {
	return "chat:summary:" + conversationID
}

func (s *Store) GetSummary(ctx context.Context, conversationID string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, summaryKey(conversationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) SetSummary(ctx context.Context, conversationID, summary string) error {
	return s.rdb.Set(ctx, summaryKey(conversationID), summary, summaryTTL).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
