package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store mirrors queue entries into Redis under TTL keys so operators can
// enumerate the waiting set and entries cannot outlive a crashed process.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) keyEntry(playerID string) string { return "arena:queue:" + strings.TrimSpace(playerID) }
func (s *Store) keyIndex() string                { return "arena:queue:index" }

func (s *Store) SaveEntry(ctx context.Context, e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.keyEntry(e.PlayerID), raw, s.ttl).Err(); err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, s.keyIndex(), e.PlayerID).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, s.keyIndex(), s.ttl).Err()
}

func (s *Store) RemoveEntry(ctx context.Context, playerID string) error {
	if err := s.rdb.Del(ctx, s.keyEntry(playerID)).Err(); err != nil {
		return err
	}
	return s.rdb.SRem(ctx, s.keyIndex(), playerID).Err()
}

// ListEntries returns every mirrored entry, skipping ids whose value already
// expired.
func (s *Store) ListEntries(ctx context.Context) ([]*Entry, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	var out []*Entry
	for _, id := range ids {
		raw, err := s.rdb.Get(ctx, s.keyEntry(id)).Bytes()
		if err == redis.Nil {
			_ = s.rdb.SRem(ctx, s.keyIndex(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		var e Entry
		if jerr := json.Unmarshal(raw, &e); jerr != nil {
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}
