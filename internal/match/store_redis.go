package match

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store mirrors live match snapshots into redis. The in-process match is
// authoritative; the mirror exists for crash visibility and the admin API.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) keyMatch(id string) string { return "arena:match:" + strings.TrimSpace(id) }
func (s *Store) keyIndex() string          { return "arena:match:index" }

func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.keyMatch(snap.ID), raw, s.ttl).Err(); err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, s.keyIndex(), snap.ID).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, s.keyIndex(), s.ttl).Err()
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	if err := s.rdb.SRem(ctx, s.keyIndex(), id).Err(); err != nil {
		return err
	}
	return s.rdb.Del(ctx, s.keyMatch(id)).Err()
}

// ListActive returns mirrored snapshots, pruning index entries whose match
// key already expired.
func (s *Store) ListActive(ctx context.Context) ([]*Snapshot, error) {
	if s == nil || s.rdb == nil {
		return nil, nil
	}
	ids, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		raw, gerr := s.rdb.Get(ctx, s.keyMatch(id)).Bytes()
		if gerr == redis.Nil {
			_ = s.rdb.SRem(ctx, s.keyIndex(), id).Err()
			continue
		}
		if gerr != nil {
			return nil, gerr
		}
		var snap Snapshot
		if jerr := json.Unmarshal(raw, &snap); jerr != nil {
			continue
		}
		out = append(out, &snap)
	}
	return out, nil
}
