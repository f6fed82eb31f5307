package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kiranshivaraju/labelscan/internal/cache"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// maxRemoveRetries bounds optimistic-lock retries in RemoveByID.
const maxRemoveRetries = 5

// RedisStore keeps each owner's history as a JSON list under
// cache.HistoryKey(owner).
type RedisStore struct {
	client *redis.Client
	limit  int
}

func NewRedisStore(client *redis.Client, limit int) *RedisStore {
	return &RedisStore{client: client, limit: normalizeLimit(limit)}
}

func (s *RedisStore) List(ctx context.Context, owner string) ([]models.ScanResult, error) {
	raw, err := s.client.LRange(ctx, cache.HistoryKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}

	out := make([]models.ScanResult, 0, len(raw))
	for _, item := range raw {
		var r models.ScanResult
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("decoding history entry: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Append prepends result and trims the list in one MULTI/EXEC so concurrent
// writers cannot push it past the limit.
func (s *RedisStore) Append(ctx context.Context, owner string, result models.ScanResult) error {
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	key := cache.HistoryKey(owner)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, int64(s.limit-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

// RemoveByID deletes the entry with id under WATCH, retrying when another
// writer changes the list in between.
func (s *RedisStore) RemoveByID(ctx context.Context, owner string, id uuid.UUID) error {
	key := cache.HistoryKey(owner)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}

		target := ""
		for _, item := range raw {
			var r models.ScanResult
			if err := json.Unmarshal([]byte(item), &r); err != nil {
				continue
			}
			if r.ID == id {
				target = item
				break
			}
		}
		if target == "" {
			return ErrNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, key, 1, target)
			return nil
		})
		return err
	}

	for range maxRemoveRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("removing history entry: %w", err)
		}
		return nil
	}
	return fmt.Errorf("removing history entry: %w", redis.TxFailedErr)
}

func (s *RedisStore) Clear(ctx context.Context, owner string) error {
	if err := s.client.Del(ctx, cache.HistoryKey(owner)).Err(); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
