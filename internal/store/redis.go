package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/gts-market/internal/model"
)

// RedisStore implements Backend on Redis. Each record kind lives in one
// hash keyed by id, holding the JSON record. Multi-key writes run in a
// MULTI/EXEC pipeline so they apply together or not at all.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. Keys are namespaced by prefix.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gts"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Init(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

// Save is a no-op; durability follows the server's persistence settings.
func (s *RedisStore) Save(_ context.Context) error { return nil }

func (s *RedisStore) AddListing(ctx context.Context, rec model.ListingRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode listing %s: %w", rec.ID, err)
	}
	ok, err := s.rdb.HSetNX(ctx, s.listingsKey(), rec.ID.String(), data).Result()
	if err != nil {
		return fmt.Errorf("add listing %s: %w", rec.ID, err)
	}
	if !ok {
		return fmt.Errorf("listing %s already exists", rec.ID)
	}
	return nil
}

func (s *RedisStore) UpdateListing(ctx context.Context, rec model.ListingRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode listing %s: %w", rec.ID, err)
	}
	key := s.listingsKey()
	field := rec.ID.String()

	// Optimistic check-and-set so an update never resurrects a removed listing.
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, key, field).Result()
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, data)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) RemoveListing(ctx context.Context, id uuid.UUID) error {
	return s.hdel(ctx, s.listingsKey(), "listing", id)
}

func (s *RedisStore) Listings(ctx context.Context) ([]model.ListingRecord, error) {
	vals, err := s.rdb.HVals(ctx, s.listingsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	out := make([]model.ListingRecord, 0, len(vals))
	for _, v := range vals {
		var rec model.ListingRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) AddLog(ctx context.Context, l model.Log) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode log %s: %w", l.ID, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.logsKey(), l.ID.String(), data)
		pipe.SAdd(ctx, s.ownerLogsKey(l.Owner), l.ID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("add log %s: %w", l.ID, err)
	}
	return nil
}

func (s *RedisStore) RemoveLog(ctx context.Context, id uuid.UUID) error {
	data, err := s.rdb.HGet(ctx, s.logsKey(), id.String()).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("remove log %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("remove log %s: %w", id, err)
	}
	var l model.Log
	if err := json.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("decode log %s: %w", id, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.logsKey(), id.String())
		pipe.SRem(ctx, s.ownerLogsKey(l.Owner), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove log %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Logs(ctx context.Context, owner uuid.UUID) ([]model.Log, error) {
	ids, err := s.rdb.SMembers(ctx, s.ownerLogsKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("logs for %s: %w", owner, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vals, err := s.rdb.HMGet(ctx, s.logsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("logs for %s: %w", owner, err)
	}
	var out []model.Log
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var l model.Log
		if err := json.Unmarshal([]byte(str), &l); err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) AddHeldEntry(ctx context.Context, rec model.HeldEntryRecord) error {
	return s.hsetJSON(ctx, s.heldEntriesKey(), "held entry", rec.ID, rec)
}

func (s *RedisStore) RemoveHeldEntry(ctx context.Context, id uuid.UUID) error {
	return s.hdel(ctx, s.heldEntriesKey(), "held entry", id)
}

func (s *RedisStore) HeldEntries(ctx context.Context) ([]model.HeldEntryRecord, error) {
	vals, err := s.rdb.HVals(ctx, s.heldEntriesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list held entries: %w", err)
	}
	out := make([]model.HeldEntryRecord, 0, len(vals))
	for _, v := range vals {
		var rec model.HeldEntryRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode held entry: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) AddHeldPrice(ctx context.Context, rec model.HeldPriceRecord) error {
	return s.hsetJSON(ctx, s.heldPricesKey(), "held price", rec.ID, rec)
}

func (s *RedisStore) RemoveHeldPrice(ctx context.Context, id uuid.UUID) error {
	return s.hdel(ctx, s.heldPricesKey(), "held price", id)
}

func (s *RedisStore) HeldPrices(ctx context.Context) ([]model.HeldPriceRecord, error) {
	vals, err := s.rdb.HVals(ctx, s.heldPricesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list held prices: %w", err)
	}
	out := make([]model.HeldPriceRecord, 0, len(vals))
	for _, v := range vals {
		var rec model.HeldPriceRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode held price: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) AddIgnorer(ctx context.Context, id uuid.UUID) error {
	if err := s.rdb.SAdd(ctx, s.ignorersKey(), id.String()).Err(); err != nil {
		return fmt.Errorf("add ignorer %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) RemoveIgnorer(ctx context.Context, id uuid.UUID) error {
	if err := s.rdb.SRem(ctx, s.ignorersKey(), id.String()).Err(); err != nil {
		return fmt.Errorf("remove ignorer %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Ignorers(ctx context.Context) ([]uuid.UUID, error) {
	members, err := s.rdb.SMembers(ctx, s.ignorersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list ignorers: %w", err)
	}
	out := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("ignorer %q: %w", m, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *RedisStore) Purge(ctx context.Context, logs bool) error {
	keys := []string{s.listingsKey()}
	if logs {
		keys = append(keys, s.logsKey())
		iter := s.rdb.Scan(ctx, 0, s.prefix+":logs:owner:*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("purge scan: %w", err)
		}
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	return nil
}

// --- Helpers ---

func (s *RedisStore) hsetJSON(ctx context.Context, key, what string, id uuid.UUID, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", what, id, err)
	}
	if err := s.rdb.HSet(ctx, key, id.String(), data).Err(); err != nil {
		return fmt.Errorf("add %s %s: %w", what, id, err)
	}
	return nil
}

func (s *RedisStore) hdel(ctx context.Context, key, what string, id uuid.UUID) error {
	n, err := s.rdb.HDel(ctx, key, id.String()).Result()
	if err != nil {
		return fmt.Errorf("remove %s %s: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("remove %s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

func (s *RedisStore) listingsKey() string    { return s.prefix + ":listings" }
func (s *RedisStore) logsKey() string        { return s.prefix + ":logs" }
func (s *RedisStore) heldEntriesKey() string { return s.prefix + ":held:entries" }
func (s *RedisStore) heldPricesKey() string  { return s.prefix + ":held:prices" }
func (s *RedisStore) ignorersKey() string    { return s.prefix + ":ignorers" }

func (s *RedisStore) ownerLogsKey(owner uuid.UUID) string {
	return fmt.Sprintf("%s:logs:owner:%s", s.prefix, owner)
}
