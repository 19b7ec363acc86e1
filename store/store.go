package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mailsprint/config"
)

// ErrNotFound is returned when an entity id does not exist for the given kind.
var ErrNotFound = errors.New("store: entity not found")

// Store is a generic entity store over Redis. Layout:
//
//	{kind}:{id}                   JSON record
//	{kind}:all                    set of all ids
//	{kind}:by_user:{user_id}      set of ids owned by a user
//	{kind}:by_{field}:{value}     set of ids indexed by a field value
type Store struct {
	client *redis.Client
	logger *logrus.Logger
}

func New(cfg config.RedisConfig, logger *logrus.Logger) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		logger: logger,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func entityKey(kind, id string) string      { return kind + ":" + id }
func allKey(kind string) string             { return kind + ":all" }
func userKey(kind, userID string) string    { return kind + ":by_user:" + userID }
func fieldKey(kind, field, v string) string { return kind + ":by_" + field + ":" + v }
func claimKey(name string) string           { return "claims:" + name }

// Create assigns id and timestamps, persists the entity and registers it in
// the all-ids set (and the owner set when UserID is present).
func (s *Store) Create(ctx context.Context, kind string, e Entity) error {
	meta := e.Meta()
	meta.ID = uuid.New().String()
	now := time.Now().UTC()
	meta.CreatedAt = now
	meta.UpdatedAt = now

	buf, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, entityKey(kind, meta.ID), buf, 0)
	pipe.SAdd(ctx, allKey(kind), meta.ID)
	if meta.UserID != "" {
		pipe.SAdd(ctx, userKey(kind, meta.UserID), meta.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create %s: %w", kind, err)
	}
	return nil
}

// Get loads one entity into dest.
func (s *Store) Get(ctx context.Context, kind, id string, dest Entity) error {
	raw, err := s.client.Get(ctx, entityKey(kind, id)).Result()
	if err == redis.Nil {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("get %s/%s: %w", kind, id, err)
	}
	return json.Unmarshal([]byte(raw), dest)
}

// Update merges the given fields into the stored record and refreshes
// updated_at. Unknown fields are stored as-is; field names are the JSON tags.
func (s *Store) Update(ctx context.Context, kind, id string, fields map[string]interface{}) error {
	key := entityKey(kind, id)
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("update %s/%s: %w", kind, id, err)
	}

	var record map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return fmt.Errorf("update %s/%s: %w", kind, id, err)
	}
	for k, v := range fields {
		record[k] = v
	}
	record["updated_at"] = time.Now().UTC()

	buf, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", kind, id, err)
	}
	return s.client.Set(ctx, key, buf, 0).Err()
}

// Delete removes the entity and its index memberships. Field index sets are
// the caller's responsibility (RemoveFromIndex), mirroring how they were added.
func (s *Store) Delete(ctx context.Context, kind, id string) (bool, error) {
	raw, err := s.client.Get(ctx, entityKey(kind, id)).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", kind, id, err)
	}

	var rec Record
	_ = json.Unmarshal([]byte(raw), &rec)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entityKey(kind, id))
	pipe.SRem(ctx, allKey(kind), id)
	if rec.UserID != "" {
		pipe.SRem(ctx, userKey(kind, rec.UserID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", kind, id, err)
	}
	return true, nil
}

// List loads every entity of a kind into dest (a pointer to a slice),
// ordered by creation time then id so iteration order is stable.
func (s *Store) List(ctx context.Context, kind string, dest interface{}) error {
	return s.listSet(ctx, kind, allKey(kind), dest)
}

// ListByUser loads the entities owned by userID.
func (s *Store) ListByUser(ctx context.Context, kind, userID string, dest interface{}) error {
	return s.listSet(ctx, kind, userKey(kind, userID), dest)
}

// ListByField loads the entities registered under a field index. Only values
// previously passed to IndexByField are found here.
func (s *Store) ListByField(ctx context.Context, kind, field, value string, dest interface{}) error {
	return s.listSet(ctx, kind, fieldKey(kind, field, value), dest)
}

// IndexByField registers an entity under {kind}:by_{field}:{value}.
func (s *Store) IndexByField(ctx context.Context, kind, id, field, value string) error {
	return s.client.SAdd(ctx, fieldKey(kind, field, value), id).Err()
}

// RemoveFromIndex removes an entity from a field index.
func (s *Store) RemoveFromIndex(ctx context.Context, kind, id, field, value string) error {
	return s.client.SRem(ctx, fieldKey(kind, field, value), id).Err()
}

const incrMaxRetries = 5

// Incr atomically adds delta to a numeric field using an optimistic
// WATCH/MULTI transaction, so concurrent passes never lose an update.
func (s *Store) Incr(ctx context.Context, kind, id, field string, delta int64) error {
	key := entityKey(kind, id)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		} else if err != nil {
			return err
		}

		var record map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return err
		}
		var current int64
		if n, ok := record[field].(float64); ok {
			current = int64(n)
		}
		record[field] = current + delta
		record["updated_at"] = time.Now().UTC()

		buf, err := json.Marshal(record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, 0)
			return nil
		})
		return err
	}

	for i := 0; i < incrMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return fmt.Errorf("incr %s/%s.%s: %w", kind, id, field, err)
	}
	return fmt.Errorf("incr %s/%s.%s: too many conflicts", kind, id, field)
}

// Claim takes a one-shot named claim (SETNX). It returns true exactly once
// per name across all processes sharing this Redis; the dispatch engine uses
// it as the final duplicate-send gate.
func (s *Store) Claim(ctx context.Context, name string) (bool, error) {
	ok, err := s.client.SetNX(ctx, claimKey(name), time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", name, err)
	}
	return ok, nil
}

// Release gives a claim back so Claim can succeed for the name again. Used
// when the work the claim guarded could not be recorded.
func (s *Store) Release(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, claimKey(name)).Err(); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

type listEntry struct {
	raw       []byte
	id        string
	createdAt string
}

func (s *Store) listSet(ctx context.Context, kind, setKey string, dest interface{}) error {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("list %s: %w", kind, err)
	}
	if len(ids) == 0 {
		return json.Unmarshal([]byte("[]"), dest)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entityKey(kind, id)
	}
	raws, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("list %s: %w", kind, err)
	}

	entries := make([]listEntry, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue // id still in the set but record deleted
		}
		var probe struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
		}
		if err := json.Unmarshal([]byte(str), &probe); err != nil {
			s.logger.WithField("kind", kind).Warnf("skipping undecodable record: %v", err)
			continue
		}
		entries = append(entries, listEntry{raw: []byte(str), id: probe.ID, createdAt: probe.CreatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].createdAt != entries[j].createdAt {
			return entries[i].createdAt < entries[j].createdAt
		}
		return entries[i].id < entries[j].id
	})

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e.raw)
	}
	buf.WriteByte(']')
	return json.Unmarshal(buf.Bytes(), dest)
}
