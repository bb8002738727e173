package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxWatchAttempts = 5

// Redis stores each record as a JSON document next to a key index set.
type Redis struct {
	client    redis.UniversalClient
	namespace string
	now       func() time.Time
}

// NewRedis constructs a Redis store for namespace.
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{client: client, namespace: namespace, now: time.Now}
}

func (s *Redis) docKey(key string) string {
	return "fieldsync:" + s.namespace + ":record:" + key
}

func (s *Redis) indexKey() string {
	return "fieldsync:" + s.namespace + ":keys"
}

func (s *Redis) Get(ctx context.Context, key string) (Record, error) {
	raw, err := s.client.Get(ctx, s.docKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, notFound(key)
	}
	if err != nil {
		return Record{}, storeErr("get", key, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, storeErr("decode", key, err)
	}
	return rec, nil
}

func (s *Redis) Put(ctx context.Context, rec Record) error {
	rec.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(rec)
	if err != nil {
		return storeErr("encode", rec.Key, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(rec.Key), raw, 0)
		pipe.SAdd(ctx, s.indexKey(), rec.Key)
		return nil
	})
	if err != nil {
		return storeErr("put", rec.Key, err)
	}
	return nil
}

// Scan returns every indexed record ordered by key.
func (s *Redis) Scan(ctx context.Context) ([]Record, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, storeErr("scan", "", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)
	docKeys := make([]string, len(keys))
	for i, k := range keys {
		docKeys[i] = s.docKey(k)
	}
	values, err := s.client.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, storeErr("scan", "", err)
	}
	out := make([]Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, storeErr("decode", keys[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update applies p under WATCH so a concurrent writer forces a re-read
// instead of being overwritten.
func (s *Redis) Update(ctx context.Context, key string, p Patch) (Record, error) {
	doc := s.docKey(key)
	var updated Record
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, doc).Bytes()
		if errors.Is(err, redis.Nil) {
			return notFound(key)
		}
		if err != nil {
			return err
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		p.Apply(&rec)
		rec.UpdatedAt = s.now().UTC()
		next, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, doc, next, 0)
			return nil
		})
		if err == nil {
			updated = rec
		}
		return err
	}

	var err error
	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, doc)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	switch {
	case err == nil:
		return updated, nil
	case isNotFound(err):
		return Record{}, err
	default:
		return Record{}, storeErr("update", key, err)
	}
}
