package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key layout:
//
//	overlay:doc:<id>        JSON document
//	overlay:seq             creation counter
//	overlay:index           zset of every id scored by creation seq
//	overlay:stream:<key>    zset of the ids of one stream, same scores
const (
	redisDocPrefix    = "overlay:doc:"
	redisSeqKey       = "overlay:seq"
	redisIndexKey     = "overlay:index"
	redisStreamPrefix = "overlay:stream:"
)

// RedisStore keeps overlays as JSON values with sorted-set indexes.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects using a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, uri string) (*RedisStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func docKey(id string) string { return redisDocPrefix + id }
func streamIndexKey(key string) string { return redisStreamPrefix + key }

// List implements Store.List.
func (s *RedisStore) List(ctx context.Context, streamKey string) ([]Overlay, error) {
	index := redisIndexKey
	if streamKey != "" {
		index = streamIndexKey(streamKey)
	}
	ids, err := s.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list: %w", err)
	}

	out := []Overlay{}
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// deleted between ZRANGE and MGET
			continue
		}
		var o Overlay
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("redis: decode: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}

// Insert implements Store.Insert.
func (s *RedisStore) Insert(ctx context.Context, o Overlay) (Overlay, error) {
	seq, err := s.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return Overlay{}, fmt.Errorf("redis: sequence: %w", err)
	}
	o.ID = uuid.NewString()
	doc, err := json.Marshal(o)
	if err != nil {
		return Overlay{}, err
	}

	score := redis.Z{Score: float64(seq), Member: o.ID}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(o.ID), doc, 0)
		pipe.ZAdd(ctx, redisIndexKey, score)
		pipe.ZAdd(ctx, streamIndexKey(o.StreamKey), score)
		return nil
	})
	if err != nil {
		return Overlay{}, fmt.Errorf("redis: insert: %w", err)
	}
	return o, nil
}

// Update implements Store.Update. The document key is watched so concurrent
// updates of the same overlay retry instead of losing writes.
func (s *RedisStore) Update(ctx context.Context, id string, p Patch) (Overlay, error) {
	var out Overlay
	key := docKey(id)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var o Overlay
		if err := json.Unmarshal(raw, &o); err != nil {
			return err
		}
		oldStream := o.StreamKey
		p.Apply(&o)
		doc, err := json.Marshal(o)
		if err != nil {
			return err
		}

		var score float64
		if o.StreamKey != oldStream {
			if score, err = tx.ZScore(ctx, redisIndexKey, id).Result(); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			if o.StreamKey != oldStream {
				pipe.ZRem(ctx, streamIndexKey(oldStream), id)
				pipe.ZAdd(ctx, streamIndexKey(o.StreamKey), redis.Z{Score: score, Member: id})
			}
			return nil
		})
		out = o
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return Overlay{}, ErrNotFound
		}
		if err != nil {
			return Overlay{}, fmt.Errorf("redis: update: %w", err)
		}
		return out, nil
	}
	return Overlay{}, fmt.Errorf("redis: update: %w", redis.TxFailedErr)
}

// Delete implements Store.Delete.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	raw, err := s.client.Get(ctx, docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis: delete: %w", err)
	}
	var o Overlay
	if err := json.Unmarshal(raw, &o); err != nil {
		return fmt.Errorf("redis: decode: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(id))
		pipe.ZRem(ctx, redisIndexKey, id)
		pipe.ZRem(ctx, streamIndexKey(o.StreamKey), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete: %w", err)
	}
	return nil
}

// Close implements Store.Close.
func (s *RedisStore) Close(context.Context) error {
	return s.client.Close()
}
