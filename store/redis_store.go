package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flowmint/txfabric/redis"
)

// RedisStore is the document record store. Records live under
// "record:<table>:<id>" as JSON values with an optional TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	name   string
}

// NewRedisStore creates a document record store over the given client.
// A zero ttl keeps records until overwritten.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, name: "document"}
}

// Name identifies the store in write reports and logs.
func (s *RedisStore) Name() string { return s.name }

func recordKey(table, id string) string {
	return fmt.Sprintf("record:%s:%s", table, id)
}

// Put stores the record document.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshal record %s/%s: %w", rec.Table, rec.ID, err)
	}
	if err := s.client.Set(ctx, recordKey(rec.Table, rec.ID), string(data), s.ttl); err != nil {
		return fmt.Errorf("put record %s/%s: %w", rec.Table, rec.ID, err)
	}
	return nil
}

// Get looks up a record document.
func (s *RedisStore) Get(ctx context.Context, table, id string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, recordKey(table, id))
	if errors.Is(err, goredis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get record %s/%s: %w", table, id, err)
	}

	rec := Record{Table: table, ID: id}
	if err := json.Unmarshal([]byte(raw), &rec.Data); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal record %s/%s: %w", table, id, err)
	}
	return rec, true, nil
}
