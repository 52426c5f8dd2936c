// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	platformredis "github.com/taibuivan/bizmap/internal/platform/redis"
)

// RedisBackend implements [Backend] on top of Redis.
//
// Every key is namespaced with a prefix so several profiles can share one server.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps an existing client. The backend takes ownership of it.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (backend *RedisBackend) key(name string) string {
	return backend.prefix + name
}

/*
Get retrieves one value.

Description: A missing key is reported through the bool, not as an error.

Parameters:
  - context: context.Context
  - key: string

Returns:
  - string: Stored value
  - bool: Presence
  - error: Connectivity errors
*/
func (backend *RedisBackend) Get(context context.Context, key string) (string, bool, error) {

	value, err := backend.client.Get(context, backend.key(key)).Result()

	// Handle errors
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis_token_get_failed: %w", err)
	}

	return value, true, nil
}

/*
SetMany writes all pairs inside MULTI/EXEC.

Parameters:
  - context: context.Context
  - values: map[string]string

Returns:
  - error: Execution errors
*/
func (backend *RedisBackend) SetMany(context context.Context, values map[string]string) error {

	if len(values) == 0 {
		return nil
	}

	// Queue every SET in one transaction so readers never see a partial write
	_, err := backend.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		for key, value := range values {
			pipe.Set(context, backend.key(key), value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_token_set_failed: %w", err)
	}

	return nil
}

/*
DeleteMany removes all keys inside MULTI/EXEC.

Parameters:
  - context: context.Context
  - keys: []string

Returns:
  - error: Deletion failures
*/
func (backend *RedisBackend) DeleteMany(context context.Context, keys ...string) error {

	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = backend.key(key)
	}

	_, err := backend.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		pipe.Del(context, prefixed...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_token_delete_failed: %w", err)
	}

	return nil
}

// Ping checks the connection with the shared platform probe.
func (backend *RedisBackend) Ping(context context.Context) error {
	return platformredis.Ping(context, backend.client)
}

// Close closes the owned client.
func (backend *RedisBackend) Close() error {
	return backend.client.Close()
}
