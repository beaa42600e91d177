package redisimports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/elrhedda/ipopo/helpers"
	"github.com/elrhedda/ipopo/service"
)

type redisCache[T any] struct {
	client    redis.UniversalClient
	keyPrefix string
	marshal   func(item T) ([]byte, error)
	unmarshal func(data []byte) (T, error)
}

// NewCache creates the redis implementation of the generic cache.
//
// Parameters:
//   - client: connected redis client, see NewRedisUniversalClient.
//   - keyPrefix: namespace prepended to every key, so unrelated caches can
//     share one database.
//   - marshal: serializes an item before it is stored.
//   - unmarshal: restores an item read from redis.
func NewCache[T any](
	client redis.UniversalClient,
	keyPrefix string,
	marshal func(item T) ([]byte, error),
	unmarshal func(data []byte) (T, error),
) *redisCache[T] {
	return &redisCache[T]{
		client:    helpers.NilPanic(client, "adapters.redisimports.cache.go: client is required"),
		keyPrefix: helpers.StrPanic(keyPrefix, "adapters.redisimports.cache.go: keyPrefix is required"),
		marshal:   helpers.NilPanic(marshal, "adapters.redisimports.cache.go: marshal is required"),
		unmarshal: helpers.NilPanic(unmarshal, "adapters.redisimports.cache.go: unmarshal is required"),
	}
}

// WriteValue stores the item under the given key. A non-positive ttlMs keeps
// the key until it is deleted explicitly.
func (c *redisCache[T]) WriteValue(ctx context.Context, key string, item T, ttlMs int) error {
	data, err := c.marshal(item)
	if err != nil {
		return service.NewInternalError(fmt.Sprintf("cant marshal item for key %s", key), err)
	}

	ttl := time.Duration(0)
	if ttlMs > 0 {
		ttl = time.Duration(ttlMs) * time.Millisecond
	}
	if err := c.client.Set(ctx, c.generateKey(key), data, ttl).Err(); err != nil {
		return service.NewInternalError(fmt.Sprintf("cant write key %s", key), err)
	}
	return nil
}

// ReadValue returns the item stored under the given key. A missing key yields
// an entity not found error.
func (c *redisCache[T]) ReadValue(ctx context.Context, key string) (T, error) {
	var zero T

	data, err := c.client.Get(ctx, c.generateKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, service.NewEntityNotFoundError(fmt.Sprintf("no value for key %s", key), nil)
	}
	if err != nil {
		return zero, service.NewInternalError(fmt.Sprintf("cant read key %s", key), err)
	}

	item, err := c.unmarshal(data)
	if err != nil {
		return zero, service.NewInternalError(fmt.Sprintf("cant unmarshal value for key %s", key), err)
	}
	return item, nil
}

// ListAllValues returns every item stored under the cache prefix. An empty
// cache yields an empty slice, not an error. Values that can no longer be
// read or unmarshalled are skipped, so one damaged entry does not hide the
// rest.
func (c *redisCache[T]) ListAllValues(ctx context.Context) ([]T, error) {
	keys, err := c.client.Keys(ctx, c.generateKey("*")).Result()
	if err != nil {
		return nil, service.NewInternalError("cant list keys", err)
	}

	items := make([]T, 0, len(keys))
	for _, key := range keys {
		data, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		item, err := c.unmarshal(data)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// DeleteValue removes the item stored under the given key. Deleting a missing
// key is not an error.
func (c *redisCache[T]) DeleteValue(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.generateKey(key)).Err(); err != nil {
		return service.NewInternalError(fmt.Sprintf("cant delete key %s", key), err)
	}
	return nil
}

func (c *redisCache[T]) generateKey(key string) string {
	return c.keyPrefix + ":" + key
}
