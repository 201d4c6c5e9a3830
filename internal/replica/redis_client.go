package replica

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// patchIfExists keeps Patch from resurrecting a record that was never created.
var patchIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// RedisClient stores each replica record as a hash.
type RedisClient struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisClient(rdb redis.UniversalClient, prefix string) *RedisClient {
	if prefix == "" {
		prefix = "replica:users"
	}
	return &RedisClient{rdb: rdb, prefix: prefix}
}

func (c *RedisClient) key(id string) string {
	return c.prefix + ":" + id
}

func (c *RedisClient) Put(ctx context.Context, id string, fields Fields) error {
	key := c.key(id)
	args := flatten(fields)
	args = append(args, "id", id)

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, args...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("replica put: %w", err)
	}
	return nil
}

func (c *RedisClient) Patch(ctx context.Context, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	n, err := patchIfExists.Run(ctx, c.rdb, []string{c.key(id)}, flatten(fields)...).Int()
	if err != nil {
		return fmt.Errorf("replica patch: %w", err)
	}
	if n == 0 {
		return ErrRecordMissing
	}
	return nil
}

// flatten turns fields into HSET arguments; nil values become empty strings.
func flatten(fields Fields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		if v == nil {
			v = ""
		}
		args = append(args, k, fmt.Sprint(v))
	}
	return args
}
