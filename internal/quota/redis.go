package quota

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisUsersKey  = "quota:users"
	redisCountFld  = "count"
	redisDateFld   = "date"
	redisKeyPrefix = "quota:user:"
	redisDateFmt   = "2006-01-02"
)

// RedisStore keeps one hash per user plus an index set used by Reset.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisUserKey(userID int64) string {
	return redisKeyPrefix + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Ensure(ctx context.Context, userID int64, day time.Time) error {
	key := redisUserKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, redisCountFld, 0)
		pipe.HSetNX(ctx, key, redisDateFld, day.Format(redisDateFmt))
		pipe.SAdd(ctx, redisUsersKey, key)
		return nil
	})
	return err
}

func (s *RedisStore) Count(ctx context.Context, userID int64) (int, error) {
	n, err := s.client.HGet(ctx, redisUserKey(userID), redisCountFld).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) Increment(ctx context.Context, userID int64, day time.Time) error {
	key := redisUserKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, redisCountFld, 1)
		pipe.HSet(ctx, key, redisDateFld, day.Format(redisDateFmt))
		pipe.SAdd(ctx, redisUsersKey, key)
		return nil
	})
	return err
}

func (s *RedisStore) Reset(ctx context.Context) error {
	keys, err := s.client.SMembers(ctx, redisUsersKey).Result()
	if err != nil {
		return err
	}
	keys = append(keys, redisUsersKey)
	return s.client.Del(ctx, keys...).Err()
}
