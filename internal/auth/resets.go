package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrResetTokenInvalid = errors.New("reset token invalid or expired")

// ResetTokens holds single-use password reset tokens.
type ResetTokens interface {
	Put(ctx context.Context, token string, userID int64, ttl time.Duration) error
	// Take returns the token's user and invalidates the token.
	Take(ctx context.Context, token string) (int64, error)
}

type RedisResetTokens struct {
	rdb *redis.Client
}

func NewRedisResetTokens(rdb *redis.Client) *RedisResetTokens { return &RedisResetTokens{rdb: rdb} }

func (s *RedisResetTokens) Put(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	return s.rdb.Set(ctx, "pwreset:"+token, userID, ttl).Err()
}

func (s *RedisResetTokens) Take(ctx context.Context, token string) (int64, error) {
	val, err := s.rdb.GetDel(ctx, "pwreset:"+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrResetTokenInvalid
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}
