package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// JoinCodeIndex reserves join codes in Redis so multiple server instances
// agree on which codes are live. Keys are claimed with SETNX and deleted on
// session end; the TTL is a safety net for sessions that die without ending.
type JoinCodeIndex struct {
	client *redis.Client
	ttl    time.Duration
}

func NewJoinCodeIndex(client *redis.Client, ttl time.Duration) *JoinCodeIndex {
	return &JoinCodeIndex{client: client, ttl: ttl}
}

func (i *JoinCodeIndex) Reserve(ctx context.Context, code, sessionID string) (bool, error) {
	return i.client.SetNX(ctx, i.key(code), sessionID, i.ttl).Result()
}

func (i *JoinCodeIndex) Resolve(ctx context.Context, code string) (string, bool, error) {
	sessionID, err := i.client.Get(ctx, i.key(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sessionID, true, nil
}

func (i *JoinCodeIndex) Release(ctx context.Context, code string) error {
	return i.client.Del(ctx, i.key(code)).Err()
}

func (i *JoinCodeIndex) key(code string) string {
	return "session:joincode:" + code
}
