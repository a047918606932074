package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"voicebank/internal/model"
)

// SessionCache is a read-through cache in front of the session store. Get
// returns (nil, nil) on a miss.
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	Set(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, sessionID string) error
}

type sessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionCache(client *redis.Client) SessionCache {
	return &sessionCache{
		client: client,
		ttl:    10 * time.Minute,
	}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func (c *sessionCache) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *sessionCache) Set(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(session.SessionID), data, c.ttl).Err()
}

func (c *sessionCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionKey(sessionID)).Err()
}
