package tokenstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisAccessField  = "access"
	redisRefreshField = "refresh"
	redisOpTimeout    = 3 * time.Second
)

// RedisConfig configures a Redis-backed token store.
type RedisConfig struct {
	Addr     string
	Password string
	// Prefix namespaces keys, default "docdesk:tokens".
	Prefix string
	// Profile distinguishes several logins sharing one Redis.
	Profile string
	// TTL expires the pair when positive.
	TTL time.Duration
}

// Redis stores the token pair as one hash so several processes can share a login.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis builds a Redis-backed token store.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis token store requires addr")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "docdesk:tokens"
	}
	profile := strings.TrimSpace(cfg.Profile)
	if profile == "" {
		profile = "default"
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
		}),
		key: fmt.Sprintf("%s:%s", prefix, profile),
		ttl: cfg.TTL,
	}, nil
}

func (s *Redis) SetTokens(ctx context.Context, access, refresh string) error {
	if err := checkPair(access, refresh); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key, map[string]any{
		redisAccessField:  access,
		redisRefreshField: refresh,
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	} else {
		pipe.Persist(ctx, s.key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store tokens: %w", err)
	}
	return nil
}

func (s *Redis) AccessToken(ctx context.Context) (string, bool, error) {
	return s.field(ctx, redisAccessField)
}

func (s *Redis) RefreshToken(ctx context.Context) (string, bool, error) {
	return s.field(ctx, redisRefreshField)
}

func (s *Redis) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := s.client.Del(ctx, s.key).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) field(ctx context.Context, name string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	v, err := s.client.HGet(ctx, s.key, name).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s token: %w", name, err)
	}
	return v, v != "", nil
}
