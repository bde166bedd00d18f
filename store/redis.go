package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis transport failures so callers can detect
// backend outages without matching on driver error strings.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Redis is a session.Store backed by a Redis client. It is meant for kiosks
// and multi-process deployments where several front ends share one session
// cache. The logout flag gets a TTL so an abandoned logout cannot wedge the
// namespace forever.
type Redis struct {
	redis   redis.UniversalClient
	prefix  string
	flagTTL time.Duration
	jar     http.CookieJar
}

// NewRedis builds a store over the given client. prefix namespaces every key;
// flagTTL bounds how long a logout flag survives unclaimed (zero means the
// session.DefaultLogoutFlagTTL).
func NewRedis(client redis.UniversalClient, prefix string, flagTTL time.Duration) (*Redis, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	if prefix == "" {
		prefix = "gs"
	}
	if flagTTL <= 0 {
		flagTTL = session.DefaultLogoutFlagTTL
	}

	return &Redis{
		redis:   client,
		prefix:  prefix,
		flagTTL: flagTTL,
		jar:     jar,
	}, nil
}

func (s *Redis) key(name string) string {
	return s.prefix + ":" + name
}

func (s *Redis) Jar() http.CookieJar {
	return s.jar
}

func (s *Redis) Profile(ctx context.Context) (*session.UserProfile, error) {
	data, err := s.get(ctx, s.key(keyProfile))
	if err != nil || data == nil {
		return nil, err
	}

	var profile session.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *Redis) SaveProfile(ctx context.Context, profile *session.UserProfile) error {
	if profile == nil {
		return s.del(ctx, s.key(keyProfile))
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return s.set(ctx, s.key(keyProfile), data, 0)
}

func (s *Redis) BearerToken(ctx context.Context) (string, error) {
	data, err := s.get(ctx, s.key(keyBearer))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Redis) SaveBearerToken(ctx context.Context, token string) error {
	return s.set(ctx, s.key(keyBearer), []byte(token), 0)
}

func (s *Redis) LogoutFlag(ctx context.Context) (*session.LogoutFlag, error) {
	data, err := s.get(ctx, s.key(keyLogoutFlag))
	if err != nil || data == nil {
		return nil, err
	}

	var flag session.LogoutFlag
	if err := json.Unmarshal(data, &flag); err != nil {
		return nil, err
	}
	return &flag, nil
}

func (s *Redis) SetLogoutFlag(ctx context.Context, flag session.LogoutFlag) error {
	data, err := json.Marshal(flag)
	if err != nil {
		return err
	}
	return s.set(ctx, s.key(keyLogoutFlag), data, s.flagTTL)
}

func (s *Redis) ClearLogoutFlag(ctx context.Context) error {
	return s.del(ctx, s.key(keyLogoutFlag))
}

// PurgeSession deletes every key under the prefix except the logout flag.
// A prefix scan (rather than naming keys) keeps future namespaced entries
// from outliving a logout.
func (s *Redis) PurgeSession(ctx context.Context) error {
	flagKey := s.key(keyLogoutFlag)

	var doomed []string
	iter := s.redis.Scan(ctx, 0, s.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if key := iter.Val(); key != flagKey {
			doomed = append(doomed, key)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(doomed) == 0 {
		return nil
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, doomed...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Redis) get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, nil
}

func (s *Redis) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Redis) del(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
