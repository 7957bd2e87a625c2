package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store/StateStore for hosts that keep per-user session state
// server-side (e.g. a BFF fronting many browser sessions). The token pair is
// stored as one JSON value under a single key, so writes stay atomic.
type Redis struct {
	client *redis.Client
	prefix string
	// stateTTL bounds how long a pending-redirect breadcrumb may wait for
	// the user to come back from the provider.
	stateTTL time.Duration
}

var (
	_ Store      = (*Redis)(nil)
	_ StateStore = (*Redis)(nil)
)

// NewRedis creates a redis-backed store. prefix namespaces the keys, letting
// one redis hold state for many principals (e.g. "authkit:user:42").
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client:   client,
		prefix:   prefix,
		stateTTL: 15 * time.Minute,
	}
}

func (r *Redis) credsKey() string {
	return r.prefix + ":credentials"
}

func (r *Redis) stateKey(provider string) string {
	return r.prefix + ":state:" + provider
}

func (r *Redis) Write(ctx context.Context, creds Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := r.client.Set(ctx, r.credsKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Read(ctx context.Context) (Credentials, error) {
	data, err := r.client.Get(ctx, r.credsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("redis get: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.credsKey()).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *Redis) SaveState(ctx context.Context, provider string, st RedirectState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode redirect state: %w", err)
	}
	if err := r.client.Set(ctx, r.stateKey(provider), data, r.stateTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) TakeState(ctx context.Context, provider string) (RedirectState, error) {
	data, err := r.client.GetDel(ctx, r.stateKey(provider)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RedirectState{}, ErrNotFound
		}
		return RedirectState{}, fmt.Errorf("redis getdel: %w", err)
	}

	var st RedirectState
	if err := json.Unmarshal(data, &st); err != nil {
		return RedirectState{}, fmt.Errorf("decode redirect state: %w", err)
	}
	return st, nil
}
