// Package tokenstore persists the bearer token sent by the transport layer.
// Issuing and refreshing tokens is the backend's job; this package only
// stores what it is given and reads it back under a fixed key.
package tokenstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/opsdesk/internal/config"
)

// DefaultKey is the fixed key the bearer token is stored under.
const DefaultKey = "access_token"

// Store reads and writes the bearer token. A missing token is reported as
// ("", nil), never as an error.
type Store interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// --- MemoryStore ---

// MemoryStore keeps the token in process memory. Suitable for tests and
// short-lived CLI invocations that receive the token from the environment.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore creates a memory store holding token (may be empty).
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (s *MemoryStore) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	return s.SetToken(ctx, "")
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Open builds the store selected by cfg. For the redis driver the address is
// read from the environment variable named by cfg.Store.AddrEnv.
func Open(cfg config.AuthConfig) (Store, error) {
	key := cfg.TokenKey
	if key == "" {
		key = DefaultKey
	}

	switch cfg.Store.Driver {
	case "memory":
		return NewMemoryStore(os.Getenv("OPSDESK_TOKEN")), nil
	case "file", "":
		path := cfg.Store.Path
		if path == "" {
			path = DefaultFilePath(key)
		}
		return NewFileStore(path), nil
	case "redis":
		addr := os.Getenv(cfg.Store.AddrEnv)
		if addr == "" {
			return nil, fmt.Errorf("tokenstore: %s is not set", cfg.Store.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.Store.DB})
		return NewRedisStore(client, key), nil
	default:
		return nil, fmt.Errorf("tokenstore: unsupported driver %q", cfg.Store.Driver)
	}
}
