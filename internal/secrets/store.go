package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrAccessDenied   = errors.New("secret access denied")
)

// Store resolves named credentials at startup.
type Store interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// EnvStore reads secrets from environment variables named
// <prefix>_<NAME>, with the name upper-cased and dashes turned into underscores.
type EnvStore struct {
	prefix string
	lookup func(string) (string, bool)
}

func NewEnvStore(prefix string) *EnvStore {
	if prefix == "" {
		prefix = "SCREENING_SECRET"
	}
	return &EnvStore{prefix: prefix, lookup: os.LookupEnv}
}

func (s *EnvStore) GetSecret(_ context.Context, name string) (string, error) {
	key := s.Key(name)
	v, ok := s.lookup(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s (env %s)", ErrSecretNotFound, name, key)
	}
	return v, nil
}

func (s *EnvStore) Key(name string) string {
	name = strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name))
	return s.prefix + "_" + name
}

// Cached memoizes successful lookups of another store.
type Cached struct {
	inner Store
	mu    sync.Mutex
	cache map[string]string
}

func NewCached(inner Store) *Cached {
	return &Cached{inner: inner, cache: make(map[string]string)}
}

func (c *Cached) GetSecret(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	v, ok := c.cache[name]
	c.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := c.inner.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[name] = v
	c.mu.Unlock()
	return v, nil
}

// Resolve fetches every named secret, failing on the first that cannot be read.
func Resolve(ctx context.Context, store Store, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		v, err := store.GetSecret(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve secret %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
