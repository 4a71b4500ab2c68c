// Package cache stores scan results keyed by drawing content and query.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
)

// Store is the byte level backend, implemented by redisstore.Client.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

var errNotCacheable = errors.New("error results are not cached")

type Results struct {
	store Store
	ttl   time.Duration
}

func NewResults(store Store, ttl time.Duration) *Results {
	return &Results{store: store, ttl: ttl}
}

func (r *Results) Get(ctx context.Context, key string) (model.DrawingScanResult, bool, error) {
	b, ok, err := r.store.Get(ctx, key)
	if err != nil || !ok {
		return model.DrawingScanResult{}, false, err
	}
	var res model.DrawingScanResult
	if err := json.Unmarshal(b, &res); err != nil {
		return model.DrawingScanResult{}, false, fmt.Errorf("decode cached result %q: %w", key, err)
	}
	return res, true, nil
}

// Put stores a successful result. Error results are refused so a transient
// failure is retried on the next scan.
func (r *Results) Put(ctx context.Context, key string, res model.DrawingScanResult) error {
	if res.IsError {
		return errNotCacheable
	}
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result %q: %w", key, err)
	}
	return r.store.Set(ctx, key, b, r.ttl)
}
