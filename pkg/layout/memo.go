package layout

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// memo caches one value per key. Concurrent misses on the same key share a
// single computation; unrelated keys never wait on each other. Failed
// computations are not stored, so the next call retries. A computation runs
// detached from the caller that started it; a cancelled caller stops waiting
// but the others still get the result.
type memo[V any] struct {
	flight singleflight.Group

	mu     sync.Mutex
	values map[string]V
}

func (m *memo[V]) lookup(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *memo[V]) get(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := m.lookup(key); ok {
		return v, nil
	}
	detached := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(key, func() (interface{}, error) {
		if v, ok := m.lookup(key); ok {
			return v, nil
		}
		v, err := compute(detached)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.values == nil {
			m.values = make(map[string]V)
		}
		m.values[key] = v
		m.mu.Unlock()
		return v, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (m *memo[V]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}
