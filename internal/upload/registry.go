package upload

import (
	"context"
	"fmt"
	"sync"

	"github.com/hbollon/go-edlib"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a
// "did you mean" hint.
const suggestThreshold = 0.7

// Registry holds backends in registration order.
type Registry struct {
	order    []string
	backends map[string]Backend
}

// NewRegistry registers backends in the given order.
func NewRegistry(backends ...Backend) (*Registry, error) {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a backend.
func (r *Registry) Register(b Backend) error {
	name := b.Name()
	if _, ok := r.backends[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, name)
	}
	r.backends[name] = b
	r.order = append(r.order, name)
	return nil
}

// Get looks up a backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	if b, ok := r.backends[name]; ok {
		return b, nil
	}
	if s := r.suggest(name); s != "" {
		return nil, fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownBackend, name, s)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// Names returns backend names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Select filters names down to registered backends, kept in registration
// order. A nil selection means every backend.
func (r *Registry) Select(names []string) []string {
	if names == nil {
		return r.Names()
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []string
	for _, n := range r.order {
		if want[n] {
			out = append(out, n)
		}
	}
	return out
}

// Available probes every backend concurrently and returns the names that
// answered, in registration order.
func (r *Registry) Available(ctx context.Context) []string {
	ok := make([]bool, len(r.order))
	var wg sync.WaitGroup
	for i, name := range r.order {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok[i] = r.backends[name].Available(ctx)
		}()
	}
	wg.Wait()

	var names []string
	for i, name := range r.order {
		if ok[i] {
			names = append(names, name)
		}
	}
	return names
}

func (r *Registry) suggest(name string) string {
	best, bestScore := "", float32(0)
	for _, candidate := range r.order {
		score := edlib.JaroWinklerSimilarity(name, candidate)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore < suggestThreshold {
		return ""
	}
	return best
}
