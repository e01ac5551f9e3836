// Package adapter holds the extraction engine's dispatch layer: the
// registry that routes an input to the first adapter able to parse it,
// and the base types the per-provider adapters embed.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"convograb/internal/domain"
)

// Registry dispatches inputs to registered adapters. Create one with
// NewRegistry and inject it; there is no package-level instance.
type Registry struct {
	mu       sync.RWMutex
	adapters []domain.Adapter // preserves registration order
	byID     map[string]domain.Adapter
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byID:   make(map[string]domain.Adapter),
		logger: logger,
	}
}

// Register adds an adapter. Duplicate IDs are a hard error: two
// adapters silently shadowing each other is exactly the bug this
// prevents.
func (r *Registry) Register(a domain.Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[a.ID()]; exists {
		return fmt.Errorf("adapter %q already registered", a.ID())
	}
	r.byID[a.ID()] = a
	r.adapters = append(r.adapters, a)
	r.logger.Debug("registered adapter", "id", a.ID(), "version", a.Version())
	return nil
}

// Unregister removes an adapter by ID and reports whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; !exists {
		return false
	}
	delete(r.byID, id)
	for i, a := range r.adapters {
		if a.ID() == id {
			r.adapters = append(r.adapters[:i], r.adapters[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes all adapters. Test hook.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = nil
	r.byID = make(map[string]domain.Adapter)
}

// IDs returns the registered adapter IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		ids[i] = a.ID()
	}
	return ids
}

// ParseWithAdapters routes the input to the first compatible adapter
// that parses it successfully. Matching adapters are tried strictly in
// registration order; the first success wins and no further adapters
// run. A panicking or erroring CanHandle counts as "does not handle".
func (r *Registry) ParseWithAdapters(ctx context.Context, in domain.Input) (*domain.ParseResult, error) {
	r.mu.RLock()
	candidates := make([]domain.Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if safeCanHandle(a, in) {
			candidates = append(candidates, a)
		}
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, domain.NewAppError(domain.ErrAdapterNotFound,
			fmt.Sprintf("no adapter can handle %s input for %s", in.Kind(), in.URL()))
	}

	var lastErr error
	for _, a := range candidates {
		conv, err := a.Parse(ctx, in)
		if err == nil {
			r.logger.Info("parsed conversation", "adapter", a.ID(), "messages", len(conv.Messages))
			return &domain.ParseResult{
				Conversation:   conv,
				AdapterID:      a.ID(),
				AdapterVersion: a.Version(),
			}, nil
		}
		lastErr = err
		r.logger.Warn("adapter failed, trying next", "adapter", a.ID(), "error", err)
	}

	// A structured last error is surfaced as-is; anything else gets a
	// generic parse-failed wrapper.
	if ae, ok := domain.AsAppError(lastErr); ok {
		return nil, ae
	}
	return nil, domain.WrapAppError(domain.ErrParseFailed, "all compatible adapters failed", lastErr)
}

// safeCanHandle shields dispatch from buggy predicates: a panic inside
// one adapter's CanHandle must not abort the whole trial loop.
func safeCanHandle(a domain.Adapter, in domain.Input) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return a.CanHandle(in)
}
