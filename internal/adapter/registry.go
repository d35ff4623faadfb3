package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AdapterFactory builds a fresh, unconnected adapter of one kind.
type AdapterFactory func(logger *zap.Logger) RobotAdapter

// disconnectDeadline bounds how long Remove waits for an adapter to hang up
// cleanly before dropping the reference anyway, per spec §4.2.
const disconnectDeadline = 5 * time.Second

// Registry maps robot id to its active adapter. Reads take the shared read
// lock, so concurrent readers do not block each other; inserts and removes
// take the write lock.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]AdapterFactory
	active    map[string]RobotAdapter
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		factories: make(map[string]AdapterFactory),
		active:    make(map[string]RobotAdapter),
		logger:    logger,
	}
}

// RegisterFactory makes an adapter kind available to CreateAdapter.
func (r *Registry) RegisterFactory(kind string, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
	r.logger.Info("registered adapter factory", zap.String("kind", kind))
}

// CreateAdapter instantiates an adapter of kind for robotID and stores it as
// the active adapter for that id.
func (r *Registry) CreateAdapter(robotID, kind string) (RobotAdapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown adapter kind: %s", kind)
	}
	adp := factory(r.logger.With(zap.String("robot_id", robotID), zap.String("adapter", kind)))
	r.active[robotID] = adp
	r.logger.Info("created adapter", zap.String("robot_id", robotID), zap.String("kind", kind))
	return adp, nil
}

// GetAdapter returns the active adapter for robotID, if any.
func (r *Registry) GetAdapter(robotID string) (RobotAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.active[robotID]
	return a, ok
}

// RemoveAdapter disconnects and drops the adapter for robotID. Disconnect is
// given disconnectDeadline to complete; past that the reference is dropped
// anyway and a warning logged, per spec §4.2.
func (r *Registry) RemoveAdapter(robotID string) {
	r.mu.Lock()
	adp, ok := r.active[robotID]
	delete(r.active, robotID)
	r.mu.Unlock()

	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), disconnectDeadline)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- adp.Disconnect(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			r.logger.Warn("adapter disconnect returned error", zap.String("robot_id", robotID), zap.Error(err))
		}
	case <-ctx.Done():
		r.logger.Warn("adapter disconnect exceeded deadline, dropping reference",
			zap.String("robot_id", robotID), zap.Duration("deadline", disconnectDeadline))
	}

	r.logger.Info("removed adapter", zap.String("robot_id", robotID))
}

// GetAllActive returns a snapshot copy of every robot id -> adapter mapping.
func (r *Registry) GetAllActive() map[string]RobotAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]RobotAdapter, len(r.active))
	for k, v := range r.active {
		out[k] = v
	}
	return out
}

// ListFactories returns the registered adapter kinds.
func (r *Registry) ListFactories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}
