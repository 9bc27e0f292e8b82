package flow

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry holds the live machines, one per checkout attempt, keyed by
// session id. Nothing here survives a restart: sessions are in-memory by
// design and are discarded once the result has been handed over.
type Registry struct {
	mu       sync.Mutex
	machines map[string]*Machine
	byOrder  map[string]string // order id -> session id, for gateway returns
	logger   *zap.SugaredLogger
}

func NewRegistry(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		machines: make(map[string]*Machine),
		byOrder:  make(map[string]string),
		logger:   logger,
	}
}

// Create builds a machine from cfg and tracks it. An existing session for
// the same order id is discarded first: exactly one session is active per
// checkout attempt.
func (r *Registry) Create(cfg Config) *Machine {
	m := NewMachine(cfg)

	r.mu.Lock()
	if prevID, ok := r.byOrder[cfg.OrderID]; ok {
		if prev, ok := r.machines[prevID]; ok {
			prev.Close()
			delete(r.machines, prevID)
			r.logger.Infow("replacing active session for order", "order_id", cfg.OrderID, "session_id", prevID)
		}
	}
	id := m.Snapshot().ID
	r.machines[id] = m
	r.byOrder[cfg.OrderID] = id
	r.mu.Unlock()

	return m
}

// Get looks a machine up by session id.
func (r *Registry) Get(sessionID string) (*Machine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[sessionID]
	return m, ok
}

// GetByOrderID looks a machine up by the order id the gateway echoes back
// in the return URL.
func (r *Registry) GetByOrderID(orderID string) (*Machine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, false
	}
	m, ok := r.machines[id]
	return m, ok
}

// Discard drops a session and releases its timers.
func (r *Registry) Discard(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.machines[sessionID]
	if !ok {
		return
	}
	m.Close()
	delete(r.machines, sessionID)
	delete(r.byOrder, m.Snapshot().OrderID)
}

// List returns snapshots of every live session, ordered by session id.
// Operator-facing: backs the paginated listing endpoint.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.machines))
	for _, m := range r.machines {
		out = append(out, m.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns the number of live sessions, published as an expvar.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}
