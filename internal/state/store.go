// Package state holds the application state shared by every storefront view.
// Mutations go through typed actions applied by a single reducer.
package state

import (
	"sync"

	"storefront/internal/domain"

	"go.uber.org/zap"
)

// State is the shared client state
type State struct {
	Session  *domain.Session
	Products []domain.Product
	Cart     []domain.CartLine
	Orders   []domain.Order
	// Version increases with every applied action
	Version uint64
	// Epoch increases whenever a session starts or ends
	Epoch uint64
}

func (s State) clone() State {
	out := s
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	out.Products = append([]domain.Product(nil), s.Products...)
	out.Cart = append([]domain.CartLine(nil), s.Cart...)
	out.Orders = append([]domain.Order(nil), s.Orders...)
	return out
}

// Action is a typed state mutation
type Action interface {
	Name() string
}

type CatalogLoaded struct{ Products []domain.Product }
type CartReplaced struct{ Lines []domain.CartLine }
type OrdersReplaced struct{ Orders []domain.Order }
type SessionStarted struct{ Session domain.Session }
type SessionEnded struct{ Reason string }

func (CatalogLoaded) Name() string  { return "catalog/loaded" }
func (CartReplaced) Name() string   { return "cart/replaced" }
func (OrdersReplaced) Name() string { return "orders/replaced" }
func (SessionStarted) Name() string { return "session/started" }
func (SessionEnded) Name() string   { return "session/ended" }

// Reduce returns the state that results from applying a to s
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case CatalogLoaded:
		s.Products = append([]domain.Product(nil), act.Products...)
	case CartReplaced:
		s.Cart = append([]domain.CartLine(nil), act.Lines...)
	case OrdersReplaced:
		s.Orders = append([]domain.Order(nil), act.Orders...)
	case SessionStarted:
		sess := act.Session
		s.Session = &sess
		s.Epoch++
	case SessionEnded:
		s.Epoch++
		s.Session = nil
		s.Cart = nil
		s.Orders = nil
	default:
		return s
	}
	s.Version++
	return s
}

// Listener is called after every applied action with the new state
type Listener func(a Action, s State)

// Store is the single source of truth read by all views
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners map[int]Listener
	nextID    int
	logger    *zap.Logger
}

// NewStore creates an empty store
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// Dispatch applies an action and notifies listeners
func (s *Store) Dispatch(a Action) State {
	snapshot, _ := s.DispatchIf(nil, a)
	return snapshot
}

// DispatchIf applies a only when cond holds for the current state.
// cond is evaluated under the store lock; a nil cond always holds.
func (s *Store) DispatchIf(cond func(State) bool, a Action) (State, bool) {
	s.mu.Lock()
	if cond != nil && !cond(s.state) {
		snapshot := s.state.clone()
		s.mu.Unlock()
		s.logger.Debug("Action skipped", zap.String("action", a.Name()))
		return snapshot, false
	}
	s.state = Reduce(s.state, a)
	snapshot := s.state.clone()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	s.logger.Debug("Action dispatched",
		zap.String("action", a.Name()),
		zap.Uint64("version", snapshot.Version),
	)

	for _, l := range listeners {
		l(a, snapshot)
	}
	return snapshot, true
}

// Epoch returns the current session epoch
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Epoch
}

// SameEpoch is a DispatchIf condition holding while no session has started or ended since epoch
func SameEpoch(epoch uint64) func(State) bool {
	return func(s State) bool { return s.Epoch == epoch }
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers a listener and returns a function removing it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}
