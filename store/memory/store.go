// Package memory is an in-process store.Store used by tests and
// single-node deployments.
//
// Transactions are serialized by a writer mutex. Each one works on a deep
// copy of the data that replaces the live copy only when the transaction
// body succeeds.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/store"
	"github.com/xraph/cyclebill/subscription"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	writeMu sync.Mutex // held for the whole of a transaction
	mu      sync.RWMutex
	data    *state
	closed  bool
}

// state is every record the store holds. Keys are TypeID strings.
type state struct {
	plans         map[string]*plan.Plan
	subscriptions map[string]*subscription.Subscription
	cycles        map[string]*cycle.Cycle
	payments      map[string][]*payment.Payment // by cycle id
}

func newState() *state {
	return &state{
		plans:         make(map[string]*plan.Plan),
		subscriptions: make(map[string]*subscription.Subscription),
		cycles:        make(map[string]*cycle.Cycle),
		payments:      make(map[string][]*payment.Payment),
	}
}

func (st *state) clone() *state {
	out := newState()
	for k, p := range st.plans {
		out.plans[k] = clonePlan(p)
	}
	for k, sub := range st.subscriptions {
		out.subscriptions[k] = cloneSubscription(sub)
	}
	for k, c := range st.cycles {
		out.cycles[k] = c.Clone()
	}
	for k, ps := range st.payments {
		// Ledger entries are never modified after Create.
		out.payments[k] = append([]*payment.Payment(nil), ps...)
	}
	return out
}

func New() *Store {
	return &Store{data: newState()}
}

// accessor runs reads and writes against some copy of the state.
type accessor interface {
	read(fn func(st *state) error) error
	write(ctx context.Context, fn func(st *state) error) error
}

// read runs fn under the shared lock of the live state.
func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cyclebill.ErrStoreClosed
	}
	return fn(s.data)
}

// write runs fn as a single-statement transaction.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.transact(ctx, fn)
}

func (s *Store) transact(ctx context.Context, fn func(st *state) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return cyclebill.ErrStoreClosed
	}
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

// Transact runs fn against a private copy of the data and publishes the
// copy when fn succeeds. fn must use tx, not s; calling s from inside fn
// deadlocks on writes.
func (s *Store) Transact(ctx context.Context, fn store.TxFunc) error {
	return s.transact(ctx, func(st *state) error {
		return fn(ctx, repos{acc: txAccessor{st: st}})
	})
}

// txAccessor operates on a transaction's private copy. The writer mutex is
// already held, so no further locking is needed.
type txAccessor struct{ st *state }

func (a txAccessor) read(fn func(st *state) error) error { return fn(a.st) }

func (a txAccessor) write(_ context.Context, fn func(st *state) error) error { return fn(a.st) }

// repos binds the repositories to an accessor.
type repos struct{ acc accessor }

func (r repos) Cycles() cycle.Store               { return cycleRepo(r) }
func (r repos) Payments() payment.Store           { return paymentRepo(r) }
func (r repos) Subscriptions() subscription.Store { return subscriptionRepo(r) }
func (r repos) Plans() plan.Store                 { return planRepo(r) }

func (s *Store) Cycles() cycle.Store               { return repos{acc: s}.Cycles() }
func (s *Store) Payments() payment.Store           { return repos{acc: s}.Payments() }
func (s *Store) Subscriptions() subscription.Store { return repos{acc: s}.Subscriptions() }
func (s *Store) Plans() plan.Store                 { return repos{acc: s}.Plans() }

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cyclebill.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Further calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// page applies limit/offset to an already ordered slice.
func page[T any](items []T, limit, offset int) []T {
	start := min(offset, len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}

// sortByID orders records by their TypeID string, which is creation order.
func sortByID[T any](items []T, key func(T) string) {
	sort.Slice(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })
}
