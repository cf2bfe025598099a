package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/queue"
)

// Subscription is a live query. Updates delivers the full current result
// set once on registration and again after every committed write to the
// subscription's table, in commit order.
//
// Results are buffered without bound, so a slow reader never blocks the
// store. Cancel (or Store.Close) closes the Updates channel.
type Subscription struct {
	id    uint64
	table string
	query Query
	store *Store

	mailbox *queue.FIFO[[]ir.Record]
	out     chan []ir.Record
	done    chan struct{}
	once    sync.Once
}

// Updates returns the channel of result sets.
func (sub *Subscription) Updates() <-chan []ir.Record {
	return sub.out
}

// Table returns the observed table.
func (sub *Subscription) Table() string {
	return sub.table
}

// Cancel stops delivery and unregisters the subscription. Idempotent.
// Results already buffered but not yet received are dropped.
func (sub *Subscription) Cancel() {
	if sub.store != nil {
		sub.store.removeSub(sub)
	}
	sub.close()
}

func (sub *Subscription) close() {
	sub.once.Do(func() {
		close(sub.done)
		sub.mailbox.Close()
	})
}

func (sub *Subscription) deliver(records []ir.Record) {
	sub.mailbox.Enqueue(records)
}

// pump moves results from the mailbox to the out channel.
func (sub *Subscription) pump() {
	defer close(sub.out)
	for {
		if records, ok := sub.mailbox.TryDequeue(); ok {
			select {
			case sub.out <- records:
			case <-sub.done:
				return
			}
			continue
		}

		select {
		case <-sub.done:
			return
		case <-sub.mailbox.Wait():
		}
	}
}

// Observe registers a live query on table. The first result set is
// delivered before Observe returns (buffered in the subscription).
//
// The query is validated up front; an invalid query returns
// ir.ValidationError and no subscription.
func (s *Store) Observe(ctx context.Context, table string, q Query) (*Subscription, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	if _, err := compileQuery(t, q); err != nil {
		return nil, err
	}

	return s.observe(ctx, func(ctx context.Context) (*Subscription, error) {
		return s.subscribe(ctx, t.Name, q), nil
	})
}

// ObserveRecord observes a single record by id. Each update holds the
// record, or is empty once the record has been destroyed.
//
// Returns *NotFoundError if the id does not exist at registration time.
func (s *Store) ObserveRecord(ctx context.Context, id string) (*Subscription, error) {
	return s.observe(ctx, func(ctx context.Context) (*Subscription, error) {
		rec, err := s.find(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		return s.subscribe(ctx, rec.Table, ByID(id)), nil
	})
}

// observe runs register on the actor and hands the subscription to the
// caller. A caller that gave up waiting never sees its subscription, so one
// registered anyway is canceled by a follow-up job queued behind the
// registration.
func (s *Store) observe(ctx context.Context, register func(ctx context.Context) (*Subscription, error)) (*Subscription, error) {
	var sub *Subscription
	err := s.do(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		sub, err = register(ctx)
		return err
	})
	if err == nil {
		return sub, nil
	}
	if ctx.Err() != nil {
		s.jobs.Enqueue(&job{
			ctx: context.Background(),
			run: func(context.Context) error {
				if sub != nil {
					sub.Cancel()
				}
				return nil
			},
			done: make(chan error, 1),
		})
	}
	return nil, err
}

// subscribe registers and primes a subscription. Actor-only, so no write
// can commit between the registration and the initial result set.
func (s *Store) subscribe(ctx context.Context, table string, q Query) *Subscription {
	sub := &Subscription{
		table:   table,
		query:   q,
		store:   s,
		mailbox: queue.New[[]ir.Record](),
		out:     make(chan []ir.Record),
		done:    make(chan struct{}),
	}

	s.subsMu.Lock()
	s.nextID++
	sub.id = s.nextID
	byID, ok := s.subs[table]
	if !ok {
		byID = make(map[uint64]*Subscription)
		s.subs[table] = byID
	}
	byID[sub.id] = sub
	s.subsMu.Unlock()

	go sub.pump()
	s.emit(ctx, sub)

	slog.Debug("subscription registered", "table", table, "query", q.String(), "sub_id", sub.id)
	return sub
}

func (s *Store) removeSub(sub *Subscription) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if byID, ok := s.subs[sub.table]; ok {
		delete(byID, sub.id)
		if len(byID) == 0 {
			delete(s.subs, sub.table)
		}
	}
}

// subscribers returns the table's subscriptions in registration order.
func (s *Store) subscribers(table string) []*Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	byID := s.subs[table]
	out := make([]*Subscription, 0, len(byID))
	for _, sub := range byID {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	n := 0
	for _, byID := range s.subs {
		n += len(byID)
	}
	return n
}
