package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
)

// querier is satisfied by both *sql.DB and *sql.Tx so each operation is
// written once and reused inside Batch.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// job is one unit of work for the actor.
type job struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error // buffered, size 1
}

// do submits fn to the actor and waits for its result.
//
// If ctx ends while waiting, do returns ctx.Err() but the job still runs
// (with the canceled context, so most statements fail fast). A write that
// already committed is not undone.
func (s *Store) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &job{ctx: ctx, run: fn, done: make(chan error, 1)}
	if !s.jobs.Enqueue(j) {
		return ErrClosed
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the actor loop. It exits once Close has been called and every
// queued job has been executed.
func (s *Store) run() {
	defer close(s.stopped)
	slog.Debug("store actor starting")

	for {
		j, ok := s.jobs.Dequeue()
		if !ok {
			slog.Debug("store actor stopping: queue closed")
			return
		}
		s.execute(j)
	}
}

// execute runs one job and, if it committed writes, notifies observers of
// every touched table before replying. Observers therefore see writes in
// commit order and a caller whose write returned can rely on its
// subscriptions having been fed.
func (s *Store) execute(j *job) {
	s.dirty = make(map[string]struct{})

	err := s.safeRun(j)

	dirty := s.dirty
	s.dirty = nil

	if err == nil && len(dirty) > 0 {
		tables := make([]string, 0, len(dirty))
		for t := range dirty {
			tables = append(tables, t)
		}
		slices.Sort(tables)
		s.notify(tables)
	}

	j.done <- err
}

// safeRun converts a panic inside a job into an error so one bad caller
// cannot stop the actor.
func (s *Store) safeRun(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("store job panicked", "panic", r)
			err = fmt.Errorf("store job panicked: %v", r)
		}
	}()
	return j.run(j.ctx)
}

// markDirty records that the running job wrote to table. Actor-only.
func (s *Store) markDirty(table string) {
	if s.dirty != nil {
		s.dirty[table] = struct{}{}
	}
}

// notify re-runs each subscription's query on the given tables and delivers
// the full result set. No diffing: every committed write re-emits.
func (s *Store) notify(tables []string) {
	ctx := context.Background()
	for _, table := range tables {
		for _, sub := range s.subscribers(table) {
			s.emit(ctx, sub)
		}
	}
}

func (s *Store) emit(ctx context.Context, sub *Subscription) {
	records, err := s.queryRecords(ctx, s.db, sub.table, sub.query)
	if err != nil {
		slog.Error("subscription query failed",
			"table", sub.table,
			"query", sub.query.String(),
			"error", err,
		)
		return
	}
	sub.deliver(records)
}
