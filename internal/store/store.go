package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/shopkeep/internal/ids"
	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/queue"
)

// Store is the reactive record store.
//
// One goroutine (the actor) owns the database. Every operation is a job on
// a FIFO queue, so writes are applied in submission order and observers are
// notified in commit order, before the writing caller gets its reply.
//
// Thread-safety model:
//   - all exported methods: safe from any goroutine
//   - job bodies: run only on the actor goroutine
type Store struct {
	db     *sql.DB
	schema AppSchema
	ids    ids.Generator
	clock  *seqClock

	jobs    *queue.FIFO[*job]
	stopped chan struct{}

	subsMu sync.Mutex
	subs   map[string]map[uint64]*Subscription // table -> id -> sub
	nextID uint64

	// dirty collects tables written by the running job. Actor-only.
	dirty map[string]struct{}

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Store.
type Option func(*Store)

// WithSchema replaces DefaultSchema.
func WithSchema(schema AppSchema) Option {
	return func(s *Store) {
		s.schema = schema
	}
}

// WithIDGenerator sets the record id generator (default: UUIDv7).
func WithIDGenerator(gen ids.Generator) Option {
	return func(s *Store) {
		s.ids = gen
	}
}

// Open creates or opens the SQLite database at path, applies pragmas and the
// schema (migrating or resetting as the version dictates), and starts the
// actor.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		schema:  DefaultSchema(),
		ids:     ids.UUIDv7{},
		jobs:    queue.New[*job](),
		stopped: make(chan struct{}),
		subs:    make(map[string]map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(s)
	}

	if errs := s.schema.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid schema: %w", errors.Join(validationErrors(errs)...))
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time and the actor is the only user.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	ctx := context.Background()
	if err := applySchema(ctx, db, s.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.db = db
	maxSeq, err := s.maxSeq(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read clock: %w", err)
	}
	s.clock = resumeClock(maxSeq)

	go s.run()

	slog.Debug("store opened", "path", path, "schema_version", s.schema.Version)
	return s, nil
}

// Close stops the actor after it drains queued jobs, cancels every
// subscription and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.jobs.Close()
		<-s.stopped

		s.subsMu.Lock()
		var all []*Subscription
		for _, byID := range s.subs {
			for _, sub := range byID {
				all = append(all, sub)
			}
		}
		s.subs = make(map[string]map[uint64]*Subscription)
		s.subsMu.Unlock()

		for _, sub := range all {
			sub.close()
		}

		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Schema returns the schema the store was opened with.
func (s *Store) Schema() AppSchema {
	return s.schema
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// maxSeq returns the highest seq across all tables so the clock resumes
// after a restart and insertion order stays monotonic.
func (s *Store) maxSeq(ctx context.Context) (int64, error) {
	var highest int64
	for _, t := range s.schema.Tables {
		var n sql.NullInt64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT MAX(seq) FROM %q", t.Name)).Scan(&n); err != nil {
			return 0, fmt.Errorf("max seq %s: %w", t.Name, err)
		}
		if n.Valid && n.Int64 > highest {
			highest = n.Int64
		}
	}
	return highest, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

func validationErrors(errs []ir.ValidationError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}
