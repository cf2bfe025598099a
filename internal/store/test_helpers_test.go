package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/shopkeep/internal/ids"
	"github.com/roach88/shopkeep/internal/ir"
)

// createTestStore opens a store in a temp dir with sequential ids.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithIDGenerator(ids.NewSequence("rec"))}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// createConfig inserts a config row.
func createConfig(t *testing.T, s *Store, name, json string) ir.Record {
	t.Helper()
	rec, err := s.Create(testCtx(t), TableConfig, ir.NewPatch().SetString("name", name).SetString("json", json))
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", name, err)
	}
	return rec
}

// next receives one result set or fails the test.
func next(t *testing.T, sub *Subscription) []ir.Record {
	t.Helper()
	select {
	case recs, ok := <-sub.Updates():
		if !ok {
			t.Fatal("subscription closed")
		}
		return recs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return nil
}

// names extracts the name column.
func names(recs []ir.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Fields.GetString("name")
	}
	return out
}
