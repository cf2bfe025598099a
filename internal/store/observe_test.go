package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shopkeep/internal/ir"
)

func TestObserve_InitialAndUpdates(t *testing.T) {
	s := createTestStore(t)
	ctx := testCtx(t)
	createConfig(t, s, "user", "{}")

	sub, err := s.Observe(ctx, TableConfig, All())
	require.NoError(t, err)
	defer sub.Cancel()

	assert.Equal(t, []string{"user"}, names(next(t, sub)))

	createConfig(t, s, "units", "[]")
	assert.Equal(t, []string{"user", "units"}, names(next(t, sub)))

	rec := createConfig(t, s, "branch", "{}")
	assert.Equal(t, []string{"user", "units", "branch"}, names(next(t, sub)))

	_, err = s.Destroy(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "units"}, names(next(t, sub)))
}

func TestObserve_FilteredQueryStillReemits(t *testing.T) {
	s := createTestStore(t)
	ctx := testCtx(t)

	sub, err := s.Observe(ctx, TableConfig, Where("name", Eq, ir.String("user")))
	require.NoError(t, err)
	defer sub.Cancel()

	assert.Empty(t, next(t, sub))

	createConfig(t, s, "units", "[]")
	assert.Empty(t, next(t, sub), "every write to the table re-emits")

	createConfig(t, s, "user", "{}")
	assert.Equal(t, []string{"user"}, names(next(t, sub)))
}

func TestObserve_OtherTableDoesNotNotify(t *testing.T) {
	s := createTestStore(t)
	ctx := testCtx(t)

	sub, err := s.Observe(ctx, TableFeature, All())
	require.NoError(t, err)
	defer sub.Cancel()
	next(t, sub)

	createConfig(t, s, "user", "{}")

	select {
	case recs := <-sub.Updates():
		t.Fatalf("unexpected update: %v", recs)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestObserve_DeliveredBeforeWriterReturns(t *testing.T) {
	s := createTestStore(t)
	ctx := testCtx(t)

	sub, err := s.Observe(ctx, TableConfig, All())
	require.NoError(t, err)
	defer sub.Cancel()
	next(t, sub)

	createConfig(t, s, "user", "{}")

	// Already in the mailbox when Create returns.
	select {
	case recs := <-sub.Updates():
		assert.Len(t, recs, 1)
	case <-time.After(time.Second):
		t.Fatal("update not buffered when Create returned")
	}
}

func TestObserve_CommitOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := testCtx(t)

	sub, err := s.Observe(ctx, TableFeature, All())
	require.NoError(t, err)
	defer sub.Cancel()
	next(t, sub)

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, TableFeature, ir.NewPatch().SetString("name", "f"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for want := 1; want <= writers; want++ {
		assert.Len(t, next(t, sub), want, "each emission reflects one more commit")
	}
}

func TestObserve_BatchNotifiesOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := testCtx(t)

	sub, err := s.Observe(ctx, TableConfig, All())
	require.NoError(t, err)
	defer sub.Cancel()
	next(t, sub)

	err = s.Batch(ctx, func(ctx context.Context, tx *Tx) error {
		for _, name := range []string{"unit", "branch", "qrcode"} {
			if _, err := tx.Create(ctx, TableConfig, ir.NewPatch().SetString("name", name)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, next(t, sub), 3)
	select {
	case recs := <-sub.Updates():
		t.Fatalf("unexpected second update: %v", recs)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestObserve_FailedBatchDoesNotNotify(t *testing.T) {
	s := createTestStore(t)
	ctx := testCtx(t)

	sub, err := s.Observe(ctx, TableConfig, All())
	require.NoError(t, err)
	defer sub.Cancel()
	next(t, sub)

	_ = s.Batch(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.Create(ctx, TableConfig, ir.NewPatch().SetString("name", "unit")); err != nil {
			return err
		}
		_, err := tx.Create(ctx, TableConfig, ir.NewPatch().SetString("nope", "x"))
		return err
	})

	select {
	case recs := <-sub.Updates():
		t.Fatalf("unexpected update: %v", recs)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestObserve_Cancel(t *testing.T) {
	s := createTestStore(t)
	ctx := testCtx(t)

	sub, err := s.Observe(ctx, TableConfig, All())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Subscriptions())

	sub.Cancel()
	sub.Cancel()
	assert.Equal(t, 0, s.Subscriptions())

	createConfig(t, s, "user", "{}")

	select {
	case _, ok := <-sub.Updates():
		assert.False(t, ok, "channel closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestObserve_CloseEndsSubscriptions(t *testing.T) {
	s := createTestStore(t)

	sub, err := s.Observe(testCtx(t), TableConfig, All())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Updates():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed by Store.Close")
		}
	}
}

func TestObserve_InvalidQuery(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Observe(testCtx(t), TableConfig, Where("nope", Eq, ir.String("x")))
	var ve ir.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, 0, s.Subscriptions())
}

func TestObserveRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := testCtx(t)
	rec := createConfig(t, s, "user", `{"a":1}`)
	createConfig(t, s, "units", "[]")

	sub, err := s.ObserveRecord(ctx, rec.ID)
	require.NoError(t, err)
	defer sub.Cancel()

	first := next(t, sub)
	require.Len(t, first, 1)
	assert.Equal(t, rec.ID, first[0].ID)

	_, err = s.Update(ctx, rec.ID, func(ir.Object) (ir.Patch, error) {
		return ir.NewPatch().SetString("json", `{"a":2}`), nil
	})
	require.NoError(t, err)
	updated := next(t, sub)
	require.Len(t, updated, 1)
	assert.Equal(t, `{"a":2}`, updated[0].Fields.GetString("json"))

	_, err = s.Destroy(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, next(t, sub))
}

func TestObserveRecord_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ObserveRecord(testCtx(t), "missing")
	assert.True(t, IsNotFound(err))
}

func TestObserve_AbandonedWhileQueued(t *testing.T) {
	tests := []struct {
		name    string
		observe func(ctx context.Context, s *Store, id string) (*Subscription, error)
	}{
		{"query", func(ctx context.Context, s *Store, _ string) (*Subscription, error) {
			return s.Observe(ctx, TableConfig, All())
		}},
		{"record", func(ctx context.Context, s *Store, id string) (*Subscription, error) {
			return s.ObserveRecord(ctx, id)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t)
			rec := createConfig(t, s, "user", "{}")

			started := make(chan struct{})
			release := make(chan struct{})
			batchDone := make(chan error, 1)
			go func() {
				batchDone <- s.Batch(context.Background(), func(ctx context.Context, tx *Tx) error {
					close(started)
					<-release
					return nil
				})
			}()
			<-started

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			sub, err := tt.observe(ctx, s, rec.ID)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Nil(t, sub)

			close(release)
			require.NoError(t, <-batchDone)

			// Any write is queued behind the abandoned registration.
			createConfig(t, s, "unit", "[]")
			assert.Equal(t, 0, s.Subscriptions())
		})
	}
}
