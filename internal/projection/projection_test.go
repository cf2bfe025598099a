package projection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shopkeep/internal/bus"
	"github.com/roach88/shopkeep/internal/epic"
	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/testutil"
	"github.com/roach88/shopkeep/internal/transport"
)

const (
	kindList   ir.Kind = "ORDER.getList"
	kindUpdate ir.Kind = "ORDER.updateStatus"
	kindInfo   ir.Kind = "AUTH.getInfo"
	kindLogout ir.Kind = "AUTH.logout"
)

var orders = ListReducer{
	Kind:          kindList,
	ItemsField:    "orders",
	IdentityField: "id",
	UpdateKind:    kindUpdate,
	UpdateField:   "orders",
}

func item(id string) ir.Object {
	return ir.Object{"id": ir.String(id)}
}

func page(n int64, ids ...string) ir.Action {
	arr := make(ir.Array, len(ids))
	for i, id := range ids {
		arr[i] = item(id)
	}
	payload := ir.Object{"orders": arr}
	if n > 0 {
		payload["page"] = ir.Int(n)
	}
	return ir.Success(ir.Start(kindList, nil), payload)
}

func ids(s *Snapshot) []string {
	out := make([]string, len(s.Data))
	for i, o := range s.Data {
		out[i] = o.GetString("id")
	}
	return out
}

func assertGolden(t *testing.T, name string, s *Snapshot) {
	t.Helper()
	b, err := s.MarshalJSON()
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, b)
}

func TestListReducer_PaginationMerge(t *testing.T) {
	s := Fold(orders, nil, page(1, "a", "b"))
	s = Fold(orders, s, page(2, "b", "c"))

	assert.Equal(t, []string{"a", "b", "c"}, ids(s))
	assert.Nil(t, s.Error)
	assertGolden(t, "pagination", s)
}

func TestListReducer_PageOneReplaces(t *testing.T) {
	tests := []struct {
		name string
		next ir.Action
		want []string
	}{
		{"page one", page(1, "x"), []string{"x"}},
		{"page absent", page(0, "y", "z"), []string{"y", "z"}},
		{"later page appends", page(3, "a", "d"), []string{"a", "b", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Fold(orders, nil, page(1, "a", "b"))
			s = Fold(orders, s, tt.next)
			assert.Equal(t, tt.want, ids(s))
		})
	}
}

func TestListReducer_KeepsFirstSeen(t *testing.T) {
	s := Fold(orders, nil, page(1, "a"))
	dup := ir.Success(ir.Start(kindList, nil), ir.Object{
		"page":   ir.Int(2),
		"orders": ir.Array{ir.Object{"id": ir.String("a"), "status": ir.String("new")}},
	})
	s = Fold(orders, s, dup)

	require.Len(t, s.Data, 1)
	assert.Empty(t, s.Data[0].GetString("status"))
}

func TestListReducer_ErrorClears(t *testing.T) {
	s := Fold(orders, nil, page(1, "a", "b"))
	s = Fold(orders, s, ir.Failure(ir.Start(kindList, nil), ir.Object{"status": ir.Int(401)}))

	assert.NotNil(t, s.Data)
	assert.Empty(t, s.Data)
	assert.Equal(t, ir.Object{"status": ir.Int(401)}, s.Error)
	assertGolden(t, "orders_error", s)

	s = Fold(orders, s, page(1, "c"))
	assert.Nil(t, s.Error, "success clears the error")
}

func TestListReducer_UpdateReplacesByIdentity(t *testing.T) {
	s := Fold(orders, nil, page(1, "a", "b"))
	updated := ir.Object{"id": ir.String("b"), "status": ir.String("DONE")}
	s = Fold(orders, s, ir.Success(ir.Start(kindUpdate, nil), ir.Object{"orders": updated}))

	assert.Equal(t, []string{"a", "b"}, ids(s))
	assert.Equal(t, "DONE", s.Data[1].GetString("status"))
	assertGolden(t, "orders_updated", s)
}

func TestListReducer_UpdateOfUnknownItemIsNoop(t *testing.T) {
	prev := Fold(orders, nil, page(1, "a"))
	next := Fold(orders, prev, ir.Success(ir.Start(kindUpdate, nil), ir.Object{"orders": item("zz")}))
	assert.Same(t, prev, next)
}

func TestFold_Identity(t *testing.T) {
	prev := Fold(orders, nil, page(1, "a"))
	prevData := prev.Data

	next := Fold(orders, prev, page(2, "b"))
	assert.NotSame(t, prev, next)
	assert.Equal(t, prev.Version+1, next.Version)
	assert.Equal(t, []string{"a"}, ids(prev), "previous snapshot untouched")
	assert.Equal(t, prevData, prev.Data)

	same := Fold(orders, next, ir.Start(kindList, nil))
	assert.Same(t, next, same, "unhandled action keeps the snapshot")
}

func TestValueReducer(t *testing.T) {
	r := ValueReducer{Kinds: []ir.Kind{kindInfo}, ClearKinds: []ir.Kind{kindLogout}}
	user := ir.Object{"name": ir.String("An")}

	s := Fold(r, nil, ir.Success(ir.Start(kindInfo, nil), user))
	assert.Equal(t, user, s.Value)

	s = Fold(r, s, ir.Failure(ir.Start(kindInfo, nil), ir.Object{"status": ir.Int(500)}))
	assert.Nil(t, s.Value)
	assert.Equal(t, ir.Object{"status": ir.Int(500)}, s.Error)

	s = Fold(r, s, ir.Success(ir.Start(kindInfo, nil), user))
	s = Fold(r, s, ir.Success(ir.Start(kindLogout, nil), nil))
	assert.Nil(t, s.Value)
	assert.Nil(t, s.Error)
	assert.Equal(t, uint64(4), s.Version)
}

func TestProjection_Subscribe(t *testing.T) {
	p := New("orders", orders)

	var mu sync.Mutex
	var seen []*Snapshot
	cancel := p.Subscribe(func(s *Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	assert.True(t, p.Apply(page(1, "a")))
	assert.False(t, p.Apply(ir.Start(kindList, nil)))
	cancel()
	assert.True(t, p.Apply(page(2, "b")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, []string{"a"}, ids(seen[0]))
	assert.Equal(t, []string{"a", "b"}, ids(p.Current()))
}

// runOrders wires a getList epic over f and an attached projection.
func runOrders(t *testing.T, f transport.Fetcher) (*bus.Bus, *Projection) {
	t.Helper()
	b := bus.New()
	p := New("orders", orders)
	p.Attach(b)
	e := epic.New(kindList, func(ctx context.Context, call epic.Call) (epic.Result, error) {
		resp := f.Fetch(ctx, "get/auth/app/shop/orders", transport.GET, call.Payload)
		if err := resp.Err(); err != nil {
			return epic.Result{}, err
		}
		return epic.Result{Payload: call.Payload.Merge(resp.Data)}, nil
	})
	b.Register(e)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		e.Shutdown()
	})
	return b, p
}

func TestScenario_ListSuccess(t *testing.T) {
	f := testutil.NewFetcher().OK(transport.GET, "get/auth/app/shop/orders", ir.Object{
		"orders": ir.Array{ir.Object{"id": ir.Int(1)}, ir.Object{"id": ir.Int(2)}},
	})
	b, p := runOrders(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := b.Submit(ctx, kindList, "", ir.Object{"page": ir.Int(1)}).Wait(ctx)
	require.NoError(t, err)

	assert.True(t, out.OK())
	want := []ir.Object{{"id": ir.Int(1)}, {"id": ir.Int(2)}}
	assert.Equal(t, ir.Array{want[0], want[1]}, out.Payload.GetArray("orders"))
	require.Eventually(t, func() bool { return len(p.Current().Data) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, p.Current().Data)
}

func TestScenario_ListUnauthorized(t *testing.T) {
	f := testutil.NewFetcher().Fail(transport.GET, "get/auth/app/shop/orders", ir.Object{"status": ir.Int(401)})
	b, p := runOrders(t, f)
	p.Apply(page(1, "stale"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := b.Submit(ctx, kindList, "", ir.Object{"page": ir.Int(1)}).Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, ir.PhaseError, out.Phase)
	assert.Equal(t, ir.Object{"status": ir.Int(401)}, out.Payload)
	require.Eventually(t, func() bool { return p.Current().Error != nil }, time.Second, 5*time.Millisecond)
	assert.Empty(t, p.Current().Data)
	assert.Equal(t, ir.Object{"status": ir.Int(401)}, p.Current().Error)
}
