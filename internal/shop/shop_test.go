package shop

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shopkeep/internal/configstore"
	"github.com/roach88/shopkeep/internal/epic"
	"github.com/roach88/shopkeep/internal/ids"
	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/store"
	"github.com/roach88/shopkeep/internal/testutil"
	"github.com/roach88/shopkeep/internal/transport"
)

type routes struct {
	mu    sync.Mutex
	seen  []string
	calls []string
}

func (r *routes) Replace(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, route)
}

func (r *routes) Show(kind ir.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "show "+string(kind))
}

func (r *routes) Hide(kind ir.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "hide "+string(kind))
}

func (r *routes) get() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...), append([]string(nil), r.calls...)
}

type fixture struct {
	app    *App
	api    *testutil.FakeAPI
	client *transport.Client
	ui     *routes
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	records, err := store.Open(filepath.Join(t.TempDir(), "shop.db"), store.WithIDGenerator(ids.NewSequence("rec")))
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	api := testutil.NewFakeAPI(t)
	client := transport.NewClient(transport.WithBaseURL(api.BaseURL()), transport.WithTimeout(time.Second))
	ui := &routes{}
	opts = append([]Option{WithNavigator(ui), WithOverlay(ui)}, opts...)
	app := New(records, client, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = app.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &fixture{app: app, api: api, client: client, ui: ui}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (f *fixture) replyValues() {
	f.api.Reply(http.MethodGet, PathUnit, http.StatusOK, map[string]any{"success": true, "units": []any{"kg", "box"}})
	f.api.Reply(http.MethodGet, PathBranch, http.StatusOK, map[string]any{"success": true, "branch": []any{map[string]any{"id": 1}}})
	f.api.Reply(http.MethodGet, PathQRCode, http.StatusOK, map[string]any{"success": true, "qrcode": map[string]any{"code": "abc"}})
}

func (f *fixture) config(t *testing.T, name string) ir.Value {
	t.Helper()
	v, err := f.app.Configs.Get(testCtx(t), name)
	require.NoError(t, err)
	if v == nil {
		return nil
	}
	return v.Value
}

func token(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "shop-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.replyValues()
	f.api.Reply(http.MethodPost, PathLogin, http.StatusOK, map[string]any{
		"success": true,
		"user":    map[string]any{"username": "an", "token": "tok-1"},
	})

	out, err := f.app.Call(testCtx(t), KindLogin, ir.Object{
		"username": ir.String("an"),
		"password": ir.String("secret"),
		"remember": ir.Bool(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", out.GetObject("user").GetString("token"))

	assert.Equal(t, "tok-1", f.client.AuthToken())
	session, err := f.app.Session(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"username": ir.String("an"), "token": ir.String("tok-1")}, session)

	seen, _ := f.ui.get()
	assert.Equal(t, []string{RouteRootTabs}, seen)

	reqs := f.api.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, map[string]any{"username": "an", "password": "secret"}, reqs[0].Body, "only credentials are sent")

	require.Eventually(t, func() bool {
		return f.config(t, configstore.NameQR) != nil &&
			f.config(t, configstore.NameUnit) != nil &&
			f.config(t, configstore.NameBranch) != nil
	}, 2*time.Second, 10*time.Millisecond, "silent fetch follows login")
	assert.Equal(t, ir.Object{"code": ir.String("abc")}, f.config(t, configstore.NameQR))
	assert.Equal(t, ir.Array{ir.String("kg"), ir.String("box")}, f.config(t, configstore.NameUnit))

	require.Eventually(t, func() bool { return f.app.User.Current().Value != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "an", f.app.User.Current().Value.GetString("username"))
}

func TestLogin_Rejected(t *testing.T) {
	f := newFixture(t)
	f.api.Reply(http.MethodPost, PathLogin, http.StatusUnauthorized, map[string]any{"success": false, "message": "bad credentials"})

	_, err := f.app.Call(testCtx(t), KindLogin, ir.Object{"username": ir.String("an"), "password": ir.String("x")})
	var ee *epic.Error
	require.ErrorAs(t, err, &ee)
	status, _ := ee.Payload.GetInt("status")
	assert.Equal(t, int64(401), status)
	assert.Equal(t, "CLIENT_ERROR", ee.Payload.GetString("problem"))
	assert.Equal(t, "bad credentials", ee.Error())

	assert.Empty(t, f.client.AuthToken())
	assert.Nil(t, f.config(t, configstore.NameUser))
	seen, _ := f.ui.get()
	assert.Empty(t, seen)
}

func TestLogin_ResponseWithoutToken(t *testing.T) {
	f := newFixture(t)
	f.api.Reply(http.MethodPost, PathLogin, http.StatusOK, map[string]any{"success": true, "user": map[string]any{"username": "an"}})

	_, err := f.app.Call(testCtx(t), KindLogin, ir.Object{"username": ir.String("an")})
	var ee *epic.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "ValidationError", ee.Payload.GetString("kind"))
}

func TestGetInfo(t *testing.T) {
	f := newFixture(t)
	f.replyValues()
	f.api.Reply(http.MethodGet, PathUserInfo, http.StatusOK, map[string]any{
		"success": true,
		"user":    map[string]any{"username": "an", "shop": "S1"},
	})

	out, err := f.app.Call(testCtx(t), KindGetInfo, nil)
	require.NoError(t, err)
	assert.Equal(t, "S1", out.GetObject("user").GetString("shop"))

	_, overlay := f.ui.get()
	assert.Equal(t, []string{"show AUTH.getInfo", "hide AUTH.getInfo"}, overlay)
	require.Eventually(t, func() bool { return f.config(t, configstore.NameQR) != nil }, 2*time.Second, 10*time.Millisecond)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.client.SetAuthToken("tok-1")
	require.NoError(t, f.app.Configs.Upsert(testCtx(t), configstore.NameUser, map[string]any{"token": "tok-1"}))

	_, err := f.app.Call(testCtx(t), KindLogout, nil)
	require.NoError(t, err)

	assert.Empty(t, f.client.AuthToken())
	assert.Nil(t, f.config(t, configstore.NameUser))
	require.Eventually(t, func() bool { return f.app.User.Current().Version > 0 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, f.app.User.Current().Value)
}

func orderPage(numbers ...int) echo.HandlerFunc {
	orders := make([]any, len(numbers))
	for i, id := range numbers {
		orders[i] = map[string]any{"order_id": id, "status": "NEW"}
	}
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"success": true, "orders": orders})
	}
}

func orderIDs(t *testing.T, f *fixture) []int64 {
	t.Helper()
	data := f.app.Orders.Current().Data
	out := make([]int64, len(data))
	for i, o := range data {
		out[i], _ = o.GetInt("order_id")
	}
	return out
}

func TestOrders_PaginateAndUpdate(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	pages := map[string][]int{"1": {1, 2}, "2": {2, 3}}
	f.api.Handle(http.MethodGet, PathOrders, func(c echo.Context) error {
		mu.Lock()
		got := pages[c.QueryParam("page")]
		mu.Unlock()
		return orderPage(got...)(c)
	})
	f.api.Reply(http.MethodPost, PathUpdateStatus, http.StatusOK, map[string]any{
		"success": true,
		"orders":  map[string]any{"order_id": 2, "status": "DONE"},
	})

	_, err := f.app.Call(testCtx(t), KindOrders, ir.Object{"page": ir.Int(1)})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(orderIDs(t, f)) == 2 }, time.Second, 5*time.Millisecond)

	out, err := f.app.Call(testCtx(t), KindOrders, ir.Object{"page": ir.Int(2)})
	require.NoError(t, err)
	page, _ := out.GetInt("page")
	assert.Equal(t, int64(2), page, "request params are echoed in the success payload")
	require.Eventually(t, func() bool { return len(orderIDs(t, f)) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3}, orderIDs(t, f))

	_, err = f.app.Call(testCtx(t), KindUpdateStatus, ir.Object{"order_id": ir.Int(2), "status": ir.String("DONE")})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.app.Orders.Current().Data[1].GetString("status") == "DONE"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3}, orderIDs(t, f))

	reqs := f.api.Requests()
	assert.Equal(t, "20", reqs[0].Query.Get("pageSize"))
}

func TestOrders_ErrorClearsList(t *testing.T) {
	f := newFixture(t)
	var down atomic.Bool
	f.api.Handle(http.MethodGet, PathOrders, func(c echo.Context) error {
		if down.Load() {
			return c.JSON(http.StatusInternalServerError, map[string]any{"message": "down"})
		}
		return orderPage(7)(c)
	})

	_, err := f.app.Call(testCtx(t), KindOrders, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(orderIDs(t, f)) == 1 }, time.Second, 5*time.Millisecond)

	down.Store(true)
	_, err = f.app.Call(testCtx(t), KindOrders, nil)
	require.Error(t, err)

	require.Eventually(t, func() bool { return f.app.Orders.Current().Error != nil }, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.app.Orders.Current().Data)
	assert.Equal(t, "SERVER_ERROR", f.app.Orders.Current().Error.GetString("problem"))
}

func TestSilentFetch_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.api.Reply(http.MethodGet, PathUnit, http.StatusOK, map[string]any{"success": true, "units": []any{"kg"}})
	f.api.Reply(http.MethodGet, PathBranch, http.StatusInternalServerError, map[string]any{})
	f.api.Reply(http.MethodGet, PathQRCode, http.StatusOK, map[string]any{"success": true, "qrcode": "q-1"})

	out, err := f.app.Call(testCtx(t), KindSilentFetch, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Array{ir.String("unit"), ir.String("qr")}, out.GetArray("saved"))

	assert.Equal(t, ir.Array{ir.String("kg")}, f.config(t, configstore.NameUnit))
	assert.Equal(t, ir.String("q-1"), f.config(t, configstore.NameQR))
	assert.Nil(t, f.config(t, configstore.NameBranch))

	for _, r := range f.api.Requests() {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotContains(t, r.Query, transport.IgnoreDismissKeyboard)
	}
}

func TestRestoreSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		user      map[string]any
		wantOK    bool
		wantToken string
		wantKept  bool
	}{
		{"no session", nil, false, "", false},
		{"valid jwt", map[string]any{"token": token(t, now.Add(time.Hour))}, true, "", true},
		{"expired jwt", map[string]any{"token": token(t, now.Add(-time.Minute))}, false, "", false},
		{"opaque token", map[string]any{"token": "opaque"}, true, "opaque", true},
		{"missing token", map[string]any{"username": "an"}, false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithNow(func() time.Time { return now }))
			if tt.user != nil {
				require.NoError(t, f.app.Configs.Upsert(testCtx(t), configstore.NameUser, tt.user))
			}

			ok, err := f.app.RestoreSession(testCtx(t))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)

			if tt.wantOK {
				want := tt.wantToken
				if want == "" {
					want = tt.user["token"].(string)
				}
				assert.Equal(t, want, f.client.AuthToken())
			} else {
				assert.Empty(t, f.client.AuthToken())
			}
			assert.Equal(t, tt.wantKept, f.config(t, configstore.NameUser) != nil)
		})
	}
}

func TestCall_Canceled(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.api.Handle(http.MethodGet, PathOrders, func(c echo.Context) error {
		select {
		case <-release:
		case <-c.Request().Context().Done():
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "orders": []any{}})
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := f.app.Call(ctx, KindOrders, nil)
	require.Error(t, err)
	assert.Equal(t, uint64(0), f.app.Orders.Current().Version, "canceled request never reaches the projection")
}
