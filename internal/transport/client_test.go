package transport_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/testutil"
	"github.com/roach88/shopkeep/internal/transport"
)

func newClient(api *testutil.FakeAPI, opts ...transport.Option) *transport.Client {
	return transport.NewClient(append([]transport.Option{transport.WithBaseURL(api.BaseURL())}, opts...)...)
}

func TestFetch_Success(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Reply(http.MethodGet, "get/auth/app/shop/orders", http.StatusOK, map[string]any{
		"success": true,
		"orders":  []any{map[string]any{"id": 1}},
	})

	resp := newClient(api).Fetch(context.Background(), "get/auth/app/shop/orders", transport.GET, nil)

	require.True(t, resp.OK)
	assert.Equal(t, ir.Object{"orders": ir.Array{ir.Object{"id": ir.Int(1)}}}, resp.Data, "success removed")
	assert.NoError(t, resp.Err())
}

func TestFetch_GetPagination(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Reply(http.MethodGet, "list", http.StatusOK, map[string]any{"success": true})
	c := newClient(api, transport.WithPageSize(50))
	ctx := context.Background()

	c.Fetch(ctx, "list", transport.GET, nil)
	c.Fetch(ctx, "list", transport.GET, ir.Object{"page": ir.Int(3), "status": ir.String("NEW"), "pageSize": ir.Int(5)})

	reqs := api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "1", reqs[0].Query.Get("page"))
	assert.Equal(t, "50", reqs[0].Query.Get("pageSize"))
	assert.Equal(t, "3", reqs[1].Query.Get("page"))
	assert.Equal(t, "50", reqs[1].Query.Get("pageSize"), "client page size wins")
	assert.Equal(t, "NEW", reqs[1].Query.Get("status"))
}

func TestFetch_PostBodyAndAuth(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Reply(http.MethodPost, "auth/login", http.StatusOK, map[string]any{"success": true, "token": "abc"})
	c := newClient(api)

	c.SetAuthToken("tok")
	resp := c.Fetch(context.Background(), "auth/login", transport.POST, ir.Object{
		"username":                      ir.String("u"),
		transport.IgnoreDismissKeyboard: ir.Bool(true),
	})
	require.True(t, resp.OK)

	c.ClearAuthToken()
	c.Fetch(context.Background(), "auth/login", transport.POST, nil)

	reqs := api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, map[string]any{"username": "u"}, reqs[0].Body, "ignore flag never sent")
	assert.Equal(t, "Bearer tok", reqs[0].Auth)
	assert.Empty(t, reqs[1].Auth)
}

func TestFetch_KeyboardDismiss(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Reply(http.MethodGet, "x", http.StatusOK, map[string]any{"success": true})
	var dismissed atomic.Int32
	c := newClient(api, transport.WithKeyboardDismisser(transport.DismissFunc(func() { dismissed.Add(1) })))
	ctx := context.Background()

	c.Fetch(ctx, "x", transport.GET, nil)
	c.Fetch(ctx, "x", transport.GET, ir.Object{transport.IgnoreDismissKeyboard: ir.Bool(true)})

	assert.Equal(t, int32(1), dismissed.Load())
}

func TestFetch_Failures(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Reply(http.MethodGet, "unauthorized", http.StatusUnauthorized, map[string]any{"message": "expired"})
	api.Reply(http.MethodGet, "broken", http.StatusInternalServerError, map[string]any{})
	api.Reply(http.MethodGet, "refused", http.StatusOK, map[string]any{"success": false, "code": "E1"})
	c := newClient(api)
	ctx := context.Background()

	tests := []struct {
		path string
		want ir.Object
	}{
		{"unauthorized", ir.Object{"message": ir.String("expired"), "status": ir.Int(401), "problem": ir.String("CLIENT_ERROR")}},
		{"broken", ir.Object{"status": ir.Int(500), "problem": ir.String("SERVER_ERROR")}},
		{"refused", ir.Object{"success": ir.Bool(false), "code": ir.String("E1"), "status": ir.Int(200)}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := c.Fetch(ctx, tt.path, transport.GET, nil)
			assert.False(t, resp.OK)
			assert.Equal(t, tt.want, resp.Error)
		})
	}

	var te *transport.TransportError
	require.ErrorAs(t, c.Fetch(ctx, "unauthorized", transport.GET, nil).Err(), &te)
	assert.Equal(t, 401, te.Status)
	assert.Equal(t, transport.ClientError, te.Problem)
	assert.Equal(t, "transport: CLIENT_ERROR (status 401)", te.Error())
}

func TestFetch_Timeout(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Handle(http.MethodGet, "slow", func(c echo.Context) error {
		select {
		case <-c.Request().Context().Done():
		case <-time.After(2 * time.Second):
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true})
	})
	c := newClient(api, transport.WithTimeout(50*time.Millisecond))

	resp := c.Fetch(context.Background(), "slow", transport.GET, nil)

	assert.False(t, resp.OK)
	assert.Equal(t, "TIMEOUT_ERROR", resp.Error.GetString("problem"))
}

func TestFetch_ConnectionRefused(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	base := api.BaseURL()
	api.Server.Close()

	resp := transport.NewClient(transport.WithBaseURL(base)).Fetch(context.Background(), "x", transport.GET, nil)

	assert.False(t, resp.OK)
	assert.Equal(t, "CONNECTION_ERROR", resp.Error.GetString("problem"))
}
