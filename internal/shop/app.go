// Package shop wires the shop workflows: the local stores, the action bus,
// the remote API and the projections the screens read.
package shop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/shopkeep/internal/bus"
	"github.com/roach88/shopkeep/internal/configstore"
	"github.com/roach88/shopkeep/internal/epic"
	"github.com/roach88/shopkeep/internal/featurestore"
	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/projection"
	"github.com/roach88/shopkeep/internal/store"
	"github.com/roach88/shopkeep/internal/transport"
)

// Workflow kinds.
const (
	KindLogin        ir.Kind = "AUTH.login"
	KindGetInfo      ir.Kind = "AUTH.getInfo"
	KindLogout       ir.Kind = "AUTH.logout"
	KindOrders       ir.Kind = "ORDER.getList"
	KindUpdateStatus ir.Kind = "ORDER.updateStatus"
	KindSilentFetch  ir.Kind = "VALUES.silentFetch"
)

// API paths, relative to the client's base URL.
const (
	PathLogin        = "auth/login"
	PathUserInfo     = "get/auth/app/userinfo"
	PathOrders       = "get/auth/app/shop/orders"
	PathUpdateStatus = "set/app/update/status/order"
	PathUnit         = "get/auth/app/unit"
	PathBranch       = "get/auth/app/shop/branch"
	PathQRCode       = "get/auth/app/shop/qrcode"
)

// Routes passed to the Navigator.
const (
	RouteRootTabs = "_rootTabs"
	RouteLogin    = "login"
)

// API is the remote capability the workflows need. *transport.Client
// implements it.
type API interface {
	transport.Fetcher
	SetAuthToken(token string)
	ClearAuthToken()
}

// Navigator switches the visible screen.
type Navigator interface {
	Replace(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

// Replace calls f.
func (f NavigatorFunc) Replace(route string) { f(route) }

type noopNavigator struct{}

func (noopNavigator) Replace(string) {}

// Option configures an App.
type Option func(*App)

// WithNavigator installs the navigation capability.
func WithNavigator(n Navigator) Option {
	return func(a *App) {
		a.nav = n
	}
}

// WithOverlay installs the loading overlay shown by getInfo and
// updateStatus.
func WithOverlay(o epic.Overlay) Option {
	return func(a *App) {
		a.overlay = o
	}
}

// WithBus replaces the default bus.
func WithBus(b *bus.Bus) Option {
	return func(a *App) {
		a.Bus = b
	}
}

// WithNow replaces time.Now for session expiry checks.
func WithNow(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// App owns the shop's components.
type App struct {
	Records  *store.Store
	Configs  *configstore.Store
	Features *featurestore.Store
	Bus      *bus.Bus

	// Orders is the paginated order list; User the signed-in user.
	Orders *projection.Projection
	User   *projection.Projection

	api     API
	nav     Navigator
	overlay epic.Overlay
	now     func() time.Time
	epics   []*epic.Epic
}

// New wires an App over an open record store and an API client. Call Run
// to start processing actions.
func New(records *store.Store, api API, opts ...Option) *App {
	a := &App{
		Records:  records,
		Configs:  configstore.New(records),
		Features: featurestore.New(records),
		api:      api,
		nav:      noopNavigator{},
		now:      time.Now,
		Orders: projection.New("orders", projection.ListReducer{
			Kind:          KindOrders,
			ItemsField:    "orders",
			IdentityField: "order_id",
			UpdateKind:    KindUpdateStatus,
			UpdateField:   "orders",
		}),
		User: projection.New("user", projection.ValueReducer{
			Kinds:      []ir.Kind{KindLogin, KindGetInfo},
			Field:      "user",
			ClearKinds: []ir.Kind{KindLogout},
		}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Bus == nil {
		a.Bus = bus.New()
	}

	var overlay []epic.Option
	if a.overlay != nil {
		overlay = append(overlay, epic.WithOverlay(a.overlay))
	}
	a.epics = []*epic.Epic{
		epic.New(KindLogin, a.login),
		epic.New(KindGetInfo, a.getInfo, overlay...),
		epic.New(KindLogout, a.logout),
		epic.New(KindOrders, a.getList),
		epic.New(KindUpdateStatus, a.updateStatus, overlay...),
		epic.New(KindSilentFetch, a.silentFetch),
	}
	for _, e := range a.epics {
		a.Bus.Register(e)
	}
	a.Orders.Attach(a.Bus)
	a.User.Attach(a.Bus)
	return a
}

// Run delivers actions until ctx ends or the bus is stopped, then cancels
// whatever is still in flight.
func (a *App) Run(ctx context.Context) error {
	defer a.shutdown()
	return a.Bus.Run(ctx)
}

func (a *App) shutdown() {
	for _, e := range a.epics {
		e.Shutdown()
	}
	slog.Debug("shop stopped")
}

// Idle reports whether no action is queued and no request is running.
func (a *App) Idle() bool {
	if a.Bus.Pending() > 0 {
		return false
	}
	for _, e := range a.epics {
		if e.InFlight() > 0 {
			return false
		}
	}
	return true
}

// Submit starts a workflow. See bus.Bus.Submit.
func (a *App) Submit(ctx context.Context, kind ir.Kind, payload ir.Object) *bus.Request {
	return a.Bus.Submit(ctx, kind, "", payload)
}

// Call submits a workflow and waits for its outcome. An error outcome is
// returned as an *epic.Error carrying the payload.
func (a *App) Call(ctx context.Context, kind ir.Kind, payload ir.Object) (ir.Object, error) {
	out, err := a.Submit(ctx, kind, payload).Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	if !out.OK() {
		return nil, &epic.Error{Payload: out.Payload}
	}
	return out.Payload, nil
}

// fetch calls the API and converts a failed response to its error.
func (a *App) fetch(ctx context.Context, path string, method transport.Method, params ir.Object) (ir.Object, error) {
	resp := a.api.Fetch(ctx, path, method, params)
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
