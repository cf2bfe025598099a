package shop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roach88/shopkeep/internal/configstore"
	"github.com/roach88/shopkeep/internal/epic"
	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/transport"
)

func (a *App) login(ctx context.Context, call epic.Call) (epic.Result, error) {
	params := ir.Object{}
	for _, k := range []string{"username", "password", transport.IgnoreDismissKeyboard} {
		if v, ok := call.Payload[k]; ok {
			params[k] = v
		}
	}

	data, err := a.fetch(ctx, PathLogin, transport.POST, params)
	if err != nil {
		return epic.Result{}, err
	}
	user := data.GetObject("user")
	if user == nil || user.GetString("token") == "" {
		return epic.Result{}, epic.Fail(ir.Object{
			"kind":    ir.String("ValidationError"),
			"message": ir.String("login response has no user token"),
		})
	}
	if err := a.updateLocalAuth(ctx, user); err != nil {
		return epic.Result{}, err
	}
	return epic.Result{
		Payload: data,
		Then:    []ir.Action{ir.Start(KindSilentFetch, nil)},
	}, nil
}

// updateLocalAuth installs a signed-in user: bearer token, persisted
// session and the root screen.
func (a *App) updateLocalAuth(ctx context.Context, user ir.Object) error {
	a.api.SetAuthToken(user.GetString("token"))
	if err := a.Configs.Upsert(ctx, configstore.NameUser, user); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	a.nav.Replace(RouteRootTabs)
	slog.Info("signed in", "user", user.GetString("username"))
	return nil
}

func (a *App) getInfo(ctx context.Context, call epic.Call) (epic.Result, error) {
	data, err := a.fetch(ctx, PathUserInfo, transport.GET, call.Payload)
	if err != nil {
		return epic.Result{}, err
	}
	return epic.Result{
		Payload: data,
		Then:    []ir.Action{ir.Start(KindSilentFetch, nil)},
	}, nil
}

func (a *App) logout(ctx context.Context, _ epic.Call) (epic.Result, error) {
	if err := a.clearUserInfo(ctx); err != nil {
		return epic.Result{}, err
	}
	return epic.Result{Payload: ir.Object{}}, nil
}

// clearUserInfo drops the bearer token and the persisted session.
func (a *App) clearUserInfo(ctx context.Context) error {
	a.api.ClearAuthToken()
	if err := a.Configs.Remove(ctx, configstore.NameUser); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	slog.Info("signed out")
	return nil
}

// Session returns the persisted user, nil when signed out.
func (a *App) Session(ctx context.Context) (ir.Object, error) {
	v, err := a.Configs.Get(ctx, configstore.NameUser)
	if err != nil || v == nil {
		return nil, err
	}
	user, _ := v.Value.(ir.Object)
	return user, nil
}

// RestoreSession re-installs the persisted session at startup. A token
// whose exp claim has passed is cleared instead. The token is not verified
// here; the API does that on every call. Tokens that are not JWTs are
// trusted as-is.
func (a *App) RestoreSession(ctx context.Context) (bool, error) {
	user, err := a.Session(ctx)
	if err != nil {
		return false, err
	}
	token := user.GetString("token")
	if token == "" {
		if user != nil {
			slog.Warn("persisted session has no token")
			return false, a.clearUserInfo(ctx)
		}
		return false, nil
	}

	if a.expired(token) {
		slog.Info("persisted session expired")
		return false, a.clearUserInfo(ctx)
	}
	a.api.SetAuthToken(token)
	slog.Debug("session restored", "user", user.GetString("username"))
	return true, nil
}

func (a *App) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		slog.Debug("session token is not a jwt", "error", err)
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !a.now().Before(exp.Time)
}
