package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/roach88/shopkeep/internal/bus"
	"github.com/roach88/shopkeep/internal/epic"
	"github.com/roach88/shopkeep/internal/ids"
	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/shop"
	"github.com/roach88/shopkeep/internal/store"
	"github.com/roach88/shopkeep/internal/testutil"
	"github.com/roach88/shopkeep/internal/transport"
)

// StepTimeout bounds each flow step, including the wait for the App to
// go idle afterwards.
const StepTimeout = 5 * time.Second

// FixedNow is the clock the App sees during a scenario.
var FixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness runs one scenario against a fresh App.
type Harness struct {
	ctx    context.Context
	app    *shop.App
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario gets its own database in a temporary directory, its own
// stub API server and its own bus. Run returns an error only when the
// scenario could not be executed; failed expectations and assertions are
// reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "shopkeep-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "harness.db"), store.WithIDGenerator(ids.NewSequence("rec")))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	api := testutil.StartFakeAPI()
	defer api.Close()
	mountStubs(api, scenario.API)

	client := transport.NewClient(
		transport.WithBaseURL(api.BaseURL()),
		transport.WithTimeout(StepTimeout),
	)
	b := bus.New(bus.WithKeyGenerator(ids.NewSequence("key")))
	trace := &tracer{}
	b.Listen(trace.record)
	app := shop.New(st, client, shop.WithBus(b), shop.WithNow(func() time.Time { return FixedNow }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = app.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	h := &Harness{
		ctx:    ctx,
		app:    app,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	result := NewResult()
	if err := h.executeSetup(scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	result.Trace = trace.snapshot()
	if err := h.collectState(result); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// mountStubs serves the scenario's canned responses. Stubs sharing a
// method and path are tried in order; the first whose query matches wins.
func mountStubs(api *testutil.FakeAPI, stubs []Stub) {
	type route struct{ method, path string }
	var order []route
	byRoute := make(map[route][]Stub)
	for _, s := range stubs {
		r := route{strings.ToUpper(s.Method), strings.TrimPrefix(s.Path, "/")}
		if _, ok := byRoute[r]; !ok {
			order = append(order, r)
		}
		byRoute[r] = append(byRoute[r], s)
	}

	for _, r := range order {
		candidates := byRoute[r]
		api.Handle(r.method, r.path, func(c echo.Context) error {
			for _, s := range candidates {
				if !queryMatches(c, s.Query) {
					continue
				}
				return serveStub(c, s)
			}
			return c.JSON(http.StatusNotFound, map[string]any{"message": "no stub for " + c.Request().URL.String()})
		})
	}
}

func queryMatches(c echo.Context, want map[string]string) bool {
	for k, v := range want {
		if c.QueryParam(k) != v {
			return false
		}
	}
	return true
}

func serveStub(c echo.Context, s Stub) error {
	if s.Delay != "" {
		d, _ := time.ParseDuration(s.Delay)
		select {
		case <-time.After(d):
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}
	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	body := s.Body
	if body == nil {
		body = map[string]any{}
	}
	return c.JSON(status, body)
}

// executeSetup seeds config entries.
func (h *Harness) executeSetup(setup []ConfigStep) error {
	for i, step := range setup {
		value, err := ir.FromAny(step.Value)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if err := h.app.Configs.Upsert(h.ctx, step.Config, value); err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		h.logger.Info("setup step completed", "step", i, "config", step.Config)
	}
	return nil
}

// executeFlow runs the flow steps in order. Every step ends with the App
// idle (or, for async dispatches, with the start delivered).
func (h *Harness) executeFlow(flow []FlowStep, result *Result) error {
	for i, step := range flow {
		ctx, cancel := context.WithTimeout(h.ctx, StepTimeout)
		err := h.executeStep(ctx, i, step, result)
		cancel()
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step FlowStep, result *Result) error {
	if step.Cancel != "" {
		if !h.app.Bus.Dispatch(ir.Cancel(ir.Kind(step.Cancel), "")) {
			return fmt.Errorf("cancel %s rejected", step.Cancel)
		}
		h.logger.Info("flow step completed", "step", i, "cancel", step.Cancel)
		return settle(ctx, h.app.Idle)
	}

	kind := ir.Kind(step.Dispatch)
	payload, err := toObject(step.Payload)
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	if step.Async {
		// Bound to the run, not the step, so the request outlives it.
		h.app.Submit(h.ctx, kind, payload)
		h.logger.Info("flow step dispatched", "step", i, "kind", kind)
		return settle(ctx, func() bool { return h.app.Bus.Pending() == 0 })
	}

	outcome, got, err := h.call(ctx, kind, payload)
	if err != nil {
		return err
	}
	h.logger.Info("flow step completed", "step", i, "kind", kind, "outcome", outcome)

	if step.Expect != nil {
		if msg := checkExpect(step.Expect, outcome, got); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, kind, msg))
		}
	}
	return settle(ctx, h.app.Idle)
}

// call runs one workflow and classifies its outcome.
func (h *Harness) call(ctx context.Context, kind ir.Kind, payload ir.Object) (string, ir.Object, error) {
	out, err := h.app.Call(ctx, kind, payload)
	if err == nil {
		return OutcomeSuccess, out, nil
	}
	var ee *epic.Error
	if errors.As(err, &ee) {
		return OutcomeError, ee.Payload, nil
	}
	return "", nil, err
}

func checkExpect(expect *ExpectClause, outcome string, payload ir.Object) string {
	if outcome != expect.Outcome {
		return fmt.Sprintf("expected outcome %s, got %s with %s", expect.Outcome, outcome, render(payload))
	}
	want, err := toObject(expect.Payload)
	if err != nil {
		return fmt.Sprintf("expected payload: %v", err)
	}
	if key, ok := subset(payload, want); !ok {
		return fmt.Sprintf("payload field %q: expected %s, got %s", key, render(want[key]), render(payload[key]))
	}
	return ""
}

// settle polls until ok holds.
func settle(ctx context.Context, ok func() bool) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for !ok() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("app did not settle: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (h *Harness) collectState(result *Result) error {
	values, err := h.app.Configs.List(h.ctx)
	if err != nil {
		return err
	}
	for _, v := range values {
		result.Configs[v.Name] = v.Value
	}
	result.Projections[h.app.Orders.Name()] = h.app.Orders.Current()
	result.Projections[h.app.User.Name()] = h.app.User.Current()
	return nil
}

// toObject converts a YAML map to an ir.Object. nil stays nil.
func toObject(m map[string]any) (ir.Object, error) {
	if m == nil {
		return nil, nil
	}
	v, err := ir.FromAny(m)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	return obj, nil
}
