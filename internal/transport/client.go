package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roach88/shopkeep/internal/ir"
)

// Defaults of the shop API.
const (
	DefaultBaseURL  = "https://admin-shop.babaza.vn/api/v1/"
	DefaultTimeout  = 60 * time.Second
	DefaultPageSize = 20
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 8 << 20

// Client is the net/http Fetcher for the shop API.
//
// Every call has an absolute timeout. GET calls carry pagination
// (pageSize and page, default 1) as query parameters; other methods send
// params as a JSON body. A call is OK iff the status is 200 and the body
// has success == true; success is removed from Data.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	timeout  time.Duration
	pageSize int
	keyboard KeyboardDismisser

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API root. A trailing slash is added if missing.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			slog.Warn("ignoring invalid base url", "url", raw, "error", err)
			return
		}
		c.baseURL = u
	}
}

// WithTimeout sets the absolute per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPageSize sets the pageSize sent on GET calls.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithKeyboardDismisser installs the keyboard capability.
func WithKeyboardDismisser(k KeyboardDismisser) Option {
	return func(c *Client) {
		c.keyboard = k
	}
}

// NewClient returns a client with the shop API defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{},
		timeout:  DefaultTimeout,
		pageSize: DefaultPageSize,
	}
	WithBaseURL(DefaultBaseURL)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAuthToken sends "Authorization: Bearer <token>" on later calls.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearAuthToken stops sending the Authorization header.
func (c *Client) ClearAuthToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// AuthToken returns the current token, "" when none.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// PageSize returns the pageSize sent on GET calls.
func (c *Client) PageSize() int {
	return c.pageSize
}

// Fetch performs one call. It never panics and never returns a Go error;
// failures are Responses with OK false.
func (c *Client) Fetch(ctx context.Context, path string, method Method, params ir.Object) Response {
	params = params.Clone()
	ignore, _ := params[IgnoreDismissKeyboard].(ir.Bool)
	delete(params, IgnoreDismissKeyboard)
	if !ignore && c.keyboard != nil {
		c.keyboard.Dismiss()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, path, method, params)
	if err != nil {
		slog.Error("api request not built", "path", path, "method", method, "error", err)
		return Fail(ir.Object{"problem": ir.String(string(UnknownError)), "message": ir.String(err.Error())})
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		problem := classify(ctx, err)
		slog.Warn("api call failed", "path", path, "method", method, "problem", problem, "error", err)
		return Fail(ir.Object{"problem": ir.String(string(problem)), "message": ir.String(err.Error())})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		problem := classify(ctx, err)
		slog.Warn("api body read failed", "path", path, "status", resp.StatusCode, "error", err)
		return Fail(ir.Object{
			"status":  ir.Int(resp.StatusCode),
			"problem": ir.String(string(problem)),
			"message": ir.String(err.Error()),
		})
	}

	body := ir.Object{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if v, err := ir.ParseJSON(raw); err == nil {
			if obj, ok := v.(ir.Object); ok {
				body = obj
			}
		}
	}

	slog.Debug("api response",
		"path", path,
		"method", method,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode == http.StatusOK && body["success"] == ir.Bool(true) {
		delete(body, "success")
		return Ok(body)
	}

	body["status"] = ir.Int(resp.StatusCode)
	if p := statusProblem(resp.StatusCode); p != ProblemNone {
		body["problem"] = ir.String(string(p))
	}
	return Fail(body)
}

func (c *Client) newRequest(ctx context.Context, path string, method Method, params ir.Object) (*http.Request, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	u := c.baseURL.ResolveReference(ref)

	var body io.Reader
	if method == GET {
		q := u.Query()
		for _, k := range params.SortedKeys() {
			q.Set(k, queryValue(params[k]))
		}
		q.Set("pageSize", strconv.Itoa(c.pageSize))
		page, ok := params.GetInt("page")
		if !ok || page == 0 {
			page = 1
		}
		q.Set("page", strconv.FormatInt(page, 10))
		u.RawQuery = q.Encode()
	} else if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, string(method), u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.AuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// queryValue renders a param for a query string: scalars as text,
// containers as JSON.
func queryValue(v ir.Value) string {
	switch val := v.(type) {
	case ir.String:
		return string(val)
	case ir.Int:
		return strconv.FormatInt(int64(val), 10)
	case ir.Float:
		return strconv.FormatFloat(float64(val), 'f', -1, 64)
	case ir.Bool:
		return strconv.FormatBool(bool(val))
	case nil, ir.Null:
		return ""
	default:
		b, err := ir.MarshalCanonical(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func statusProblem(status int) Problem {
	switch {
	case status >= 200 && status < 300:
		return ProblemNone
	case status >= 400 && status < 500:
		return ClientError
	case status >= 500 && status < 600:
		return ServerError
	default:
		return UnknownError
	}
}

func classify(ctx context.Context, err error) Problem {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return TimeoutError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TimeoutError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ConnectionError
	}
	return NetworkError
}
