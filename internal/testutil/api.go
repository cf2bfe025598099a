package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

// APIPrefix is where FakeAPI mounts its routes, mirroring the real API.
const APIPrefix = "/api/v1/"

// APIRequest records one request served by FakeAPI.
type APIRequest struct {
	Method string
	Path   string // relative to APIPrefix
	Query  url.Values
	Body   map[string]any
	Auth   string
}

// FakeAPI is an echo server standing in for the shop API.
type FakeAPI struct {
	Echo   *echo.Echo
	Server *httptest.Server

	mu       sync.Mutex
	requests []APIRequest
}

// NewFakeAPI starts a fake API that is shut down when the test ends.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := StartFakeAPI()
	t.Cleanup(f.Close)
	return f
}

// StartFakeAPI starts a fake API outside of a test. Call Close when done.
func StartFakeAPI() *FakeAPI {
	f := &FakeAPI{Echo: echo.New()}
	f.Echo.HideBanner = true
	f.Echo.HidePort = true
	f.Echo.Use(f.record)

	f.Server = httptest.NewServer(f.Echo)
	return f
}

// Close shuts the server down.
func (f *FakeAPI) Close() {
	f.Server.Close()
}

// BaseURL is the URL to configure the client with.
func (f *FakeAPI) BaseURL() string {
	return f.Server.URL + APIPrefix
}

// Handle mounts h at method and path (relative to APIPrefix).
func (f *FakeAPI) Handle(method, path string, h echo.HandlerFunc) {
	f.Echo.Add(method, APIPrefix+path, h)
}

// Reply mounts a handler answering with a fixed status and JSON body.
func (f *FakeAPI) Reply(method, path string, status int, body map[string]any) {
	f.Handle(method, path, func(c echo.Context) error {
		return c.JSON(status, body)
	})
}

// Requests returns the requests served so far.
func (f *FakeAPI) Requests() []APIRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]APIRequest(nil), f.requests...)
}

func (f *FakeAPI) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		rec := APIRequest{
			Method: req.Method,
			Path:   strings.TrimPrefix(req.URL.Path, APIPrefix),
			Query:  req.URL.Query(),
			Auth:   req.Header.Get(echo.HeaderAuthorization),
		}
		if req.Body != nil && req.Method != http.MethodGet {
			raw, _ := io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewReader(raw))
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &rec.Body)
			}
		}

		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()
		return next(c)
	}
}
