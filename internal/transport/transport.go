// Package transport is the remote shop API capability.
//
// The rest of the system sees only Fetcher: a path, a method and a params
// object in, a Response out. Fetch never returns a Go error; every failure
// is a Response with OK false and a structured Error object, so epics can
// turn it into an error action unchanged.
package transport

import (
	"context"
	"fmt"

	"github.com/roach88/shopkeep/internal/ir"
)

// Method is an HTTP method.
type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	PUT    Method = "PUT"
	PATCH  Method = "PATCH"
	DELETE Method = "DELETE"
)

// Problem classifies a failed call.
type Problem string

const (
	ProblemNone     Problem = ""
	ClientError     Problem = "CLIENT_ERROR"     // 400-499
	ServerError     Problem = "SERVER_ERROR"     // 500-599
	TimeoutError    Problem = "TIMEOUT_ERROR"    // deadline exceeded
	ConnectionError Problem = "CONNECTION_ERROR" // server unreachable
	NetworkError    Problem = "NETWORK_ERROR"    // anything else below HTTP
	UnknownError    Problem = "UNKNOWN_ERROR"    // non-2xx outside the ranges above
)

// IgnoreDismissKeyboard is the params key that suppresses the keyboard
// dismissal. It is stripped before the request is sent.
const IgnoreDismissKeyboard = "ignoreDismissKeyboard"

// Fetcher performs one API call.
type Fetcher interface {
	Fetch(ctx context.Context, path string, method Method, params ir.Object) Response
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, path string, method Method, params ir.Object) Response

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, path string, method Method, params ir.Object) Response {
	return f(ctx, path, method, params)
}

// Response is the outcome of a call. Data is set when OK, Error otherwise.
type Response struct {
	OK    bool
	Data  ir.Object
	Error ir.Object
}

// Ok builds a successful response.
func Ok(data ir.Object) Response {
	if data == nil {
		data = ir.Object{}
	}
	return Response{OK: true, Data: data}
}

// Fail builds a failed response.
func Fail(errObj ir.Object) Response {
	if errObj == nil {
		errObj = ir.Object{}
	}
	return Response{Error: errObj}
}

// Err returns nil for a successful response and a *TransportError otherwise.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	status, _ := r.Error.GetInt("status")
	return &TransportError{
		Status:  int(status),
		Problem: Problem(r.Error.GetString("problem")),
		Body:    r.Error,
	}
}

// TransportError is a failed API call: network fault, timeout, non-200
// status or a body without success.
type TransportError struct {
	Status  int
	Problem Problem
	Body    ir.Object
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Problem != ProblemNone:
		return fmt.Sprintf("transport: %s (status %d)", e.Problem, e.Status)
	case e.Status != 0:
		return fmt.Sprintf("transport: status %d", e.Status)
	case e.Problem != ProblemNone:
		return fmt.Sprintf("transport: %s", e.Problem)
	default:
		return "transport: request failed"
	}
}

// Payload is the structured error object carried by error actions.
func (e *TransportError) Payload() ir.Object {
	if e.Body == nil {
		return ir.Object{}
	}
	return e.Body.Clone()
}

// KeyboardDismisser hides the on-screen keyboard before a call.
type KeyboardDismisser interface {
	Dismiss()
}

// DismissFunc adapts a function to KeyboardDismisser.
type DismissFunc func()

// Dismiss calls f.
func (f DismissFunc) Dismiss() { f() }
