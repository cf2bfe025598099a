package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/shopkeep/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Type, render(event.Payload))
		}
	}
	return buf.String()
}

// assertTraceContains checks if the trace contains an action of the given
// type whose payload holds the expected fields.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	want, err := toObject(assertion.Payload)
	if err != nil {
		return fmt.Errorf("trace_contains payload: %w", err)
	}
	for _, event := range trace {
		if event.Type != assertion.Action {
			continue
		}
		if _, ok := subset(event.Payload, want); ok {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with payload %s", assertion.Action, render(want)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Actions) && event.Type == assertion.Actions[next] {
			next++
		}
	}
	if next == len(assertion.Actions) {
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
		Actual:   fmt.Sprintf("%s not found after %v", assertion.Actions[next], assertion.Actions[:next]),
		Trace:    trace,
	}
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == assertion.Action {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertConfig checks a config entry after the flow.
func assertConfig(configs map[string]ir.Value, assertion Assertion) error {
	got, ok := configs[ir.NormalizeName(assertion.Name)]
	if assertion.Absent {
		if ok {
			return &AssertionError{
				Type:     AssertConfig,
				Expected: fmt.Sprintf("config %q absent", assertion.Name),
				Actual:   render(got),
			}
		}
		return nil
	}

	want, err := ir.FromAny(assertion.Value)
	if err != nil {
		return fmt.Errorf("config value: %w", err)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertConfig,
			Expected: fmt.Sprintf("config %q = %s", assertion.Name, render(want)),
			Actual:   "absent",
		}
	}
	if !ir.Equal(got, want) {
		return &AssertionError{
			Type:     AssertConfig,
			Expected: fmt.Sprintf("config %q = %s", assertion.Name, render(want)),
			Actual:   render(got),
		}
	}
	return nil
}

// assertProjection checks a projection snapshot after the flow.
func assertProjection(result *Result, assertion Assertion) error {
	snap, ok := result.Projections[assertion.Projection]
	if !ok {
		return fmt.Errorf("projection %q not recorded", assertion.Projection)
	}

	if assertion.Field != "" {
		want, err := ir.FromAny(assertion.Values)
		if err != nil {
			return fmt.Errorf("projection values: %w", err)
		}
		got := make(ir.Array, len(snap.Data))
		for i, item := range snap.Data {
			v, ok := item[assertion.Field]
			if !ok {
				v = ir.Null{}
			}
			got[i] = v
		}
		if !ir.Equal(got, want) {
			return &AssertionError{
				Type:     AssertProjection,
				Expected: fmt.Sprintf("%s %s values %s", assertion.Projection, assertion.Field, render(want)),
				Actual:   render(got),
			}
		}
	}

	if assertion.Value != nil {
		want, err := ir.FromAny(assertion.Value)
		if err != nil {
			return fmt.Errorf("projection value: %w", err)
		}
		wantObj, _ := want.(ir.Object)
		if key, ok := subset(snap.Value, wantObj); !ok {
			return &AssertionError{
				Type:     AssertProjection,
				Expected: fmt.Sprintf("%s value field %q = %s", assertion.Projection, key, render(wantObj[key])),
				Actual:   render(snap.Value),
			}
		}
	}

	if assertion.Error != nil {
		want, err := toObject(assertion.Error)
		if err != nil {
			return fmt.Errorf("projection error: %w", err)
		}
		if key, ok := subset(snap.Error, want); !ok {
			return &AssertionError{
				Type:     AssertProjection,
				Expected: fmt.Sprintf("%s error field %q = %s", assertion.Projection, key, render(want[key])),
				Actual:   render(snap.Error),
			}
		}
	}
	return nil
}

// subset reports whether actual holds every field of want with an equal
// value. On mismatch it returns the first differing key in sorted order.
func subset(actual, want ir.Object) (string, bool) {
	for _, key := range want.SortedKeys() {
		got, ok := actual[key]
		if !ok || !ir.Equal(got, want[key]) {
			return key, false
		}
	}
	return "", true
}

// render prints a value as canonical JSON for messages.
func render(v ir.Value) string {
	if v == nil {
		return "<none>"
	}
	if obj, ok := v.(ir.Object); ok && obj == nil {
		return "<none>"
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertConfig:
			err = assertConfig(result.Configs, assertion)
		case AssertProjection:
			err = assertProjection(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
