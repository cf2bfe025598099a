package harness

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines one end-to-end run of the shop App.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// API lists the canned responses of the stub API. A request nothing
	// matches gets a 404.
	API []Stub `yaml:"api,omitempty"`

	// Setup seeds config entries before the flow runs.
	Setup []ConfigStep `yaml:"setup,omitempty"`

	// Flow is the sequence of dispatches and cancels.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, config, projection
	Assertions []Assertion `yaml:"assertions"`
}

// Stub is one canned API response.
type Stub struct {
	// Method is the HTTP method (GET or POST).
	Method string `yaml:"method"`

	// Path is relative to the API root (e.g. "auth/login").
	Path string `yaml:"path"`

	// Query restricts the stub to requests carrying these query params.
	Query map[string]string `yaml:"query,omitempty"`

	// Status defaults to 200.
	Status int `yaml:"status,omitempty"`

	// Body is sent as JSON.
	Body map[string]any `yaml:"body,omitempty"`

	// Delay holds the response back, as a Go duration ("200ms").
	Delay string `yaml:"delay,omitempty"`
}

// ConfigStep stores a value under a config name.
type ConfigStep struct {
	Config string `yaml:"config"`
	Value  any    `yaml:"value"`
}

// FlowStep either dispatches a workflow or cancels one.
type FlowStep struct {
	// Dispatch is the workflow kind to start (e.g. "AUTH.login").
	Dispatch string `yaml:"dispatch,omitempty"`

	// Payload is the start payload.
	Payload map[string]any `yaml:"payload,omitempty"`

	// Async returns as soon as the start is delivered instead of waiting
	// for the outcome. Use it to cancel or supersede a running request.
	Async bool `yaml:"async,omitempty"`

	// Cancel is the workflow kind to cancel.
	Cancel string `yaml:"cancel,omitempty"`

	// Expect checks the outcome of a synchronous dispatch.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a dispatch.
type ExpectClause struct {
	// Outcome is "success" or "error".
	Outcome string `yaml:"outcome"`

	// Payload is matched as a subset of the outcome payload.
	Payload map[string]any `yaml:"payload,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an action of this type with this payload subset
	// - "trace_order": action types appear in this order
	// - "trace_count": action type appears exactly Count times
	// - "config": the config entry Name equals Value (or is Absent)
	// - "projection": the named projection's data, value or error
	Type string `yaml:"type"`

	// Action is an action type, "KIND.phase" (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Payload is matched as a subset (trace_contains).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Name is the config entry (config).
	Name string `yaml:"name,omitempty"`

	// Value is the expected config value (config), or a subset of the
	// projection value (projection).
	Value any `yaml:"value,omitempty"`

	// Absent expects the config entry to be missing (config).
	Absent bool `yaml:"absent,omitempty"`

	// Projection is "orders" or "user" (projection).
	Projection string `yaml:"projection,omitempty"`

	// Field and Values check that the projection data holds exactly these
	// values of Field, in order (projection).
	Field  string `yaml:"field,omitempty"`
	Values []any  `yaml:"values,omitempty"`

	// Error is matched as a subset of the projection error (projection).
	Error map[string]any `yaml:"error,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertConfig        = "config"
	AssertProjection    = "projection"
)

// Outcome names accepted by ExpectClause.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, stub := range s.API {
		switch strings.ToUpper(stub.Method) {
		case http.MethodGet, http.MethodPost:
		default:
			return fmt.Errorf("api[%d]: method must be GET or POST, got %q", i, stub.Method)
		}
		if stub.Path == "" {
			return fmt.Errorf("api[%d]: path is required", i)
		}
		if stub.Delay != "" {
			if _, err := time.ParseDuration(stub.Delay); err != nil {
				return fmt.Errorf("api[%d]: invalid delay %q", i, stub.Delay)
			}
		}
	}

	for i, step := range s.Setup {
		if step.Config == "" {
			return fmt.Errorf("setup[%d]: config is required", i)
		}
	}

	for i, step := range s.Flow {
		if (step.Dispatch == "") == (step.Cancel == "") {
			return fmt.Errorf("flow[%d]: exactly one of dispatch or cancel is required", i)
		}
		if step.Expect == nil {
			continue
		}
		if step.Cancel != "" || step.Async {
			return fmt.Errorf("flow[%d]: expect needs a synchronous dispatch", i)
		}
		if step.Expect.Outcome != OutcomeSuccess && step.Expect.Outcome != OutcomeError {
			return fmt.Errorf("flow[%d].expect: outcome must be %q or %q", i, OutcomeSuccess, OutcomeError)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertConfig:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for config", index)
		}
		if a.Absent == (a.Value != nil) {
			return fmt.Errorf("assertions[%d]: config needs exactly one of value or absent", index)
		}
	case AssertProjection:
		if a.Projection != "orders" && a.Projection != "user" {
			return fmt.Errorf("assertions[%d]: unknown projection %q", index, a.Projection)
		}
		if a.Field == "" && a.Value == nil && a.Error == nil {
			return fmt.Errorf("assertions[%d]: projection needs field, value or error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
