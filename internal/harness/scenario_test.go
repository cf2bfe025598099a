package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "orders_pagination.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "orders_pagination", scenario.Name)
	assert.Len(t, scenario.API, 3)
	assert.Equal(t, map[string]string{"page": "3"}, scenario.API[2].Query)
	assert.Equal(t, 500, scenario.API[2].Status)
	require.Len(t, scenario.Flow, 3)
	assert.Equal(t, "ORDER.getList", scenario.Flow[0].Dispatch)
	assert.Equal(t, 1, scenario.Flow[0].Payload["page"])
	assert.Equal(t, OutcomeError, scenario.Flow[2].Expect.Outcome)
	assert.Len(t, scenario.Assertions, 3)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_AllTestdata(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}

func TestParseScenario_Invalid(t *testing.T) {
	const flow = `
flow:
  - dispatch: ORDER.getList
assertions:
  - type: trace_count
    action: ORDER.getList.start
    count: 1
`
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: y\nasertions: []\n" + flow,
			wantErr: "asertions",
		},
		{
			name:    "missing name",
			content: "description: y\n" + flow,
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\n" + flow,
			wantErr: "description is required",
		},
		{
			name: "empty flow",
			content: `name: x
description: y
flow: []
assertions:
  - type: trace_count
    action: A.b.start
`,
			wantErr: "flow list is required",
		},
		{
			name: "dispatch and cancel",
			content: `name: x
description: y
flow:
  - dispatch: ORDER.getList
    cancel: ORDER.getList
assertions:
  - type: trace_count
    action: A.b.start
`,
			wantErr: "exactly one of dispatch or cancel",
		},
		{
			name: "expect on async",
			content: `name: x
description: y
flow:
  - dispatch: ORDER.getList
    async: true
    expect: { outcome: success }
assertions:
  - type: trace_count
    action: A.b.start
`,
			wantErr: "synchronous dispatch",
		},
		{
			name: "bad outcome",
			content: `name: x
description: y
flow:
  - dispatch: ORDER.getList
    expect: { outcome: Success }
assertions:
  - type: trace_count
    action: A.b.start
`,
			wantErr: "outcome must be",
		},
		{
			name:    "bad stub method",
			content: "name: x\ndescription: y\napi:\n  - method: PUT\n    path: auth/login\n" + flow,
			wantErr: "method must be GET or POST",
		},
		{
			name:    "bad stub delay",
			content: "name: x\ndescription: y\napi:\n  - method: GET\n    path: a\n    delay: soon\n" + flow,
			wantErr: "invalid delay",
		},
		{
			name: "config value and absent",
			content: `name: x
description: y
flow:
  - dispatch: ORDER.getList
assertions:
  - type: config
    name: qr
    value: 1
    absent: true
`,
			wantErr: "exactly one of value or absent",
		},
		{
			name: "unknown projection",
			content: `name: x
description: y
flow:
  - dispatch: ORDER.getList
assertions:
  - type: projection
    projection: cart
    field: id
`,
			wantErr: "unknown projection",
		},
		{
			name: "unknown assertion",
			content: `name: x
description: y
flow:
  - dispatch: ORDER.getList
assertions:
  - type: final_state
`,
			wantErr: "unknown assertion type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_RoundTripThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	content := `name: logout
description: "Logout clears the session"
setup:
  - config: user
    value: { username: an, token: tok-1 }
flow:
  - dispatch: AUTH.logout
assertions:
  - type: config
    name: user
    absent: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	require.Len(t, scenario.Setup, 1)
	assert.Equal(t, "user", scenario.Setup[0].Config)
	assert.True(t, scenario.Assertions[0].Absent)
}
