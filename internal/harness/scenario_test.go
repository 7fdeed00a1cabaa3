package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/profile"
)

const minimalScenario = `
name: minimal
description: "one key press"
bindings:
  - position: 0
    action: com.example.counter.increment
flow:
  - input: { kind: keyDown, index: 0 }
assertions:
  - type: trace_count
    event: keyDown
    count: 1
`

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, "Default", s.ProfileID())
	assert.Equal(t, device.ProntoKeyInfo("01"), s.DeviceInfo())
	require.Len(t, s.Bindings, 1)
	assert.Equal(t, "com.example.counter.increment", s.Bindings[0].Action)
	require.NotNil(t, s.Flow[0].Input)
	assert.Equal(t, "keyDown", s.Flow[0].Input.Kind)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_CustomDevice(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: custom
description: "a 2x4 pad"
device: { id: pad-9, name: Pad, type: 1, rows: 2, columns: 4, dials: 0 }
profile: Gaming
flow:
  - connect: true
assertions:
  - type: trace_count
    event: willAppear
    count: 0
`))
	require.NoError(t, err)
	info := s.DeviceInfo()
	assert.Equal(t, "pad-9", info.ID)
	assert.Equal(t, 8, info.Layout.Keys())
	assert.Equal(t, "Gaming", s.ProfileID())
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: y\nflows: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: y\nflow: [{connect: true}]\nassertions: [{type: elapsed, elapsed_ms: 0}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\nflow: [{connect: true}]\nassertions: [{type: elapsed, elapsed_ms: 0}]\n",
			want: "description is required",
		},
		{
			name: "empty flow",
			yaml: "name: x\ndescription: y\nassertions: [{type: elapsed, elapsed_ms: 0}]\n",
			want: "flow list is required",
		},
		{
			name: "no assertions",
			yaml: "name: x\ndescription: y\nflow: [{connect: true}]\n",
			want: "assertions list is required",
		},
		{
			name: "two step kinds",
			yaml: "name: x\ndescription: y\nflow: [{connect: true, disconnect: true}]\nassertions: [{type: elapsed, elapsed_ms: 0}]\n",
			want: "flow[0]: exactly one of",
		},
		{
			name: "bad input kind",
			yaml: "name: x\ndescription: y\nflow: [{input: {kind: press, index: 0}}]\nassertions: [{type: elapsed, elapsed_ms: 0}]\n",
			want: `unknown input kind "press"`,
		},
		{
			name: "inspector without source",
			yaml: "name: x\ndescription: y\nflow: [{inbound: {inspector: true, message: {event: getSettings}}}]\nassertions: [{type: elapsed, elapsed_ms: 0}]\n",
			want: "source is required",
		},
		{
			name: "bad controller",
			yaml: "name: x\ndescription: y\nbindings: [{controller: Touch, position: 0, action: a.b}]\nflow: [{connect: true}]\nassertions: [{type: elapsed, elapsed_ms: 0}]\n",
			want: "bindings[0]",
		},
		{
			name: "child without action",
			yaml: "name: x\ndescription: y\nbindings: [{position: 0, action: a.b, children: [{states: 2}]}]\nflow: [{connect: true}]\nassertions: [{type: elapsed, elapsed_ms: 0}]\n",
			want: "children[0]: action is required",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ndescription: y\nflow: [{connect: true}]\nassertions: [{type: trace_exists}]\n",
			want: `unknown assertion type "trace_exists"`,
		},
		{
			name: "trace_count without count",
			yaml: "name: x\ndescription: y\nflow: [{connect: true}]\nassertions: [{type: trace_count, event: keyDown}]\n",
			want: "count must be non-negative",
		},
		{
			name: "final_state without expect",
			yaml: "name: x\ndescription: y\nflow: [{connect: true}]\nassertions: [{type: final_state, position: 0}]\n",
			want: "expect is required",
		},
		{
			name: "trace_order without order",
			yaml: "name: x\ndescription: y\nflow: [{connect: true}]\nassertions: [{type: trace_order}]\n",
			want: "order list is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInstanceSpec_Instance(t *testing.T) {
	spec := InstanceSpec{
		Action:   "com.example.counter.toggle",
		States:   2,
		Settings: map[string]any{"count": 3, "label": "hi"},
	}

	inst, err := spec.Instance(profile.Keypad)
	require.NoError(t, err)
	assert.Equal(t, "com.example.counter", inst.Action.Plugin)
	assert.Equal(t, "toggle", inst.Action.Name)
	assert.Len(t, inst.States, 2)
	assert.True(t, inst.AutoToggles())
	assert.Equal(t, profile.Object{"count": profile.NewInt(3), "label": profile.String("hi")}, inst.Settings)
}

func TestInstanceSpec_SwitchStatesFollowGroups(t *testing.T) {
	spec := InstanceSpec{
		Action: profile.MultiActionSwitchUUID,
		Children: []InstanceSpec{
			{Action: profile.MultiActionUUID},
			{Action: profile.MultiActionUUID},
			{Action: profile.MultiActionUUID},
		},
	}

	inst, err := spec.Instance(profile.Keypad)
	require.NoError(t, err)
	assert.Len(t, inst.States, 3)
	assert.Len(t, inst.Children, 3)
	assert.Equal(t, "com.amansprojects.starterpack", inst.Action.Plugin)
}

func TestInstanceSpec_ExplicitPlugin(t *testing.T) {
	inst, err := InstanceSpec{Action: "solo", Plugin: "com.example.solo"}.Instance(profile.Encoder)
	require.NoError(t, err)
	assert.Equal(t, "com.example.solo", inst.Action.Plugin)
	assert.True(t, inst.Action.Supports(profile.Encoder))
}
