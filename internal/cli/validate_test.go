package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/profile"
)

func writeDoc(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func validProfileYAML(t *testing.T) string {
	t.Helper()
	p := device.ProntoKeyInfo("01").NewProfile("Default")
	action := profile.Action{
		Name:   "Toggle",
		UUID:   "com.example.counter.toggle",
		Plugin: "com.example.counter",
		States: []profile.ActionState{{Name: "on"}, {Name: "off"}},
	}
	require.NoError(t, p.Bind(profile.Keypad, 2, profile.NewInstance(action, profile.ActionContext{})))
	data, err := profile.EncodeYAML(p)
	require.NoError(t, err)
	return string(data)
}

func TestLoadProfileFile_Valid(t *testing.T) {
	res := LoadProfileFile(writeDoc(t, "ok.yaml", validProfileYAML(t)))
	require.Empty(t, res.Errors)
	require.NotNil(t, res.Profile)
	assert.Equal(t, "pk-01", res.Profile.Device)
	assert.Len(t, res.Profile.Keys, 9)
}

func TestLoadProfileFile_JSON(t *testing.T) {
	res := LoadProfileFile(writeDoc(t, "ok.json", `{"device":"pk-01","id":"Default","keys":[null],"sliders":[]}`))
	require.Empty(t, res.Errors)
	assert.Equal(t, []*profile.ActionInstance{nil}, res.Profile.Keys)
}

func TestLoadProfileFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing id", "device: pk-01\nkeys: []\nsliders: []\n", ErrCodeSchema},
		{"unknown field", "device: pk-01\nid: x\nkeys: []\nsliders: []\ncolour: red\n", ErrCodeSchema},
		{"bad controller in context", `device: pk-01
id: Default
keys:
  - action: {name: a, uuid: a, plugin: p}
    context: pk-01.Default.Knob.0.0
    current_state: 0
sliders: []
`, ErrCodeSchema},
		{"context disagrees with slot", `device: pk-01
id: Default
keys:
  - null
  - action: {name: a, uuid: a, plugin: p}
    context: pk-01.Default.Keypad.0.0
    current_state: 0
sliders: []
`, ErrCodeInvalid},
		{"dotted device", "device: usb.1-2\nid: x\nkeys: []\nsliders: []\n", ErrCodeSchema},
		{"not yaml", "device: [unterminated\n", ErrCodeParseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := LoadProfileFile(writeDoc(t, "doc.yaml", tt.body))
			require.NotEmpty(t, res.Errors)
			assert.Equal(t, tt.code, res.Errors[0].Code, "%+v", res.Errors)
			assert.Nil(t, res.Profile)
		})
	}
}

func TestLoadProfileFile_Missing(t *testing.T) {
	res := LoadProfileFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrCodeNotFound, res.Errors[0].Code)
}

func TestValidateCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "validate", writeDoc(t, "ok.yaml", validProfileYAML(t)))
	require.NoError(t, err)
	assert.Contains(t, out, "profile pk-01/Default valid")

	out, err = env.run(t, "validate", writeDoc(t, "bad.yaml", "device: pk-01\n"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "validation failed")

	out, err = env.run(t, "--format", "json", "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}
