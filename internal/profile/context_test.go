package profile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextString(t *testing.T) {
	ctx := ActionContext{Device: "sd-1", Profile: "Default", Controller: Encoder, Position: 1, Index: 2}
	assert.Equal(t, "sd-1.Default.Encoder.1.2", ctx.String())
	assert.Equal(t, "sd-1.Default.Encoder.1.0", ctx.Slot().String())
}

func TestParseContext(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ActionContext
	}{
		{
			name: "simple",
			in:   "pk-1.Default.Keypad.4.0",
			want: ActionContext{Device: "pk-1", Profile: "Default", Controller: Keypad, Position: 4},
		},
		{
			name: "dotted profile",
			in:   "sd.work.v2.Encoder.0.3",
			want: ActionContext{Device: "sd", Profile: "work.v2", Controller: Encoder, Position: 0, Index: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseContext(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestParseContextErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"dev.Keypad.0.0",
		"dev.p.Touch.0.0",
		"dev.p.Keypad.x.0",
		"dev.p.Keypad.0.-1",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseContext(in)
			assert.ErrorIs(t, err, ErrBadContext)
		})
	}
}

func TestContextJSON(t *testing.T) {
	ctx := ActionContext{Device: "d", Profile: "p", Controller: Keypad, Position: 7}
	data, err := json.Marshal(ctx)
	require.NoError(t, err)
	assert.Equal(t, `"d.p.Keypad.7.0"`, string(data))

	var got ActionContext
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ctx, got)

	assert.Error(t, json.Unmarshal([]byte(`42`), &got))
}
