package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace(t *testing.T) []TraceEvent {
	t.Helper()
	r := NewResult()
	for _, body := range []string{
		`{"event":"keyDown","action":"a.b.c","context":"pk-01.Default.Keypad.0.1","payload":{"state":0,"settings":{"n":1}}}`,
		`{"event":"keyUp","action":"a.b.c","context":"pk-01.Default.Keypad.0.1","payload":{"state":1,"settings":{"n":1}}}`,
		`{"event":"keyDown","action":"a.b.d","context":"pk-01.Default.Keypad.0.2","payload":{"state":0,"settings":{}}}`,
	} {
		require.NoError(t, r.AddTrace("plugin", "a.b", []byte(body)))
	}
	return r.Trace
}

func intPtr(n int) *int { return &n }

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace(t)

	err := assertTraceContains(trace, Assertion{TraceMatch: TraceMatch{
		Event:   "keyUp",
		Payload: map[string]any{"state": 1, "settings": map[string]any{"n": 1}},
	}})
	assert.NoError(t, err)

	err = assertTraceContains(trace, Assertion{TraceMatch: TraceMatch{
		Event:   "keyUp",
		Payload: map[string]any{"state": 0},
	}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "no such message")
	assert.Contains(t, err.Error(), "[2] plugin a.b keyUp pk-01.Default.Keypad.0.1")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace(t)

	assert.NoError(t, assertTraceOrder(trace, Assertion{Order: []TraceMatch{
		{Event: "keyDown"},
		{Event: "keyDown", Action: "a.b.d"},
	}}))

	err := assertTraceOrder(trace, Assertion{Order: []TraceMatch{
		{Action: "a.b.d"},
		{Event: "keyUp"},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 matched, then no event=keyUp")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace(t)

	assert.NoError(t, assertTraceCount(trace, Assertion{TraceMatch: TraceMatch{Event: "keyDown"}, Count: intPtr(2)}))
	assert.NoError(t, assertTraceCount(trace, Assertion{TraceMatch: TraceMatch{Event: "dialUp"}, Count: intPtr(0)}))

	err := assertTraceCount(trace, Assertion{TraceMatch: TraceMatch{Event: "keyUp"}, Count: intPtr(3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 3 x event=keyUp, got 1")
}

func TestAssertElapsedAndOpened(t *testing.T) {
	r := NewResult()
	r.Elapsed = 350 * time.Millisecond
	r.Opened = []string{"https://example.com"}

	ms := int64(350)
	assert.NoError(t, assertElapsed(r, Assertion{ElapsedMS: &ms}))
	ms = 100
	assert.Error(t, assertElapsed(r, Assertion{ElapsedMS: &ms}))

	assert.NoError(t, assertOpenedURL(r, Assertion{URL: "https://example.com"}))
	assert.Error(t, assertOpenedURL(r, Assertion{URL: "https://other.example"}))
}

func TestEvaluateAssertions_StoreRequired(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Expect: map[string]any{"current_state": 0}},
		{Type: AssertGlobalSettings, Plugin: "a.b"},
		{Type: "bogus"},
	}, nil)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "final_state needs a store")
	assert.Contains(t, errs[1], "global_settings needs a store")
	assert.Contains(t, errs[2], `no such type "bogus"`)
}

func TestSubset(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"equal scalars", 1.0, 1.0, true},
		{"different scalars", "a", "b", false},
		{"extra keys ignored", map[string]any{"a": 1.0}, map[string]any{"a": 1.0, "b": 2.0}, true},
		{"missing key", map[string]any{"c": 1.0}, map[string]any{"a": 1.0}, false},
		{"nested", map[string]any{"a": map[string]any{"b": true}}, map[string]any{"a": map[string]any{"b": true, "c": 1.0}}, true},
		{"array length", []any{1.0}, []any{1.0, 2.0}, false},
		{"array elements", []any{map[string]any{"x": 1.0}}, []any{map[string]any{"x": 1.0, "y": 2.0}}, true},
		{"object vs scalar", map[string]any{"a": 1.0}, 1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, subset(tt.expected, tt.actual))
		})
	}
}

func TestNormalize_YAMLIntegersMatchJSONNumbers(t *testing.T) {
	want, err := normalize(map[string]any{"count": 5})
	require.NoError(t, err)
	assert.True(t, subset(want, map[string]any{"count": 5.0}))
}
