package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/deckd/internal/profile"
	"github.com/roach88/deckd/internal/store"
)

// AssertionError describes a failed assertion. Trace is attached for the
// trace_* types so a failure shows everything that was sent.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s: want %s, got %s\n", e.Type, e.Expected, e.Actual)
	if len(e.Trace) == 0 {
		return buf.String()
	}
	buf.WriteString("sent:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s %s\n", ev.Seq, ev.Target, ev.To, ev.Event, ev.Context)
	}
	return buf.String()
}

// AssertionContext addresses the persisted state read by final_state and
// global_settings.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	Device  string
	Profile string
}

type checkFunc func(*Result, Assertion, *AssertionContext) error

var checks = map[string]checkFunc{
	AssertTraceContains: func(r *Result, a Assertion, _ *AssertionContext) error { return assertTraceContains(r.Trace, a) },
	AssertTraceOrder:    func(r *Result, a Assertion, _ *AssertionContext) error { return assertTraceOrder(r.Trace, a) },
	AssertTraceCount:    func(r *Result, a Assertion, _ *AssertionContext) error { return assertTraceCount(r.Trace, a) },
	AssertElapsed:       func(r *Result, a Assertion, _ *AssertionContext) error { return assertElapsed(r, a) },
	AssertOpenedURL:     func(r *Result, a Assertion, _ *AssertionContext) error { return assertOpenedURL(r, a) },
	AssertFinalState:    func(_ *Result, a Assertion, c *AssertionContext) error { return assertFinalState(c, a) },
	AssertGlobalSettings: func(_ *Result, a Assertion, c *AssertionContext) error {
		return assertGlobalSettings(c, a)
	},
}

// needsStore lists the assertion types that read the store.
var needsStore = map[string]bool{AssertFinalState: true, AssertGlobalSettings: true}

// EvaluateAssertions checks every assertion against result and returns one
// message per failure, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		check, ok := checks[a.Type]
		var err error
		switch {
		case !ok:
			err = fmt.Errorf("assertion %d: no such type %q", i, a.Type)
		case needsStore[a.Type] && (actx == nil || actx.Store == nil):
			err = fmt.Errorf("assertion %d: %s needs a store", i, a.Type)
		default:
			err = check(result, a, actx)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func countMatches(trace []TraceEvent, m TraceMatch) int {
	n := 0
	for _, ev := range trace {
		if matchEvent(ev, m) {
			n++
		}
	}
	return n
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	if countMatches(trace, a.TraceMatch) > 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeMatch(a.TraceMatch),
		Actual:   "no such message",
		Trace:    trace,
	}
}

// assertTraceOrder passes when the matchers are satisfied by a subsequence
// of the trace; other messages may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next == len(a.Order) {
			break
		}
		if matchEvent(ev, a.Order[next]) {
			next++
		}
	}
	if next == len(a.Order) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("%d messages in order", len(a.Order)),
		Actual:   fmt.Sprintf("%d matched, then no %s", next, describeMatch(a.Order[next])),
		Trace:    trace,
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	if n := countMatches(trace, a.TraceMatch); n != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d x %s", *a.Count, describeMatch(a.TraceMatch)),
			Actual:   fmt.Sprintf("%d", n),
			Trace:    trace,
		}
	}
	return nil
}

func assertElapsed(result *Result, assertion Assertion) error {
	if got := result.Elapsed.Milliseconds(); got != *assertion.ElapsedMS {
		return &AssertionError{
			Type:     AssertElapsed,
			Expected: fmt.Sprintf("%dms", *assertion.ElapsedMS),
			Actual:   fmt.Sprintf("%dms", got),
		}
	}
	return nil
}

func assertOpenedURL(result *Result, assertion Assertion) error {
	if slices.Contains(result.Opened, assertion.URL) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOpenedURL,
		Expected: assertion.URL,
		Actual:   fmt.Sprintf("opened %v", result.Opened),
	}
}

// assertFinalState reads the persisted profile and compares the instance at
// the slot (and child path) against Expect using subset semantics.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	ctrl, err := profile.ParseController(controllerOrDefault(assertion.Controller))
	if err != nil {
		return err
	}
	where := fmt.Sprintf("%s %d %v", ctrl, assertion.Position, assertion.Path)

	p, err := actx.Store.ReadProfile(actx.Ctx, actx.Device, actx.Profile)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("profile %s/%s", actx.Device, actx.Profile),
			Actual:   fmt.Sprintf("read error: %v", err),
		}
	}

	inst, err := p.Slot(ctrl, assertion.Position)
	for _, i := range assertion.Path {
		if err != nil || inst == nil {
			break
		}
		if i < 0 || i >= len(inst.Children) {
			err = fmt.Errorf("child %d of %d", i, len(inst.Children))
			break
		}
		inst = inst.Children[i]
	}
	if err == nil && inst == nil {
		err = errors.New("slot absent")
	}
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "instance at " + where,
			Actual:   err.Error(),
		}
	}

	actual, err := normalize(inst)
	if err != nil {
		return err
	}
	return compareSubset(AssertFinalState, where, assertion.Expect, actual)
}

func assertGlobalSettings(actx *AssertionContext, assertion Assertion) error {
	settings, err := actx.Store.GlobalSettings(actx.Ctx, assertion.Plugin)
	if err != nil {
		return &AssertionError{
			Type:     AssertGlobalSettings,
			Expected: "global settings of " + assertion.Plugin,
			Actual:   fmt.Sprintf("read error: %v", err),
		}
	}
	actual, err := normalize(settings)
	if err != nil {
		return err
	}
	return compareSubset(AssertGlobalSettings, assertion.Plugin, assertion.Settings, actual)
}

func compareSubset(typ, where string, expected map[string]any, actual any) error {
	want, err := normalize(expected)
	if err != nil {
		return err
	}
	if !subset(want, actual) {
		wantJSON, _ := json.Marshal(want)
		gotJSON, _ := json.Marshal(actual)
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%s to contain %s", where, wantJSON),
			Actual:   string(gotJSON),
		}
	}
	return nil
}

// matchEvent reports whether a sent message satisfies m.
func matchEvent(event TraceEvent, m TraceMatch) bool {
	if m.Event != "" && event.Event != m.Event {
		return false
	}
	if m.Target != "" && event.Target != m.Target {
		return false
	}
	if m.To != "" && event.To != m.To {
		return false
	}
	if m.Action != "" && event.Action != m.Action {
		return false
	}
	if m.Context != "" && event.Context != m.Context {
		return false
	}
	if len(m.Payload) == 0 {
		return true
	}
	want, err := normalize(m.Payload)
	if err != nil {
		return false
	}
	return subset(want, event.Payload)
}

func describeMatch(m TraceMatch) string {
	parts := []string{}
	for _, kv := range [][2]string{
		{"event", m.Event}, {"target", m.Target}, {"to", m.To},
		{"action", m.Action}, {"context", m.Context},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+kv[1])
		}
	}
	if len(m.Payload) > 0 {
		parts = append(parts, fmt.Sprintf("payload=%v", m.Payload))
	}
	return strings.Join(parts, " ")
}

// normalize round-trips v through encoding/json so YAML integers and decoded
// JSON numbers compare equal.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return out, nil
}

// subset reports whether actual contains expected. Objects match when every
// expected key matches; arrays must have the same length.
func subset(expected, actual any) bool {
	switch want := expected.(type) {
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range want {
			av, exists := got[k]
			if !exists || !subset(v, av) {
				return false
			}
		}
		return true

	case []any:
		got, ok := actual.([]any)
		if !ok || len(got) != len(want) {
			return false
		}
		for i := range want {
			if !subset(want[i], got[i]) {
				return false
			}
		}
		return true

	default:
		return reflect.DeepEqual(expected, actual)
	}
}
