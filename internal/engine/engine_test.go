package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/profile"
	"github.com/roach88/deckd/internal/store"
	"github.com/roach88/deckd/internal/testutil"
)

const (
	counterPlugin = "com.example.counter"
	otherPlugin   = "com.example.other"
)

type fixture struct {
	engine *Engine
	store  *store.Store
	sender *testutil.RecordingSender
	clock  *testutil.FakeClock
	info   device.Info
	opened []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  testutil.OpenStore(t),
		sender: testutil.NewRecordingSender(),
		clock:  testutil.NewFakeClock(),
		info:   device.ProntoKeyInfo("01"),
	}
	f.engine = New(f.store, f.sender,
		WithClock(f.clock),
		WithTraceGenerator(testutil.NewFixedTraceGenerator("")),
		WithPlugins(func() []string { return []string{counterPlugin, otherPlugin} }),
		WithOpener(func(_ context.Context, url string) error {
			f.opened = append(f.opened, url)
			return nil
		}),
	)
	require.NoError(t, f.store.UpsertDevice(context.Background(), f.info))
	return f
}

func action(uuid string, states int) profile.Action {
	a := profile.Action{Name: uuid, UUID: uuid, Plugin: counterPlugin}
	for i := 0; i < states; i++ {
		a.States = append(a.States, profile.ActionState{Name: "s", Show: true})
	}
	return a
}

func instance(uuid string, states int, children ...*profile.ActionInstance) *profile.ActionInstance {
	inst := profile.NewInstance(action(uuid, states), profile.ActionContext{})
	inst.Children = children
	return inst
}

func delay(ms int64) *profile.ActionInstance {
	inst := instance(profile.DelayActionUUID, 0)
	inst.Action.Plugin = "com.amansprojects.starterpack"
	inst.Settings = profile.Object{"delay": profile.NewInt(ms)}
	return inst
}

// bind stores inst at a slot of the device's default profile.
func (f *fixture) bind(t *testing.T, c profile.Controller, pos int, inst *profile.ActionInstance) {
	t.Helper()
	ctx := context.Background()
	p, err := f.store.EnsureProfile(ctx, f.info, store.DefaultProfileID)
	require.NoError(t, err)
	require.NoError(t, p.Bind(c, pos, inst))
	_, err = f.store.SaveProfile(ctx, p)
	require.NoError(t, err)
}

func (f *fixture) load(t *testing.T, c profile.Controller, pos int) *profile.ActionInstance {
	t.Helper()
	p, err := f.store.ReadProfile(context.Background(), f.info.ID, store.DefaultProfileID)
	require.NoError(t, err)
	inst, err := p.Slot(c, pos)
	require.NoError(t, err)
	return inst
}

// run processes events synchronously through the Run loop.
func (f *fixture) run(t *testing.T, events ...Event) {
	t.Helper()
	for _, ev := range events {
		require.True(t, f.engine.Enqueue(ev))
	}
	f.engine.Stop()
	require.NoError(t, f.engine.Run(context.Background()))
}

func (f *fixture) input(kind device.InputKind, index, ticks int) Event {
	return InputEvent(device.Input{Device: f.info.ID, Kind: kind, Index: index, Ticks: ticks})
}

func inbound(t *testing.T, inspector bool, source string, msg map[string]any) Event {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return InboundEvent(Inbound{FromInspector: inspector, Source: source, Data: data})
}

func payloadOf(t *testing.T, sent testutil.Sent) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(sent.Body, &body))
	payload, ok := body["payload"].(map[string]any)
	require.True(t, ok, "message has no payload object: %s", sent.Body)
	return payload
}

func TestKeyPress_TogglesAndPersists(t *testing.T) {
	f := newFixture(t)
	f.bind(t, profile.Keypad, 4, instance("com.example.counter.toggle", 2))

	f.run(t, f.input(device.KeyDown, 4, 0), f.input(device.KeyUp, 4, 0))

	sent := f.sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []string{EventKeyDown, EventKeyUp}, f.sender.Events())
	assert.Equal(t, counterPlugin, sent[0].To)

	down := payloadOf(t, sent[0])
	assert.Equal(t, float64(0), down["state"])
	assert.Equal(t, map[string]any{"row": float64(1), "column": float64(1)}, down["coordinates"])
	assert.Equal(t, false, down["isInMultiAction"])

	up := payloadOf(t, sent[1])
	assert.Equal(t, float64(1), up["state"])

	assert.Equal(t, 1, f.load(t, profile.Keypad, 4).CurrentState)
}

func TestKeyPress_DisableAutomaticStates(t *testing.T) {
	f := newFixture(t)
	inst := instance("com.example.counter.manual", 2)
	inst.Action.DisableAutomaticStates = true
	f.bind(t, profile.Keypad, 0, inst)

	f.run(t, f.input(device.KeyDown, 0, 0), f.input(device.KeyUp, 0, 0))

	assert.Equal(t, 0, f.load(t, profile.Keypad, 0).CurrentState)
	assert.Len(t, f.sender.Sent(), 2)
}

func TestKeyPress_AbsentSlotIsNoop(t *testing.T) {
	f := newFixture(t)
	f.bind(t, profile.Keypad, 0, instance("com.example.counter.a", 1))

	f.run(t, f.input(device.KeyDown, 3, 0), f.input(device.KeyUp, 3, 0))

	assert.Empty(t, f.sender.Sent())
}

func TestKeyPress_UnknownDeviceIsNoop(t *testing.T) {
	f := newFixture(t)

	err := f.engine.processEvent(context.Background(),
		InputEvent(device.Input{Device: "ghost", Kind: device.KeyDown, Index: 0}))
	require.NoError(t, err)
	assert.Empty(t, f.sender.Sent())
}

func TestKeyPress_OutOfRange(t *testing.T) {
	f := newFixture(t)

	err := f.engine.processEvent(context.Background(), f.input(device.KeyDown, 42, 0))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeInvalidContext))
	assert.ErrorIs(t, err, profile.ErrPositionOutOfRange)
}

func TestMultiAction_RunsChildrenInOrder(t *testing.T) {
	f := newFixture(t)
	first := instance("com.example.counter.a", 2)
	second := instance("com.example.counter.b", 1)
	f.bind(t, profile.Keypad, 2, instance(profile.MultiActionUUID, 1, first, delay(250), second))

	f.run(t, f.input(device.KeyDown, 2, 0), f.input(device.KeyUp, 2, 0))

	assert.Equal(t, []string{EventKeyDown, EventKeyUp, EventKeyDown, EventKeyUp}, f.sender.Events())
	sent := f.sender.Sent()
	for _, m := range sent {
		assert.Equal(t, true, payloadOf(t, m)["isInMultiAction"])
	}

	var body InstanceEvent
	require.NoError(t, json.Unmarshal(sent[0].Body, &body))
	assert.Equal(t, "com.example.counter.a", body.Action)
	assert.Equal(t, 1, body.Context.Index)
	require.NoError(t, json.Unmarshal(sent[2].Body, &body))
	assert.Equal(t, "com.example.counter.b", body.Action)
	assert.Equal(t, 3, body.Context.Index)

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond, 100 * time.Millisecond,
		250 * time.Millisecond,
		100 * time.Millisecond, 100 * time.Millisecond,
	}, f.clock.Sleeps())

	stored := f.load(t, profile.Keypad, 2)
	assert.Equal(t, 1, stored.Children[0].CurrentState)
}

func TestMultiAction_SendFailureAborts(t *testing.T) {
	f := newFixture(t)
	failing := instance("com.example.broken.a", 1)
	failing.Action.Plugin = "com.example.broken"
	f.bind(t, profile.Keypad, 0, instance(profile.MultiActionUUID, 1,
		failing, instance("com.example.counter.b", 1)))
	f.sender.Fail["com.example.broken"] = true

	err := f.engine.processEvent(context.Background(), f.input(device.KeyDown, 0, 0))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDeliveryFailed))
	assert.Empty(t, f.sender.Sent())
}

func TestMultiActionSwitch_AlternatesGroups(t *testing.T) {
	f := newFixture(t)
	groupA := instance(profile.MultiActionUUID, 1, instance("com.example.counter.a", 1))
	groupB := instance(profile.MultiActionUUID, 1, instance("com.example.counter.b", 1))
	f.bind(t, profile.Keypad, 1, instance(profile.MultiActionSwitchUUID, 2, groupA, groupB))

	actions := func() []string {
		var out []string
		for _, m := range f.sender.Sent() {
			var body InstanceEvent
			require.NoError(t, json.Unmarshal(m.Body, &body))
			out = append(out, body.Event+" "+body.Action)
		}
		return out
	}

	ctx := context.Background()
	require.NoError(t, f.engine.processEvent(ctx, f.input(device.KeyDown, 1, 0)))
	assert.Equal(t, []string{"keyDown com.example.counter.a", "keyUp com.example.counter.a"}, actions())
	assert.Equal(t, 1, f.load(t, profile.Keypad, 1).CurrentState)

	f.sender.Reset()
	require.NoError(t, f.engine.processEvent(ctx, f.input(device.KeyDown, 1, 0)))
	assert.Equal(t, []string{"keyDown com.example.counter.b", "keyUp com.example.counter.b"}, actions())
	assert.Equal(t, 0, f.load(t, profile.Keypad, 1).CurrentState)
}

func TestMultiActionSwitch_MissingGroup(t *testing.T) {
	f := newFixture(t)
	f.bind(t, profile.Keypad, 1, instance(profile.MultiActionSwitchUUID, 2,
		instance(profile.MultiActionUUID, 1)))

	p, err := f.store.ReadProfile(context.Background(), f.info.ID, store.DefaultProfileID)
	require.NoError(t, err)
	p.Keys[1].CurrentState = 1
	_, err = f.store.SaveProfile(context.Background(), p)
	require.NoError(t, err)

	err = f.engine.processEvent(context.Background(), f.input(device.KeyDown, 1, 0))
	assert.True(t, HasCode(err, ErrCodeInvalidContext))
}

func TestDelayOf(t *testing.T) {
	tests := []struct {
		name     string
		settings profile.Object
		want     time.Duration
	}{
		{"integer", profile.Object{"delay": profile.NewInt(1500)}, 1500 * time.Millisecond},
		{"decimal", profile.Object{"delay": profile.Number("20.0")}, 20 * time.Millisecond},
		{"missing", profile.Object{}, 0},
		{"string", profile.Object{"delay": profile.String("soon")}, 0},
		{"negative", profile.Object{"delay": profile.NewInt(-5)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := delay(0)
			inst.Settings = tt.settings
			assert.Equal(t, tt.want, delayOf(inst))
		})
	}
}

func TestDial_RotateAndPress(t *testing.T) {
	f := newFixture(t)
	dial := instance("com.example.counter.volume", 1)
	dial.Action.Controllers = []profile.Controller{profile.Encoder}
	dial.Settings = profile.Object{"step": profile.NewInt(5)}
	f.bind(t, profile.Encoder, 1, dial)

	f.run(t,
		f.input(device.DialRotate, 1, -2),
		f.input(device.DialDown, 1, 0),
		f.input(device.DialUp, 1, 0),
	)

	sent := f.sender.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, []string{EventDialRotate, EventDialDown, EventDialUp}, f.sender.Events())

	rotate := payloadOf(t, sent[0])
	assert.Equal(t, float64(-2), rotate["ticks"])
	assert.Equal(t, false, rotate["pressed"])
	assert.Equal(t, map[string]any{"row": float64(0), "column": float64(1)}, rotate["coordinates"])
	assert.Equal(t, map[string]any{"step": float64(5)}, rotate["settings"])

	press := payloadOf(t, sent[1])
	assert.Equal(t, "Encoder", press["controller"])
	// Dial events use the same encoder coordinates as willAppear.
	assert.Equal(t, rotate["coordinates"], press["coordinates"])
}

func TestSetSettings_FromInspectorNotifiesPlugin(t *testing.T) {
	f := newFixture(t)
	f.bind(t, profile.Keypad, 0, instance("com.example.counter.a", 1))
	actx := profile.SlotContext(f.info.ID, store.DefaultProfileID, profile.Keypad, 0).String()

	f.run(t,
		inbound(t, false, counterPlugin, map[string]any{
			"event": EventSetSettings, "context": actx, "payload": map[string]any{"count": 1},
		}),
		inbound(t, true, actx, map[string]any{
			"event": EventSetSettings, "context": actx, "payload": map[string]any{"count": 7},
		}),
	)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, EventDidReceiveSettings, sent[0].Event)
	assert.Equal(t, testutil.TargetPlugin, sent[0].Target)
	assert.Equal(t, map[string]any{"count": float64(7)}, payloadOf(t, sent[0])["settings"])

	stored := f.load(t, profile.Keypad, 0)
	assert.Equal(t, profile.Object{"count": profile.NewInt(7)}, stored.Settings)
}

func TestSetSettings_ChildContext(t *testing.T) {
	f := newFixture(t)
	f.bind(t, profile.Keypad, 5, instance(profile.MultiActionUUID, 1,
		instance("com.example.counter.a", 1), instance("com.example.counter.b", 1)))
	actx := profile.ActionContext{
		Device: f.info.ID, Profile: store.DefaultProfileID,
		Controller: profile.Keypad, Position: 5, Index: 2,
	}.String()

	f.run(t, inbound(t, false, counterPlugin, map[string]any{
		"event": EventSetSettings, "context": actx, "payload": map[string]any{"x": true},
	}))

	stored := f.load(t, profile.Keypad, 5)
	assert.Equal(t, profile.Object{}, stored.Children[0].Settings)
	assert.Equal(t, profile.Object{"x": profile.Bool(true)}, stored.Children[1].Settings)
}

func TestSetSettings_Errors(t *testing.T) {
	f := newFixture(t)
	f.bind(t, profile.Keypad, 0, instance("com.example.counter.a", 1))
	ctx := context.Background()

	tests := []struct {
		name string
		msg  map[string]any
		code DispatchErrorCode
	}{
		{"bad context", map[string]any{"event": EventSetSettings, "context": "nope", "payload": map[string]any{}}, ErrCodeInvalidContext},
		{"absent slot", map[string]any{"event": EventSetSettings, "context": "pk-01.Default.Keypad.3.0", "payload": map[string]any{}}, ErrCodeInvalidContext},
		{"no profile", map[string]any{"event": EventSetSettings, "context": "pk-01.Gaming.Keypad.0.0", "payload": map[string]any{}}, ErrCodeInvalidContext},
		{"payload not object", map[string]any{"event": EventSetSettings, "context": "pk-01.Default.Keypad.0.0", "payload": []int{1}}, ErrCodeInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.processEvent(ctx, inbound(t, false, counterPlugin, tt.msg))
			require.Error(t, err)
			assert.True(t, HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestGetSettings_FromInspector(t *testing.T) {
	f := newFixture(t)
	inst := instance("com.example.counter.a", 1)
	inst.Settings = profile.Object{"name": profile.String("kettle")}
	f.bind(t, profile.Keypad, 0, inst)
	actx := profile.SlotContext(f.info.ID, store.DefaultProfileID, profile.Keypad, 0).String()

	f.run(t, inbound(t, true, actx, map[string]any{"event": EventGetSettings, "context": actx}))

	sent := f.sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, testutil.TargetPlugin, sent[0].Target)
	assert.Equal(t, testutil.TargetInspector, sent[1].Target)
	assert.Equal(t, actx, sent[1].To)
	assert.JSONEq(t, string(sent[0].Body), string(sent[1].Body))
	assert.Equal(t, map[string]any{"name": "kettle"}, payloadOf(t, sent[0])["settings"])
}

func TestGlobalSettings(t *testing.T) {
	f := newFixture(t)

	f.run(t,
		inbound(t, false, counterPlugin, map[string]any{
			"event": EventSetGlobalSettings, "context": counterPlugin, "payload": map[string]any{"token": "abc"},
		}),
		inbound(t, false, counterPlugin, map[string]any{
			"event": EventGetGlobalSettings, "context": counterPlugin,
		}),
	)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, counterPlugin, sent[0].To)
	assert.JSONEq(t, `{"event":"didReceiveGlobalSettings","payload":{"settings":{"token":"abc"}}}`, string(sent[0].Body))

	stored, err := f.store.GlobalSettings(context.Background(), counterPlugin)
	require.NoError(t, err)
	assert.Equal(t, profile.Object{"token": profile.String("abc")}, stored)
}

func TestOpenURL(t *testing.T) {
	f := newFixture(t)

	f.run(t, inbound(t, false, counterPlugin, map[string]any{
		"event": EventOpenURL, "payload": map[string]any{"url": "https://example.com"},
	}))

	assert.Equal(t, []string{"https://example.com"}, f.opened)
	assert.Empty(t, f.sender.Sent())
}

func TestInbound_UnknownAndGarbageIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.processEvent(ctx,
		InboundEvent(Inbound{Source: counterPlugin, Data: []byte("{not json")})))
	require.NoError(t, f.engine.processEvent(ctx,
		inbound(t, false, counterPlugin, map[string]any{"event": "setTitle", "context": "x"})))
	assert.Empty(t, f.sender.Sent())
}

func TestDeviceConnect(t *testing.T) {
	f := newFixture(t)
	other := device.ProntoKeyInfo("02")
	f.info = other
	f.bind(t, profile.Keypad, 0, instance("com.example.counter.a", 1))
	f.bind(t, profile.Keypad, 1, instance(profile.MultiActionUUID, 1, instance("com.example.counter.b", 1)))

	f.run(t, DeviceConnectedEvent(other))

	sent := f.sender.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, counterPlugin, sent[0].To)
	assert.Equal(t, otherPlugin, sent[1].To)
	assert.JSONEq(t, `{
		"event": "deviceDidConnect",
		"device": "pk-02",
		"deviceInfo": {"name": "ProntoKey", "type": 7, "size": {"columns": 3, "rows": 3}}
	}`, string(sent[0].Body))
	assert.Equal(t, EventWillAppear, sent[2].Event)

	stored, err := f.store.ReadDevice(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, other, stored)
}

func TestDeviceConnect_CreatesSelectedProfile(t *testing.T) {
	f := newFixture(t)
	fresh := device.ProntoKeyInfo("03")

	f.run(t, DeviceConnectedEvent(fresh))

	p, err := f.store.ReadProfile(context.Background(), fresh.ID, store.DefaultProfileID)
	require.NoError(t, err)
	assert.Len(t, p.Keys, 9)
	assert.Len(t, p.Sliders, 2)
}

func TestDeviceDisconnect(t *testing.T) {
	f := newFixture(t)
	f.bind(t, profile.Keypad, 0, instance("com.example.counter.a", 1))

	f.run(t, DeviceDisconnectedEvent(f.info))

	assert.Equal(t, []string{EventDeviceDidDisconnect, EventDeviceDidDisconnect, EventWillDisappear}, f.sender.Events())
}

func TestEnqueue_StampsSeqAndTrace(t *testing.T) {
	f := newFixture(t)

	var seen []Event
	for i := 0; i < 3; i++ {
		require.True(t, f.engine.Enqueue(f.input(device.KeyDown, 0, 0)))
	}
	for {
		ev, ok := f.engine.queue.pop()
		if !ok {
			break
		}
		seen = append(seen, ev)
	}

	require.Len(t, seen, 3)
	for i, ev := range seen {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, "trace-"+string(rune('1'+i)), ev.Trace)
	}
}

func TestEnqueue_SeqFollowsQueueOrder(t *testing.T) {
	f := newFixture(t)

	const producers, each = 4, 50
	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				f.engine.Enqueue(f.input(device.KeyDown, 0, 0))
			}
		}()
	}
	wg.Wait()

	var last int64
	for {
		ev, ok := f.engine.queue.pop()
		if !ok {
			break
		}
		assert.Equal(t, last+1, ev.Seq)
		last = ev.Seq
	}
	assert.Equal(t, int64(producers*each), last)
}

func TestMultiAction_DelayStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	// This clock never advances on its own, so the delay only ends by cancel.
	f.engine.clock = clocktesting.NewFakeClock(testutil.Epoch)
	f.bind(t, profile.Keypad, 0, instance(profile.MultiActionUUID, 1,
		delay(3_600_000), instance("com.example.counter.b", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.processEvent(ctx, f.input(device.KeyDown, 0, 0)) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("multi-action still waiting after cancel")
	}
	assert.Empty(t, f.sender.Sent())
}

func TestEnqueue_AfterStop(t *testing.T) {
	f := newFixture(t)
	f.engine.Stop()
	assert.False(t, f.engine.Enqueue(f.input(device.KeyDown, 0, 0)))
}

func TestRun_ContextCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ContinuesAfterError(t *testing.T) {
	f := newFixture(t)
	f.bind(t, profile.Keypad, 0, instance("com.example.counter.a", 1))

	f.run(t, f.input(device.KeyDown, 99, 0), f.input(device.KeyDown, 0, 0))

	assert.Equal(t, []string{EventKeyDown}, f.sender.Events())
}
