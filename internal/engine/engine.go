package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/profile"
	"github.com/roach88/deckd/internal/store"
)

// Sender delivers JSON messages to hub peers. Implemented by *hub.Hub.
type Sender interface {
	Send(ctx context.Context, plugin string, v any) error
	SendToInspector(ctx context.Context, actionContext string, v any) error
}

// Opener opens a URL on behalf of a plugin.
type Opener func(ctx context.Context, url string) error

// DefaultPressDelay separates the keyDown and keyUp a multi-action sends to
// each child, and follows each keyUp.
const DefaultPressDelay = 100 * time.Millisecond

// Engine is the single-writer dispatch loop.
//
// Device input and plugin messages are queued by Enqueue and handled one at a
// time by Run, so profile reads, instance state changes and saves never
// interleave.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	store      *store.Store
	sender     Sender
	clock      clock.Clock
	opener     Opener
	plugins    func() []string
	traces     TraceGenerator
	pressDelay time.Duration

	queue *eventQueue
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the clock used for multi-action delays.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithOpener sets the handler for openUrl.
func WithOpener(o Opener) Option {
	return func(e *Engine) {
		e.opener = o
	}
}

// WithPlugins sets the function listing plugin UUIDs that receive device
// connect and disconnect events.
func WithPlugins(plugins func() []string) Option {
	return func(e *Engine) {
		e.plugins = plugins
	}
}

// WithTraceGenerator replaces the generator of per-event trace ids.
func WithTraceGenerator(g TraceGenerator) Option {
	return func(e *Engine) {
		e.traces = g
	}
}

// WithPressDelay overrides DefaultPressDelay.
func WithPressDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.pressDelay = d
	}
}

// New creates an Engine that reads and saves profiles in s and sends plugin
// messages through sender.
func New(s *store.Store, sender Sender, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		sender:     sender,
		clock:      clock.RealClock{},
		plugins:    func() []string { return nil },
		traces:     UUIDv7Generator{},
		pressDelay: DefaultPressDelay,
		queue:      newEventQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits an event for processing by the Run loop. The event is
// stamped with the next seq and a trace id.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	if ev.Trace == "" {
		ev.Trace = e.traces.Generate()
	}
	return e.queue.push(ev)
}

// Run is the single-writer event loop. It returns ctx.Err() when ctx is
// cancelled, or nil once Stop has been called and the queued events are
// processed. A failing event is logged and the loop moves on.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		if event, ok := e.queue.pop(); ok {
			if err := e.processEvent(ctx, event); err != nil {
				logEventError(event, err)
			}
			continue
		}
		if e.queue.drained() {
			slog.Info("engine stopping: queue closed")
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.close()
			return ctx.Err()
		case <-e.queue.ready():
		}
	}
}

// Stop rejects further events. Run returns once the queue is drained.
func (e *Engine) Stop() {
	e.queue.close()
}

// processEvent routes an event to its handler.
// Called only from the Run goroutine.
func (e *Engine) processEvent(ctx context.Context, ev Event) error {
	slog.Debug("processing event", "type", ev.Type, "seq", ev.Seq, "trace", ev.Trace)

	switch ev.Type {
	case EventTypeInput:
		if ev.Input == nil {
			return payloadError("input event missing input data", nil)
		}
		return e.handleInput(ctx, *ev.Input)

	case EventTypeInbound:
		if ev.Inbound == nil {
			return payloadError("inbound event missing message", nil)
		}
		return e.handleInbound(ctx, *ev.Inbound)

	case EventTypeDeviceConnected:
		if ev.Device == nil {
			return payloadError("device event missing device", nil)
		}
		return e.handleConnect(ctx, *ev.Device)

	case EventTypeDeviceDisconnected:
		if ev.Device == nil {
			return payloadError("device event missing device", nil)
		}
		return e.handleDisconnect(ctx, *ev.Device)

	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
}

// activeProfile loads the selected profile of a device. A device the store
// has never seen has no bindings; nil is returned without error.
func (e *Engine) activeProfile(ctx context.Context, deviceID string) (*profile.Profile, int, error) {
	selected, err := e.store.SelectedProfile(ctx, deviceID)
	if err != nil {
		return nil, 0, persistError(deviceID, "selected profile", err)
	}

	info, err := e.store.ReadDevice(ctx, deviceID)
	switch {
	case err == nil:
		p, err := e.store.EnsureProfile(ctx, info, selected)
		if err != nil {
			return nil, 0, persistError(deviceID, "load profile "+selected, err)
		}
		return p, info.Layout.Columns, nil

	case errors.Is(err, store.ErrNotFound):
		p, err := e.store.ReadProfile(ctx, deviceID, selected)
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, nil
		}
		if err != nil {
			return nil, 0, persistError(deviceID, "load profile "+selected, err)
		}
		return p, device.DefaultColumns, nil

	default:
		return nil, 0, persistError(deviceID, "read device", err)
	}
}

// columns returns the key grid width used for coordinates.
func (e *Engine) columns(ctx context.Context, deviceID string) int {
	info, err := e.store.ReadDevice(ctx, deviceID)
	if err != nil {
		return device.DefaultColumns
	}
	return info.Layout.Columns
}

func (e *Engine) save(ctx context.Context, p *profile.Profile) error {
	if _, err := e.store.SaveProfile(ctx, p); err != nil {
		return persistError(p.Device, "save profile "+p.ID, err)
	}
	return nil
}

func (e *Engine) send(ctx context.Context, inst *profile.ActionInstance, v any) error {
	if err := e.sender.Send(ctx, inst.Action.Plugin, v); err != nil {
		return deliveryError(inst.Context.String(), inst.Action.Plugin, err)
	}
	return nil
}

func (e *Engine) broadcast(ctx context.Context, v any) {
	for _, plugin := range e.plugins() {
		if err := e.sender.Send(ctx, plugin, v); err != nil {
			slog.Warn("broadcast failed", "plugin", plugin, "error", err)
		}
	}
}

// logEventError logs an event processing failure with full context.
func logEventError(ev Event, err error) {
	attrs := []any{
		"error", err,
		"type", ev.Type,
		"seq", ev.Seq,
		"trace", ev.Trace,
	}
	switch {
	case ev.Input != nil:
		attrs = append(attrs, "device", ev.Input.Device, "input", ev.Input.Kind, "index", ev.Input.Index)
	case ev.Inbound != nil:
		attrs = append(attrs, "source", ev.Inbound.Source, "inspector", ev.Inbound.FromInspector)
	case ev.Device != nil:
		attrs = append(attrs, "device", ev.Device.ID)
	}
	slog.Error("event processing failed", attrs...)
}
