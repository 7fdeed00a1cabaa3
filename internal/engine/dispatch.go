package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/profile"
)

// handleInput dispatches a key or dial event to the instance bound in the
// device's selected profile. Input on an absent slot is a no-op.
func (e *Engine) handleInput(ctx context.Context, in device.Input) error {
	p, columns, err := e.activeProfile(ctx, in.Device)
	if err != nil {
		return err
	}
	if p == nil {
		slog.Debug("input for unknown device", "device", in.Device, "input", in.Kind)
		return nil
	}

	ctrl := profile.Keypad
	if in.IsDial() {
		ctrl = profile.Encoder
	}
	inst, err := p.Slot(ctrl, in.Index)
	if err != nil {
		return contextError(profile.SlotContext(p.Device, p.ID, ctrl, in.Index).String(), "input outside profile", err)
	}
	if inst == nil {
		return nil
	}

	switch in.Kind {
	case device.KeyDown:
		return e.keyDown(ctx, p, inst, columns)
	case device.KeyUp:
		return e.keyUp(ctx, p, inst, columns)
	case device.DialRotate:
		return e.send(ctx, inst, instanceEvent(EventDialRotate, inst, DialRotatePayload{
			Settings:    inst.Settings,
			Coordinates: device.CoordinatesFor(ctrl, in.Index, columns),
			Ticks:       in.Ticks,
		}))
	case device.DialDown, device.DialUp:
		event := EventDialDown
		if in.Kind == device.DialUp {
			event = EventDialUp
		}
		return e.send(ctx, inst, instanceEvent(event, inst, DialPressPayload{
			Controller:  profile.Encoder,
			Settings:    inst.Settings,
			Coordinates: device.CoordinatesFor(ctrl, in.Index, columns),
		}))
	default:
		return payloadError(fmt.Sprintf("unknown input kind %q", in.Kind), nil)
	}
}

// keyDown sends keyDown to a plain instance, or runs a multi-action.
//
// A multi-action runs its children in order. A multi-action switch runs the
// children of the group selected by its current state, then advances to the
// next group. Either way the profile is saved afterwards.
func (e *Engine) keyDown(ctx context.Context, p *profile.Profile, inst *profile.ActionInstance, columns int) error {
	switch inst.Action.UUID {
	case profile.MultiActionUUID:
		if err := e.runMulti(ctx, inst.Children, columns); err != nil {
			return err
		}
		return e.save(ctx, p)

	case profile.MultiActionSwitchUUID:
		if inst.CurrentState < 0 || inst.CurrentState >= len(inst.Children) {
			return contextError(inst.Context.String(),
				fmt.Sprintf("switch state %d has no group (have %d)", inst.CurrentState, len(inst.Children)), nil)
		}
		group := inst.Children[inst.CurrentState]
		if group == nil {
			return contextError(inst.Context.String(),
				fmt.Sprintf("switch group %d is empty", inst.CurrentState), nil)
		}
		if err := e.runMulti(ctx, group.Children, columns); err != nil {
			return err
		}
		inst.AdvanceState()
		return e.save(ctx, p)

	default:
		return e.send(ctx, inst, instanceEvent(EventKeyDown, inst, instancePayload(inst, columns, false)))
	}
}

// keyUp toggles a plain instance and sends keyUp. Multi-actions complete on
// key down and ignore the release.
func (e *Engine) keyUp(ctx context.Context, p *profile.Profile, inst *profile.ActionInstance, columns int) error {
	if inst.Action.IsMulti() {
		return nil
	}
	if inst.AutoToggles() {
		inst.AdvanceState()
	}
	if err := e.send(ctx, inst, instanceEvent(EventKeyUp, inst, instancePayload(inst, columns, false))); err != nil {
		return err
	}
	return e.save(ctx, p)
}

// runMulti presses each child in turn. Delay children pause the sequence
// instead. A failed send aborts the remaining children.
func (e *Engine) runMulti(ctx context.Context, children []*profile.ActionInstance, columns int) error {
	for _, child := range children {
		if child == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if child.Action.UUID == profile.DelayActionUUID {
			if err := e.pause(ctx, delayOf(child)); err != nil {
				return err
			}
			continue
		}

		if err := e.send(ctx, child, instanceEvent(EventKeyDown, child, instancePayload(child, columns, true))); err != nil {
			return err
		}
		if err := e.pause(ctx, e.pressDelay); err != nil {
			return err
		}

		if child.AutoToggles() {
			child.AdvanceState()
		}
		if err := e.send(ctx, child, instanceEvent(EventKeyUp, child, instancePayload(child, columns, true))); err != nil {
			return err
		}
		if err := e.pause(ctx, e.pressDelay); err != nil {
			return err
		}
	}
	return nil
}

// pause waits d on the engine clock, returning early when ctx is done.
func (e *Engine) pause(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.clock.After(d):
		return nil
	}
}

var errBadDelay = errors.New("delay setting is not a non-negative integer")

// delayOf reads settings.delay in milliseconds. A missing or malformed value
// is logged and treated as zero.
func delayOf(inst *profile.ActionInstance) time.Duration {
	v, ok := inst.Settings.Get("delay")
	if !ok {
		slog.Warn("delay action without delay setting", "context", inst.Context.String())
		return 0
	}

	var ms int64
	var err error
	switch val := v.(type) {
	case profile.Number:
		ms, err = val.Int64()
		if err != nil {
			var f float64
			f, err = val.Float64()
			ms = int64(f)
		}
	default:
		err = errBadDelay
	}
	if err == nil && ms < 0 {
		err = errBadDelay
	}
	if err != nil {
		slog.Warn("ignoring delay setting", "context", inst.Context.String(), "error", err)
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
