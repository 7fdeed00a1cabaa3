package engine

import (
	"context"
	"errors"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/profile"
	"github.com/roach88/deckd/internal/store"
)

// handleConnect records the device, makes sure its selected profile exists,
// announces it to every plugin and sends willAppear for each bound instance.
func (e *Engine) handleConnect(ctx context.Context, info device.Info) error {
	if err := e.store.UpsertDevice(ctx, info); err != nil {
		return persistError(info.ID, "record device", err)
	}
	selected, err := e.store.SelectedProfile(ctx, info.ID)
	if err != nil {
		return persistError(info.ID, "selected profile", err)
	}
	p, err := e.store.EnsureProfile(ctx, info, selected)
	if err != nil {
		return persistError(info.ID, "load profile "+selected, err)
	}

	e.broadcast(ctx, DeviceEvent{
		Event:  EventDeviceDidConnect,
		Device: info.ID,
		DeviceInfo: &DeviceEventInfo{
			Name: info.Name,
			Type: info.Type,
			Size: DeviceSize{Columns: info.Layout.Columns, Rows: info.Layout.Rows},
		},
	})
	return e.appearance(ctx, p, EventWillAppear, info.Layout.Columns)
}

// handleDisconnect announces the device is gone and sends willDisappear for
// the instances of its selected profile.
func (e *Engine) handleDisconnect(ctx context.Context, info device.Info) error {
	e.broadcast(ctx, DeviceEvent{Event: EventDeviceDidDisconnect, Device: info.ID})

	selected, err := e.store.SelectedProfile(ctx, info.ID)
	if err != nil {
		return persistError(info.ID, "selected profile", err)
	}
	p, err := e.store.ReadProfile(ctx, info.ID, selected)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return persistError(info.ID, "load profile "+selected, err)
	}
	return e.appearance(ctx, p, EventWillDisappear, e.columns(ctx, info.ID))
}

func (e *Engine) appearance(ctx context.Context, p *profile.Profile, event string, columns int) error {
	var errs []error
	p.Instances(func(_ profile.Controller, _ int, inst *profile.ActionInstance) {
		if inst.Action.IsMulti() {
			return
		}
		msg := instanceEvent(event, inst, instancePayload(inst, columns, false))
		if err := e.send(ctx, inst, msg); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
