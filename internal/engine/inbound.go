package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/deckd/internal/profile"
	"github.com/roach88/deckd/internal/store"
)

// handleInbound applies a message from a plugin or property inspector.
// Undecodable messages and unknown events are logged and dropped.
func (e *Engine) handleInbound(ctx context.Context, in Inbound) error {
	var msg inboundEvent
	if err := json.Unmarshal(in.Data, &msg); err != nil {
		slog.Warn("dropping undecodable message", "source", in.Source, "error", err)
		return nil
	}

	switch msg.Event {
	case EventSetSettings:
		return e.setSettings(ctx, in, msg)
	case EventGetSettings:
		return e.getSettings(ctx, in, msg)
	case EventSetGlobalSettings:
		return e.setGlobalSettings(ctx, msg)
	case EventGetGlobalSettings:
		return e.getGlobalSettings(ctx, in, msg)
	case EventOpenURL:
		return e.openURL(ctx, msg)
	default:
		slog.Warn("unknown event", "event", msg.Event, "source", in.Source, "inspector", in.FromInspector)
		return nil
	}
}

// lookup resolves an action context to the profile holding it and the
// instance itself. Child contexts are matched by walking the slot's children.
func (e *Engine) lookup(ctx context.Context, raw string) (*profile.Profile, *profile.ActionInstance, error) {
	actx, err := profile.ParseContext(raw)
	if err != nil {
		return nil, nil, contextError(raw, "parse context", err)
	}

	p, err := e.store.ReadProfile(ctx, actx.Device, actx.Profile)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, contextError(raw, "no such profile", err)
	}
	if err != nil {
		return nil, nil, persistError(actx.Device, "load profile "+actx.Profile, err)
	}

	slot, err := p.Slot(actx.Controller, actx.Position)
	if err != nil {
		return nil, nil, contextError(raw, "slot outside profile", err)
	}
	if inst := findInstance(slot, actx); inst != nil {
		return p, inst, nil
	}
	return nil, nil, contextError(raw, "no instance at context", nil)
}

func findInstance(inst *profile.ActionInstance, actx profile.ActionContext) *profile.ActionInstance {
	if inst == nil {
		return nil
	}
	if inst.Context == actx {
		return inst
	}
	for _, child := range inst.Children {
		if found := findInstance(child, actx); found != nil {
			return found
		}
	}
	return nil
}

func decodeSettings(raw json.RawMessage) (profile.Object, error) {
	if len(raw) == 0 {
		return nil, payloadError("missing settings payload", nil)
	}
	var settings profile.Object
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, payloadError("settings payload", err)
	}
	return settings, nil
}

// setSettings replaces an instance's settings. When the inspector made the
// change, the plugin is told through didReceiveSettings.
func (e *Engine) setSettings(ctx context.Context, in Inbound, msg inboundEvent) error {
	settings, err := decodeSettings(msg.Payload)
	if err != nil {
		return err
	}
	p, inst, err := e.lookup(ctx, msg.Context)
	if err != nil {
		return err
	}

	inst.Settings = settings
	if err := e.save(ctx, p); err != nil {
		return err
	}

	if in.FromInspector {
		reply := instanceEvent(EventDidReceiveSettings, inst,
			instancePayload(inst, e.columns(ctx, p.Device), inst.Context.Index > 0))
		return e.send(ctx, inst, reply)
	}
	return nil
}

// getSettings answers with didReceiveSettings to the plugin, and also to the
// inspector when it asked.
func (e *Engine) getSettings(ctx context.Context, in Inbound, msg inboundEvent) error {
	p, inst, err := e.lookup(ctx, msg.Context)
	if err != nil {
		return err
	}

	reply := instanceEvent(EventDidReceiveSettings, inst,
		instancePayload(inst, e.columns(ctx, p.Device), inst.Context.Index > 0))
	if err := e.send(ctx, inst, reply); err != nil {
		return err
	}
	if in.FromInspector {
		if err := e.sender.SendToInspector(ctx, msg.Context, reply); err != nil {
			return deliveryError(msg.Context, "inspector", err)
		}
	}
	return nil
}

func (e *Engine) setGlobalSettings(ctx context.Context, msg inboundEvent) error {
	if msg.Context == "" {
		return payloadError("setGlobalSettings without plugin", nil)
	}
	settings, err := decodeSettings(msg.Payload)
	if err != nil {
		return err
	}
	if err := e.store.SetGlobalSettings(ctx, msg.Context, settings); err != nil {
		return persistError("", "save global settings for "+msg.Context, err)
	}
	return nil
}

func (e *Engine) getGlobalSettings(ctx context.Context, in Inbound, msg inboundEvent) error {
	if msg.Context == "" {
		return payloadError("getGlobalSettings without plugin", nil)
	}
	settings, err := e.store.GlobalSettings(ctx, msg.Context)
	if err != nil {
		return persistError("", "read global settings for "+msg.Context, err)
	}

	reply := GlobalSettingsEvent{
		Event:   EventDidReceiveGlobalSettings,
		Payload: GlobalSettingsPayload{Settings: settings},
	}
	if err := e.sender.Send(ctx, msg.Context, reply); err != nil {
		return deliveryError("", msg.Context, err)
	}
	if in.FromInspector {
		if err := e.sender.SendToInspector(ctx, in.Source, reply); err != nil {
			return deliveryError(in.Source, "inspector", err)
		}
	}
	return nil
}

func (e *Engine) openURL(ctx context.Context, msg inboundEvent) error {
	var payload openURLPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.URL == "" {
		return payloadError("openUrl payload", err)
	}
	if e.opener == nil {
		slog.Warn("no URL opener configured", "url", payload.URL)
		return nil
	}
	if err := e.opener(ctx, payload.URL); err != nil {
		return fmt.Errorf("open %s: %w", payload.URL, err)
	}
	return nil
}
