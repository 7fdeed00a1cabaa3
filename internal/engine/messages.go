package engine

import (
	"encoding/json"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/profile"
)

// Outbound event names.
const (
	EventKeyDown                  = "keyDown"
	EventKeyUp                    = "keyUp"
	EventDialRotate               = "dialRotate"
	EventDialDown                 = "dialDown"
	EventDialUp                   = "dialUp"
	EventWillAppear               = "willAppear"
	EventWillDisappear            = "willDisappear"
	EventDidReceiveSettings       = "didReceiveSettings"
	EventDidReceiveGlobalSettings = "didReceiveGlobalSettings"
	EventDeviceDidConnect         = "deviceDidConnect"
	EventDeviceDidDisconnect      = "deviceDidDisconnect"
)

// Inbound event names.
const (
	EventSetSettings       = "setSettings"
	EventGetSettings       = "getSettings"
	EventSetGlobalSettings = "setGlobalSettings"
	EventGetGlobalSettings = "getGlobalSettings"
	EventOpenURL           = "openUrl"
)

// InstanceEvent is sent to a plugin about one of its action instances.
type InstanceEvent struct {
	Event   string                `json:"event"`
	Action  string                `json:"action"`
	Context profile.ActionContext `json:"context"`
	Device  string                `json:"device"`
	Payload any                   `json:"payload"`
}

// InstancePayload is the payload of key, appearance and settings events.
type InstancePayload struct {
	Settings        profile.Object     `json:"settings"`
	Coordinates     device.Coordinates `json:"coordinates"`
	Controller      profile.Controller `json:"controller"`
	State           int                `json:"state"`
	IsInMultiAction bool               `json:"isInMultiAction"`
}

// DialRotatePayload is the payload of dialRotate.
type DialRotatePayload struct {
	Settings    profile.Object     `json:"settings"`
	Coordinates device.Coordinates `json:"coordinates"`
	Ticks       int                `json:"ticks"`
	Pressed     bool               `json:"pressed"`
}

// DialPressPayload is the payload of dialDown and dialUp.
type DialPressPayload struct {
	Controller  profile.Controller `json:"controller"`
	Settings    profile.Object     `json:"settings"`
	Coordinates device.Coordinates `json:"coordinates"`
}

// GlobalSettingsEvent answers getGlobalSettings.
type GlobalSettingsEvent struct {
	Event   string                `json:"event"`
	Payload GlobalSettingsPayload `json:"payload"`
}

// GlobalSettingsPayload carries a plugin's global settings.
type GlobalSettingsPayload struct {
	Settings profile.Object `json:"settings"`
}

// DeviceEvent announces a device connecting or disconnecting.
type DeviceEvent struct {
	Event      string           `json:"event"`
	Device     string           `json:"device"`
	DeviceInfo *DeviceEventInfo `json:"deviceInfo,omitempty"`
}

// DeviceEventInfo describes the connected device.
type DeviceEventInfo struct {
	Name string     `json:"name"`
	Type int        `json:"type"`
	Size DeviceSize `json:"size"`
}

// DeviceSize is the key grid of a device.
type DeviceSize struct {
	Columns int `json:"columns"`
	Rows    int `json:"rows"`
}

// inboundEvent is the envelope of every message from a peer. Context is an
// action context for instance events and a plugin UUID for global settings.
type inboundEvent struct {
	Event   string          `json:"event"`
	Context string          `json:"context"`
	Payload json.RawMessage `json:"payload"`
}

type openURLPayload struct {
	URL string `json:"url"`
}

func instancePayload(inst *profile.ActionInstance, columns int, inMulti bool) InstancePayload {
	return InstancePayload{
		Settings:        inst.Settings,
		Coordinates:     device.CoordinatesFor(inst.Context.Controller, inst.Context.Position, columns),
		Controller:      inst.Context.Controller,
		State:           inst.CurrentState,
		IsInMultiAction: inMulti,
	}
}

func instanceEvent(event string, inst *profile.ActionInstance, payload any) InstanceEvent {
	return InstanceEvent{
		Event:   event,
		Action:  inst.Action.UUID,
		Context: inst.Context,
		Device:  inst.Context.Device,
		Payload: payload,
	}
}
