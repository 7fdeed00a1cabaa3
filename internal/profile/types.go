package profile

import (
	"fmt"
	"slices"
)

// Controller names the kind of physical control a slot is bound to.
type Controller string

const (
	// Keypad controls address the profile's keys.
	Keypad Controller = "Keypad"
	// Encoder controls address the profile's sliders (dials, faders).
	Encoder Controller = "Encoder"
)

// ParseController accepts the canonical controller names.
func ParseController(s string) (Controller, error) {
	switch Controller(s) {
	case Keypad, Encoder:
		return Controller(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownController, s)
	}
}

// Well-known action UUIDs handled by the dispatcher itself.
const (
	MultiActionUUID       = "com.amansprojects.starterpack.multiaction"
	MultiActionSwitchUUID = "com.amansprojects.starterpack.multiactionSwitch"
	DelayActionUUID       = "com.amansprojects.starterpack.delay"
)

// ActionState is one visual state of an action (title, image, font).
type ActionState struct {
	Image     string `json:"image"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	Show      bool   `json:"show"`
	Color     string `json:"color"`
	Alignment string `json:"alignment"`
	Family    string `json:"family"`
	Style     string `json:"style"`
	Size      string `json:"size"`
	Underline bool   `json:"underline"`
}

// Action is an action definition published by a plugin manifest.
type Action struct {
	Name                    string        `json:"name"`
	UUID                    string        `json:"uuid"`
	Plugin                  string        `json:"plugin"`
	Tooltip                 string        `json:"tooltip"`
	Icon                    string        `json:"icon"`
	DisableAutomaticStates  bool          `json:"disable_automatic_states"`
	VisibleInActionList     bool          `json:"visible_in_action_list"`
	SupportedInMultiActions bool          `json:"supported_in_multi_actions"`
	PropertyInspector       string        `json:"property_inspector"`
	Controllers             []Controller  `json:"controllers"`
	States                  []ActionState `json:"states"`
}

// Supports reports whether the action may be bound to the given controller.
func (a *Action) Supports(c Controller) bool {
	if len(a.Controllers) == 0 {
		return c == Keypad
	}
	for _, ctrl := range a.Controllers {
		if ctrl == c {
			return true
		}
	}
	return false
}

// IsMulti reports whether the action runs its children instead of a plugin.
func (a *Action) IsMulti() bool {
	return a.UUID == MultiActionUUID || a.UUID == MultiActionSwitchUUID
}

// ActionInstance is a configured use of an Action in one slot. Profiles point
// at instances; the dispatcher owns their mutable state (current state,
// settings).
type ActionInstance struct {
	Action       Action            `json:"action"`
	Context      ActionContext     `json:"context"`
	States       []ActionState     `json:"states"`
	CurrentState int               `json:"current_state"`
	Settings     Object            `json:"settings"`
	Children     []*ActionInstance `json:"children,omitempty"`
}

// NewInstance creates an instance of action at ctx with the action's states.
func NewInstance(action Action, ctx ActionContext) *ActionInstance {
	states := make([]ActionState, len(action.States))
	copy(states, action.States)
	return &ActionInstance{
		Action:   action,
		Context:  ctx,
		States:   states,
		Settings: Object{},
	}
}

// AutoToggles reports whether the instance flips between its two states on
// every press.
func (ai *ActionInstance) AutoToggles() bool {
	return len(ai.States) == 2 && !ai.Action.DisableAutomaticStates
}

// AdvanceState moves to the next state, wrapping around.
func (ai *ActionInstance) AdvanceState() {
	if len(ai.States) == 0 {
		return
	}
	ai.CurrentState = (ai.CurrentState + 1) % len(ai.States)
}

// Clone returns a deep copy of the instance and its children.
func (ai *ActionInstance) Clone() *ActionInstance {
	if ai == nil {
		return nil
	}
	out := *ai
	out.Action.Controllers = slices.Clone(ai.Action.Controllers)
	out.Action.States = slices.Clone(ai.Action.States)
	out.States = slices.Clone(ai.States)
	out.Settings = ai.Settings.Clone()
	if ai.Children != nil {
		out.Children = make([]*ActionInstance, len(ai.Children))
		for i, child := range ai.Children {
			out.Children[i] = child.Clone()
		}
	}
	return &out
}

// rebase moves the instance, and its children, to a new slot context.
func (ai *ActionInstance) rebase(ctx ActionContext) {
	ai.Context = ctx
	for i, child := range ai.Children {
		if child == nil {
			continue
		}
		childCtx := ctx
		childCtx.Index = i + 1
		child.rebase(childCtx)
	}
}
