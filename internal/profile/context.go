package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadContext is returned when a context string cannot be parsed.
var ErrBadContext = errors.New("malformed action context")

// ActionContext locates an instance: the device, the profile on that device,
// the controller and slot position, and the child index (0 for a top-level
// instance, 1.. for children of a multi-action).
type ActionContext struct {
	Device     string
	Profile    string
	Controller Controller
	Position   int
	Index      int
}

// SlotContext returns the context of the top-level instance at a slot.
func SlotContext(device, profile string, c Controller, position int) ActionContext {
	return ActionContext{
		Device:     device,
		Profile:    profile,
		Controller: c,
		Position:   position,
	}
}

// String renders device.profile.controller.position.index.
func (c ActionContext) String() string {
	return fmt.Sprintf("%s.%s.%s.%d.%d", c.Device, c.Profile, c.Controller, c.Position, c.Index)
}

// Slot strips the child index, returning the context of the owning slot.
func (c ActionContext) Slot() ActionContext {
	c.Index = 0
	return c
}

// ParseContext is the inverse of ActionContext.String. The profile segment
// may itself contain dots; device ids may not.
func ParseContext(s string) (ActionContext, error) {
	segs := strings.Split(s, ".")
	if len(segs) < 5 {
		return ActionContext{}, fmt.Errorf("%w: %q", ErrBadContext, s)
	}
	n := len(segs)

	ctrl, err := ParseController(segs[n-3])
	if err != nil {
		return ActionContext{}, fmt.Errorf("%w: %q: %v", ErrBadContext, s, err)
	}
	pos, err := strconv.Atoi(segs[n-2])
	if err != nil || pos < 0 {
		return ActionContext{}, fmt.Errorf("%w: %q: bad position", ErrBadContext, s)
	}
	idx, err := strconv.Atoi(segs[n-1])
	if err != nil || idx < 0 {
		return ActionContext{}, fmt.Errorf("%w: %q: bad index", ErrBadContext, s)
	}

	return ActionContext{
		Device:     segs[0],
		Profile:    strings.Join(segs[1:n-3], "."),
		Controller: ctrl,
		Position:   pos,
		Index:      idx,
	}, nil
}

// MarshalJSON encodes the context as its string form.
func (c ActionContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes the string form.
func (c *ActionContext) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrBadContext, err)
	}
	parsed, err := ParseContext(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
