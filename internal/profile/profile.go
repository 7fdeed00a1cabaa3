package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPositionOutOfRange is returned when a slot position does not exist
	// on the profile.
	ErrPositionOutOfRange = errors.New("slot position out of range")
	// ErrUnknownController is returned for controller names other than
	// Keypad and Encoder.
	ErrUnknownController = errors.New("unknown controller")
	// ErrInvalidProfile wraps every Validate failure.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile binds the physical controls of one device to action instances.
// Index i of Keys is key i on the device, index i of Sliders is slider or
// dial i. A nil slot means no action is bound there.
//
// A Profile does not own its instances. The dispatcher mutates them in place
// and the store persists them with the profile.
type Profile struct {
	Device  string            `json:"device"`
	ID      string            `json:"id"`
	Keys    []*ActionInstance `json:"keys"`
	Sliders []*ActionInstance `json:"sliders"`
}

// New returns a profile with every slot absent.
func New(device, id string, keys, sliders int) *Profile {
	return &Profile{
		Device:  device,
		ID:      id,
		Keys:    make([]*ActionInstance, max(keys, 0)),
		Sliders: make([]*ActionInstance, max(sliders, 0)),
	}
}

func (p *Profile) slots(c Controller) ([]*ActionInstance, error) {
	switch c {
	case Keypad:
		return p.Keys, nil
	case Encoder:
		return p.Sliders, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownController, c)
	}
}

func (p *Profile) index(c Controller, position int) ([]*ActionInstance, error) {
	slots, err := p.slots(c)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= len(slots) {
		return nil, fmt.Errorf("%w: %s %d (have %d)", ErrPositionOutOfRange, c, position, len(slots))
	}
	return slots, nil
}

// Slot returns the instance bound at a position, or nil when the slot is
// absent.
func (p *Profile) Slot(c Controller, position int) (*ActionInstance, error) {
	slots, err := p.index(c, position)
	if err != nil {
		return nil, err
	}
	return slots[position], nil
}

// Bind places inst at a position. The instance's context, and its children's,
// are rewritten to point at the slot. Binding nil clears the slot.
func (p *Profile) Bind(c Controller, position int, inst *ActionInstance) error {
	slots, err := p.index(c, position)
	if err != nil {
		return err
	}
	if inst != nil {
		inst.rebase(SlotContext(p.Device, p.ID, c, position))
	}
	slots[position] = inst
	return nil
}

// Clear marks a slot absent.
func (p *Profile) Clear(c Controller, position int) error {
	return p.Bind(c, position, nil)
}

// Instances calls fn for every bound top-level instance, keys first.
func (p *Profile) Instances(fn func(c Controller, position int, inst *ActionInstance)) {
	for i, inst := range p.Keys {
		if inst != nil {
			fn(Keypad, i, inst)
		}
	}
	for i, inst := range p.Sliders {
		if inst != nil {
			fn(Encoder, i, inst)
		}
	}
}

// Validate checks that the profile is addressable and that every bound
// instance's context agrees with the slot holding it.
func (p *Profile) Validate() error {
	if p.Device == "" {
		return fmt.Errorf("%w: empty device", ErrInvalidProfile)
	}
	if strings.Contains(p.Device, ".") {
		return fmt.Errorf("%w: device %q contains '.'", ErrInvalidProfile, p.Device)
	}
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidProfile)
	}

	var errs []error
	p.Instances(func(c Controller, position int, inst *ActionInstance) {
		want := SlotContext(p.Device, p.ID, c, position)
		if err := checkContext(inst, want); err != nil {
			errs = append(errs, err)
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, errors.Join(errs...))
	}
	return nil
}

func checkContext(inst *ActionInstance, want ActionContext) error {
	if inst.Context != want {
		return fmt.Errorf("slot %s %d: context %s", want.Controller, want.Position, contextDiff(inst.Context, want))
	}
	if inst.CurrentState < 0 || (len(inst.States) > 0 && inst.CurrentState >= len(inst.States)) {
		return fmt.Errorf("slot %s %d: current state %d of %d",
			want.Controller, want.Position, inst.CurrentState, len(inst.States))
	}
	for i, child := range inst.Children {
		if child == nil {
			return fmt.Errorf("slot %s %d: child %d is nil", want.Controller, want.Position, i)
		}
		childCtx := want
		childCtx.Index = i + 1
		if child.Context != childCtx {
			return fmt.Errorf("slot %s %d: child %d context %s",
				want.Controller, want.Position, i, contextDiff(child.Context, childCtx))
		}
	}
	return nil
}

// contextDiff names the fields of got that differ from want.
func contextDiff(got, want ActionContext) string {
	var diffs []string
	add := func(field string, g, w any) {
		if g != w {
			diffs = append(diffs, fmt.Sprintf("%s %q, want %q", field, fmt.Sprint(g), fmt.Sprint(w)))
		}
	}
	add("device", got.Device, want.Device)
	add("profile", got.Profile, want.Profile)
	add("controller", got.Controller, want.Controller)
	add("position", got.Position, want.Position)
	add("index", got.Index, want.Index)
	return strings.Join(diffs, ", ")
}

// Equal reports whether both profiles have the same device, id and slot
// contents. An absent slot is equal only to another absent slot.
func (p *Profile) Equal(other *Profile) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.Device != other.Device || p.ID != other.ID {
		return false
	}
	return slotsEqual(p.Keys, other.Keys) && slotsEqual(p.Sliders, other.Sliders)
}

func slotsEqual(a, b []*ActionInstance) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if (a[i] == nil) != (b[i] == nil) {
			return false
		}
		if a[i] == nil {
			continue
		}
		ab, err := MarshalCanonical(a[i])
		if err != nil {
			return false
		}
		bb, err := MarshalCanonical(b[i])
		if err != nil {
			return false
		}
		if !bytes.Equal(ab, bb) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the profile and every bound instance.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := &Profile{
		Device:  p.Device,
		ID:      p.ID,
		Keys:    make([]*ActionInstance, len(p.Keys)),
		Sliders: make([]*ActionInstance, len(p.Sliders)),
	}
	for i, inst := range p.Keys {
		out.Keys[i] = inst.Clone()
	}
	for i, inst := range p.Sliders {
		out.Sliders[i] = inst.Clone()
	}
	return out
}

// profileJSON avoids recursing into Profile.MarshalJSON.
type profileJSON Profile

// MarshalJSON writes empty slot lists as [] and absent slots as null.
func (p *Profile) MarshalJSON() ([]byte, error) {
	out := profileJSON(*p)
	if out.Keys == nil {
		out.Keys = []*ActionInstance{}
	}
	if out.Sliders == nil {
		out.Sliders = []*ActionInstance{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a profile document. Null slots stay nil.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var in profileJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Keys == nil {
		in.Keys = []*ActionInstance{}
	}
	if in.Sliders == nil {
		in.Sliders = []*ActionInstance{}
	}
	*p = Profile(in)
	return nil
}

// Encode returns the canonical JSON document for the profile.
func Encode(p *Profile) ([]byte, error) {
	return MarshalCanonical(p)
}

// Decode parses a profile document.
func Decode(data []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}
