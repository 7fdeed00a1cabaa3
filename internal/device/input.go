package device

import "fmt"

// InputKind names a device input event.
type InputKind string

const (
	KeyDown    InputKind = "keyDown"
	KeyUp      InputKind = "keyUp"
	DialRotate InputKind = "dialRotate"
	DialDown   InputKind = "dialDown"
	DialUp     InputKind = "dialUp"
)

// Input is one event from a device. Index is the key for key events and the
// dial for dial events. Ticks is only set for DialRotate.
type Input struct {
	Device string    `json:"device" yaml:"device"`
	Kind   InputKind `json:"kind" yaml:"kind"`
	Index  int       `json:"index" yaml:"index"`
	Ticks  int       `json:"ticks,omitempty" yaml:"ticks,omitempty"`
}

func (in Input) String() string {
	if in.Kind == DialRotate {
		return fmt.Sprintf("%s %s %d by %d", in.Device, in.Kind, in.Index, in.Ticks)
	}
	return fmt.Sprintf("%s %s %d", in.Device, in.Kind, in.Index)
}

// IsDial reports whether the input addresses an encoder.
func (in Input) IsDial() bool {
	switch in.Kind {
	case DialRotate, DialDown, DialUp:
		return true
	}
	return false
}

// Valid reports whether the kind is one of the known input kinds.
func (k InputKind) Valid() bool {
	switch k {
	case KeyDown, KeyUp, DialRotate, DialDown, DialUp:
		return true
	}
	return false
}

// Sink receives device input.
type Sink func(Input)
