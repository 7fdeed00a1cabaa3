package device

import "github.com/roach88/deckd/internal/profile"

// Layout is the physical shape of a device.
type Layout struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
	Dials   int `json:"dials"`
}

// Keys returns the number of keys on the device.
func (l Layout) Keys() int {
	return l.Rows * l.Columns
}

// Info identifies a connected device.
type Info struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   int    `json:"type"`
	Layout Layout `json:"layout"`
}

// NewProfile returns an empty profile sized to the device.
func (i Info) NewProfile(id string) *profile.Profile {
	return profile.New(i.ID, id, i.Layout.Keys(), i.Layout.Dials)
}

// Coordinates is the row/column of a control, as reported to plugins.
type Coordinates struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// DefaultColumns is used when the device layout is unknown.
const DefaultColumns = 3

// CoordinatesFor maps a slot position to its physical coordinates. Keys are
// laid out row-major; encoders sit on a single row.
func CoordinatesFor(c profile.Controller, position, columns int) Coordinates {
	if c == profile.Encoder {
		return Coordinates{Row: 0, Column: position}
	}
	if columns <= 0 {
		columns = DefaultColumns
	}
	return Coordinates{Row: position / columns, Column: position % columns}
}
