// Package profile holds the deckd data model: profiles, the action instances
// bound to their slots, and the canonical JSON used to store and hash them.
//
// Every other internal package imports profile; profile imports nothing
// internal.
//
// Key constraints:
//   - Slot order is physical position and survives every codec
//   - An absent slot is a nil *ActionInstance and encodes as null
//   - All JSON tags use snake_case
package profile
