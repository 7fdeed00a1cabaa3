// Package hub is the WebSocket endpoint plugins and property inspectors
// connect to.
//
// The first message on a connection must register it, either as a plugin
// (keyed by plugin UUID) or as a property inspector (keyed by the action
// context it edits). Messages sent to a peer that is not connected are
// queued and flushed in order when it registers.
package hub
