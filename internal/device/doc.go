// Package device describes physical control surfaces: their layout, the
// registry of connected devices, and the input events they produce.
//
// Drivers (see ProntoKey) turn raw device traffic into Input values and hand
// them to a sink, usually the engine's Enqueue.
package device
