// Package engine dispatches device input and plugin messages against the
// stored profiles.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Device drivers, the registry and hub connections enqueue events from their
// own goroutines. Engine.Run() handles them one at a time, so:
// - an instance's state and settings change in exactly one place
// - a multi-action finishes before the next key press is looked at
// - profile saves never race
//
// Event Processing Flow:
// 1. Enqueue() stamps seq and trace id, appends to the FIFO queue
// 2. Run() dequeues events in order
// 3. processEvent() routes to the input, inbound or device handler
// 4. The handler reads the selected profile from the store
// 5. Messages go out through the Sender; changed profiles are saved
//
// Profiles are read from the store on every event. Edits made through the CLI
// while the daemon runs are seen on the next key press.
//
// Multi-action timing goes through a k8s.io/utils/clock Clock so tests can
// step a fake clock instead of sleeping.
package engine
