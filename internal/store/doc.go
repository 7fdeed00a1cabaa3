// Package store provides SQLite-backed persistence for deckd.
//
// Three tables:
//   - devices: known devices, their layout and the selected profile
//   - profiles: one canonical JSON document per (device, id)
//   - global_settings: per-plugin settings shared by all instances
//
// Profile documents are written with profile.Encode and keyed by their
// digest, so saving an unchanged profile is a no-op and a document altered
// outside deckd is detected on read.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
