// Package harness runs dispatch scenarios against the engine.
//
// A scenario sets up one device and its selected profile, feeds the engine a
// flow of device input and plugin messages, and asserts on the messages the
// engine sent and on what it persisted.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: multiaction
//	description: "Children of a multi-action are pressed in order"
//	plugins: [com.example.counter]
//	bindings:
//	  - controller: Keypad
//	    position: 0
//	    action: com.amansprojects.starterpack.multiaction
//	    children:
//	      - action: com.example.counter.toggle
//	        states: 2
//	      - action: com.amansprojects.starterpack.delay
//	        settings: { delay: 250 }
//	flow:
//	  - input: { kind: keyDown, index: 0 }
//	  - inbound:
//	      message: { event: getGlobalSettings, context: com.example.counter }
//	assertions:
//	  - type: trace_count
//	    event: keyDown
//	    count: 1
//	  - type: final_state
//	    position: 0
//	    path: [0]
//	    expect: { current_state: 1 }
//
// # Assertion Types
//
//   - trace_contains: some sent message matches event, target, to, action,
//     context and a payload subset
//   - trace_order: the order matchers are satisfied by a subsequence of the trace
//   - trace_count: exactly count messages match
//   - final_state: the persisted instance at a slot, or one of its children,
//     contains expect
//   - global_settings: a plugin's persisted global settings contain settings
//   - elapsed: the fake clock advanced by elapsed_ms
//   - opened_url: the url was passed to the opener
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store, a fake clock that
// steps on every wait, and trace ids derived from the scenario name, so the
// snapshot written by Snapshot is identical across runs and can be compared
// with goldie.
package harness
