// Package harness runs cycle scenarios as executable contract tests.
//
// A scenario declares in-memory readers, compiles event_cycle and
// port_cycle definitions from CUE files, drives the readers and HTTP
// triggers step by step and asserts on the reports the cycles deliver.
// Cycles run for real: boundaries, triggers and report building are the
// same code the engine runs.
//
// # Scenario Format
//
//	name: dock_door_read
//	description: "A door-open trigger starts a 300ms read"
//	specs:
//	  - specs/dock.cue
//	readers:
//	  - name: dock-1
//	steps:
//	  - trigger: door-open
//	  - wait: 50ms
//	  - emit: { reader: dock-1, epc: "3034F87A" }
//	  - await: { cycle: dock_door, count: 1 }
//	assertions:
//	  - type: report_contains
//	    cycle: dock_door
//	    report: present
//	    epc: "3034F87A"
//	  - type: termination
//	    cycle: dock_door
//	    condition: DURATION
//
// # Assertion Types
//
//   - report_count: a cycle delivered exactly N reports
//   - report_contains: a named report lists an EPC or port event URI
//   - report_empty: a named report never listed anything
//   - termination: every delivery of a cycle ended with a condition
//
// # Golden Traces
//
// Traces keep only deterministic fields (conditions, EPCs, event URIs,
// counts), so a scenario whose steps await each delivery produces the
// same trace on every run. RunWithGolden compares it against
// testdata/golden/<name>.golden.
package harness
