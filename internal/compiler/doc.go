// Package compiler turns CUE cycle definitions into ir.ECSpec and
// ir.PCSpec values.
//
// A definitions file declares cycles under two top-level structs:
//
//	event_cycle: dock_door: {
//		logical_readers: ["dock-1"]
//		boundary: {repeat_period: 1000, duration: 500}
//		reports: [{name: "present", set: "CURRENT"}]
//	}
//
//	port_cycle: gate: {
//		logical_readers: ["gate-1"]
//		boundary: no_new_events_interval: 250
//		reports: [{name: "inputs", pins: [{type: "INPUT", id: 1}]}]
//	}
//
// Time values are integers in milliseconds or {value, unit} structs.
// Compile errors carry the CUE source position; Validate collects every
// schema problem of an already compiled definition.
package compiler
