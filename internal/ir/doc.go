// Package ir provides the foundation types shared by every other package:
// tags and their primary keys, port pins and events, cycle definitions
// (boundary, event-cycle and port-cycle specs), report payloads, the
// error taxonomy and the generic name-validity rule.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Times in definitions are integral milliseconds (Time with unit MS)
//   - All JSON tags use snake_case
//   - Primary keys are content-derived and stable across restarts
package ir
