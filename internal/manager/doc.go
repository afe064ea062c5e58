// Package manager maps definition names to running cycles.
//
// Cycles is generic over the definition type: NewEventCycles manages
// ir.ECSpec definitions and NewPortCycles ir.PCSpec definitions. Both
// share the same lifecycle: Define starts a cycle, Subscribe and Poll
// request it, Undefine disposes it. Immediate runs a definition once on
// an anonymous, self-disposing cycle.
//
// With WithDepot, definitions and subscriptions can be persisted and are
// re-created by Restore at startup.
package manager
