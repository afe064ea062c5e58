// Package cycle implements the cycle scheduling engine: one Cycle per
// event or port cycle definition, deciding when reader operations are
// enabled, when a boundary ends, and handing boundary snapshots to a
// per-cycle delivery worker.
//
// Each Cycle runs two goroutines. The runner owns boundary timing: it
// waits for a start condition (subscription, start trigger or repeat
// period), collects until a termination condition (duration, quiescence
// window, stop trigger, unrequest, undefine) and rotates the data
// collection into a ReportsInfo snapshot. The delivery worker drains a
// FIFO of snapshots, builds reports and pushes them to the subscriber
// controllers captured in each snapshot.
//
// Reader notifications enter through Notify on reader goroutines and only
// hold the cycle lock long enough to merge into the present collection.
package cycle
