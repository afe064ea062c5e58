// Package report builds subscriber payloads from cycle snapshots.
//
// EventBuilder lists tags per ECReportSpec (CURRENT, ADDITIONS or
// DELETIONS relative to the previous boundary); PortBuilder lists port
// events per PCReportSpec. Both drop empty reports unless asked to keep
// them, and signal suppression when nothing is left to deliver.
package report
