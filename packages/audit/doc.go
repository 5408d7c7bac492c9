// Package audit provides the per-request event log used by hitshot.
//
// An Auditor records:
//   - when it was created
//   - a single start and stop timestamp (the first Stop wins)
//   - an ordered list of text entries, optionally stamped with the offset
//     from the start time
//
// The TLS layer appends to it from transport goroutines while the CLI reads
// it, so all methods are safe for concurrent use.
package audit
