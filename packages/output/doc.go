// Package output renders finished requests for the terminal or for tools.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: Machine-readable JSON document written on Flush
//
// Both formatters render single responses, captured values, repeat
// summaries and history listings.
package output
