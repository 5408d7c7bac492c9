// Package cmd implements the hitshot CLI commands using Cobra.
//
// Available commands:
//   - send: Send one request, or repeat it, and report the exchange
//   - list: Display the requests, proxies and keystores of the workspace
//   - validate: Check the workspace file without sending anything
//   - history: Show and prune recorded exchanges
//   - init: Create a hitshot.yaml workspace with example requests
//   - version: Show hitshot version information
//   - completion: Generate shell completion scripts
//
// Flags default from HITSHOT_* environment variables. The process exits
// with the codes in exitcodes.go.
package cmd
