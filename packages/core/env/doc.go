// Package env loads .env files and expands ${VAR} references in workspace
// values.
//
// Lookups check the process environment first and then variables loaded
// from .env files, so exported variables always win.
package env
