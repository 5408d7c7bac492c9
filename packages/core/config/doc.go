// Package config loads the hitshot workspace file.
//
// The workspace is YAML (.hitshot.yaml, hitshot.yaml or hitshot.yml) with:
//   - defaults applied to every request
//   - named requests
//   - named proxies and certificate stores referenced by requests
//
// String values may reference ${VAR} or ${VAR:-default}; they are expanded
// from the process environment and from .env files next to the workspace.
package config
