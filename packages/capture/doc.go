// Package capture extracts values from finished task responses.
//
// It supports capturing values from:
//   - Response body (gjson paths, when the body is JSON)
//   - Response headers
//   - Response status code
//   - Elapsed time in milliseconds
//
// Captures are written on the command line as name=source[:path], for
// example id=body:data.items.0.id or token=header:X-Auth-Token.
package capture
