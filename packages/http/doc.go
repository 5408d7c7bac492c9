// Package http runs single-shot HTTP(S) requests as observable tasks.
//
// A Task moves through Created, Preparing, Executing and then Completed or
// Failed. Preparing builds a dedicated client for the request:
//   - connection timeouts
//   - optional proxy routing
//   - an auditing TLS layer when the request names a security protocol
//
// Executing sends exactly one request. The response is read lazily, once,
// on the first observer call, after which the client is closed.
package http
