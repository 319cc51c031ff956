// Package transport is the single HTTP primitive every device call goes
// through.
//
// Client.Perform issues one request and returns the fully read response;
// Client.Do adds JSON encoding and decoding plus the device's
// {"success": false, "message": "..."} envelope. Probe issues the bounded
// reachability check used while reconnecting.
//
// # Error Kinds
//
// Two kinds of failure leave this package:
//
//   - *Error (transport failure): the network failed, the request timed
//     out, the device answered with a non-2xx status and no JSON error body,
//     or the body could not be parsed. Only these affect connectivity state.
//   - *ApplicationError: the device answered but reported that the operation
//     failed. These are shown to the user and never affect connectivity.
//
// Caller cancellation is reported as an *Error of KindCanceled and is
// neither.
//
// # Observers
//
// Observers registered with AddObserver see the outcome of every Perform
// and Do call: nil or an *ApplicationError means the device was reached.
// Unobserved returns a sibling client whose calls are invisible to
// observers; probes never notify.
package transport
