// Package command stores the work the hub forwards to devices and the
// results that come back.
//
// A Command is created in the pending state when a client asks for an SMS
// to be sent or a short code (USSD) to be run. Its ID travels to the device
// as commandId and comes back with the result, which completes the command
// at most once: CompleteCommand only matches rows that are still pending,
// so duplicate or late results change nothing.
//
// Calls have a richer lifecycle (initiated, ringing, answered, ended,
// failed) enforced by Call.Advance and persisted with a compare-and-set on
// the previous status.
package command
