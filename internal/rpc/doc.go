// Package rpc implements the JSON-RPC 2.0 dispatch layer of the server.
//
// A Dispatcher interprets one frame body at a time: it classifies the
// envelope as a request (id present) or a notification (id absent), routes
// it to a registered handler, and writes any reply through a single write
// callback, keeping the layer transport-agnostic.
//
// The Dispatcher is the error boundary for per-message processing: no error
// or panic raised inside a handler escapes Dispatch. Requests always produce
// exactly one reply; notifications never produce one, whatever the outcome.
// Every dispatch updates a per-instance name → count statistics map for
// operational diagnosis.
//
// The Dispatcher is not safe for concurrent use. The event loop owns it and
// drives it from a single goroutine; replies for one message are fully
// written before the next message is dispatched.
package rpc
