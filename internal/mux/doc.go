// Package mux provides the single-threaded readiness loop driving the
// server: a small set of readable file descriptors plus periodic idle work,
// in place of per-connection goroutines.
//
// Handlers run to completion on the loop goroutine and must never block;
// a blocking handler stalls all other I/O and idle work for the whole
// process. Handlers may register or deregister other handlers synchronously
// from within their own invocation.
package mux
