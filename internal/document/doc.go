// Package document maintains the live model of every open document.
//
// A Document stores text as an ordered sequence of line records; each record
// keeps its own trailing newline except possibly the final one, so
// concatenating the records always reproduces the original bytes exactly.
// Edits arrive either as whole-document replacements or as incremental range
// edits addressed in Unicode code points.
//
// The Registry owns all open Documents, keyed by URI, and translates the
// textDocument/didOpen, didChange and didClose notifications into buffer
// operations. A single monotonically increasing global version stamps every
// successful open and change, letting consumers ask "what changed since V"
// without per-consumer bookkeeping.
//
// Ownership is exclusive: callers only ever borrow a Document (or a view of
// its text) for the duration of one callback.
package document
