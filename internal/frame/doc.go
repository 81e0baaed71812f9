// Package frame reconstructs discrete protocol messages from a raw byte
// stream framed as MIME-style header lines, a blank line, and a body of
// exactly Content-Length bytes.
//
// The Splitter is pull-driven: the owner of the input (typically the event
// loop, once the descriptor is readable) calls Pull with a read function.
// The Splitter appends whatever the read returns to a fixed-capacity buffer
// and emits every complete frame it can, retaining partial bytes for the
// next pull. Bodies are sliced by byte count only; they may contain
// arbitrary bytes, including newlines.
package frame
