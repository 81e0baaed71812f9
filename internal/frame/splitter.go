package frame

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Standard errors returned by the Splitter. All of them are fatal for the
// stream: once message boundaries are lost they cannot be recovered.
var (
	// ErrBufferFull indicates the buffer filled up without containing a
	// single complete frame.
	ErrBufferFull = errors.New("frame buffer full without a complete frame")

	// ErrFrameTooLarge indicates a declared body cannot fit in the buffer.
	ErrFrameTooLarge = errors.New("declared frame exceeds buffer capacity")

	// ErrMissingLength indicates the header block has no usable
	// Content-Length header.
	ErrMissingLength = errors.New("missing or invalid Content-Length header")
)

// Header holds one frame's header lines as name → value.
type Header map[string]string

// Get returns the value for a header name, matched case-insensitively.
func (h Header) Get(name string) (string, bool) {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// ReadFunc reads up to len(p) bytes into p, exactly like io.Reader.Read.
type ReadFunc func(p []byte) (int, error)

// FrameFunc receives one complete frame. The body slice is only valid for
// the duration of the call; a non-nil error stops the current pull.
type FrameFunc func(header Header, body []byte) error

// Splitter extracts complete frames from a fragmented byte stream.
// It is not safe for concurrent use; the event loop owns it.
type Splitter struct {
	buf   []byte // len is the current fill, cap is fixed at construction
	frame FrameFunc
}

// headerEnd is the CRLF blank line terminating a header block.
var headerEnd = []byte("\r\n\r\n")

// NewSplitter creates a Splitter with a fixed buffer capacity. The capacity
// bounds the largest representable frame (headers plus body).
func NewSplitter(capacity int, fn FrameFunc) *Splitter {
	return &Splitter{
		buf:   make([]byte, 0, capacity),
		frame: fn,
	}
}

// Buffered returns the number of bytes retained from previous pulls.
func (s *Splitter) Buffered() int { return len(s.buf) }

// Pull reads once from read and emits every complete frame now present in
// the buffer. Leftover partial bytes are kept for the next pull. Any
// returned error (including io.EOF from read) is fatal for the stream.
func (s *Splitter) Pull(read ReadFunc) error {
	if len(s.buf) == cap(s.buf) {
		// No room left and extraction already stalled last time.
		return ErrBufferFull
	}

	n, err := read(s.buf[len(s.buf):cap(s.buf)])
	if err != nil {
		return err
	}
	s.buf = s.buf[:len(s.buf)+n]

	return s.extract()
}

// extract emits frames from the front of the buffer until only a partial
// frame (or nothing) remains.
func (s *Splitter) extract() error {
	for {
		end := indexHeaderEnd(s.buf)
		if end.nameEnd < 0 {
			if len(s.buf) == cap(s.buf) {
				return ErrBufferFull
			}
			return nil
		}

		header := parseHeader(s.buf[:end.nameEnd])

		value, ok := header.Get("Content-Length")
		if !ok {
			return ErrMissingLength
		}
		length, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || length < 0 {
			return fmt.Errorf("%w: %q", ErrMissingLength, value)
		}

		total := end.bodyStart + length
		if total > cap(s.buf) {
			return fmt.Errorf("%w: need %d bytes, capacity %d", ErrFrameTooLarge, total, cap(s.buf))
		}
		if len(s.buf) < total {
			// Body not fully arrived yet.
			return nil
		}

		body := s.buf[end.bodyStart:total]
		if err := s.frame(header, body); err != nil {
			return err
		}

		// Shift the remainder to the front of the buffer.
		rest := copy(s.buf, s.buf[total:])
		s.buf = s.buf[:rest]
	}
}

// headerBounds locates the end of the header lines and the start of the body.
type headerBounds struct {
	nameEnd   int // end of the last header line, exclusive
	bodyStart int // first body byte
}

// indexHeaderEnd finds the blank line terminating the header block. CRLF is
// the wire format; a bare LF blank line is tolerated.
func indexHeaderEnd(buf []byte) headerBounds {
	crlf := bytes.Index(buf, headerEnd)
	lf := bytes.Index(buf, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf <= lf):
		return headerBounds{nameEnd: crlf, bodyStart: crlf + len(headerEnd)}
	case lf >= 0:
		return headerBounds{nameEnd: lf, bodyStart: lf + 2}
	default:
		return headerBounds{nameEnd: -1, bodyStart: -1}
	}
}

// parseHeader parses "Name: value" lines. Lines without a colon are skipped
// rather than fatal; the only header that matters is Content-Length and its
// absence is diagnosed by the caller.
func parseHeader(block []byte) Header {
	header := make(Header)
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			continue
		}
		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			continue
		}
		header[string(bytes.TrimSpace(name))] = string(bytes.TrimSpace(value))
	}
	return header
}
