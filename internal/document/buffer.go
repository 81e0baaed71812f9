package document

import (
	"strings"
	"unicode/utf8"
)

// Document holds one open document's text as a mutable line sequence.
// Each stored line keeps its own trailing '\n' except possibly the final
// line, so joining the lines in order reproduces the content byte-exactly.
//
// A Document is exclusively owned by the Registry; it is not safe for
// concurrent use.
type Document struct {
	lines []string

	// length is the total byte count, maintained by per-edit deltas rather
	// than recomputed from scratch.
	length int

	// version is the global version at the last successful open or change,
	// assigned by the owning Registry.
	version int
}

// NewDocument creates a Document from initial full text.
func NewDocument(text string) *Document {
	d := &Document{}
	d.SetText(text)
	return d
}

// SetText replaces the whole document content.
func (d *Document) SetText(text string) {
	d.lines = splitLines(text)
	d.length = len(text)
}

// Length returns the document's total byte count.
func (d *Document) Length() int { return d.length }

// LineCount returns the number of stored line records.
func (d *Document) LineCount() int { return len(d.lines) }

// Version returns the global version assigned at the last open or change.
func (d *Document) Version() int { return d.version }

// SetVersion stamps the document with a global version. Only the owning
// Registry calls this.
func (d *Document) SetVersion(v int) { d.version = v }

// WithText invokes fn with the full document content. The view is only
// valid for the duration of the call.
func (d *Document) WithText(fn func(text string)) {
	var b strings.Builder
	b.Grow(d.length)
	for _, line := range d.lines {
		b.WriteString(line)
	}
	fn(b.String())
}

// WithLine invokes fn with one stored line record, terminator included.
// An out-of-range index yields an empty view, never a failure.
func (d *Document) WithLine(i int, fn func(line string)) {
	if i < 0 || i >= len(d.lines) {
		fn("")
		return
	}
	fn(d.lines[i])
}

// Apply applies one content change: a whole-document replacement when the
// range is nil, otherwise an incremental range edit. It reports whether the
// change was applied; on failure the document is unchanged.
func (d *Document) Apply(change ContentChange) bool {
	if change.Range == nil {
		d.SetText(change.Text)
		return true
	}
	return d.applyEdit(*change.Range, change.Text)
}

// ApplyAll applies a batch of changes in order. A failing edit does not
// stop the remaining edits; the return value reports whether every change
// applied cleanly.
func (d *Document) ApplyAll(changes []ContentChange) bool {
	ok := true
	for _, change := range changes {
		if !d.Apply(change) {
			ok = false
		}
	}
	return ok
}

// applyEdit applies an incremental range edit with code-point offsets.
func (d *Document) applyEdit(r Range, text string) bool {
	if r.Start.Line < 0 || r.Start.Character < 0 || r.End.Character < 0 {
		return false
	}
	if r.End.Line < r.Start.Line {
		return false
	}

	work := d.lines
	if r.End.Line == len(work) {
		// One line beyond the end: synthesize an empty trailing line so a
		// pure end-of-document append has something to edit. Work on a copy
		// until the edit is known to succeed.
		work = append(append(make([]string, 0, len(work)+1), work...), "")
	}
	if r.Start.Line >= len(work) || r.End.Line >= len(work) {
		return false
	}

	if r.Start.Line == r.End.Line && !strings.ContainsRune(text, '\n') {
		return d.editSingleLine(work, r, text)
	}
	return d.editSpan(work, r, text)
}

// editSingleLine is the fast path: the edit stays inside one line and the
// replacement introduces no line break, so only that record changes.
func (d *Document) editSingleLine(work []string, r Range, text string) bool {
	line := work[r.Start.Line]
	content := strings.TrimSuffix(line, "\n")

	startOff, ok := runeOffset(content, r.Start.Character)
	if !ok {
		return false
	}

	// Editors may send optimistic end offsets; clamp rather than fail.
	endChar := r.End.Character
	if cp := utf8.RuneCountInString(content); endChar > cp {
		endChar = cp
	}
	if endChar < r.Start.Character {
		return false
	}
	endOff, _ := runeOffset(content, endChar)

	updated := content[:startOff] + text + content[endOff:]
	if len(line) != len(content) {
		updated += "\n"
	}

	d.length += len(updated) - len(line)
	work[r.Start.Line] = updated
	d.lines = work
	return true
}

// editSpan is the general path: the span covers several lines or the
// replacement itself contains newlines, so the affected records are
// re-split and spliced in place.
func (d *Document) editSpan(work []string, r Range, text string) bool {
	startContent := strings.TrimSuffix(work[r.Start.Line], "\n")
	startOff, ok := runeOffset(startContent, r.Start.Character)
	if !ok {
		return false
	}

	endStored := work[r.End.Line]
	endContent := strings.TrimSuffix(endStored, "\n")
	endChar := r.End.Character
	if cp := utf8.RuneCountInString(endContent); endChar > cp {
		endChar = cp
	}
	if r.Start.Line == r.End.Line && endChar < r.Start.Character {
		return false
	}
	endOff, _ := runeOffset(endContent, endChar)

	// The suffix keeps the end line's terminator so the splice preserves
	// the byte content after the span.
	merged := startContent[:startOff] + text + endStored[endOff:]
	fresh := splitLines(merged)

	removed := 0
	for _, line := range work[r.Start.Line : r.End.Line+1] {
		removed += len(line)
	}
	inserted := 0
	for _, line := range fresh {
		inserted += len(line)
	}

	out := make([]string, 0, len(work)-(r.End.Line-r.Start.Line+1)+len(fresh))
	out = append(out, work[:r.Start.Line]...)
	out = append(out, fresh...)
	out = append(out, work[r.End.Line+1:]...)

	d.lines = out
	d.length += inserted - removed
	return true
}

// splitLines splits text into records at '\n' boundaries. Every record
// keeps its terminator; a final record without one means the text did not
// end in a newline. Empty text yields no records.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	for len(text) > 0 {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			lines = append(lines, text)
			break
		}
		lines = append(lines, text[:i+1])
		text = text[i+1:]
	}
	return lines
}

// runeOffset converts a code-point offset into a byte offset within s. It
// reports false when cp is negative or beyond the last code point.
func runeOffset(s string, cp int) (int, bool) {
	if cp < 0 {
		return 0, false
	}
	n := 0
	for i := range s {
		if n == cp {
			return i, true
		}
		n++
	}
	if cp == n {
		return len(s), true
	}
	return 0, false
}
