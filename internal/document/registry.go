package document

import (
	"github.com/charmbracelet/log"
)

// ChangeListener observes document lifecycle transitions. doc is nil when
// the document is about to be closed; the reference must not be retained
// beyond the call.
type ChangeListener func(uri string, doc *Document)

// Registry owns the set of open documents, keyed by URI, and stamps every
// successful open and change with a single monotonically increasing global
// version.
//
// The Registry is driven from the single dispatch goroutine and is not safe
// for concurrent use.
type Registry struct {
	docs     map[string]*Document
	version  int
	listener ChangeListener
	logger   *log.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		docs:   make(map[string]*Document),
		logger: logger,
	}
}

// OnChange sets the listener fired after every open and change, and before
// every close.
func (r *Registry) OnChange(fn ChangeListener) {
	r.listener = fn
}

// Version returns the current global version.
func (r *Registry) Version() int { return r.version }

// Len returns the number of open documents.
func (r *Registry) Len() int { return len(r.docs) }

// Open creates a Document from initial full text. Re-opening an already
// open URI is a no-op: the existing content and version are kept.
func (r *Registry) Open(uri, text string) {
	if _, exists := r.docs[uri]; exists {
		r.logger.Warn("ignoring open for already-open document", "uri", uri)
		return
	}

	doc := NewDocument(text)
	r.version++
	doc.SetVersion(r.version)
	r.docs[uri] = doc

	r.logger.Debug("document opened", "uri", uri, "bytes", doc.Length(), "version", r.version)
	r.notify(uri, doc)
}

// Change applies a batch of content changes to an open document, in order,
// best-effort, then assigns the next global version. A change for an
// unknown URI is ignored.
func (r *Registry) Change(uri string, changes []ContentChange) {
	doc, exists := r.docs[uri]
	if !exists {
		r.logger.Warn("ignoring change for unknown document", "uri", uri)
		return
	}

	if !doc.ApplyAll(changes) {
		r.logger.Warn("some edits failed to apply", "uri", uri, "changes", len(changes))
	}
	r.version++
	doc.SetVersion(r.version)

	r.logger.Debug("document changed", "uri", uri, "bytes", doc.Length(), "version", r.version)
	r.notify(uri, doc)
}

// Close erases an open document. The listener fires before the entry is
// removed so subscribers observe the impending removal without ever holding
// a dangling reference.
func (r *Registry) Close(uri string) {
	if _, exists := r.docs[uri]; !exists {
		return
	}

	r.notify(uri, nil)
	delete(r.docs, uri)
	r.logger.Debug("document closed", "uri", uri)
}

// With borrows the document for uri for the duration of fn. It reports
// whether the document was open.
func (r *Registry) With(uri string, fn func(doc *Document)) bool {
	doc, exists := r.docs[uri]
	if !exists {
		return false
	}
	fn(doc)
	return true
}

// ChangedSince visits every open document whose version exceeds v and
// returns the count. fn may be nil when only the count matters.
func (r *Registry) ChangedSince(v int, fn func(uri string, doc *Document)) int {
	count := 0
	for uri, doc := range r.docs {
		if doc.Version() > v {
			count++
			if fn != nil {
				fn(uri, doc)
			}
		}
	}
	return count
}

func (r *Registry) notify(uri string, doc *Document) {
	if r.listener != nil {
		r.listener(uri, doc)
	}
}
