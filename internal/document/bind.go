package document

import (
	"encoding/json"
	"fmt"

	"github.com/quill-ls/quill/internal/rpc"
)

// Bind subscribes the Registry to the document-sync notifications on a
// dispatcher. It returns false if any of the methods already has a handler.
func (r *Registry) Bind(d *rpc.Dispatcher) bool {
	ok := d.HandleNotification("textDocument/didOpen", r.handleDidOpen)
	ok = d.HandleNotification("textDocument/didChange", r.handleDidChange) && ok
	ok = d.HandleNotification("textDocument/didClose", r.handleDidClose) && ok
	return ok
}

func (r *Registry) handleDidOpen(params json.RawMessage) error {
	var p DidOpenParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("didOpen params: %w", err)
	}
	if p.TextDocument.URI == "" {
		return fmt.Errorf("didOpen: missing document uri")
	}
	r.Open(p.TextDocument.URI, p.TextDocument.Text)
	return nil
}

func (r *Registry) handleDidChange(params json.RawMessage) error {
	var p DidChangeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("didChange params: %w", err)
	}
	if p.TextDocument.URI == "" {
		return fmt.Errorf("didChange: missing document uri")
	}
	r.Change(p.TextDocument.URI, p.ContentChanges)
	return nil
}

func (r *Registry) handleDidClose(params json.RawMessage) error {
	var p DidCloseParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("didClose params: %w", err)
	}
	r.Close(p.TextDocument.URI)
	return nil
}
