package document

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/quill-ls/quill/internal/rpc"
)

func newTestRegistry() *Registry {
	return NewRegistry(log.New(io.Discard))
}

func TestRegistry_OpenAssignsVersion(t *testing.T) {
	r := newTestRegistry()

	r.Open("file:///a.txt", "hello")
	r.Open("file:///b.txt", "world")

	if r.Version() != 2 {
		t.Errorf("Version() = %d, want 2", r.Version())
	}
	r.With("file:///a.txt", func(doc *Document) {
		if doc.Version() != 1 {
			t.Errorf("a.txt version = %d, want 1", doc.Version())
		}
	})
	r.With("file:///b.txt", func(doc *Document) {
		if doc.Version() != 2 {
			t.Errorf("b.txt version = %d, want 2", doc.Version())
		}
	})
}

func TestRegistry_ReopenIsNoOp(t *testing.T) {
	r := newTestRegistry()

	r.Open("file:///a.txt", "original")
	r.Open("file:///a.txt", "replacement")

	if r.Version() != 1 {
		t.Errorf("Version() = %d, want 1 (reopen must not bump)", r.Version())
	}
	r.With("file:///a.txt", func(doc *Document) {
		doc.WithText(func(s string) {
			if s != "original" {
				t.Errorf("content = %q, want original kept", s)
			}
		})
	})
}

func TestRegistry_ChangeBumpsVersion(t *testing.T) {
	r := newTestRegistry()
	r.Open("file:///a.txt", "abc")

	r.Change("file:///a.txt", []ContentChange{edit(0, 3, 0, 3, "def")})

	if r.Version() != 2 {
		t.Errorf("Version() = %d, want 2", r.Version())
	}
	r.With("file:///a.txt", func(doc *Document) {
		if doc.Version() != 2 {
			t.Errorf("doc version = %d, want 2", doc.Version())
		}
		doc.WithText(func(s string) {
			if s != "abcdef" {
				t.Errorf("content = %q", s)
			}
		})
	})
}

func TestRegistry_ChangeUnknownURIIgnored(t *testing.T) {
	r := newTestRegistry()
	r.Change("file:///ghost.txt", []ContentChange{{Text: "boo"}})
	if r.Version() != 0 || r.Len() != 0 {
		t.Errorf("unknown change must not alter state: version=%d len=%d", r.Version(), r.Len())
	}
}

func TestRegistry_CloseFiresListenerBeforeErase(t *testing.T) {
	r := newTestRegistry()
	r.Open("file:///a.txt", "bye")

	var sawNil, stillOpen bool
	r.OnChange(func(uri string, doc *Document) {
		if doc == nil {
			sawNil = true
			stillOpen = r.Len() == 1
		}
	})

	r.Close("file:///a.txt")

	if !sawNil {
		t.Fatal("close listener not fired with nil document")
	}
	if !stillOpen {
		t.Error("listener must fire before the entry is erased")
	}
	if r.Len() != 0 {
		t.Error("entry not erased after close")
	}
}

func TestRegistry_ChangedSince(t *testing.T) {
	r := newTestRegistry()
	r.Open("file:///a.txt", "a") // version 1
	r.Open("file:///b.txt", "b") // version 2
	r.Open("file:///c.txt", "c") // version 3

	r.Change("file:///a.txt", []ContentChange{{Text: "a2"}}) // version 4

	var visited []string
	n := r.ChangedSince(3, func(uri string, doc *Document) {
		visited = append(visited, uri)
	})
	if n != 1 {
		t.Errorf("ChangedSince(3) = %d, want 1", n)
	}
	if len(visited) != 1 || visited[0] != "file:///a.txt" {
		t.Errorf("visited = %v", visited)
	}

	if n := r.ChangedSince(0, nil); n != 3 {
		t.Errorf("ChangedSince(0) = %d, want 3", n)
	}
	if n := r.ChangedSince(4, nil); n != 0 {
		t.Errorf("ChangedSince(4) = %d, want 0", n)
	}
}

func TestRegistry_ListenerFiresOnOpenAndChange(t *testing.T) {
	r := newTestRegistry()

	var events []string
	r.OnChange(func(uri string, doc *Document) {
		if doc != nil {
			events = append(events, uri)
		}
	})

	r.Open("file:///a.txt", "x")
	r.Change("file:///a.txt", []ContentChange{{Text: "y"}})

	if len(events) != 2 {
		t.Errorf("listener fired %d times, want 2", len(events))
	}
}

func TestRegistry_BindRoutesNotifications(t *testing.T) {
	r := newTestRegistry()
	d := rpc.NewDispatcher(func([]byte) error { return nil }, log.New(io.Discard))

	if !r.Bind(d) {
		t.Fatal("Bind should register all three handlers")
	}
	if r.Bind(d) {
		t.Error("second Bind must report duplicate registration")
	}

	d.Dispatch([]byte(`{"jsonrpc":"2.0","method":"textDocument/didOpen",` +
		`"params":{"textDocument":{"uri":"file:///x.go","languageId":"go","version":1,"text":"package x\n"}}}`))
	if r.Len() != 1 {
		t.Fatalf("document not opened via dispatch: len=%d", r.Len())
	}

	d.Dispatch([]byte(`{"jsonrpc":"2.0","method":"textDocument/didChange",` +
		`"params":{"textDocument":{"uri":"file:///x.go"},"contentChanges":[` +
		`{"range":{"start":{"line":0,"character":8},"end":{"line":0,"character":9}},"text":"main"}]}}`))
	r.With("file:///x.go", func(doc *Document) {
		doc.WithText(func(s string) {
			if s != "package main\n" {
				t.Errorf("content = %q, want %q", s, "package main\n")
			}
		})
	})

	d.Dispatch([]byte(`{"jsonrpc":"2.0","method":"textDocument/didClose",` +
		`"params":{"textDocument":{"uri":"file:///x.go"}}}`))
	if r.Len() != 0 {
		t.Errorf("document not closed via dispatch: len=%d", r.Len())
	}
}
