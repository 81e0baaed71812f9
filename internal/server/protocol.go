package server

// Text document sync kinds advertised in the initialize reply.
const (
	SyncNone        = 0
	SyncFull        = 1
	SyncIncremental = 2
)

// TextDocumentSyncOptions tells clients how to report document changes.
type TextDocumentSyncOptions struct {
	OpenClose bool `json:"openClose"`
	Change    int  `json:"change"`
}

// Capabilities describes what this server layer handles itself. Language
// features are contributed by collaborators registering their own handlers.
type Capabilities struct {
	TextDocumentSync TextDocumentSyncOptions `json:"textDocumentSync"`
}

// Info identifies the server in the initialize reply.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the reply to the initialize request.
type InitializeResult struct {
	Capabilities Capabilities `json:"capabilities"`
	ServerInfo   Info         `json:"serverInfo"`
	SessionID    string       `json:"sessionId,omitempty"`
}
