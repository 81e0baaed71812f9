// Package server wires the transport and session-state layers together: a
// frame splitter feeding a dispatcher, the document registry bound to the
// document-sync notifications, lifecycle handlers, and the event loop that
// drives it all from a single goroutine.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/quill-ls/quill/internal/config"
	"github.com/quill-ls/quill/internal/document"
	"github.com/quill-ls/quill/internal/frame"
	"github.com/quill-ls/quill/internal/mux"
	"github.com/quill-ls/quill/internal/rpc"
	"github.com/quill-ls/quill/internal/script"
)

const serverName = "quill"

// DocumentObserver is called from idle time for every document that changed
// since the last idle pass; the reference is only valid during the call.
// This is the hook a reparse scheduler plugs into.
type DocumentObserver func(uri string, doc *document.Document)

// Option configures a Server.
type Option func(*Server)

// WithObserver installs the idle-time document observer.
func WithObserver(fn DocumentObserver) Option {
	return func(s *Server) { s.observer = fn }
}

// WithVersion sets the version reported in the initialize reply.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server owns one protocol session over a byte-stream pair.
type Server struct {
	cfg       *config.Config
	logger    *log.Logger
	sessionID string
	version   string

	in  *os.File
	out io.Writer

	dispatcher *rpc.Dispatcher
	splitter   *frame.Splitter
	registry   *document.Registry
	loop       *mux.Loop
	scripts    *script.Engine

	observer DocumentObserver
	observed int // global version already handed to the observer

	initialized bool
	stopping    bool
	fatal       error
}

// New builds a Server reading frames from in and writing them to out.
// The reference deployment passes os.Stdin and os.Stdout, but any readable
// descriptor and writer work.
func New(cfg *config.Config, logger *log.Logger, in *os.File, out io.Writer, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		sessionID: uuid.New().String(),
		version:   "dev",
		in:        in,
		out:       out,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.dispatcher = rpc.NewDispatcher(s.writeMessage, logger)
	s.splitter = frame.NewSplitter(cfg.MaxMessageBytes, s.onFrame)

	s.registry = document.NewRegistry(logger)
	if !s.registry.Bind(s.dispatcher) {
		return nil, fmt.Errorf("document sync handlers already registered")
	}

	s.registerLifecycle()

	if cfg.ScriptDir != "" {
		s.scripts = script.NewEngine(s.dispatcher, logger)
		if err := s.scripts.LoadDir(cfg.ScriptDir); err != nil {
			s.scripts.Close()
			return nil, err
		}
	}

	s.loop = mux.New(time.Duration(cfg.IdleTimeoutMS)*time.Millisecond, logger)
	if err := s.loop.Watch(int(in.Fd()), s.onReadable); err != nil {
		s.Close()
		return nil, err
	}
	s.loop.AddIdle(s.onIdle)

	logger.Info("server ready", "session", s.sessionID, "maxMessageBytes", cfg.MaxMessageBytes)
	return s, nil
}

// Dispatcher exposes the dispatcher so collaborators (diagnostics,
// formatting, ...) can register their own handlers and push notifications.
func (s *Server) Dispatcher() *rpc.Dispatcher { return s.dispatcher }

// Registry exposes the document registry for read-side collaborators.
func (s *Server) Registry() *document.Registry { return s.registry }

// SessionID returns this process's session identifier.
func (s *Server) SessionID() string { return s.sessionID }

// Run drives the event loop until the client shuts the session down, input
// is exhausted, or the transport fails. The shutdown flag is checked after
// each iteration so the triggering message's reply is already written.
func (s *Server) Run() error {
	for s.loop.RunOnce() {
		if s.stopping {
			break
		}
	}
	s.Close()
	return s.fatal
}

// Close releases resources owned by the server.
func (s *Server) Close() {
	if s.scripts != nil {
		s.scripts.Close()
		s.scripts = nil
	}
}

// onFrame hands one complete frame body to the dispatcher.
func (s *Server) onFrame(_ frame.Header, body []byte) error {
	s.dispatcher.Dispatch(body)
	return nil
}

// onReadable pulls whatever arrived on the input descriptor. Any splitter
// error is transport-fatal: the descriptor is dropped and the loop winds
// down once nothing else is registered.
func (s *Server) onReadable() mux.Action {
	if err := s.splitter.Pull(s.in.Read); err != nil {
		if err == io.EOF {
			s.logger.Info("client closed input")
		} else {
			s.logger.Error("transport failed", "err", err)
			s.fatal = err
		}
		s.stopping = true
		return mux.Unregister
	}
	return mux.Continue
}

// onIdle feeds documents changed since the last pass to the observer.
func (s *Server) onIdle() mux.Action {
	if s.observer == nil {
		return mux.Continue
	}
	if n := s.registry.ChangedSince(s.observed, s.observer); n > 0 {
		s.logger.Debug("observed changed documents", "count", n)
	}
	s.observed = s.registry.Version()
	return mux.Continue
}

// registerLifecycle installs the session lifecycle and diagnostics handlers.
func (s *Server) registerLifecycle() {
	s.dispatcher.HandleRequest("initialize", s.handleInitialize)
	s.dispatcher.HandleRequest("shutdown", s.handleShutdown)
	s.dispatcher.HandleNotification("exit", s.handleExit)
	s.dispatcher.HandleRequest("quill/stats", s.handleStats)
}

func (s *Server) handleInitialize(params json.RawMessage) (any, error) {
	if s.initialized {
		s.logger.Warn("duplicate initialize request")
	}
	s.initialized = true
	s.logger.Info("session initialized")
	return InitializeResult{
		Capabilities: Capabilities{
			TextDocumentSync: TextDocumentSyncOptions{
				OpenClose: true,
				Change:    SyncIncremental,
			},
		},
		ServerInfo: Info{Name: serverName, Version: s.version},
		SessionID:  s.sessionID,
	}, nil
}

func (s *Server) handleShutdown(params json.RawMessage) (any, error) {
	s.logger.Info("shutdown requested")
	s.stopping = true
	return nil, nil
}

func (s *Server) handleExit(params json.RawMessage) error {
	s.logger.Info("exit requested")
	s.stopping = true
	return nil
}

// handleStats exposes the dispatcher's diagnostic counters in-protocol.
func (s *Server) handleStats(params json.RawMessage) (any, error) {
	return map[string]any{
		"session":    s.sessionID,
		"dispatch":   s.dispatcher.Stats(),
		"exceptions": s.dispatcher.Exceptions(),
		"documents":  s.registry.Len(),
		"version":    s.registry.Version(),
	}, nil
}

// writeMessage frames one serialized message onto the output stream.
func (s *Server) writeMessage(data []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(s.out, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := s.out.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}
