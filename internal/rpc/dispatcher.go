package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
)

// WriteFunc sends one serialized message to the peer. The Dispatcher never
// touches the transport directly; framing belongs to the caller.
type WriteFunc func(data []byte) error

// RequestHandler handles a JSON-RPC request and returns the result value to
// be wrapped in the reply, or an error converted to an InternalError reply.
type RequestHandler func(params json.RawMessage) (any, error)

// NotificationHandler handles a JSON-RPC notification. Errors are logged and
// counted; a notification is never replied to.
type NotificationHandler func(params json.RawMessage) error

// emptyParams stands in when a message carries no params field.
var emptyParams = json.RawMessage("{}")

// Dispatcher routes JSON-RPC envelopes to registered handlers and writes
// replies through a single write callback. All counters are per-instance so
// concurrent server instances (e.g. in tests) never interfere.
type Dispatcher struct {
	write  WriteFunc
	logger *log.Logger

	requests      map[string]RequestHandler
	notifications map[string]NotificationHandler

	// stats combines per-method dispatch counts and per-exception-message
	// counts. Diagnostic state only, not protocol state.
	stats      map[string]uint64
	exceptions uint64
}

// NewDispatcher creates a Dispatcher writing replies through write.
func NewDispatcher(write WriteFunc, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		write:         write,
		logger:        logger,
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]NotificationHandler),
		stats:         make(map[string]uint64),
	}
}

// HandleRequest registers a request handler for a method. It returns false
// if the method already has a request handler.
func (d *Dispatcher) HandleRequest(method string, h RequestHandler) bool {
	if _, exists := d.requests[method]; exists {
		return false
	}
	d.requests[method] = h
	return true
}

// HandleNotification registers a notification handler for a method. It
// returns false if the method already has a notification handler.
func (d *Dispatcher) HandleNotification(method string, h NotificationHandler) bool {
	if _, exists := d.notifications[method]; exists {
		return false
	}
	d.notifications[method] = h
	return true
}

// Dispatch interprets one frame body as a JSON-RPC envelope and routes it.
// Requests produce exactly one reply; notifications produce none. No handler
// error or panic escapes this method.
func (d *Dispatcher) Dispatch(body []byte) {
	if !gjson.ValidBytes(body) {
		// The id cannot be trusted to exist in an unparseable body, so the
		// reply omits it.
		d.exceptions++
		d.stats["parse error"]++
		d.logger.Warn("unparseable message body", "bytes", len(body))
		d.reply(nil, nil, NewError(CodeParseError, "parse error"))
		return
	}

	env := gjson.ParseBytes(body)
	method := env.Get("method")
	id := env.Get("id")

	if !method.Exists() || method.Type != gjson.String {
		d.stats["(missing method)"]++
		d.reply(rawID(id), nil, NewError(CodeMethodNotFound, "Method required"))
		return
	}

	params := emptyParams
	if p := env.Get("params"); p.Exists() {
		params = json.RawMessage(p.Raw)
	}

	if id.Exists() {
		d.dispatchRequest(rawID(id), method.String(), params)
	} else {
		d.dispatchNotification(method.String(), params)
	}
}

// dispatchRequest routes a request and always writes exactly one reply.
func (d *Dispatcher) dispatchRequest(id json.RawMessage, method string, params json.RawMessage) {
	h, ok := d.requests[method]
	if !ok {
		d.stats[method+" (unhandled)"]++
		d.logger.Warn("request for unregistered method", "method", method)
		d.reply(id, nil, NewError(CodeMethodNotFound, fmt.Sprintf("method not found: %s", method)))
		return
	}

	d.stats[method]++
	result, err := d.invokeRequest(h, params)
	if err != nil {
		d.exceptions++
		d.stats[err.Error()]++
		d.logger.Error("request handler failed", "method", method, "err", err)
		d.reply(id, nil, NewError(CodeInternalError, err.Error()))
		return
	}
	d.reply(id, result, nil)
}

// dispatchNotification routes a notification. Nothing is ever written back,
// whatever the outcome.
func (d *Dispatcher) dispatchNotification(method string, params json.RawMessage) {
	h, ok := d.notifications[method]
	if !ok {
		d.stats[method+" (unhandled)"]++
		d.logger.Debug("notification for unregistered method", "method", method)
		return
	}

	d.stats[method]++
	if err := d.invokeNotification(h, params); err != nil {
		d.exceptions++
		d.stats[err.Error()]++
		d.logger.Error("notification handler failed", "method", method, "err", err)
	}
}

// invokeRequest calls a request handler with panic recovery.
func (d *Dispatcher) invokeRequest(h RequestHandler, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(params)
}

// invokeNotification calls a notification handler with panic recovery.
func (d *Dispatcher) invokeNotification(h NotificationHandler, params json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(params)
}

// Notify builds a server-initiated notification and sends it through the
// write callback. Used for pushes unrelated to any specific request.
func (d *Dispatcher) Notify(method string, params any) error {
	msg := struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{JSONRPC: "2.0", Method: method, Params: params}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return d.write(data)
}

// reply writes a response carrying either result or rpcErr. A nil id is
// omitted from the payload entirely.
func (d *Dispatcher) reply(id json.RawMessage, result any, rpcErr *Error) {
	var data []byte
	var err error

	if rpcErr != nil {
		data, err = json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id,omitempty"`
			Error   *Error          `json:"error"`
		}{JSONRPC: "2.0", ID: id, Error: rpcErr})
	} else {
		data, err = json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id,omitempty"`
			Result  any             `json:"result"`
		}{JSONRPC: "2.0", ID: id, Result: result})
	}
	if err != nil {
		d.logger.Error("marshal reply", "err", err)
		return
	}
	if err := d.write(data); err != nil {
		d.logger.Error("write reply", "err", err)
	}
}

// Stats returns a copy of the dispatch statistics: per-method dispatch
// counts plus per-exception-message counts.
func (d *Dispatcher) Stats() map[string]uint64 {
	out := make(map[string]uint64, len(d.stats))
	for k, v := range d.stats {
		out[k] = v
	}
	return out
}

// Exceptions returns how many handler failures and parse errors this
// dispatcher has absorbed.
func (d *Dispatcher) Exceptions() uint64 { return d.exceptions }

// rawID extracts the raw JSON of an id field, or nil when absent.
func rawID(id gjson.Result) json.RawMessage {
	if !id.Exists() {
		return nil
	}
	return json.RawMessage(id.Raw)
}
