// Package script lets Lua scripts extend the protocol surface with extra
// notification and request handlers.
//
// Scripts loaded from the configured directory see a "quill" module:
//
//	local quill = require("quill")
//
//	quill.on_notification("demo/ping", function(params)
//	    quill.log("got ping: " .. params)
//	end)
//
//	quill.on_request("demo/version", function(params)
//	    return "1"
//	end)
//
// Handler params arrive as the raw JSON text of the message params. A
// request handler's return value becomes the reply result: a string that
// parses as JSON is embedded as-is, anything else is encoded as a JSON
// value. Lua errors surface through the dispatcher's normal error boundary.
//
// gopher-lua's LState is not goroutine-safe; here that costs nothing,
// because scripts load before the event loop starts and handlers only ever
// run on the loop goroutine.
package script
