// Package mcpserver implements the in-process MCP JSON-RPC tool host:
// one Server per session, dispatching
// initialize, tools/list, tools/call and notifications/initialized, and
// naming the server-sent events of approval state transitions
// (SSEEventName) for the event stream served by the HTTP layer.
package mcpserver

import (
	"context"

	jsoniter "github.com/json-iterator/go"

	"github.com/gemini-cockpit/server/pkg/approval"
)

const protocolVersion = "2024-11-05"

var serverInfo = map[string]string{
	"name":    "gemini-cockpit-tool-server",
	"version": "1.0.0",
}

// Server dispatches JSON-RPC calls against a single session's Backend.
type Server struct {
	backend Backend
}

// New returns a Server bound to the given session backend.
func New(backend Backend) *Server {
	return &Server{backend: backend}
}

// Handle dispatches a single decoded request and returns the response
// to serialize back to the caller. It never returns an error itself:
// protocol-level failures (unknown method, bad tools/call params) surface
// as a JSON-RPC error response, and tool failures (including an unknown
// tool name) as a successful response whose result has isError set.
func (s *Server) Handle(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return success(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      serverInfo,
			"capabilities":    map[string]any{"tools": map[string]any{}},
		})

	case "tools/list":
		return success(req.ID, map[string]any{"tools": toolDescriptors()})

	case "tools/call":
		var params struct {
			Name      string              `json:"name"`
			Arguments jsoniter.RawMessage `json:"arguments"`
		}
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return errorResponse(req.ID, CodeInvalidParams, "invalid tools/call params")
			}
		}
		if params.Name == "" {
			return errorResponse(req.ID, CodeInvalidParams, "missing tool name")
		}
		result := callTool(ctx, s.backend, params.Name, params.Arguments)
		return success(req.ID, result)

	case "notifications/initialized":
		return success(req.ID, map[string]any{})

	default:
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

// SSEEventName maps an approval event to the SSE "event:" field used by
// the tool server's event stream.
func SSEEventName(evt approval.Event) string {
	return string(evt.Type)
}
