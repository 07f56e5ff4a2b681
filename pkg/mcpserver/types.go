package mcpserver

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Error codes per JSON-RPC 2.0 plus the application-specific code this
// server adds for per-session routing.
const (
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternal        = -32603
	CodeSessionNotFound = -32001
)

// Request is a single JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  jsoniter.RawMessage `json:"params,omitempty"`
	ID      jsoniter.RawMessage `json:"id,omitempty"`
}

// Response is a single JSON-RPC 2.0 reply. Exactly one of Result/Error
// is populated.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  jsoniter.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      jsoniter.RawMessage `json:"id,omitempty"`
}

// RPCError is the JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func success(id jsoniter.RawMessage, result any) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, CodeInternal, "failed to marshal result")
	}
	return Response{JSONRPC: "2.0", Result: raw, ID: id}
}

func errorResponse(id jsoniter.RawMessage, code int, message string) Response {
	return Response{JSONRPC: "2.0", Error: &RPCError{Code: code, Message: message}, ID: id}
}

// ToolDescriptor describes one callable tool for tools/list.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// TextContent is the sole content kind this server produces.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textContent(text string) []TextContent {
	return []TextContent{{Type: "text", Text: text}}
}

// CallToolResult is the result shape of tools/call.
type CallToolResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}
