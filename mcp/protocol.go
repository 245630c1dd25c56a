// Package mcp exposes an agent as a Model Context Protocol server
// speaking line-delimited JSON-RPC 2.0 over a byte stream, normally
// the process's stdin and stdout.
//
// The server advertises the agent's primary handler and its auxiliary
// tools under the tools capability. Handshake and listing methods are
// answered inline in arrival order; tools/call runs concurrently so a
// slow tool never blocks the read loop. Frames that do not parse are
// dropped without a reply, matching the protocol's treatment of
// malformed notifications on a line-oriented transport.
package mcp

import (
	"encoding/json"

	coord "github.com/karthala/agentline"
)

// ProtocolVersion is the MCP revision this server implements.
const ProtocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes emitted by the server. Tool execution
// failures are not protocol errors; they come back as results with
// isError set so the host can feed them to a model.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// request is a single incoming frame. ID is kept raw so string and
// numeric identifiers round-trip byte for byte.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the frame carries no usable ID and
// therefore must not receive a response.
func (r *request) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// response is a single outgoing frame. Exactly one of Result and
// Error is set.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// serverCapabilities declares what the server can do. Only the tools
// capability is offered; resources and prompts are absent on purpose.
type serverCapabilities struct {
	Tools struct{} `json:"tools"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      serverInfo         `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []coord.ToolDescriptor `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// callToolResult is the tools/call result shape. IsError marks
// capability-level failures that the host should surface to the
// model rather than treat as transport faults.
type callToolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

func textContent(text string, isError bool) *callToolResult {
	return &callToolResult{
		Content: []contentBlock{{Type: "text", Text: text}},
		IsError: isError,
	}
}
