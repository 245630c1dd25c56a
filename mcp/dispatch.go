package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	coord "github.com/karthala/agentline"
	"github.com/karthala/agentline/record"
)

// dispatch routes one frame. Handshake and listing methods answer
// inline so they stay ordered with respect to each other; tools/call
// runs on its own goroutine so slow tools never stall the read loop.
func (s *Server) dispatch(line []byte) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return
	}

	var req request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		s.logger.Debug("dropping malformed frame", "error", err)
		return
	}
	if req.Method == "" {
		s.logger.Debug("dropping frame without method")
		return
	}

	switch req.Method {
	case "initialize":
		s.writeResult(&req, s.initialize())
	case "ping":
		s.writeResult(&req, struct{}{})
	case "tools/list":
		s.writeResult(&req, s.listTools())
	case "tools/call":
		s.startCall(&req)
	default:
		if strings.HasPrefix(req.Method, "notifications/") || req.isNotification() {
			return
		}
		s.writeError(req.ID, codeMethodNotFound, "Method not found: "+req.Method)
	}
}

func (s *Server) initialize() initializeResult {
	return initializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo: serverInfo{
			Name:    s.agent.Name(),
			Version: s.agent.Version(),
		},
	}
}

// listTools advertises the primary handler first, under the agent's
// own name, followed by any auxiliary tools.
func (s *Server) listTools() listToolsResult {
	tools := []coord.ToolDescriptor{{
		Name:        s.agent.Name(),
		Description: s.agent.Description(),
		InputSchema: s.agent.InputSchema(),
	}}
	tools = append(tools, s.agent.Tools().List()...)
	return listToolsResult{Tools: tools}
}

// writeResult responds to a request; notifications get nothing back.
func (s *Server) writeResult(req *request, result any) {
	if req.isNotification() {
		return
	}
	s.writeFrame(&response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *Server) writeError(id json.RawMessage, code int, message string) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	s.writeFrame(&response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) startCall(req *request) {
	s.inflight.Add(1)
	s.wg.Add(1)
	go s.handleCall(req)
}

// handleCall runs one tools/call to completion. Handler failures,
// timeouts, and panics all come back as isError results; protocol
// errors are reserved for requests the server cannot interpret.
func (s *Server) handleCall(req *request) {
	defer s.wg.Done()
	defer s.inflight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool call panicked", "panic", r)
			s.writeResult(req, textContent(fmt.Sprintf("internal error: %v", r), true))
		}
	}()

	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		s.writeError(req.ID, codeInvalidParams, "invalid tools/call params")
		return
	}

	schema, ok := s.toolSchema(params.Name)
	if !ok {
		s.writeError(req.ID, codeInvalidParams, "Unknown tool: "+params.Name)
		return
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	callID := coord.NewCallID()
	s.logger.Debug("tool call", "call_id", callID, "tool", params.Name)

	start := time.Now()
	var result *callToolResult
	exitCode := coord.ExitOK

	if err := validateArgs(schema, args); err != nil {
		result = textContent("invalid arguments: "+err.Error(), true)
		exitCode = coord.ExitUsage
	} else {
		result, exitCode = s.executeCall(params.Name, args)
	}

	s.recordCall(callID, params.Name, args, result, exitCode, start)
	s.writeResult(req, result)
}

// toolSchema resolves a call target to its input schema. The agent's
// own name selects the primary handler.
func (s *Server) toolSchema(name string) (map[string]any, bool) {
	if name == s.agent.Name() {
		return s.agent.InputSchema(), true
	}
	if desc, ok := s.agent.Tools().Get(name); ok {
		return desc.InputSchema, true
	}
	return nil, false
}

// validateArgs checks the arguments document against the tool's
// declared schema before the handler sees it.
func validateArgs(schema map[string]any, args json.RawMessage) error {
	res, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, verr := range res.Errors() {
		msgs = append(msgs, verr.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// executeCall runs the resolved tool under its own cancellation scope
// and classifies the outcome. A scope that timed out is authoritative
// even when the handler managed to return something.
func (s *Server) executeCall(name string, args json.RawMessage) (*callToolResult, int) {
	scope := coord.NewScope(context.Background(), coord.WithTimeout(s.callTimeout))
	defer scope.Release()

	cc := coord.NewCallContext(s.agent.Name(), s.safety, s.invoker, s.progress)
	ctx := coord.WithCallContext(scope.Context(), cc)

	var text string
	var isError bool
	var err error
	if name == s.agent.Name() {
		text, err = s.agent.Execute(ctx, args)
	} else {
		var tr *coord.ToolResult
		tr, err = s.agent.Tools().Execute(ctx, name, args)
		if err == nil {
			text, isError = tr.Text, tr.IsError
		}
	}

	switch {
	case scope.TimedOut():
		return textContent(fmt.Sprintf("tool call timed out after %s", s.callTimeout), true), coord.ExitTimeout
	case err != nil:
		return textContent(fmt.Sprintf("tool error: %s", err), true), coord.ExitHandlerErr
	case isError:
		return textContent(text, true), coord.ExitHandlerErr
	default:
		return textContent(text, false), coord.ExitOK
	}
}

// recordCall appends one run record for the call. Recording is best
// effort; a failing recorder never fails the call.
func (s *Server) recordCall(callID, tool string, args json.RawMessage, result *callToolResult, exitCode int, start time.Time) {
	var output string
	if len(result.Content) > 0 {
		output = result.Content[0].Text
	}
	entry := record.Entry{
		AgentName:     s.agent.Name(),
		Version:       s.agent.Version(),
		ExitCode:      exitCode,
		StartTime:     start.UTC(),
		DurationMs:    time.Since(start).Milliseconds(),
		Depth:         s.safety.Depth,
		CallChain:     s.safety.CallChain,
		SessionID:     s.safety.SessionID,
		InputSummary:  record.Summarize(string(args)),
		OutputSummary: record.Summarize(output),
		Meta:          map[string]any{"tool": tool, "call_id": callID},
	}
	if err := s.recorder.Record(context.Background(), entry); err != nil {
		s.logger.Warn("record call failed", "error", err)
	}
}
