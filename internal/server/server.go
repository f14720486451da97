// Package server owns the stdio JSON-RPC loop: framing, method dispatch,
// error-response construction, and orderly shutdown on stream closure.
package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/yourname/llmgate/internal/assert"
	"github.com/yourname/llmgate/internal/llm"
	"github.com/yourname/llmgate/internal/logging"
	"github.com/yourname/llmgate/internal/mcp"
	"github.com/yourname/llmgate/internal/redact"
	"github.com/yourname/llmgate/internal/registry"
)

const (
	// ProtocolVersion is the MCP revision this server speaks.
	ProtocolVersion = "2024-11-05"

	serverVersion = "0.1.0"

	initialLineBuffer = 64 * 1024
	maxLineBytes      = 4 * 1024 * 1024
)

// Options configures a Server.
type Options struct {
	Name        string
	Description string
	Registry    *registry.Registry
	Filter      *redact.Filter
}

// Server reads newline-delimited JSON-RPC requests from an input stream and
// writes exactly one response line per non-notification request, in request
// order. Handler failures surface as error responses; only transport
// failures terminate the loop.
type Server struct {
	name        string
	description string
	reg         *registry.Registry
	filter      *redact.Filter
	out         *bufio.Writer
}

// New creates a protocol engine over the given registry and redaction filter.
func New(opts Options) (*Server, error) {
	if err := assert.Check(opts.Name != "", "server name must not be empty"); err != nil {
		return nil, err
	}
	if err := assert.NotNil(opts.Registry, "registry"); err != nil {
		return nil, err
	}
	if err := assert.NotNil(opts.Filter, "redaction filter"); err != nil {
		return nil, err
	}
	return &Server{
		name:        opts.Name,
		description: opts.Description,
		reg:         opts.Registry,
		filter:      opts.Filter,
	}, nil
}

// Serve runs the read/dispatch/write loop until in closes or a write fails.
// Returns nil on clean EOF. The unsolicited serverReady notification goes
// out before the first read so the parent process knows the server is up.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = bufio.NewWriter(out)

	ready := mcp.NewNotification("mcp/serverReady", map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"serverInfo":      s.serverInfo(),
		"capabilities":    s.capabilities(),
	})
	if err := s.write(ready); err != nil {
		return fmt.Errorf("sending serverReady: %w", err)
	}

	reader := bufio.NewReaderSize(in, initialLineBuffer)
	for {
		line, tooLong, err := readLine(reader)
		if tooLong {
			logging.Error("request_line_too_long", logging.Fields{Component: "server"})
			if werr := s.write(mcp.NewError(nil, mcp.CodeParseError, "Parse error", "Request line too long")); werr != nil {
				return werr
			}
		} else if werr := s.dispatchLine(ctx, line); werr != nil {
			return werr
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				logging.Info("input_stream_closed", logging.Fields{Component: "server"})
				return nil
			}
			logging.Critical("input_stream_failed", logging.Fields{Component: "server", Error: err.Error()})
			return fmt.Errorf("reading input stream: %w", err)
		}
	}
}

// readLine reads the next newline-terminated line, reporting whether it
// exceeded maxLineBytes. The excess of an oversized line is discarded so the
// stream stays aligned for the next request.
func readLine(r *bufio.Reader) ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if len(chunk) > 0 && !tooLong {
			line = append(line, chunk...)
			if len(line) > maxLineBytes {
				tooLong = true
				line = nil
			}
		}
		if err != nil {
			return line, tooLong, err
		}
		if !isPrefix {
			return line, tooLong, nil
		}
	}
}

// dispatchLine parses and answers one input line. Returns only write
// failures; protocol-level problems are answered on the wire.
func (s *Server) dispatchLine(ctx context.Context, line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	var req mcp.Request
	if err := json.Unmarshal(line, &req); err != nil {
		logging.Error("request_parse_failed", logging.Fields{Component: "server", Error: err.Error()})
		return s.write(mcp.NewError(nil, mcp.CodeParseError, "Parse error", "Invalid JSON"))
	}

	if req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return s.write(mcp.NewError(req.ID, mcp.CodeInvalidRequest, "Invalid Request", "Missing method"))
	}

	resp := s.handle(ctx, &req)
	if req.IsNotification() {
		// No response expected; the handler already ran for its effects.
		return nil
	}
	return s.write(resp)
}

// handle dispatches one parsed request. Always returns a response; the
// caller decides whether the wire gets it. The id and method are caller
// content, so anything derived from them passes through the filter before
// reaching a log line or an error detail.
func (s *Server) handle(ctx context.Context, req *mcp.Request) mcp.Response {
	requestID := s.filter.Apply(fmt.Sprint(req.ID))
	logging.Debug("request_received", logging.Fields{Component: "server", RequestID: requestID})

	switch req.Method {
	case "initialize":
		return mcp.NewResult(req.ID, map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"serverInfo":      s.serverInfo(),
			"capabilities":    s.capabilities(),
		})
	case "tools/list":
		return mcp.NewResult(req.ID, map[string]interface{}{
			"tools": s.reg.List(),
		})
	case "tools/call":
		return s.handleToolCall(ctx, req)
	case "resources/list":
		return mcp.NewResult(req.ID, map[string]interface{}{
			"resources": []interface{}{},
		})
	case "resources/templates/list":
		return mcp.NewResult(req.ID, map[string]interface{}{
			"templates": []interface{}{},
		})
	default:
		logging.Warn("method_not_found", logging.Fields{Component: "server", RequestID: requestID})
		return mcp.NewError(req.ID, mcp.CodeMethodNotFound, "Method not found",
			fmt.Sprintf("Method '%s' not found", s.filter.Apply(req.Method)))
	}
}

func (s *Server) handleToolCall(ctx context.Context, req *mcp.Request) mcp.Response {
	requestID := s.filter.Apply(fmt.Sprint(req.ID))

	name, _ := req.Params["name"].(string)
	def, handler, err := s.reg.Get(name)
	if err != nil {
		logging.Warn("tool_not_found", logging.Fields{Component: "server", RequestID: requestID, Tool: s.filter.Apply(name)})
		return mcp.NewError(req.ID, mcp.CodeMethodNotFound, "Method not found",
			fmt.Sprintf("Tool '%s' not found", s.filter.Apply(name)))
	}

	args, _ := req.Params["arguments"].(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}
	if detail, ok := validateArgs(def, args); !ok {
		logging.Warn("invalid_tool_params", logging.Fields{Component: "server", RequestID: requestID, Tool: name})
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, "Invalid params", detail)
	}

	text, err := s.invoke(ctx, handler, args)
	if err != nil {
		return s.errorResponse(req.ID, name, requestID, err)
	}

	return mcp.NewResult(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": s.filter.Apply(text)},
		},
		"isError": false,
	})
}

// invoke runs a handler, converting a panic into an error at the dispatch
// boundary so a faulty tool can never take the engine down.
func (s *Server) invoke(ctx context.Context, handler registry.Handler, args map[string]interface{}) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, args)
}

// errorResponse maps a handler failure onto a wire error with the message
// redacted: a caller-supplied prompt can leak back through error text.
func (s *Server) errorResponse(id interface{}, tool, requestID string, err error) mcp.Response {
	detail := s.filter.Apply(err.Error())

	if errors.Is(err, registry.ErrInvalidParams) {
		logging.Warn("tool_rejected_params", logging.Fields{Component: "server", RequestID: requestID, Tool: tool, Error: err.Error()})
		return mcp.NewError(id, mcp.CodeInvalidParams, "Invalid params", detail)
	}

	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		logging.Error("provider_call_failed", logging.Fields{Component: "server", RequestID: requestID, Tool: tool, Error: err.Error()})
		return mcp.NewError(id, mcp.CodeServerError, s.filter.Apply(provErr.Error()),
			"Provider error. Check server logs for details.")
	}

	logging.Error("tool_execution_failed", logging.Fields{Component: "server", RequestID: requestID, Tool: tool, Error: err.Error()})
	return mcp.NewError(id, mcp.CodeInternalError, "Internal error", detail)
}

// validateArgs checks required fields and declared primitive types against
// the tool's input schema before the handler runs.
func validateArgs(def registry.Definition, args map[string]interface{}) (string, bool) {
	for _, field := range def.InputSchema.Required {
		val, present := args[field]
		if !present || val == nil {
			return fmt.Sprintf("Missing required '%s' argument", field), false
		}
	}
	for field, prop := range def.InputSchema.Properties {
		val, present := args[field]
		if !present || val == nil {
			continue
		}
		if !typeMatches(prop.Type, val) {
			return fmt.Sprintf("Argument '%s' must be of type %s", field, prop.Type), false
		}
	}
	return "", true
}

func typeMatches(schemaType string, val interface{}) bool {
	switch schemaType {
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		_, ok := val.(float64)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	default:
		return true
	}
}

func (s *Server) serverInfo() map[string]interface{} {
	return map[string]interface{}{
		"name":        s.name,
		"version":     serverVersion,
		"description": s.description,
	}
}

func (s *Server) capabilities() map[string]interface{} {
	return map[string]interface{}{
		"tools":     s.reg.List(),
		"resources": map[string]interface{}{},
		"prompts":   map[string]interface{}{},
		"sampling":  map[string]interface{}{},
	}
}

// write emits one JSON line and flushes immediately so the parent process
// sees the reply without buffering delay. A write failure is fatal to the
// serve loop. String ids pass through the filter too: a credential pasted as
// a request id must not ride back on the correlation field.
func (s *Server) write(resp mcp.Response) error {
	if sid, ok := resp.ID.(string); ok {
		resp.ID = s.filter.Apply(sid)
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		logging.Error("response_marshal_failed", logging.Fields{Component: "server", Error: err.Error()})
		return fmt.Errorf("marshaling response: %w", err)
	}
	if _, err := s.out.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	if err := s.out.Flush(); err != nil {
		return fmt.Errorf("flushing response: %w", err)
	}
	return nil
}
