// Package transport serves the editor bridge: one request per line on an
// input stream, one response per line on an output stream. Requests are
// JSON-RPC 2.0 objects or the older {"id", "method", "params"} form, which is
// answered with {"id", "result"} or {"id", "error"}.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"sync"

	"pycomplete/internal/core/config"
	"pycomplete/internal/core/errors"
	"pycomplete/internal/shared/observability"
	"pycomplete/internal/shared/util"
)

// maxLineSize bounds a single request line.
const maxLineSize = 16 << 20

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeRateLimited    = -32005
)

// ErrMethodNotFound is returned by a Handler for an unknown method.
var ErrMethodNotFound = errors.New(errors.CodeNotFound, "method not found")

// Handler executes one bridge method.
type Handler func(ctx context.Context, method string, params Params) (any, error)

type Stdio struct {
	in      io.Reader
	out     io.Writer
	limiter *util.KeyedLimiter
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewStdio(in io.Reader, out io.Writer, cfg config.RateLimit, logger *slog.Logger) *Stdio {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stdio{in: in, out: out, logger: logger.With("component", "bridge")}
	if cfg.Enabled {
		s.limiter = util.NewKeyedLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}
	return s
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type legacyResponse struct {
	ID     any             `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// request is a decoded line. Legacy requests carry no jsonrpc member.
type request struct {
	rpc    bool
	id     any
	hasID  bool
	method string
	params Params
}

// Serve answers requests until the input ends or ctx is cancelled.
// Requests are handled one at a time in arrival order.
func (s *Stdio) Serve(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New(errors.CodeValidationError, "bridge handler is required")
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(errors.CodeValidationError, "bridge already serving")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	writer := bufio.NewWriter(s.out)
	encoder := json.NewEncoder(writer)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		resp, ok := s.handleLine(ctx, handler, line)
		if !ok {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// handleLine returns the response for one line, or false for a JSON-RPC
// notification.
func (s *Stdio) handleLine(ctx context.Context, handler Handler, line []byte) (any, bool) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		s.logger.Debug("malformed request", "error", err)
		return rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error"}}, true
	}
	req, err := decodeRequest(raw)
	if err != nil {
		return respond(req, nil, &rpcError{Code: codeInvalidRequest, Message: err.Error()}), true
	}

	if s.limiter != nil && !s.limiter.Allow(req.method) {
		observability.BridgeRateLimitedTotal.Inc()
		return respond(req, nil, &rpcError{Code: codeRateLimited, Message: "rate limit exceeded"}), true
	}

	result, callErr := handler(ctx, req.method, req.params)
	if req.rpc && !req.hasID {
		if callErr != nil {
			s.logger.Debug("notification failed", "method", req.method, "error", callErr)
		}
		return nil, false
	}
	if callErr != nil {
		return respond(req, nil, toRPCError(callErr)), true
	}
	data, err := json.Marshal(result)
	if err != nil {
		return respond(req, nil, &rpcError{Code: codeInternal, Message: err.Error()}), true
	}
	return respond(req, data, nil), true
}

func decodeRequest(raw map[string]any) (request, error) {
	req := request{params: Params{}}
	req.id, req.hasID = raw["id"]
	if v, ok := raw["jsonrpc"].(string); ok {
		req.rpc = true
		if v != "2.0" {
			return req, errors.New(errors.CodeValidationError, "unsupported jsonrpc version "+v)
		}
	}
	method, ok := raw["method"].(string)
	if !ok || method == "" {
		return req, errors.New(errors.CodeValidationError, "method is required")
	}
	req.method = method
	switch p := raw["params"].(type) {
	case nil:
	case map[string]any:
		req.params = p
	default:
		return req, errors.New(errors.CodeValidationError, "params must be an object")
	}
	return req, nil
}

func respond(req request, result json.RawMessage, rerr *rpcError) any {
	if !req.rpc {
		resp := legacyResponse{ID: req.id, Result: result}
		if rerr != nil {
			resp.Error = rerr.Message
		}
		return resp
	}
	return rpcResponse{JSONRPC: "2.0", ID: req.id, Result: result, Error: rerr}
}

func toRPCError(err error) *rpcError {
	switch {
	case stdErrors.Is(err, ErrMethodNotFound):
		return &rpcError{Code: codeMethodNotFound, Message: errors.Describe(err)}
	case errors.IsCode(err, errors.CodeValidationError), errors.IsCode(err, errors.CodeInvalidImport):
		return &rpcError{Code: codeInvalidParams, Message: errors.Describe(err)}
	}
	return &rpcError{Code: codeInternal, Message: errors.Describe(err)}
}
