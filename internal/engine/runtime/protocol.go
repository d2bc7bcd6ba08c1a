package runtime

import (
	"encoding/json"
)

// message is a JSON-RPC 2.0 request or response exchanged with the worker,
// one per line.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    rpcErrorData `json:"data"`
}

type rpcErrorData struct {
	Type string `json:"type"`
}

// codePythonError marks a response carrying a Python exception. Other
// codes (-32700, -32601, -32602) reject the request itself.
const codePythonError = -32000

type nsParams struct {
	NS Namespace `json:"ns"`
}

type refParams struct {
	NS  Namespace `json:"ns"`
	Ref Ref       `json:"ref"`
}
