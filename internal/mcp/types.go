package mcp

// Request represents a Model Context Protocol JSON-RPC request.
type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      interface{}            `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

// Response represents a Model Context Protocol JSON-RPC response or
// server-initiated notification. ID deliberately lacks omitempty: a null id
// must appear on the wire for parse errors and notifications.
type Response struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      interface{}            `json:"id"`
	Method  string                 `json:"method,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   *ErrorDetail           `json:"error,omitempty"`
}

// ErrorDetail is the error member of a failed JSON-RPC response.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// IsNotification reports whether the request carries no id and therefore
// expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// JSON-RPC 2.0 error codes used on the wire.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// NewResult builds a success response correlated to id.
func NewResult(id interface{}, result map[string]interface{}) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewError builds an error response correlated to id.
func NewError(id interface{}, code int, message, data string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &ErrorDetail{Code: code, Message: message, Data: data}}
}

// NewNotification builds a server-initiated message with a null id.
func NewNotification(method string, params map[string]interface{}) Response {
	return Response{JSONRPC: "2.0", ID: nil, Method: method, Params: params}
}
