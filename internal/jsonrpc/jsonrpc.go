// Package jsonrpc implements Component G: the wire types and envelope
// handling for JSON-RPC 1.1/2.0 requests and responses, independent of
// the transport (HTTP POST/GET, WebSocket) carrying them.
package jsonrpc

import (
	"encoding/json"
	"regexp"

	"github.com/nsproc/rpcgateway/internal/rpcerrors"
)

// methodPattern is the allowed shape for a method name: an optional
// dotted namespace prefix, then a plain identifier.
var methodPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*\.)?[A-Za-z_][A-Za-z0-9_]*$`)

// Request is a single JSON-RPC call. ID, JSONRPC are passed through
// verbatim from the request to the response — the gateway never invents
// or rewrites them.
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Version string          `json:"version,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ErrorObject is the JSON-RPC error member.
type ErrorObject struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Response is a single JSON-RPC reply. Exactly one of Result/Error is set.
type Response struct {
	JSONRPC string       `json:"jsonrpc,omitempty"`
	Version string       `json:"version,omitempty"`
	ID      interface{}  `json:"id,omitempty"`
	Result  interface{}  `json:"result,omitempty"`
	Error   *ErrorObject `json:"error,omitempty"`
}

// ValidateMethod checks the method name against methodPattern.
func ValidateMethod(method string) error {
	if !methodPattern.MatchString(method) {
		return rpcerrors.InvalidRequest("method name \"" + method + "\" is not a valid identifier")
	}
	return nil
}

// ParamsObject decodes the request's params member as a name -> value object.
// A missing params member decodes to an empty map; an array or scalar
// params member is rejected, since every resolvable call here is by
// argument name.
func (r *Request) ParamsObject() (map[string]interface{}, error) {
	if len(r.Params) == 0 {
		return map[string]interface{}{}, nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(r.Params, &obj); err != nil {
		return nil, rpcerrors.InvalidRequest("params must be a JSON object of named arguments")
	}
	return obj, nil
}

// EchoedEnvelope carries the fields a response must mirror back from the
// request that produced it.
type EchoedEnvelope struct {
	JSONRPC string
	Version string
	ID      interface{}
}

func (r *Request) Envelope() EchoedEnvelope {
	return EchoedEnvelope{JSONRPC: r.JSONRPC, Version: r.Version, ID: r.ID}
}

// NewResult builds a successful response echoing the request's envelope.
func NewResult(env EchoedEnvelope, result interface{}) Response {
	return Response{JSONRPC: env.JSONRPC, Version: env.Version, ID: env.ID, Result: result}
}

// NewError builds an error response from a mapped gateway error, echoing
// the request's envelope. Result is deliberately left unset.
func NewError(env EchoedEnvelope, err *rpcerrors.Error) Response {
	return Response{
		JSONRPC: env.JSONRPC,
		Version: env.Version,
		ID:      env.ID,
		Error: &ErrorObject{
			Code:    err.RPCCode(),
			Message: err.Error(),
		},
	}
}

// NewErrorWithData builds an error response the same way as NewError, but
// attaches an extra payload to the error member's Data field — used for
// the v1 signed error envelope (component F), which the client needs
// alongside the plain code/message.
func NewErrorWithData(env EchoedEnvelope, err *rpcerrors.Error, data interface{}) Response {
	resp := NewError(env, err)
	resp.Error.Data = data
	return resp
}

// MarshalJSON implements the wire rule that a successful response carries
// an explicit "error": null member, except when echoing jsonrpc == "2.0",
// where the member is omitted entirely (§6).
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil || r.JSONRPC == "2.0" {
		type alias Response
		return json.Marshal(alias(r))
	}

	type withNullError struct {
		JSONRPC string          `json:"jsonrpc,omitempty"`
		Version string          `json:"version,omitempty"`
		ID      interface{}     `json:"id,omitempty"`
		Result  interface{}     `json:"result,omitempty"`
		Error   json.RawMessage `json:"error"`
	}
	return json.Marshal(withNullError{
		JSONRPC: r.JSONRPC,
		Version: r.Version,
		ID:      r.ID,
		Result:  r.Result,
		Error:   json.RawMessage("null"),
	})
}
