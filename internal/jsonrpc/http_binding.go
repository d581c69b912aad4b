package jsonrpc

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/nsproc/rpcgateway/internal/rpcerrors"
)

// FromGET implements the GET transport binding: the method name is the
// last path segment, and the query string supplies named parameters —
// a key with a single value binds to that scalar string, a key repeated
// across the query string binds to a JSON array of strings.
func FromGET(r *http.Request) (*Request, error) {
	method := path.Base(strings.TrimSuffix(r.URL.Path, "/"))

	values := r.URL.Query()
	params := make(map[string]interface{}, len(values))
	for key, vs := range values {
		if len(vs) == 1 {
			params[key] = vs[0]
		} else {
			arr := make([]interface{}, len(vs))
			for i, v := range vs {
				arr[i] = v
			}
			params[key] = arr
		}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	return &Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  raw,
	}, nil
}

// FromPOST decodes a single JSON-RPC request from a POST body.
func FromPOST(r *http.Request) (*Request, error) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, rpcerrors.InvalidRequest("malformed JSON-RPC request body: " + err.Error())
	}
	return &req, nil
}
