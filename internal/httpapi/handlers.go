package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nsproc/rpcgateway/internal/jsonrpc"
	"github.com/nsproc/rpcgateway/internal/rpcerrors"
)

func clientHost(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// writeResponse writes resp with the HTTP status the pipeline mapped it
// to (spec §6/§7): 200 on success, and the rpcerrors.Kind's own status —
// 400 for InvalidRequest/InvalidParameters, 404 for UnknownMethod, 409 for
// Ambiguous, 200 for a mapped ProcedureError (still a well-formed JSON-RPC
// reply), 500/503 for InternalError/ConnectionLost — on failure.
func writeResponse(w http.ResponseWriter, resp jsonrpc.Response, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeTransportError(w http.ResponseWriter, err error) {
	rpcErr, ok := rpcerrors.As(err)
	if !ok {
		rpcErr = rpcerrors.Internal("unexpected error", err)
	}
	writeResponse(w, jsonrpc.NewError(jsonrpc.EchoedEnvelope{JSONRPC: "2.0"}, rpcErr), rpcErr.HTTPStatus())
}

// PostHandler implements the JSON-RPC POST transport.
func (g *Gateway) PostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := jsonrpc.FromPOST(r)
		if err != nil {
			writeTransportError(w, err)
			return
		}
		resp, status := g.Handle(r.Context(), req, clientHost(r))
		writeResponse(w, resp, status)
	}
}

// GetHandler implements the JSON-RPC GET transport: method from the last
// path segment, params from the query string.
func (g *Gateway) GetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := jsonrpc.FromGET(r)
		if err != nil {
			writeTransportError(w, err)
			return
		}
		resp, status := g.Handle(r.Context(), req, clientHost(r))
		writeResponse(w, resp, status)
	}
}
