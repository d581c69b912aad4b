package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nsproc/rpcgateway/internal/jsonrpc"
	"github.com/nsproc/rpcgateway/internal/rpcerrors"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandler accepts a stream of JSON-RPC 2.0 request objects, one
// per text frame, and replies one response per frame in arrival order.
// It carries no new semantics beyond the same resolve/invoke/shape
// pipeline the HTTP transport runs.
func (g *Gateway) WebSocketHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		defer conn.Close()

		host := clientHost(r)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var req jsonrpc.Request
			if err := json.Unmarshal(message, &req); err != nil {
				resp := jsonrpc.NewError(jsonrpc.EchoedEnvelope{JSONRPC: "2.0"}, rpcerrors.InvalidRequest("malformed JSON-RPC frame: "+err.Error()))
				if writeErr := conn.WriteJSON(resp); writeErr != nil {
					return
				}
				continue
			}

			resp, _ := g.Handle(r.Context(), &req, host)
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}
}
