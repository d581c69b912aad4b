package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nsproc/rpcgateway/internal/dbfacade"
)

// HealthHandler pings the facade and reports liveness/readiness.
func HealthHandler(facade *dbfacade.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := Ping(r.Context(), facade); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
