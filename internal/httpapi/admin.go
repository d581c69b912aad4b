package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nsproc/rpcgateway/internal/resolver"
)

// AdminCacheHandler exposes the resolver's cache size and hit/miss
// counters, guarded by the admin JWT middleware at the router level.
func AdminCacheHandler(res *resolver.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := res.Stats()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(stats)
	}
}
