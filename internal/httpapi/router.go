package httpapi

import (
	"time"

	"github.com/gorilla/mux"

	"github.com/nsproc/rpcgateway/internal/dbfacade"
	"github.com/nsproc/rpcgateway/internal/metrics"
	"github.com/nsproc/rpcgateway/internal/middleware"
	"github.com/nsproc/rpcgateway/internal/resolver"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

// RouterConfig collects everything NewRouter needs to wire the gateway's
// external interface (spec §6).
type RouterConfig struct {
	Gateway          *Gateway
	Facade           *dbfacade.Facade
	Resolver         *resolver.Resolver
	Metrics          *metrics.Metrics
	Log              *logger.Logger
	CORSOrigins      []string
	RateLimitPerSec  int
	RateLimitBurst   int
	WebSocketEnabled bool
	AdminJWTSecret   []byte
}

// NewRouter assembles the gorilla/mux router: the JSON-RPC POST/GET
// endpoint, optional WebSocket transport, health, metrics and (when a
// signing key is configured) the JWT-guarded admin cache endpoint.
func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst, cfg.Log)
	rateLimiter.StartCleanup(10 * time.Minute)

	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.Tracing(cfg.Log))
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(rateLimiter.MiddlewareFunc())

	r.HandleFunc("/rpc", cfg.Gateway.PostHandler()).Methods("POST")
	r.HandleFunc("/rpc/{method}", cfg.Gateway.GetHandler()).Methods("GET")

	r.HandleFunc("/healthz", HealthHandler(cfg.Facade)).Methods("GET")
	r.Handle("/metrics", cfg.Metrics.Handler()).Methods("GET")

	if cfg.WebSocketEnabled {
		r.HandleFunc("/ws", cfg.Gateway.WebSocketHandler(cfg.Log)).Methods("GET")
	}

	if len(cfg.AdminJWTSecret) > 0 {
		adminAuth := middleware.NewAdminAuth(cfg.AdminJWTSecret, cfg.Log)
		admin := r.PathPrefix("/admin").Subrouter()
		admin.Use(adminAuth.Handler)
		admin.HandleFunc("/cache", AdminCacheHandler(cfg.Resolver)).Methods("GET")
	}

	return r
}
