// Command rpcgatewayd runs the JSON-RPC stored-procedure gateway: it loads
// configuration, opens the database facade, wires the resolve/invoke/shape/
// map pipeline, and serves the HTTP and (optionally) WebSocket transports
// until told to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/nsproc/rpcgateway/internal/catalog"
	"github.com/nsproc/rpcgateway/internal/config"
	"github.com/nsproc/rpcgateway/internal/dbfacade"
	"github.com/nsproc/rpcgateway/internal/errormap"
	"github.com/nsproc/rpcgateway/internal/httpapi"
	"github.com/nsproc/rpcgateway/internal/invoker"
	"github.com/nsproc/rpcgateway/internal/metrics"
	"github.com/nsproc/rpcgateway/internal/resolver"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the gateway YAML config file")
	serviceFile := flag.String("service-file", "", "path to a pg_service.conf-style connection service file")
	service := flag.String("service", "", "service section to select from --service-file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *serviceFile != "" {
		cfg.ServiceFile = *serviceFile
	}
	if *service != "" {
		cfg.Service = *service
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	if cfg.Database.DSN == "" {
		entry, err := config.LoadServiceFile(cfg.ServiceFile, cfg.Service)
		if err != nil {
			log.WithError(err).Error("no database dsn configured and no connection service file resolved it")
			os.Exit(1)
		}
		cfg.Database.DSN = entry.DSN()
	}

	facade, err := dbfacade.Open(dbfacade.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		MaxRetries:      cfg.Database.MaxRetries,
		BackoffUnit:     cfg.Database.BackoffUnit,
	}, log)
	if err != nil {
		log.WithError(err).Error("failed to open database facade")
		os.Exit(1)
	}
	defer facade.Close()

	m := metrics.New()
	facade.SetRetryRecorder(m)

	db := sqlx.NewDb(facade.DB(), cfg.Database.Driver)
	store := catalog.New(db)

	res := resolver.New(store, resolver.Config{
		SpecialNames:  cfg.Resolver.SpecialNames,
		CacheTTL:      cfg.Resolver.CacheTTL,
		SweepInterval: cfg.Resolver.SweepInterval,
	}, log.WithFields(map[string]interface{}{"component": "resolver"}))
	defer res.Stop()

	inv := invoker.New(facade)

	errMap := errormap.New(facade, errormap.Config{
		Schema:     cfg.ErrorMap.Schema,
		RedisAddr:  cfg.ErrorMap.RedisAddr,
		RedisDB:    cfg.ErrorMap.RedisDB,
		RedisCache: cfg.ErrorMap.RedisCache,
	}, log.WithFields(map[string]interface{}{"component": "errormap"}))

	gw := httpapi.NewGateway(res, inv, errMap, m, log.WithFields(map[string]interface{}{"component": "gateway"}))

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Gateway:          gw,
		Facade:           facade,
		Resolver:         res,
		Metrics:          m,
		Log:              log,
		CORSOrigins:      cfg.CORS.AllowedOrigins,
		RateLimitPerSec:  cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:   cfg.RateLimit.Burst,
		WebSocketEnabled: cfg.WebSocket.Enabled,
		AdminJWTSecret:   []byte(cfg.Admin.Secret),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("rpcgatewayd listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("received signal %s, shutting down", sig)
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("error during graceful shutdown")
	}

	log.Info("rpcgatewayd stopped")
}
