// Package httpapi implements Component G's HTTP/WebSocket transport
// binding and Component H's router wiring: the JSON-RPC POST/GET
// endpoint, an optional WebSocket transport, health, metrics and the
// JWT-guarded admin cache introspection endpoint.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/nsproc/rpcgateway/internal/dbfacade"
	"github.com/nsproc/rpcgateway/internal/errormap"
	"github.com/nsproc/rpcgateway/internal/invoker"
	"github.com/nsproc/rpcgateway/internal/jsonrpc"
	"github.com/nsproc/rpcgateway/internal/metrics"
	"github.com/nsproc/rpcgateway/internal/resolver"
	"github.com/nsproc/rpcgateway/internal/rpcerrors"
	"github.com/nsproc/rpcgateway/internal/shaper"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

// Gateway wires the full resolve -> invoke -> shape -> map pipeline
// (components C through F) behind the wire layer (component G).
type Gateway struct {
	resolver *resolver.Resolver
	invoker  *invoker.Invoker
	errormap *errormap.Mapper
	metrics  *metrics.Metrics
	log      *logger.Logger
}

func NewGateway(res *resolver.Resolver, inv *invoker.Invoker, errMap *errormap.Mapper, m *metrics.Metrics, log *logger.Logger) *Gateway {
	return &Gateway{resolver: res, invoker: inv, errormap: errMap, metrics: m, log: log}
}

// Handle runs one JSON-RPC request through the pipeline and returns the
// response to write back plus the HTTP status it maps to (spec §7's
// rpcerrors.Kind -> status table; a WebSocket transport is free to ignore
// the second return value, since a frame carries no status of its own).
func (g *Gateway) Handle(ctx context.Context, req *jsonrpc.Request, host string) (jsonrpc.Response, int) {
	env := req.Envelope()

	if err := jsonrpc.ValidateMethod(req.Method); err != nil {
		rpcErr, _ := rpcerrors.As(err)
		return jsonrpc.NewError(env, rpcErr), rpcErr.HTTPStatus()
	}

	params, err := req.ParamsObject()
	if err != nil {
		rpcErr, _ := rpcerrors.As(err)
		return jsonrpc.NewError(env, rpcErr), rpcErr.HTTPStatus()
	}

	resolveStart := time.Now()
	call, err := g.resolver.Resolve(ctx, req.Method, params, host)
	g.metrics.RecordResolve(req.Method, time.Since(resolveStart))
	stats := g.resolver.Stats()
	g.metrics.SetCacheStats(stats.Hits, stats.Misses, stats.Size)
	if err != nil {
		return g.respondError(ctx, env, call, err)
	}

	invokeStart := time.Now()
	result, err := g.invoker.Invoke(ctx, call)
	g.metrics.RecordInvoke(call.Proc, time.Since(invokeStart))
	if err != nil {
		return g.respondError(ctx, env, call, err)
	}

	shapeStart := time.Now()
	value, err := shaper.Shape(result)
	g.metrics.RecordShape(call.Proc, time.Since(shapeStart))
	if err != nil {
		return g.respondError(ctx, env, call, err)
	}

	return jsonrpc.NewResult(env, value), http.StatusOK
}

// mapError translates a pipeline error into the client-visible taxonomy.
// An rpcerrors kind other than InternalError is returned as-is; everything
// else — raised-application errors (surfaced by the facade as opaque
// causes) and InternalError alike — goes through Component F's tag
// extraction and becomes a ProcedureError.
func (g *Gateway) mapError(ctx context.Context, err error) *rpcerrors.Error {
	if rpcErr, ok := rpcerrors.As(err); ok {
		if rpcErr.Kind != rpcerrors.KindInternalError {
			return rpcErr
		}
	}
	return g.errormap.MapError(ctx, err)
}

// respondError maps err and, for a v1 call's own procedure error, signs it
// into the {signature, uuid, method, data} envelope spec §4.F requires.
// call is nil when the failure happened before resolution completed, in
// which case there is no v1 call to sign for.
func (g *Gateway) respondError(ctx context.Context, env jsonrpc.EchoedEnvelope, call *resolver.ResolvedCall, err error) (jsonrpc.Response, int) {
	rpcErr := g.mapError(ctx, err)
	status := rpcErr.HTTPStatus()

	if call != nil && call.IsV1 && rpcErr.Kind == rpcerrors.KindProcedureError {
		envelope, signErr := g.errormap.Sign(ctx, call.Method, call.UUID, map[string]interface{}{
			"message": rpcErr.Message,
			"code":    rpcErr.Code,
		})
		if signErr != nil {
			g.log.WithError(signErr).Warn("failed to sign v1 error envelope, leaving it absent")
		} else {
			return jsonrpc.NewErrorWithData(env, rpcErr, envelope), status
		}
	}

	return jsonrpc.NewError(env, rpcErr), status
}

// Ping exercises the facade for the liveness endpoint.
func Ping(ctx context.Context, facade *dbfacade.Facade) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return facade.DB().PingContext(pingCtx)
}
