// Package resolver implements Component C: turning a JSON-RPC method name
// and parameter set into exactly one stored procedure to invoke, caching
// that decision for future calls with the same (method, argument-name
// set) shape.
package resolver

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nsproc/rpcgateway/internal/catalog"
	"github.com/nsproc/rpcgateway/internal/rpcerrors"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

// ResolvedCall is everything the invoker (Component D) needs to build and
// execute the statement, and everything the shaper (Component E) needs to
// reshape its result.
type ResolvedCall struct {
	Method      string
	Schema      string
	Proc        string
	ReturnsJSON bool
	ReturnsSet  bool
	Args        map[string]interface{}
	// IsV1 and UUID identify a call that arrived through the v1 signed
	// envelope, so the error mapper (component F) knows to sign and
	// attach the v1 error envelope on a procedure error.
	IsV1 bool
	UUID string
}

// Config configures the special-name remap table and the resolved-call
// cache's lifetime.
type Config struct {
	// SpecialNames maps a lower-cased incoming method name to the method
	// name actually resolved against the catalog. The resolution spec
	// calls out GetView/GetViewParams as needing to collapse onto a
	// single underlying procedure; that pair ships as the built-in
	// default and more can be added from configuration.
	SpecialNames map[string]string
	// CacheTTL is how long a resolved-call cache entry stays valid. Zero
	// (the default) means entries never expire, matching the literal
	// "cached for the lifetime of the process" behaviour.
	CacheTTL time.Duration
	// SweepInterval, when non-zero and CacheTTL is also non-zero,
	// schedules a periodic cron job to evict expired entries.
	SweepInterval time.Duration
}

func defaultSpecialNames() map[string]string {
	return map[string]string{
		"getview":       "get_view_json",
		"getviewparams": "get_view_json",
	}
}

// Resolver implements Component C against a catalog.Store.
type Resolver struct {
	store        catalog.Store
	cache        *resolveCache
	specialNames map[string]string
	log          *logger.Logger
	cron         *cron.Cron
}

// New constructs a Resolver. cfg.SpecialNames, if nil, falls back to the
// built-in default remap table; entries explicitly supplied in cfg take
// precedence over (and are merged with) the defaults.
func New(store catalog.Store, cfg Config, log *logger.Logger) *Resolver {
	names := defaultSpecialNames()
	for k, v := range cfg.SpecialNames {
		names[strings.ToLower(k)] = v
	}

	r := &Resolver{
		store:        store,
		cache:        newResolveCache(cfg.CacheTTL),
		specialNames: names,
		log:          log,
	}

	if cfg.CacheTTL > 0 && cfg.SweepInterval > 0 {
		r.cron = cron.New()
		spec := "@every " + cfg.SweepInterval.String()
		if _, err := r.cron.AddFunc(spec, r.cache.sweep); err != nil {
			log.WithError(err).Warn("failed to schedule resolved-call cache sweep")
		} else {
			r.cron.Start()
		}
	}

	return r
}

// Stop halts the background cache sweep, if one was scheduled.
func (r *Resolver) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// Stats reports the resolved-call cache's size and hit/miss counters, for
// the admin introspection endpoint (component H).
type Stats struct {
	Size   int
	Hits   int64
	Misses int64
}

func (r *Resolver) Stats() Stats {
	return Stats{
		Size:   r.cache.size(),
		Hits:   atomic.LoadInt64(&r.cache.hits),
		Misses: atomic.LoadInt64(&r.cache.misses),
	}
}

func (r *Resolver) remapSpecialName(method string) string {
	if mapped, ok := r.specialNames[strings.ToLower(method)]; ok {
		return mapped
	}
	return method
}

// Resolve implements the full decision in spec §4.C: detect the v1
// envelope shape first — routed through map_v1 fresh on every call, no
// cache — otherwise fall back to ordinary name/argument-set resolution,
// which does consult (and populate) the resolved-call cache.
func (r *Resolver) Resolve(ctx context.Context, method string, rawParams map[string]interface{}, host string) (*ResolvedCall, error) {
	if isV1Envelope(rawParams) {
		return r.resolveV1(ctx, method, rawParams, host)
	}
	return r.resolvePlain(ctx, method, rawParams, host)
}

func (r *Resolver) resolvePlain(ctx context.Context, method string, rawParams map[string]interface{}, host string) (*ResolvedCall, error) {
	normalized, err := normalizeArgNames(rawParams)
	if err != nil {
		return nil, err
	}

	resolvedMethod := r.remapSpecialName(method)
	argnames := sortedKeys(normalized)
	key := cacheKey(resolvedMethod, argnames)

	match, ok := r.cache.get(key)
	if !ok {
		var matches []catalog.Match
		var err error
		if len(argnames) == 0 {
			matches, err = r.store.MapNoParams(ctx, resolvedMethod)
		} else {
			matches, err = r.store.MapWithParams(ctx, resolvedMethod, argnames)
		}
		if err != nil {
			return nil, rpcerrors.Internal("failed to query procedure catalog", err)
		}

		switch len(matches) {
		case 0:
			return nil, rpcerrors.UnknownMethod(method)
		case 1:
			match = r.cache.putIfAbsent(key, matches[0])
		default:
			return nil, rpcerrors.Ambiguous(method, len(matches))
		}
	}

	args := make(map[string]interface{}, len(normalized)+1)
	for k, v := range normalized {
		args[k] = v
	}
	if match.RequiresHost {
		args["_host"] = host
	}

	return &ResolvedCall{
		Method:      resolvedMethod,
		Schema:      match.Schema,
		Proc:        match.Proc,
		ReturnsJSON: match.ReturnsJSON,
		ReturnsSet:  match.ReturnsSet,
		Args:        args,
	}, nil
}

// resolveV1 implements spec §4.C.2/S7's v1 path: the wire method name is
// validated against the app_v1_functions table's declared parameter set (the
// keys of Data, plus the implicit Password), then every v1 call — whatever
// map_v1 names — is routed to the single fixed dispatcher procedure
// public.api_call, which dispatches internally on _method. There is no
// cache lookup: map_v1 is consulted fresh on every v1 call.
func (r *Resolver) resolveV1(ctx context.Context, method string, rawParams map[string]interface{}, host string) (*ResolvedCall, error) {
	data, ok := rawParams["Data"].(map[string]interface{})
	if !ok {
		return nil, rpcerrors.InvalidParameters("v1 envelope \"Data\" must be an object")
	}

	uuid, _ := rawParams["UUID"].(string)

	dataKeys := sortedKeys(data)
	matches, err := r.store.MapV1(ctx, method, dataKeys)
	if err != nil {
		return nil, rpcerrors.Internal("failed to query v1 method catalog", err)
	}
	switch len(matches) {
	case 0:
		return nil, rpcerrors.UnknownMethod(method)
	case 1:
		// exactly one row validates the call; the dispatcher procedure is
		// fixed regardless of which row matched.
	default:
		return nil, rpcerrors.Ambiguous(method, len(matches))
	}

	return &ResolvedCall{
		Method:      method,
		Schema:      v1Schema,
		Proc:        v1Proc,
		ReturnsJSON: true,
		ReturnsSet:  false,
		Args: map[string]interface{}{
			"_signature": rawParams["Signature"],
			"_uuid":      rawParams["UUID"],
			"_data":      data,
			"_host":      host,
			"_method":    method,
		},
		IsV1: true,
		UUID: uuid,
	}, nil
}
