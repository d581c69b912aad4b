// Package dbfacade implements Component B: a thin facade over a live
// *sql.DB handle that classifies failures by SQLSTATE and retries
// connection-level failures with a bounded, linearly backed-off retry
// loop, while surfacing query-level failures immediately.
package dbfacade

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/nsproc/rpcgateway/internal/rpcerrors"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

// Config configures pool sizing and the retry/backoff policy. Zero values
// fall back to the literal behaviour described in the resolution spec:
// three retries, three-second linear backoff unit.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MaxRetries bounds how many reconnect attempts a single call makes
	// before moving to TimedOut. Defaults to 3.
	MaxRetries int
	// BackoffUnit scales the linear backoff: attempt k sleeps k*BackoffUnit
	// before retrying. Defaults to 3 seconds.
	BackoffUnit time.Duration
}

func (c Config) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 3
}

func (c Config) backoffUnit() time.Duration {
	if c.BackoffUnit > 0 {
		return c.BackoffUnit
	}
	return 3 * time.Second
}

// Rowset is the raw, untyped result of a call: a column list plus rows of
// driver-decoded values, exactly as the shaper (Component E) expects.
type Rowset struct {
	Columns []string
	Rows    [][]interface{}
}

// RetryRecorder observes the facade's retry outcomes, letting the caller
// feed them into Component I's metrics without this package depending on
// prometheus directly.
type RetryRecorder interface {
	RecordFacadeRetry(outcome string)
}

// Facade owns the pooled database handle used to invoke stored procedures.
// The daemon opens a single Facade that every request goroutine shares;
// timedOut is therefore process-wide state guarded by mu, not per-call
// state — it survives across CallProc invocations so a whole outage isn't
// relitigated on every request. Workers do not own separate facades.
type Facade struct {
	db      *sql.DB
	cfg     Config
	log     *logger.Logger
	metrics RetryRecorder

	mu       sync.Mutex
	timedOut bool
}

// SetRetryRecorder attaches a metrics sink for retry/give-up outcomes.
// Optional; a nil recorder (the default) simply skips recording.
func (f *Facade) SetRetryRecorder(m RetryRecorder) {
	f.metrics = m
}

func (f *Facade) recordRetry(outcome string) {
	if f.metrics != nil {
		f.metrics.RecordFacadeRetry(outcome)
	}
}

func (f *Facade) isTimedOut() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timedOut
}

func (f *Facade) setTimedOut(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timedOut = v
}

// Open establishes the pooled connection the same way the teacher's
// runtime does: sql.Open, apply pool settings, ping once before returning.
func Open(cfg Config, log *logger.Logger) (*Facade, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Facade{db: db, cfg: cfg, log: log}, nil
}

// DB exposes the pooled handle for components (the catalog store, the
// health check) that need read access to it directly.
func (f *Facade) DB() *sql.DB { return f.db }

// Close releases the underlying pool.
func (f *Facade) Close() error {
	return f.db.Close()
}

// CallProc invokes schema.proc with the given named arguments and returns
// the raw rowset. Object-valued arguments are JSON-encoded before binding,
// since a stored procedure parameter typed json/jsonb cannot otherwise
// accept a Go map or slice through database/sql.
//
// Retry semantics: a query-level failure (see sqlstate.go) is returned
// immediately as the raw driver error, unwrapped, so the caller can drive
// Component F's error mapping.
// A connection-level failure walks the bounded state machine
// Fresh -> Tried -> Retrying(k) -> TimedOut, sleeping k*BackoffUnit
// between attempts and re-pinging the pool before each retry.
//
// Once a call has exhausted that budget, the facade remembers it: the
// next CallProc skips straight to a single ping-and-connect instead of
// repeating the full backoff dance, and only resumes normal retries once
// that ping succeeds.
func (f *Facade) CallProc(ctx context.Context, schema, proc string, args map[string]interface{}) (*Rowset, error) {
	stmt, values, err := buildCallStatement(schema, proc, args)
	if err != nil {
		return nil, rpcerrors.Internal("failed to build invocation statement", err)
	}

	if f.isTimedOut() {
		pingCtx, cancel := context.WithTimeout(ctx, f.cfg.backoffUnit())
		pingErr := f.db.PingContext(pingCtx)
		cancel()
		if pingErr != nil {
			f.log.WithError(pingErr).WithFields(map[string]interface{}{
				"proc":   proc,
				"schema": schema,
			}).Warn("facade still timed out, ping failed")
			f.recordRetry("exhausted")
			return nil, rpcerrors.ConnectionLost(pingErr)
		}
		f.setTimedOut(false)
	}

	return f.callWithRetry(ctx, schema, proc, stmt, values)
}

func (f *Facade) callWithRetry(ctx context.Context, schema, proc, stmt string, values []interface{}) (*Rowset, error) {
	state := stateFresh
	var lastErr error

	for attempt := 0; ; attempt++ {
		rowset, err := f.execute(ctx, stmt, values)
		if err == nil {
			return rowset, nil
		}
		lastErr = err

		// A first-attempt SQLSTATE 22000 is the one query-level code treated
		// as possibly connection-level: it falls through to the retry state
		// machine below instead of returning immediately. A repeat 22000 (or
		// any other class-22/40/42/P0 code, on any attempt) still gives up.
		if classify(err) == classQueryLevel && !isFirstAttemptDataException(err, attempt) {
			return nil, err
		}

		state = nextState(state)
		if state == stateFatal || attempt >= f.cfg.maxRetries() {
			f.log.WithError(err).WithFields(map[string]interface{}{
				"proc":    proc,
				"schema":  schema,
				"attempt": attempt,
				"state":   state.String(),
			}).Warn("giving up reconnecting to database")
			f.recordRetry("exhausted")
			f.setTimedOut(true)
			return nil, rpcerrors.ConnectionLost(lastErr)
		}

		backoff := time.Duration(attempt+1) * f.cfg.backoffUnit()
		f.log.WithFields(map[string]interface{}{
			"proc":    proc,
			"schema":  schema,
			"attempt": attempt,
			"state":   state.String(),
			"backoff": backoff.String(),
		}).Warn("connection-level failure calling stored procedure, retrying")
		f.recordRetry("retry")

		select {
		case <-ctx.Done():
			return nil, rpcerrors.ConnectionLost(ctx.Err())
		case <-time.After(backoff):
		}

		pingCtx, cancel := context.WithTimeout(ctx, backoff)
		pingErr := f.db.PingContext(pingCtx)
		cancel()
		if pingErr != nil {
			state = stateTimedOut
		}
	}
}

func nextState(s retryState) retryState {
	switch s {
	case stateFresh:
		return stateTried
	case stateTried:
		return stateRetrying
	case stateRetrying:
		return stateRetrying
	default:
		return stateFatal
	}
}

func (f *Facade) execute(ctx context.Context, stmt string, values []interface{}) (*Rowset, error) {
	rows, err := f.db.QueryContext(ctx, stmt, values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, rpcerrors.Internal("failed to read result columns", err)
	}

	rowset := &Rowset{Columns: cols}
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, rpcerrors.Internal("failed to scan result row", err)
		}
		rowset.Rows = append(rowset.Rows, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rowset, nil
}

// buildCallStatement renders `SELECT * FROM "schema"."proc"("argname" :=
// $1, ...)` using PostgreSQL's named-argument call notation, so that
// argument order in the wire request need not match declaration order.
// The schema, procedure and argument names are all quoted with
// pq.QuoteIdentifier.
func buildCallStatement(schema, proc string, args map[string]interface{}) (string, []interface{}, error) {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(pq.QuoteIdentifier(schema))
	b.WriteString(".")
	b.WriteString(pq.QuoteIdentifier(proc))
	b.WriteString("(")

	values := make([]interface{}, 0, len(names))
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		value, err := bindValue(args[name])
		if err != nil {
			return "", nil, err
		}
		values = append(values, value)
		fmt.Fprintf(&b, "%s := $%d", pq.QuoteIdentifier(name), i+1)
	}
	b.WriteString(")")
	return b.String(), values, nil
}

// bindValue passes scalars through untouched and JSON-encodes composite
// values (maps, slices) so they can be bound as text and cast by the
// procedure's own json/jsonb parameter type.
func bindValue(v interface{}) (interface{}, error) {
	switch v.(type) {
	case nil, bool, string, int, int32, int64, float32, float64:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode argument: %w", err)
		}
		return string(encoded), nil
	}
}
