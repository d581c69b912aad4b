// Package errormap implements Component F: turning a raised procedure
// error into the gateway's (name, numeric code) error taxonomy entry, and
// producing the signed envelope a v1 response is wrapped in.
package errormap

import (
	"context"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/nsproc/rpcgateway/internal/dbfacade"
	"github.com/nsproc/rpcgateway/internal/rpcerrors"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

// Code is a resolved (external name, numeric code) pair as returned by
// the database's own get_api_error_code procedure.
type Code struct {
	Name string
	Code int
}

// unknownCode is the fallback used whenever a raised error's tag cannot
// be extracted, or the catalog has no entry for it.
var unknownCode = Code{Name: "ERROR_UNKNOWN", Code: 620}

// Facade is the subset of *dbfacade.Facade the mapper depends on.
type Facade interface {
	CallProc(ctx context.Context, schema, proc string, args map[string]interface{}) (*dbfacade.Rowset, error)
}

// Config configures where resolved codes are cached. RedisAddr, when
// set, backs the cache with go-redis instead of the in-process map — the
// resolver's own cache must stay process-local and insert-only per its
// own invariants (see internal/resolver), so this is an independent,
// second-level cache entirely of Component F's own entries.
type Config struct {
	Schema     string
	RedisAddr  string
	RedisDB    int
	RedisCache bool
}

func (c Config) schema() string {
	if c.Schema != "" {
		return c.Schema
	}
	return "public"
}

// Mapper implements Component F.
type Mapper struct {
	facade Facade
	schema string
	log    *logger.Logger

	mu    sync.RWMutex
	local map[string]Code

	redis *redis.Client
}

// New constructs a Mapper. When cfg.RedisAddr is set, resolved codes are
// cached in Redis (shared across gateway instances); otherwise an
// in-process map is used.
func New(facade Facade, cfg Config, log *logger.Logger) *Mapper {
	m := &Mapper{
		facade: facade,
		schema: cfg.schema(),
		log:    log,
		local:  make(map[string]Code),
	}
	if cfg.RedisAddr != "" {
		m.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	}
	return m
}

// ExtractTag pulls the ERROR_<TAG> token out of a raised message, which
// may optionally be preceded by a PostgreSQL RAISE "ERROR:  " prefix.
func ExtractTag(message string) (string, bool) {
	msg := message
	if idx := strings.Index(msg, "ERROR:"); idx >= 0 {
		msg = strings.TrimSpace(msg[idx+len("ERROR:"):])
	}
	msg = strings.TrimSpace(msg)

	start := strings.Index(msg, "ERROR_")
	if start < 0 {
		return "", false
	}
	msg = msg[start:]

	end := len(msg)
	for i, r := range msg {
		if !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			end = i
			break
		}
	}
	tag := msg[:end]
	if tag == "ERROR_" || tag == "" {
		return "", false
	}
	return tag, true
}

// Resolve looks up the (name, code) pair for a raised tag, consulting
// the cache first and falling back to get_api_error_code otherwise.
func (m *Mapper) Resolve(ctx context.Context, tag string) Code {
	if code, ok := m.cacheGet(ctx, tag); ok {
		return code
	}

	rowset, err := m.facade.CallProc(ctx, m.schema, "get_api_error_code", map[string]interface{}{"_tag": tag})
	if err != nil || len(rowset.Rows) != 1 {
		m.log.WithFields(map[string]interface{}{"tag": tag}).Warn("error tag lookup failed, falling back to ERROR_UNKNOWN")
		return unknownCode
	}

	code := rowToCode(rowset)
	m.cacheSet(ctx, tag, code)
	return code
}

// MapError turns a raised database error into the gateway's mapped
// ProcedureError, extracting the tag and resolving its code. Extraction
// or lookup failure both fall back to ERROR_UNKNOWN rather than failing
// the call outright.
func (m *Mapper) MapError(ctx context.Context, cause error) *rpcerrors.Error {
	tag, ok := ExtractTag(cause.Error())
	if !ok {
		return rpcerrors.ProcedureError(unknownCode.Name, unknownCode.Code, cause)
	}
	code := m.Resolve(ctx, tag)
	return rpcerrors.ProcedureError(code.Name, code.Code, cause)
}

func rowToCode(rowset *dbfacade.Rowset) Code {
	row := rowset.Rows[0]
	code := Code{}
	for i, col := range rowset.Columns {
		switch col {
		case "name", "error_name":
			if s, ok := row[i].(string); ok {
				code.Name = s
			}
		case "code", "error_code":
			switch v := row[i].(type) {
			case int64:
				code.Code = int(v)
			case int32:
				code.Code = int(v)
			case int:
				code.Code = v
			}
		}
	}
	if code.Name == "" {
		return unknownCode
	}
	return code
}

func (m *Mapper) cacheGet(ctx context.Context, tag string) (Code, bool) {
	if m.redis != nil {
		return m.redisGet(ctx, tag)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	code, ok := m.local[tag]
	return code, ok
}

func (m *Mapper) cacheSet(ctx context.Context, tag string, code Code) {
	if m.redis != nil {
		m.redisSet(ctx, tag, code)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local[tag] = code
}

func (m *Mapper) redisGet(ctx context.Context, tag string) (Code, bool) {
	val, err := m.redis.HGetAll(ctx, redisKey(tag)).Result()
	if err != nil || len(val) == 0 {
		return Code{}, false
	}
	return parseRedisCode(val)
}

func (m *Mapper) redisSet(ctx context.Context, tag string, code Code) {
	m.redis.HSet(ctx, redisKey(tag), map[string]interface{}{
		"name": code.Name,
		"code": code.Code,
	})
}

func redisKey(tag string) string {
	return "rpcgateway:errorcode:" + tag
}

func parseRedisCode(val map[string]string) (Code, bool) {
	name, ok := val["name"]
	if !ok || name == "" {
		return Code{}, false
	}
	codeStr, ok := val["code"]
	if !ok {
		return Code{}, false
	}
	n := 0
	for _, r := range codeStr {
		if r < '0' || r > '9' {
			return Code{}, false
		}
		n = n*10 + int(r-'0')
	}
	return Code{Name: name, Code: n}, true
}
