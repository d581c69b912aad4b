// Package catalog implements Component A: the three read-only queries over
// the procedure catalog that answer "which procedure matches this call?".
package catalog

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Match is a row shape shared by map_with_params and map_no_params. The
// distilled spec's §4.A.1 text lists only {proc, schema, requires_host,
// returns_json}; ReturnsSet is added here because §3's CacheEntry requires
// it and there is no other query that could supply it.
type Match struct {
	Proc         string `db:"proc"`
	Schema       string `db:"schema"`
	RequiresHost bool   `db:"requires_host"`
	ReturnsJSON  bool   `db:"returns_json"`
	ReturnsSet   bool   `db:"returns_set"`
}

// V1Match is a row from map_v1: the external method name resolved to a
// dispatcher-known procedure.
type V1Match struct {
	Proc string `db:"proc"`
}

// Store is the interface the resolver depends on; it is implemented by
// PostgresStore against a live catalog and can be faked in tests.
type Store interface {
	MapWithParams(ctx context.Context, name string, argnames []string) ([]Match, error)
	MapNoParams(ctx context.Context, name string) ([]Match, error)
	MapV1(ctx context.Context, method string, dataKeys []string) ([]V1Match, error)
}

// PostgresStore implements Store against PostgreSQL's own system catalog
// (pg_proc/pg_namespace) plus an application table of v1 method signatures.
type PostgresStore struct {
	db *sqlx.DB
}

// New wraps an existing *sqlx.DB. The caller owns the connection's
// lifecycle; PostgresStore issues read-only queries only.
func New(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// visibleProcNamesQuery loads every function on the visible search path
// (pg_function_is_visible), unfiltered by name: the name-mangling rule
// (spec §3) is symmetric — it must strip underscores from *both* the
// requested name and the catalog's proname before comparing — and SQL's
// lower() alone cannot express that, so the name comparison itself is
// done in Go (namesMatch, mangle.go) against every visible candidate row.
const visibleProcNamesQuery = `
SELECT
	p.oid,
	p.proname       AS proname,
	n.nspname       AS schema,
	p.proretset     AS returns_set,
	p.prorettype = 'json'::regtype OR p.prorettype = 'jsonb'::regtype AS returns_json,
	COALESCE(
		(SELECT array_agg(a.name)
		 FROM unnest(p.proargnames, p.proargmodes) WITH ORDINALITY AS a(name, mode, ord)
		 WHERE a.mode IS NULL OR a.mode IN ('i', 'b')),
		'{}'
	) AS declared_args
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
WHERE pg_catalog.pg_function_is_visible(p.oid)
`

type procRow struct {
	OID          int64          `db:"oid"`
	Proname      string         `db:"proname"`
	Schema       string         `db:"schema"`
	ReturnsSet   bool           `db:"returns_set"`
	ReturnsJSON  bool           `db:"returns_json"`
	DeclaredArgs pq.StringArray `db:"declared_args"`
}

// MapWithParams implements spec §4.A.1: for every candidate procedure whose
// name matches (case-insensitively, or after mangling), accept it iff every
// declared argument is present in argnames (barring a possibly-missing
// _host), and every supplied argument is declared.
func (s *PostgresStore) MapWithParams(ctx context.Context, name string, argnames []string) ([]Match, error) {
	rows, err := s.candidateRows(ctx, name)
	if err != nil {
		return nil, err
	}

	supplied := toSet(argnames)

	var out []Match
	for _, r := range rows {
		declared := toSet([]string(r.DeclaredArgs))

		missingFromSupplied := 0
		requiresHost := false
		for arg := range declared {
			if _, ok := supplied[arg]; ok {
				continue
			}
			if arg == "_host" {
				requiresHost = true
				continue
			}
			missingFromSupplied++
		}
		if missingFromSupplied > 0 {
			continue
		}

		missingFromDeclared := 0
		for arg := range supplied {
			if _, ok := declared[arg]; !ok {
				missingFromDeclared++
			}
		}
		if missingFromDeclared > 0 {
			continue
		}

		out = append(out, Match{
			Proc:         r.Proname,
			Schema:       r.Schema,
			RequiresHost: requiresHost,
			ReturnsJSON:  r.ReturnsJSON,
			ReturnsSet:   r.ReturnsSet,
		})
	}
	return out, nil
}

// MapNoParams implements spec §4.A.2: candidates whose declared IN/INOUT
// set is empty, or exactly {_host}.
func (s *PostgresStore) MapNoParams(ctx context.Context, name string) ([]Match, error) {
	rows, err := s.candidateRows(ctx, name)
	if err != nil {
		return nil, err
	}

	var out []Match
	for _, r := range rows {
		declared := toSet([]string(r.DeclaredArgs))
		switch {
		case len(declared) == 0:
			out = append(out, Match{Proc: r.Proname, Schema: r.Schema, ReturnsJSON: r.ReturnsJSON, ReturnsSet: r.ReturnsSet})
		case len(declared) == 1:
			if _, ok := declared["_host"]; ok {
				out = append(out, Match{Proc: r.Proname, Schema: r.Schema, RequiresHost: true, ReturnsJSON: r.ReturnsJSON, ReturnsSet: r.ReturnsSet})
			}
		}
	}
	return out, nil
}

// candidateRows loads every visible procedure and keeps only those whose
// proname satisfies namesMatch against the requested name — the exact
// case-insensitive match or the case-insensitive match after both sides
// are mangled (spec §3, both rules applied with OR).
func (s *PostgresStore) candidateRows(ctx context.Context, name string) ([]procRow, error) {
	var rows []procRow
	if err := s.db.SelectContext(ctx, &rows, visibleProcNamesQuery); err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, r := range rows {
		if namesMatch(name, r.Proname) {
			out = append(out, r)
		}
	}
	return out, nil
}

// mapV1Query implements spec §4.A.3: the declared parameter set of the
// external method, unioned with {Password}, must equal (both directions)
// the supplied Data key set.
const mapV1Query = `
SELECT f."Name" AS proc
FROM app_v1_functions f
WHERE lower(f."ApiMethod") = lower($1)
  AND (f."ApiParams" || ARRAY['Password']::text[]) @> $2::text[]
  AND (f."ApiParams" || ARRAY['Password']::text[]) <@ $2::text[]
`

// MapV1 implements spec §4.A.3.
func (s *PostgresStore) MapV1(ctx context.Context, method string, dataKeys []string) ([]V1Match, error) {
	var rows []V1Match
	if err := s.db.SelectContext(ctx, &rows, mapV1Query, method, pq.Array(dataKeys)); err != nil {
		return nil, err
	}
	return rows, nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
