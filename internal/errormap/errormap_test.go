package errormap

import (
	"context"
	"testing"

	"github.com/nsproc/rpcgateway/internal/dbfacade"
	"github.com/nsproc/rpcgateway/internal/rpcerrors"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

type fakeFacade struct {
	rowset *dbfacade.Rowset
	err    error
	proc   string
	args   map[string]interface{}
}

func (f *fakeFacade) CallProc(ctx context.Context, schema, proc string, args map[string]interface{}) (*dbfacade.Rowset, error) {
	f.proc, f.args = proc, args
	return f.rowset, f.err
}

func TestExtractTagHandlesBarePrefix(t *testing.T) {
	tag, ok := ExtractTag("ERROR_INSUFFICIENT_FUNDS")
	if !ok || tag != "ERROR_INSUFFICIENT_FUNDS" {
		t.Fatalf("ExtractTag() = %q, %v", tag, ok)
	}
}

func TestExtractTagHandlesRaiseExceptionPrefix(t *testing.T) {
	tag, ok := ExtractTag("ERROR:  ERROR_INVALID_ACCOUNT: account not found")
	if !ok || tag != "ERROR_INVALID_ACCOUNT" {
		t.Fatalf("ExtractTag() = %q, %v", tag, ok)
	}
}

func TestExtractTagFailsWithoutTag(t *testing.T) {
	_, ok := ExtractTag("division by zero")
	if ok {
		t.Fatalf("expected extraction to fail")
	}
}

func TestResolveCachesAfterFirstLookup(t *testing.T) {
	facade := &fakeFacade{
		rowset: &dbfacade.Rowset{Columns: []string{"name", "code"}, Rows: [][]interface{}{{"ERROR_INSUFFICIENT_FUNDS", int64(410)}}},
	}
	m := New(facade, Config{}, logger.NewDefault("errormap_test"))

	first := m.Resolve(context.Background(), "ERROR_INSUFFICIENT_FUNDS")
	facade.rowset = nil // a second catalog call would now fail to find rows
	second := m.Resolve(context.Background(), "ERROR_INSUFFICIENT_FUNDS")

	if first != second || first.Code != 410 {
		t.Fatalf("expected cached lookup to be reused: %+v vs %+v", first, second)
	}
}

func TestResolveFallsBackToUnknownOnLookupFailure(t *testing.T) {
	facade := &fakeFacade{err: context.DeadlineExceeded}
	m := New(facade, Config{}, logger.NewDefault("errormap_test"))

	code := m.Resolve(context.Background(), "ERROR_SOMETHING")
	if code != unknownCode {
		t.Fatalf("expected unknownCode fallback, got %+v", code)
	}
}

func TestMapErrorFallsBackWhenTagCannotBeExtracted(t *testing.T) {
	facade := &fakeFacade{}
	m := New(facade, Config{}, logger.NewDefault("errormap_test"))

	mapped := m.MapError(context.Background(), errString("deadlock detected"))
	if mapped.Kind != rpcerrors.KindProcedureError || mapped.Message != "ERROR_UNKNOWN" || mapped.Code != 620 {
		t.Fatalf("unexpected mapped error: %+v", mapped)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestSignCallsOpenSSLSignAndBuildsEnvelope(t *testing.T) {
	facade := &fakeFacade{
		rowset: &dbfacade.Rowset{Columns: []string{"signature"}, Rows: [][]interface{}{{"deadbeef"}}},
	}
	m := New(facade, Config{}, logger.NewDefault("errormap_test"))

	env, err := m.Sign(context.Background(), "Deposit", "uuid-1", map[string]interface{}{"message": "ERROR_UNKNOWN", "code": 620})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if facade.proc != "OpenSSL_Sign" || facade.args["_method"] != "Deposit" || facade.args["_uuid"] != "uuid-1" {
		t.Fatalf("expected OpenSSL_Sign called with method/uuid, got proc=%q args=%+v", facade.proc, facade.args)
	}
	if env.Signature != "deadbeef" || env.UUID != "uuid-1" || env.Method != "Deposit" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestSignFailsWhenOpenSSLSignReturnsNoRows(t *testing.T) {
	facade := &fakeFacade{rowset: &dbfacade.Rowset{Columns: []string{"signature"}}}
	m := New(facade, Config{}, logger.NewDefault("errormap_test"))

	_, err := m.Sign(context.Background(), "Deposit", "uuid-1", map[string]interface{}{})
	if err == nil {
		t.Fatalf("expected an error when OpenSSL_Sign returns no rows")
	}
}
