package httpapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/nsproc/rpcgateway/internal/catalog"
	"github.com/nsproc/rpcgateway/internal/dbfacade"
	"github.com/nsproc/rpcgateway/internal/errormap"
	"github.com/nsproc/rpcgateway/internal/invoker"
	"github.com/nsproc/rpcgateway/internal/jsonrpc"
	"github.com/nsproc/rpcgateway/internal/metrics"
	"github.com/nsproc/rpcgateway/internal/resolver"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

type fakeStore struct {
	matches   []catalog.Match
	v1Matches []catalog.V1Match
}

func (s *fakeStore) MapWithParams(ctx context.Context, name string, argnames []string) ([]catalog.Match, error) {
	return s.matches, nil
}
func (s *fakeStore) MapNoParams(ctx context.Context, name string) ([]catalog.Match, error) {
	return s.matches, nil
}
func (s *fakeStore) MapV1(ctx context.Context, method string, dataKeys []string) ([]catalog.V1Match, error) {
	return s.v1Matches, nil
}

type fakeFacade struct {
	rowset *dbfacade.Rowset
	err    error
}

func (f *fakeFacade) CallProc(ctx context.Context, schema, proc string, args map[string]interface{}) (*dbfacade.Rowset, error) {
	return f.rowset, f.err
}

func newTestGateway(t *testing.T, matches []catalog.Match, rowset *dbfacade.Rowset, callErr error) *Gateway {
	t.Helper()
	log := logger.NewDefault("test")
	res := resolver.New(&fakeStore{matches: matches}, resolver.Config{}, log)
	facade := &fakeFacade{rowset: rowset, err: callErr}
	inv := invoker.New(facade)
	errMap := errormap.New(facade, errormap.Config{}, log)
	m := metrics.New()
	return NewGateway(res, inv, errMap, m, log)
}

func TestHandleReturnsScalarResultForSingleRowSingleColumn(t *testing.T) {
	g := newTestGateway(t,
		[]catalog.Match{{Proc: "get_balance", Schema: "public", ReturnsJSON: false, ReturnsSet: false}},
		&dbfacade.Rowset{Columns: []string{"balance"}, Rows: [][]interface{}{{int64(42)}}},
		nil,
	)

	req := &jsonrpc.Request{JSONRPC: "2.0", ID: float64(1), Method: "GetBalance", Params: []byte(`{"userid":1}`)}
	resp, status := g.Handle(context.Background(), req, "127.0.0.1")

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result != int64(42) {
		t.Fatalf("expected scalar 42, got %+v", resp.Result)
	}
	if resp.ID != float64(1) {
		t.Fatalf("expected echoed ID, got %+v", resp.ID)
	}
	if status != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", status)
	}
}

func TestHandleReturnsUnknownMethodWhenNoCandidates(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)

	req := &jsonrpc.Request{JSONRPC: "2.0", ID: "abc", Method: "NoSuchMethod"}
	resp, status := g.Handle(context.Background(), req, "127.0.0.1")

	if resp.Error == nil {
		t.Fatalf("expected an error response")
	}
	if resp.Error.Code != -32601 {
		t.Fatalf("expected UnknownMethod code -32601, got %d", resp.Error.Code)
	}
	if status != http.StatusNotFound {
		t.Fatalf("expected HTTP 404, got %d", status)
	}
}

func TestHandleRejectsInvalidMethodName(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)

	req := &jsonrpc.Request{JSONRPC: "2.0", ID: 1, Method: "1bad"}
	resp, status := g.Handle(context.Background(), req, "127.0.0.1")

	if resp.Error == nil || resp.Error.Code != -32600 {
		t.Fatalf("expected InvalidRequest, got %+v", resp.Error)
	}
	if status != http.StatusBadRequest {
		t.Fatalf("expected HTTP 400, got %d", status)
	}
}

func TestHandleSignsProcedureErrorForV1Call(t *testing.T) {
	log := logger.NewDefault("test")
	res := resolver.New(&fakeStore{v1Matches: []catalog.V1Match{{Proc: "api_call"}}}, resolver.Config{}, log)
	facade := &v1SigningFacade{
		callErr:  errString("ERROR:  ERROR_INSUFFICIENT_FUNDS: not enough balance"),
		sigValue: "deadbeef",
	}
	inv := invoker.New(facade)
	errMap := errormap.New(facade, errormap.Config{}, log)
	m := metrics.New()
	g := NewGateway(res, inv, errMap, m, log)

	req := &jsonrpc.Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "Deposit",
		Params:  []byte(`{"Signature":"sig","UUID":"uuid-1","Data":{"Amount":10}}`),
	}
	resp, status := g.Handle(context.Background(), req, "10.0.0.1")

	if resp.Error == nil {
		t.Fatalf("expected an error response")
	}
	envelope, ok := resp.Error.Data.(errormap.Envelope)
	if !ok {
		t.Fatalf("expected the error's Data to carry the signed envelope, got %+v", resp.Error.Data)
	}
	if envelope.Signature != "deadbeef" || envelope.UUID != "uuid-1" || envelope.Method != "Deposit" {
		t.Fatalf("unexpected signed envelope: %+v", envelope)
	}
	// A ProcedureError is a well-formed JSON-RPC reply, not a transport
	// failure, so it still rides HTTP 200 even though it signals an error.
	if status != http.StatusOK {
		t.Fatalf("expected HTTP 200 for a mapped ProcedureError, got %d", status)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

// v1SigningFacade fails every CallProc except OpenSSL_Sign, which returns a
// fixed signature — enough to exercise the gateway's v1 sign-on-error path
// without a real database.
type v1SigningFacade struct {
	callErr  error
	sigValue string
}

func (f *v1SigningFacade) CallProc(ctx context.Context, schema, proc string, args map[string]interface{}) (*dbfacade.Rowset, error) {
	if proc == "OpenSSL_Sign" {
		return &dbfacade.Rowset{Columns: []string{"signature"}, Rows: [][]interface{}{{f.sigValue}}}, nil
	}
	return nil, f.callErr
}
