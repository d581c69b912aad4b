package invoker

import (
	"context"
	"testing"

	"github.com/nsproc/rpcgateway/internal/dbfacade"
	"github.com/nsproc/rpcgateway/internal/resolver"
)

type fakeFacade struct {
	schema, proc string
	args         map[string]interface{}
	rowset       *dbfacade.Rowset
	err          error
}

func (f *fakeFacade) CallProc(ctx context.Context, schema, proc string, args map[string]interface{}) (*dbfacade.Rowset, error) {
	f.schema, f.proc, f.args = schema, proc, args
	return f.rowset, f.err
}

func TestInvokePassesResolvedCallThrough(t *testing.T) {
	facade := &fakeFacade{rowset: &dbfacade.Rowset{Columns: []string{"result"}, Rows: [][]interface{}{{int64(1)}}}}
	inv := New(facade)

	call := &resolver.ResolvedCall{
		Schema: "public", Proc: "get_value", ReturnsJSON: true, ReturnsSet: false,
		Args: map[string]interface{}{"_id": 1},
	}
	result, err := inv.Invoke(context.Background(), call)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if facade.schema != "public" || facade.proc != "get_value" || facade.args["_id"] != 1 {
		t.Fatalf("facade did not receive expected call, got schema=%q proc=%q args=%+v", facade.schema, facade.proc, facade.args)
	}
	if !result.ReturnsJSON || result.ReturnsSet {
		t.Fatalf("unexpected result metadata: %+v", result)
	}
	if len(result.Rowset.Rows) != 1 {
		t.Fatalf("expected rowset to be passed through untouched")
	}
}

func TestInvokePropagatesFacadeError(t *testing.T) {
	wantErr := context.DeadlineExceeded
	facade := &fakeFacade{err: wantErr}
	inv := New(facade)

	_, err := inv.Invoke(context.Background(), &resolver.ResolvedCall{Schema: "public", Proc: "p"})
	if err != wantErr {
		t.Fatalf("expected facade error to propagate, got %v", err)
	}
}
