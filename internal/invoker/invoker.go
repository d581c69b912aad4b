// Package invoker implements Component D: executing a resolved call
// against the database facade and handing back the raw rowset together
// with the metadata the shaper needs to reshape it.
package invoker

import (
	"context"

	"github.com/nsproc/rpcgateway/internal/dbfacade"
	"github.com/nsproc/rpcgateway/internal/resolver"
)

// Facade is the subset of *dbfacade.Facade the invoker depends on.
type Facade interface {
	CallProc(ctx context.Context, schema, proc string, args map[string]interface{}) (*dbfacade.Rowset, error)
}

// Result pairs a raw rowset with the resolved call's shape metadata, all
// the shaper (Component E) needs to reduce it to a JSON value.
type Result struct {
	Rowset      *dbfacade.Rowset
	ReturnsJSON bool
	ReturnsSet  bool
}

// Invoker executes ResolvedCalls against a Facade.
type Invoker struct {
	facade Facade
}

func New(facade Facade) *Invoker {
	return &Invoker{facade: facade}
}

// Invoke executes the resolved call and returns its raw result.
func (i *Invoker) Invoke(ctx context.Context, call *resolver.ResolvedCall) (*Result, error) {
	rowset, err := i.facade.CallProc(ctx, call.Schema, call.Proc, call.Args)
	if err != nil {
		return nil, err
	}
	return &Result{
		Rowset:      rowset,
		ReturnsJSON: call.ReturnsJSON,
		ReturnsSet:  call.ReturnsSet,
	}, nil
}
