package errormap

import (
	"context"
	"encoding/json"

	"github.com/nsproc/rpcgateway/internal/rpcerrors"
)

// Envelope is the wire shape a v1 response is wrapped in: the database's
// own OpenSSL_Sign procedure produces the signature over the method name,
// the JSON-encoded payload and a fresh UUID, and the client is expected
// to verify all three together.
type Envelope struct {
	Signature string      `json:"signature"`
	UUID      string      `json:"uuid"`
	Method    string      `json:"method"`
	Data      interface{} `json:"data"`
}

// Sign wraps a v1 response payload by calling the database's
// OpenSSL_Sign(_method, _jsondata, _uuid) procedure, the same way an
// incoming v1 request's own Signature was produced by the client.
func (m *Mapper) Sign(ctx context.Context, method string, uuid string, data interface{}) (Envelope, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, rpcerrors.Internal("failed to encode v1 response payload", err)
	}

	rowset, err := m.facade.CallProc(ctx, m.schema, "OpenSSL_Sign", map[string]interface{}{
		"_method":   method,
		"_jsondata": string(jsonData),
		"_uuid":     uuid,
	})
	if err != nil {
		return Envelope{}, err
	}
	if len(rowset.Rows) != 1 || len(rowset.Columns) != 1 {
		return Envelope{}, rpcerrors.Internal("OpenSSL_Sign did not return a single signature value", nil)
	}

	signature, ok := rowset.Rows[0][0].(string)
	if !ok {
		return Envelope{}, rpcerrors.Internal("OpenSSL_Sign returned a non-string signature", nil)
	}

	return Envelope{
		Signature: signature,
		UUID:      uuid,
		Method:    method,
		Data:      data,
	}, nil
}
