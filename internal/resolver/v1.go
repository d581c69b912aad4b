package resolver

// v1EnvelopeKeys is the exact key set (before normalisation) that marks a
// request as using the legacy signed v1 envelope instead of a plain
// stored-procedure call: {Signature, UUID, Data}.
var v1EnvelopeKeys = map[string]struct{}{
	"Signature": {},
	"UUID":      {},
	"Data":      {},
}

// isV1Envelope reports whether the raw (pre-normalisation) parameter key
// set is exactly {Signature, UUID, Data}.
func isV1Envelope(rawParams map[string]interface{}) bool {
	if len(rawParams) != len(v1EnvelopeKeys) {
		return false
	}
	for key := range rawParams {
		if _, ok := v1EnvelopeKeys[key]; !ok {
			return false
		}
	}
	return true
}

// v1Schema and v1Proc are the fixed dispatcher location every v1 call is
// routed to (spec §4.C.2): map_v1 only validates that the call is legal,
// it never names the procedure actually invoked.
const (
	v1Schema = "public"
	v1Proc   = "api_call"
)
