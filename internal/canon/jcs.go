package canon

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCSMarshal serializes v to JSON and transforms it through RFC 8785 JCS,
// the representation used for every receipt (spec.md §3, §4.10). Callers
// are expected to have already pre-sorted any array fields the schema
// requires sorted (outputs by path, packet.files by path) — JCS only
// canonicalizes object member order and number/string formatting, not
// array element order.
func JCSMarshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs transform: %w", err)
	}
	return out, nil
}
