package browser

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// mapping is the JS object a Go value is mapped to.
type mapping = map[string]any

// gojaValueExists returns true if a given value is not nil and exists
// (defined and not null) in the goja runtime.
func gojaValueExists(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

// exportArg exports the value and returns it.
// It returns nil if the value is undefined or null.
func exportArg(gv goja.Value) any {
	if !gojaValueExists(gv) {
		return nil
	}
	return gv.Export()
}

// parseJSON converts the JSON result of a script to a JS value.
func parseJSON(rt *goja.Runtime, raw json.RawMessage) (goja.Value, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding script result: %w", err)
	}
	return rt.ToValue(v), nil
}

// toArrayBuffer returns a JS ArrayBuffer holding b.
func toArrayBuffer(rt *goja.Runtime, b []byte) goja.Value {
	return rt.ToValue(rt.NewArrayBuffer(b))
}
