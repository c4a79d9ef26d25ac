package jsonx

import (
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ToDynamicJSON converts any Go value to a dynamic JSON object represented as a map[string]any.
// It first marshals the input value to JSON bytes and then unmarshals those bytes into a map.
// If either the marshaling or unmarshaling process fails, an error is returned.
func ToDynamicJSON(val any) (map[string]any, error) {
	result := make(map[string]any)
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Path looks up a gjson path inside the JSON rendering of val.
//
// It is used to reach into structured property values, for example the path
// "total" on an order struct rendered as {"total": 12}. Numbers come back as
// float64, objects as map[string]any, following gjson.Result.Value.
func Path(val any, path string) (any, bool) {
	if path == "" {
		return val, val != nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(b, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}
