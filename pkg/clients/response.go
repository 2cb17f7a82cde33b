package clients

import (
	"strconv"
	"strings"
)

// Response is a decoded upstream JSON object.
type Response map[string]interface{}

// Records returns the array found under the first present key as a list of
// objects. Non-object elements are skipped. It returns nil when no key holds
// an array.
func (r Response) Records(keys ...string) []map[string]interface{} {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok || raw == nil {
			continue
		}
		arr, ok := raw.([]interface{})
		if !ok {
			continue
		}
		out := make([]map[string]interface{}, 0, len(arr))
		for _, item := range arr {
			if obj, ok := item.(map[string]interface{}); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}

// Object returns the nested object under key, or nil.
func (r Response) Object(key string) map[string]interface{} {
	obj, _ := r[key].(map[string]interface{})
	return obj
}

// Meta returns the pagination metadata object, or nil.
func (r Response) Meta() map[string]interface{} {
	return r.Object("meta")
}

// Has reports whether key is present with a non-nil value.
func (r Response) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// stringValue renders a scalar JSON value as a query parameter.
func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// intValue reads a JSON number or numeric string.
func intValue(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
