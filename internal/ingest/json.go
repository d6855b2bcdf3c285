package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func lowerKeys(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func firstValue(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(obj map[string]any, keys ...string) string {
	v, ok := firstValue(obj, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func firstFloat(obj map[string]any, keys ...string) (float64, bool) {
	v, ok := firstValue(obj, keys...)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case int:
		return float64(t), true
	}
	return 0, false
}

// toBox accepts [x1,y1,x2,y2] or an object with x1/y1/x2/y2 keys.
func toBox(v any) ([4]float64, bool) {
	var box [4]float64
	switch t := v.(type) {
	case []any:
		if len(t) != 4 {
			return box, false
		}
		for i, item := range t {
			f, ok := toFloat(item)
			if !ok {
				return box, false
			}
			box[i] = f
		}
		return box, true
	case map[string]any:
		obj := lowerKeys(t)
		for i, key := range []string{"x1", "y1", "x2", "y2"} {
			f, ok := firstFloat(obj, key)
			if !ok {
				return box, false
			}
			box[i] = f
		}
		return box, true
	}
	return box, false
}
