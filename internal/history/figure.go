package history

import (
	"encoding/json"
	"math"
	"time"
)

// Figure is an opaque chart description in the plotly figure shape. Traces
// and layout are loosely typed because chart agents decide their contents.
type Figure struct {
	Data   []map[string]any `json:"data"`
	Layout map[string]any   `json:"layout"`
}

// EmptyFigureJSON is the canonical placeholder substituted when a figure
// cannot be encoded. Responses carry it instead of failing outright.
const EmptyFigureJSON = `{"data":[],"layout":{}}`

// EncodeFigure re-encodes a figure to transport-safe JSON without mutating
// the original: non-finite floats become nulls and times become RFC 3339
// strings. If any part of the figure cannot be encoded the whole figure is
// replaced with the empty-figure placeholder.
func EncodeFigure(fig Figure) string {
	data, ok := sanitizeValue(fig.Data)
	if !ok {
		return EmptyFigureJSON
	}
	layout, ok := sanitizeValue(fig.Layout)
	if !ok {
		return EmptyFigureJSON
	}
	if data == nil {
		data = []any{}
	}
	if layout == nil {
		layout = map[string]any{}
	}
	out, err := json.Marshal(map[string]any{"data": data, "layout": layout})
	if err != nil {
		return EmptyFigureJSON
	}
	return string(out)
}

func sanitizeValue(v any) (any, bool) {
	switch c := v.(type) {
	case nil:
		return nil, true
	case float64:
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, true
		}
		return c, true
	case float32:
		return sanitizeValue(float64(c))
	case time.Time:
		return c.Format(time.RFC3339), true
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, val := range c {
			s, ok := sanitizeValue(val)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(c))
		for i, val := range c {
			s, ok := sanitizeValue(val)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	case []any:
		out := make([]any, len(c))
		for i, val := range c {
			s, ok := sanitizeValue(val)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(c))
		for i, val := range c {
			s, _ := sanitizeValue(val)
			out[i] = s
		}
		return out, true
	case []string:
		out := make([]any, len(c))
		for i, val := range c {
			out[i] = val
		}
		return out, true
	case string, bool, int, int64:
		return c, true
	default:
		if _, err := json.Marshal(c); err != nil {
			return nil, false
		}
		return c, true
	}
}
