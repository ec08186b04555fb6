package market

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Gamma serializes list-valued fields (outcomes, prices, token ids) as a JSON
// array embedded in a string. stringList accepts both forms.
func stringList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out
		}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func floatList(raw string) ([]float64, bool) {
	items := stringList(raw)
	if len(items) == 0 {
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := parseFloat(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func parseFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func floatOrZero(raw string) float64 {
	f, ok := parseFloat(raw)
	if !ok {
		return 0
	}
	return f
}
