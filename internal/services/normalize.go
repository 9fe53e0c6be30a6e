package services

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hacknation/tagscan/service-gateway/internal/models"
)

// NormalizeComposition capitalizes material names ("cotton", "COTTON" ->
// "Cotton") and keeps the percentages as given. Values are not required to
// sum to 100.
//
// Keys that collapse to the same name are not merged: the key that sorts last
// in byte order wins, so {"COTTON": 10, "cotton": 90} yields {"Cotton": 90}.
func NormalizeComposition(materials models.Composition) models.Composition {
	keys := make([]string, 0, len(materials))
	for k := range materials {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(models.Composition, len(materials))
	for _, k := range keys {
		out[capitalize(k)] = materials[k]
	}
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// ParseComposition reads a material map from decoded JSON. Percentages may be
// numbers or strings such as "60" or "60%"; entries that are neither are dropped.
func ParseComposition(v interface{}) models.Composition {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}

	out := make(models.Composition, len(raw))
	for material, value := range raw {
		if pct, ok := parsePercentage(value); ok {
			out[material] = pct
		}
	}
	return out
}

// parsePercentage accepts finite numbers only; "NaN" and "Inf" are rejected.
func parsePercentage(v interface{}) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "%"))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
