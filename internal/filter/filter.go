// Package filter selects instruments by matching exchange metadata
// attributes against configured literals.
package filter

import (
	"strconv"
	"strings"

	"moverscan/models"
)

// Match reports whether every predicate holds for inst. A predicate naming an
// attribute the instrument lacks never holds.
func Match(inst models.Instrument, predicates map[string]string) bool {
	for key, literal := range predicates {
		v, ok := inst.Attributes.Get(key)
		if !ok {
			return false
		}
		if !matchValue(v, literal) {
			return false
		}
	}
	return true
}

// Apply keeps the instruments matching all predicates, preserving order.
func Apply(instruments []models.Instrument, predicates map[string]string) []models.Instrument {
	out := make([]models.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		if Match(inst, predicates) {
			out = append(out, inst)
		}
	}
	return out
}

func matchValue(v models.Value, literal string) bool {
	switch v.Kind {
	case models.KindString:
		return v.Str == literal
	case models.KindArray:
		for _, el := range v.Arr {
			if el.Kind == models.KindString && el.Str == literal {
				return true
			}
		}
		return false
	case models.KindNumber:
		// by value: "5" matches both 5 and 5.0
		want, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
		if err != nil {
			return false
		}
		got, err := v.Num.Float64()
		return err == nil && got == want
	case models.KindBool:
		want, err := strconv.ParseBool(strings.TrimSpace(literal))
		return err == nil && want == v.Bool
	case models.KindNull:
		return strings.TrimSpace(literal) == "null"
	default:
		parsed, err := models.ParseValue([]byte(literal))
		return err == nil && v.Equal(parsed)
	}
}
