package shared

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToKey renders an identifier from either remote system in its canonical
// string form. Store keys and identity comparisons always go through it.
func ToKey(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case *string:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(*v)
	case json.Number:
		return numberKey(string(v))
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case *int64:
		if v == nil {
			return ""
		}
		return strconv.FormatInt(*v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return floatKey(v)
	case float32:
		return floatKey(float64(v))
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// ToKeys maps ToKey over ids.
func ToKeys[T any](ids []T) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, ToKey(id))
	}
	return out
}

// ParseID converts a canonical key back into a numeric ledger id.
func ParseID(key string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q is not numeric", ErrValidation, key)
	}
	return id, nil
}

func numberKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return floatKey(f)
	}
	return raw
}

func floatKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
