package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID identifies a backend-owned entity. Identifiers arrive as numbers from
// the server and as strings from routing parameters; ParseID normalises both
// to the same canonical text so that plain == comparison is enough.
type ID string

// ParseID converts a raw identifier value into its canonical form. Integral
// numbers, numeric strings with leading zeros or a trailing ".0" all map to
// the same decimal text. Anything else is kept as a trimmed string.
func ParseID(v any) ID {
	switch t := v.(type) {
	case nil:
		return ""
	case ID:
		return ParseID(string(t))
	case string:
		return canonicalString(t)
	case json.Number:
		return canonicalString(t.String())
	case int:
		return ID(strconv.FormatInt(int64(t), 10))
	case int32:
		return ID(strconv.FormatInt(int64(t), 10))
	case int64:
		return ID(strconv.FormatInt(t, 10))
	case uint:
		return ID(strconv.FormatUint(uint64(t), 10))
	case uint32:
		return ID(strconv.FormatUint(uint64(t), 10))
	case uint64:
		return ID(strconv.FormatUint(t, 10))
	case float32:
		return canonicalFloat(float64(t))
	case float64:
		return canonicalFloat(t)
	case fmt.Stringer:
		return canonicalString(t.String())
	default:
		return canonicalString(fmt.Sprint(v))
	}
}

func canonicalString(s string) ID {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ID(strconv.FormatInt(n, 10))
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return canonicalFloat(f)
	}
	return ID(s)
}

func canonicalFloat(f float64) ID {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return ID(strconv.FormatInt(int64(f), 10))
	}
	return ID(strconv.FormatFloat(f, 'f', -1, 64))
}

// IsZero reports whether the identifier is empty.
func (id ID) IsZero() bool { return id == "" }

// String returns the identifier text, suitable for URL path segments.
func (id ID) String() string { return string(id) }

// Int64 returns the numeric value of the identifier, if it has one.
func (id ID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// MarshalJSON emits numeric identifiers as JSON numbers and everything else
// as strings, mirroring what the backend sends.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if n, ok := id.Int64(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("model: decode id: %w", err)
		}
		*id = canonicalString(s)
		return nil
	}
	*id = canonicalString(raw)
	return nil
}

// Entity is implemented by every record mirrored from the backend.
type Entity interface {
	EntityID() ID
}
