package tzdate

import (
	"encoding/json"
	"time"
)

// Timestamp is the domain time type for values crossing the system boundary.
//
// External job records carry timestamps in several shapes: RFC3339 strings,
// bare dates, unix seconds, unix milliseconds. Every external form is
// normalized into a Timestamp at ingress; internal logic never handles raw
// representations. An unparseable value normalizes to the zero Timestamp so
// a provider-wide scan can skip the affected rule instead of aborting.
type Timestamp struct {
	time.Time
}

// At wraps a time.Time as a Timestamp.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// IsSet reports whether the timestamp carries a real value.
func (t Timestamp) IsSet() bool {
	return !t.IsZero()
}

// stringLayouts are tried in order when a timestamp arrives as a string.
var stringLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON accepts null, an RFC3339 (or date-only) string, unix
// seconds, or unix milliseconds. Malformed input yields the zero Timestamp
// without an error.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}

	if string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Time = parseString(s)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		t.Time = fromUnix(n)
		return nil
	}

	return nil
}

// MarshalJSON emits RFC3339 or null for the zero Timestamp.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Normalize converts any supported external timestamp representation into a
// Timestamp: time.Time, *time.Time, Timestamp, string, or a unix number.
// Unsupported or malformed values yield the zero Timestamp.
func Normalize(v interface{}) Timestamp {
	switch x := v.(type) {
	case Timestamp:
		return x
	case time.Time:
		return At(x)
	case *time.Time:
		if x == nil {
			return Timestamp{}
		}
		return At(*x)
	case string:
		return At(parseString(x))
	case int64:
		return At(fromUnix(float64(x)))
	case float64:
		return At(fromUnix(x))
	default:
		return Timestamp{}
	}
}

func parseString(s string) time.Time {
	for _, layout := range stringLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func fromUnix(n float64) time.Time {
	// Values above ~1e12 can only be milliseconds (year 33658 in seconds).
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}
