package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp marshals as RFC3339 with second precision, per the wire
// format's "ISO-8601 with second precision" requirement. Sub-second
// precision is truncated, never rounded, so repeated round-trips are
// idempotent.
type Timestamp time.Time

// Now returns the current time truncated to second precision.
func Now() Timestamp {
	return Timestamp(time.Now().UTC().Truncate(time.Second))
}

// NewTimestamp truncates t to second precision.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Truncate(time.Second))
}

// Time returns the underlying time.Time.
func (ts Timestamp) Time() time.Time { return time.Time(ts) }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	s := time.Time(ts).UTC().Truncate(time.Second).Format(time.RFC3339)
	return []byte(`"` + s + `"`), nil
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("envelope: timestamp: %w", err)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Accept fractional-second input for interop, but still store
		// (and re-emit) at second precision.
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("envelope: timestamp: %w", err)
		}
	}
	*ts = NewTimestamp(t)
	return nil
}
