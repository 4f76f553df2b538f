// Package availability validates slot ranges before they are imported.
package availability

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Decode reads a JSON array of {"start","end"} RFC 3339 ranges.
func Decode(r io.Reader) ([]Interval, error) {
	var in []Interval
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	for i := range in {
		in[i].Start = in[i].Start.UTC()
		in[i].End = in[i].End.UTC()
	}
	return in, nil
}

// Validate returns the intervals ordered by start. It rejects empty ranges
// and ranges that overlap one another, since one provider cannot attend two
// appointments at once.
func Validate(in []Interval) ([]Interval, error) {
	out := append([]Interval(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	for i, iv := range out {
		if !iv.Start.Before(iv.End) {
			return nil, fmt.Errorf("slot %s: end must be after start", iv.Start.Format(time.RFC3339))
		}
		if i > 0 && overlaps(out[i-1], iv) {
			return nil, fmt.Errorf("slot %s overlaps slot %s", iv.Start.Format(time.RFC3339), out[i-1].Start.Format(time.RFC3339))
		}
	}
	return out, nil
}

// Half-open intervals: [a.Start,a.End) overlaps [b.Start,b.End) iff a.Start < b.End && b.Start < a.End.
func overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}
