package model

import "time"

// WeekKey identifies an ISO-8601 week. ISOYear may differ from the calendar
// year for dates near January 1st.
type WeekKey struct {
	ISOYear int
	ISOWeek int
}

// SortKey encodes the key as year*100+week. Weeks never exceed 53, so the
// encoding is a total order over keys.
func (k WeekKey) SortKey() int64 {
	return int64(k.ISOYear)*100 + int64(k.ISOWeek)
}

// WeekTotal holds the accumulated duration for one ISO week.
type WeekTotal struct {
	Key      WeekKey
	Duration time.Duration
}

// WeekRow is the report-facing projection of a WeekTotal.
type WeekRow struct {
	Year         int           `json:"year"`
	Week         int           `json:"week"`
	DurationText string        `json:"duration"` // HH:MM, hours may exceed 24
	Duration     time.Duration `json:"duration_ns"`
	SortKey      int64         `json:"sort_key"`
}
