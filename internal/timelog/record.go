package timelog

import (
	"strings"
	"time"

	"github.com/theirongolddev/timetray/internal/model"
)

// Separator splits the start and end fields of a record.
const Separator = ";"

// Layouts accepted for timestamps without a zone offset. They are parsed in
// the local zone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// FormatRecord renders an interval as a single log line without the trailing
// newline. Timestamps are written in local time with their offset so they
// parse back to the same instant.
func FormatRecord(iv model.Interval) string {
	return iv.Start.Local().Format(time.RFC3339Nano) + Separator + iv.End.Local().Format(time.RFC3339Nano)
}

// ParseRecord parses one log line. It reports false for blank lines, lines
// that do not have exactly two fields, unparsable timestamps, and intervals
// whose end is not after their start.
func ParseRecord(line string) (model.Interval, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return model.Interval{}, false
	}

	parts := strings.Split(line, Separator)
	if len(parts) != 2 {
		return model.Interval{}, false
	}

	start, ok := parseTimestamp(parts[0])
	if !ok {
		return model.Interval{}, false
	}
	end, ok := parseTimestamp(parts[1])
	if !ok {
		return model.Interval{}, false
	}

	iv := model.Interval{Start: start, End: end}
	if !iv.Valid() {
		return model.Interval{}, false
	}
	return iv, true
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	// RFC3339 parsing also accepts fractional seconds.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Local(), true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
