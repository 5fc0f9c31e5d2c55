package timelog

import (
	"testing"
	"time"

	"github.com/theirongolddev/timetray/internal/model"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		dur  time.Duration
	}{
		{"minutes local", "2024-01-01T09:00;2024-01-01T17:00", true, 8 * time.Hour},
		{"seconds local", "2024-01-01T09:00:00;2024-01-01T09:30:00", true, 30 * time.Minute},
		{"offset", "2024-01-01T09:00:00+01:00;2024-01-01T09:00:00Z", true, time.Hour},
		{"seven fraction digits", "2024-01-01T09:00:00.0000000+01:00;2024-01-01T10:00:00.5000000+01:00", true, time.Hour + 500*time.Millisecond},
		{"crlf", "2024-01-01T09:00;2024-01-01T10:00\r", true, time.Hour},
		{"surrounding space", "  2024-01-01T09:00 ; 2024-01-01T10:00  ", true, time.Hour},
		{"empty", "", false, 0},
		{"one field", "2024-01-01T09:00", false, 0},
		{"three fields", "2024-01-01T09:00;2024-01-01T10:00;x", false, 0},
		{"bad start", "yesterday;2024-01-01T10:00", false, 0},
		{"bad end", "2024-01-01T09:00;", false, 0},
		{"zero length", "2024-01-01T09:00;2024-01-01T09:00", false, 0},
		{"negative", "2024-01-01T10:00;2024-01-01T09:00", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv, ok := ParseRecord(tt.line)
			if ok != tt.ok {
				t.Fatalf("ParseRecord(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if ok && iv.Duration() != tt.dur {
				t.Errorf("ParseRecord(%q) duration = %v, want %v", tt.line, iv.Duration(), tt.dur)
			}
		})
	}
}

func TestFormatRecord_ParsesBack(t *testing.T) {
	start := time.Date(2024, 6, 30, 23, 0, 0, 0, time.Local)
	iv, ok := ParseRecord(FormatRecord(spanAt(start, 2*time.Hour)))
	if !ok {
		t.Fatal("formatted record did not parse")
	}
	if !iv.Start.Equal(start) {
		t.Errorf("Start = %v, want %v", iv.Start, start)
	}
	if iv.Duration() != 2*time.Hour {
		t.Errorf("Duration = %v, want 2h", iv.Duration())
	}
}

// FuzzParseRecord checks that arbitrary lines never panic and that every
// accepted record has a positive duration.
func FuzzParseRecord(f *testing.F) {
	f.Add("2024-01-01T09:00;2024-01-01T17:00")
	f.Add("2024-01-01T09:00:00.1234567+02:00;2024-01-01T10:00:00Z")
	f.Add(";")
	f.Add(";;")
	f.Add("")
	f.Add("2024-13-45T99:99;2024-01-01T10:00")

	f.Fuzz(func(t *testing.T, line string) {
		iv, ok := ParseRecord(line)
		if ok && !iv.End.After(iv.Start) {
			t.Errorf("accepted non-positive interval from %q", line)
		}
	})
}

func spanAt(start time.Time, d time.Duration) model.Interval {
	return model.Interval{Start: start, End: start.Add(d)}
}
