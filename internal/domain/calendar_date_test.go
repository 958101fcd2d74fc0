package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseCalendarDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    CalendarDate
		wantErr bool
	}{
		{"plain date", "2025-06-01", CalendarDate{2025, time.June, 1}, false},
		{"padded", " 2025-12-31 ", CalendarDate{2025, time.December, 31}, false},
		{"rfc3339 keeps written day", "2025-06-01T23:30:00-05:00", CalendarDate{2025, time.June, 1}, false},
		{"empty", "", CalendarDate{}, true},
		{"garbage", "01/06/2025", CalendarDate{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCalendarDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCalendarDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseCalendarDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCalendarDateOf_UsesLocation(t *testing.T) {
	instant := time.Date(2025, time.June, 1, 23, 30, 0, 0, time.UTC)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("zoneinfo unavailable: %v", err)
	}

	if got := CalendarDateOf(instant, time.UTC); got.String() != "2025-06-01" {
		t.Errorf("Expected 2025-06-01 in UTC, got %s", got)
	}
	if got := CalendarDateOf(instant, tokyo); got.String() != "2025-06-02" {
		t.Errorf("Expected 2025-06-02 in Tokyo, got %s", got)
	}
	if got := CalendarDateOf(instant, nil); got.String() != "2025-06-01" {
		t.Errorf("Expected nil location to mean UTC, got %s", got)
	}
}

func TestCalendarDate_CompareAndDays(t *testing.T) {
	a := NewCalendarDate(2025, time.February, 28)
	b := NewCalendarDate(2025, time.March, 1)

	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Error("Compare ordering is wrong")
	}
	if !a.Equal(NewCalendarDate(2025, time.February, 28)) {
		t.Error("Expected equal dates")
	}
	if d := a.DaysUntil(b); d != 1 {
		t.Errorf("Expected 1 day, got %d", d)
	}
	if d := b.DaysUntil(a); d != -1 {
		t.Errorf("Expected -1 day, got %d", d)
	}
	if d := NewCalendarDate(2024, time.December, 31).DaysUntil(NewCalendarDate(2025, time.January, 10)); d != 10 {
		t.Errorf("Expected 10 days across year boundary, got %d", d)
	}
}

func TestNewCalendarDate_Normalizes(t *testing.T) {
	if got := NewCalendarDate(2025, time.January, 32); got.String() != "2025-02-01" {
		t.Errorf("Expected 2025-02-01, got %s", got)
	}
}

func TestCalendarDate_JSON(t *testing.T) {
	type wrapper struct {
		Date CalendarDate `json:"date"`
	}

	b, err := json.Marshal(wrapper{Date: NewCalendarDate(2025, time.June, 1)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `{"date":"2025-06-01"}` {
		t.Errorf("Unexpected JSON %s", b)
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"date":"2025-07-04"}`), &w); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if w.Date != NewCalendarDate(2025, time.July, 4) {
		t.Errorf("Unexpected date %v", w.Date)
	}

	if err := json.Unmarshal([]byte(`{"date":"nope"}`), &w); err == nil {
		t.Error("Expected error for invalid date")
	}
}
