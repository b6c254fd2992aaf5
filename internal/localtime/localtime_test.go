package localtime

import (
	"testing"
	"time"
)

func TestToWallClock(t *testing.T) {
	t.Parallel()
	instant := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		offset int
		want   string
	}{
		{name: "utc", offset: 0, want: "2024-03-10T12:00:00Z"},
		{name: "positive offset", offset: 5, want: "2024-03-10T17:00:00Z"},
		{name: "negative offset", offset: -7, want: "2024-03-10T05:00:00Z"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.offset).FormatWallClock(instant)
			if got != tt.want {
				t.Fatalf("FormatWallClock = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToWallClockNormalizesToUTC(t *testing.T) {
	t.Parallel()
	// The same physical instant expressed in another zone must convert
	// identically.
	loc := time.FixedZone("X", 3*3600)
	instant := time.Date(2024, time.March, 10, 15, 0, 0, 0, loc) // 12:00 UTC

	c := New(2)
	got := c.ToWallClock(instant)
	want := time.Date(2024, time.March, 10, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ToWallClock = %v, want %v", got, want)
	}
}

func TestLocation(t *testing.T) {
	t.Parallel()
	c := New(5)
	if c.Location().String() != "UTC+5" {
		t.Fatalf("Location = %q, want UTC+5", c.Location().String())
	}
	if New(0).Location().String() != "UTC" {
		t.Fatalf("zero offset should be named UTC")
	}
}
