// internal/localtime/localtime.go
package localtime

import (
	"fmt"
	"time"
)

// Converter re-expresses UTC instants in the wall clock of a fixed-offset
// zone. A fixed offset has no daylight-saving transitions, which keeps
// schedule evaluation and historical-window computation deterministic.
type Converter struct {
	offsetHours int
	loc         *time.Location
}

// New returns a converter for the zone at the given whole-hour UTC offset.
func New(offsetHours int) *Converter {
	name := "UTC"
	if offsetHours != 0 {
		name = fmt.Sprintf("UTC%+d", offsetHours)
	}
	return &Converter{
		offsetHours: offsetHours,
		loc:         time.FixedZone(name, offsetHours*3600),
	}
}

// Location returns the fixed zone, suitable for cron trigger evaluation.
func (c *Converter) Location() *time.Location {
	return c.loc
}

// ToWallClock converts a UTC instant to the zone's wall-clock reading,
// returned as if it were itself a UTC instant. Downstream consumers compare
// the result against zone-naive columns expressed in local time, so the
// shifted representation is deliberate.
func (c *Converter) ToWallClock(t time.Time) time.Time {
	return t.UTC().Add(time.Duration(c.offsetHours) * time.Hour)
}

// FormatWallClock renders the wall-clock conversion of t as an ISO-8601
// string, the form stored into computed task parameters.
func (c *Converter) FormatWallClock(t time.Time) string {
	return c.ToWallClock(t).Format(time.RFC3339)
}
