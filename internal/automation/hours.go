// internal/automation/hours.go
package automation

import "time"

// IsWithinBusinessHours reports openHour <= local hour < closeHour.
// A nil location means UTC.
func IsWithinBusinessHours(now time.Time, loc *time.Location, openHour, closeHour int) bool {
	if loc == nil {
		loc = time.UTC
	}
	hour := now.In(loc).Hour()
	return openHour <= hour && hour < closeHour
}

type BusinessHours struct {
	Location  *time.Location
	OpenHour  int
	CloseHour int
}

func (b BusinessHours) IsOpen(now time.Time) bool {
	return IsWithinBusinessHours(now, b.Location, b.OpenHour, b.CloseHour)
}
