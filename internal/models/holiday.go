package models

import "time"

// Holiday is one non-working date in a named calendar. Reference data; the
// scheduler only ever reads it.
type Holiday struct {
	Date         time.Time `json:"date"`
	CalendarCode string    `json:"calendar_code"`
	Name         string    `json:"name"`
}
