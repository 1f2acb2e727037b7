// Package calendar provides non-working-date lookups for skip policies.
package calendar

import (
	"context"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// HolidayCalendar answers point lookups against read-only reference data.
// The date is interpreted as a local calendar date; callers convert instants
// into the job's timezone before asking.
type HolidayCalendar interface {
	// IsHoliday reports whether date is a holiday in the given calendar,
	// and the holiday name when it is.
	IsHoliday(ctx context.Context, date time.Time, calendarCode string) (bool, string, error)

	// HasCalendar reports whether the calendar code is known at all.
	// Registration rejects jobs referencing unknown calendars.
	HasCalendar(ctx context.Context, calendarCode string) (bool, error)
}

// MemoryCalendar is an in-memory HolidayCalendar, used in tests and for
// deployments that seed reference data at startup.
type MemoryCalendar struct {
	mu       sync.RWMutex
	holidays map[string]map[string]string // calendarCode -> yyyy-mm-dd -> name
}

func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{holidays: make(map[string]map[string]string)}
}

func (c *MemoryCalendar) Add(calendarCode string, date time.Time, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	days, ok := c.holidays[calendarCode]
	if !ok {
		days = make(map[string]string)
		c.holidays[calendarCode] = days
	}
	days[date.Format(dateLayout)] = name
}

func (c *MemoryCalendar) IsHoliday(_ context.Context, date time.Time, calendarCode string) (bool, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.holidays[calendarCode][date.Format(dateLayout)]
	return ok, name, nil
}

func (c *MemoryCalendar) HasCalendar(_ context.Context, calendarCode string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.holidays[calendarCode]
	return ok, nil
}
