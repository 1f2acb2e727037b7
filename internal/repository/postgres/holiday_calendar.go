package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"time"

	"github.com/biuroflow/scheduler/internal/models"
)

const dateLayout = "2006-01-02"

// HolidayCalendar is the Postgres-backed calendar.HolidayCalendar. The
// holiday_calendar table is reference data keyed by (calendar_code, date).
type HolidayCalendar struct {
	db *sql.DB
}

func NewHolidayCalendar(db *sql.DB) *HolidayCalendar {
	return &HolidayCalendar{db: db}
}

func (c *HolidayCalendar) IsHoliday(ctx context.Context, date time.Time, calendarCode string) (bool, string, error) {
	query := `SELECT name FROM holiday_calendar WHERE calendar_code = $1 AND date = $2`

	var name string
	err := c.db.QueryRowContext(ctx, query, calendarCode, date.Format(dateLayout)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("query holiday: %w", err)
	}
	return true, name, nil
}

func (c *HolidayCalendar) HasCalendar(ctx context.Context, calendarCode string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM holiday_calendar WHERE calendar_code = $1)`

	var exists bool
	if err := c.db.QueryRowContext(ctx, query, calendarCode).Scan(&exists); err != nil {
		return false, fmt.Errorf("query calendar existence: %w", err)
	}
	return exists, nil
}

// Seed upserts reference holidays, e.g. the shipped Polish calendar.
func (c *HolidayCalendar) Seed(ctx context.Context, holidays []models.Holiday) error {
	query := `
		INSERT INTO holiday_calendar (calendar_code, date, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (calendar_code, date) DO UPDATE SET name = $3
	`

	for _, h := range holidays {
		if _, err := c.db.ExecContext(ctx, query, h.CalendarCode, h.Date.Format(dateLayout), h.Name); err != nil {
			return fmt.Errorf("seed holiday %s/%s: %w", h.CalendarCode, h.Date.Format(dateLayout), err)
		}
	}
	return nil
}
