package calendar

import "time"

// CalendarCodePL is the calendar code the product ships reference data for.
const CalendarCodePL = "PL"

// PolishHoliday is one statutory non-working day.
type PolishHoliday struct {
	Date time.Time
	Name string
}

// PolishHolidays returns the statutory non-working days of Poland for a
// year: the fixed dates plus the Easter-derived ones (Easter Monday and
// Corpus Christi).
func PolishHolidays(year int) []PolishHoliday {
	d := func(month time.Month, day int) time.Time {
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}

	easter := easterSunday(year)
	holidays := []PolishHoliday{
		{d(time.January, 1), "Nowy Rok"},
		{d(time.January, 6), "Trzech Króli"},
		{easter, "Wielkanoc"},
		{easter.AddDate(0, 0, 1), "Poniedziałek Wielkanocny"},
		{d(time.May, 1), "Święto Pracy"},
		{d(time.May, 3), "Święto Konstytucji 3 Maja"},
		{easter.AddDate(0, 0, 60), "Boże Ciało"},
		{d(time.August, 15), "Wniebowzięcie NMP"},
		{d(time.November, 1), "Wszystkich Świętych"},
		{d(time.November, 11), "Święto Niepodległości"},
		{d(time.December, 25), "Boże Narodzenie"},
		{d(time.December, 26), "Drugi dzień Świąt"},
	}
	return holidays
}

// SeedPolish loads the Polish calendar for the given years into a
// MemoryCalendar.
func SeedPolish(c *MemoryCalendar, years ...int) {
	for _, year := range years {
		for _, h := range PolishHolidays(year) {
			c.Add(CalendarCodePL, h.Date, h.Name)
		}
	}
}

// easterSunday computes Gregorian Easter with the anonymous Gauss algorithm.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
