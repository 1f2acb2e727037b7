// Package cronexpr computes fire instants from 5-field cron expressions in a
// job's own timezone.
//
// Daylight-saving policy: a schedule whose local fire time falls inside a
// "spring forward" gap fires at the first valid local time after the gap
// (the transition instant itself); an ambiguous "fall back" local time
// resolves to the earlier of the two UTC instants. Both are pinned by tests
// in evaluator_test.go.
package cronexpr

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidExpression is returned for malformed cron expressions.
	// Registration validates expressions up front so an accepted job never
	// fails evaluation on its own expression.
	ErrInvalidExpression = errors.New("invalid cron expression")

	// ErrUnknownTimezone is returned for IANA names the host cannot load.
	ErrUnknownTimezone = errors.New("unknown timezone")

	// ErrNoFireTime is returned when the expression never matches a future
	// instant, e.g. "0 0 30 2 *".
	ErrNoFireTime = errors.New("expression yields no future fire time")
)

// Evaluator parses cron expressions and computes next-fire instants. It is
// stateless; NextFireTime is a pure function of its arguments.
type Evaluator struct {
	parser cron.Parser
}

func New() *Evaluator {
	return &Evaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Validate checks an expression and timezone pair without computing anything.
func (e *Evaluator) Validate(expr, timezone string) error {
	if _, err := e.parser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownTimezone, timezone)
	}
	return nil
}

// NextFireTime returns the first instant strictly after `after` at which the
// expression fires in the given timezone.
func (e *Evaluator) NextFireTime(expr, timezone string, after time.Time) (time.Time, error) {
	schedule, err := e.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownTimezone, timezone)
	}

	local := after.In(loc)
	next := schedule.Next(local)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNoFireTime, expr)
	}

	// The cron library skips a whole day when the scheduled wall time does
	// not exist on it (spring-forward gap). Our policy is to fire at the
	// first valid instant after the gap instead, so check whether a
	// skipped wall time between `after` and the computed next fire would
	// have matched the schedule.
	if clamped, ok := gapFire(schedule, loc, local, next); ok {
		return clamped, nil
	}
	return next, nil
}

// gapFire scans (from, until) for a DST gap whose skipped wall times match
// the schedule. When one is found it returns the transition instant, which
// is the first valid local time after the gap.
func gapFire(schedule cron.Schedule, loc *time.Location, from, until time.Time) (time.Time, bool) {
	tr, oldOff, newOff, ok := nextTransition(loc, from, until)
	for ok {
		if newOff > oldOff {
			// Skipped wall-clock interval, reconstructed in a fixed
			// zone where those wall times exist.
			fixed := time.FixedZone("", oldOff)
			gapStart := tr.In(fixed)
			gapEnd := gapStart.Add(time.Duration(newOff-oldOff) * time.Second)
			probe := schedule.Next(gapStart.Add(-time.Second))
			if !probe.IsZero() && probe.Before(gapEnd) {
				return tr.In(loc), true
			}
		}
		tr, oldOff, newOff, ok = nextTransition(loc, tr, until)
	}
	return time.Time{}, false
}

// nextTransition finds the first UTC-offset change in (from, until]. It
// scans hourly and then narrows to the minute; real transitions land on
// whole minutes.
func nextTransition(loc *time.Location, from, until time.Time) (tr time.Time, oldOff, newOff int, ok bool) {
	_, prev := from.In(loc).Zone()
	for t := from.Truncate(time.Hour); !t.After(until); t = t.Add(time.Hour) {
		if t.Before(from) || t.Equal(from) {
			continue
		}
		_, off := t.In(loc).Zone()
		if off == prev {
			continue
		}
		// Narrow down within the preceding hour.
		lo, hi := t.Add(-time.Hour), t
		for hi.Sub(lo) > time.Minute {
			mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Minute)
			if _, midOff := mid.In(loc).Zone(); midOff == prev {
				lo = mid
			} else {
				hi = mid
			}
		}
		return hi, prev, off, true
	}
	return time.Time{}, 0, 0, false
}
