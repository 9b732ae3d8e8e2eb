package notification

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextOccurrence returns the first time after from matching expr,
// evaluated in tz (local time when empty).
func NextOccurrence(expr, tz string, from time.Time) (time.Time, error) {
	if expr == "" {
		return time.Time{}, fmt.Errorf("%w: empty cron expression", ErrInvalidSchedule)
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, tz, err)
		}
		from = from.In(loc)
	}

	next := sched.Next(from)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q never fires", ErrInvalidSchedule, expr)
	}
	return next, nil
}
