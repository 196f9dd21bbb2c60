package cache

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the expired-entry sweep every ten minutes.
const DefaultSweepSchedule = "@every 10m"

var sweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// StartSweeper schedules PurgeExpired on a cron expression or descriptor and
// starts the scheduler. Callers stop it with Stop().
func StartSweeper(c *Cache, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	sched := cron.New(cron.WithParser(sweepParser))
	_, err := sched.AddFunc(schedule, func() {
		if _, err := c.PurgeExpired(); err != nil {
			c.log.Warn().Err(err).Msg("cache sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("cache: sweep schedule %q: %w", schedule, err)
	}
	sched.Start()
	return sched, nil
}
