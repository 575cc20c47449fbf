// Package schedule emits ticks on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Tick struct {
	Schedule  string
	Timestamp time.Time
}

// Cron delivers a Tick on each schedule match. A tick is dropped when the
// previous one has not been consumed yet.
type Cron struct {
	schedule string
	timezone string

	cron     *cron.Cron
	ticks    chan Tick
	done     chan struct{}
	stopOnce sync.Once
}

func NewCron(schedule, timezone string) *Cron {
	return &Cron{schedule: schedule, timezone: timezone}
}

func (c *Cron) Validate() error {
	if c.schedule == "" {
		return fmt.Errorf("cron schedule is required")
	}
	if _, err := c.location(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", c.schedule, err)
	}
	return nil
}

// Start begins scheduling. The returned channel is closed by Stop or when ctx
// is done.
func (c *Cron) Start(ctx context.Context) (<-chan Tick, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.cron != nil {
		return nil, fmt.Errorf("cron already started")
	}
	location, err := c.location()
	if err != nil {
		return nil, err
	}

	c.ticks = make(chan Tick, 1)
	c.done = make(chan struct{})
	c.cron = cron.New(cron.WithLocation(location))
	_, err = c.cron.AddFunc(c.schedule, func() {
		select {
		case c.ticks <- Tick{Schedule: c.schedule, Timestamp: time.Now().UTC()}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}

	c.cron.Start()

	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.done:
		}
	}()

	return c.ticks, nil
}

// Stop waits for a running job to finish and closes the tick channel. It is
// safe to call more than once.
func (c *Cron) Stop() {
	c.stopOnce.Do(func() {
		if c.cron != nil {
			<-c.cron.Stop().Done()
		}
		if c.ticks != nil {
			close(c.ticks)
		}
		if c.done != nil {
			close(c.done)
		}
	})
}

// Next reports when the schedule fires next after from.
func (c *Cron) Next(from time.Time) (time.Time, error) {
	if err := c.Validate(); err != nil {
		return time.Time{}, err
	}
	location, err := c.location()
	if err != nil {
		return time.Time{}, err
	}
	spec, err := cron.ParseStandard(c.schedule)
	if err != nil {
		return time.Time{}, err
	}
	return spec.Next(from.In(location)), nil
}

func (c *Cron) location() (*time.Location, error) {
	if c.timezone == "" {
		return time.UTC, nil
	}
	tz, err := time.LoadLocation(c.timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	return tz, nil
}
