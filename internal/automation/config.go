// internal/automation/config.go
package automation

import (
	"time"

	"automation-engine/internal/common/config"
)

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

type Config struct {
	Interval      time.Duration
	Window        time.Duration
	Workers       int
	NotifyTimeout time.Duration
	TickTimeout   time.Duration
	LockTTL       time.Duration
	TickLease     bool
	BusinessHours BusinessHours
	BusinessName  string
}

func NewConfig(cfg *config.Config) *Config {
	c := &Config{
		Interval:      config.GetDuration(cfg.Scheduler.IntervalMs),
		Window:        config.GetDuration(cfg.Scheduler.WindowMs),
		Workers:       cfg.Scheduler.Workers,
		NotifyTimeout: config.GetDuration(cfg.Scheduler.NotifyTimeoutMs),
		TickTimeout:   config.GetDuration(cfg.Scheduler.TickTimeoutMs),
		LockTTL:       config.GetDuration(cfg.Scheduler.LockTTLMs),
		TickLease:     cfg.Scheduler.TickLeaseEnabled,
		BusinessHours: BusinessHours{
			Location:  cfg.BusinessHours.Location(),
			OpenHour:  cfg.BusinessHours.OpenHour,
			CloseHour: cfg.BusinessHours.CloseHour,
		},
		BusinessName: cfg.BusinessHours.BusinessName,
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.Window < c.Interval {
		c.Window = c.Interval
	}
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 10 * time.Second
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = c.Interval
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * c.NotifyTimeout
	}
	if c.BusinessHours.Location == nil {
		c.BusinessHours.Location = time.UTC
	}
	if c.BusinessHours.OpenHour == 0 && c.BusinessHours.CloseHour == 0 {
		c.BusinessHours.OpenHour = 9
		c.BusinessHours.CloseHour = 17
	}
}
