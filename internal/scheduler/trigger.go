package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Trigger decides when a job fires: either a cron expression (seconds field
// included) or a fixed interval. The zero Trigger never fires on its own.
type Trigger struct {
	Cron  string
	Every time.Duration
}

// Cron builds a calendar trigger, e.g. "0 0 11 * * MON"
func Cron(expr string) Trigger {
	return Trigger{Cron: expr}
}

// Every builds an interval trigger
func Every(d time.Duration) Trigger {
	return Trigger{Every: d}
}

// ParseTrigger accepts "@every <duration>" or a cron expression. An empty
// string yields the manual-only zero Trigger.
func ParseTrigger(s string) (Trigger, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Trigger{}, nil
	}
	if rest, ok := strings.CutPrefix(s, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return Trigger{}, fmt.Errorf("invalid interval %q: %w", s, err)
		}
		if d <= 0 {
			return Trigger{}, fmt.Errorf("interval must be positive: %q", s)
		}
		return Every(d), nil
	}
	return Cron(s), nil
}

// Manual reports whether the trigger only fires on request
func (t Trigger) Manual() bool {
	return t.Cron == "" && t.Every <= 0
}

func (t Trigger) spec() string {
	if t.Every > 0 {
		return "@every " + t.Every.String()
	}
	return t.Cron
}

func (t Trigger) String() string {
	if t.Manual() {
		return "manual"
	}
	return t.spec()
}
