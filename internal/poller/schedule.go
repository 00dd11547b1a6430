package poller

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is the pause between two polls.
const DefaultInterval = 600 * time.Second

// ParseSchedule turns a schedule string into a cron.Schedule.
//
// Supported forms:
//   - Go duration: "10m", "90s" (fixed delay after each poll)
//   - Cron descriptors: "@every 10m", "@hourly"
//   - Five-field cron: "*/10 * * * *"
//
// An explicit "cron:" prefix forces cron parsing. An empty string yields
// DefaultInterval.
func ParseSchedule(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return cron.Every(DefaultInterval), nil
	}

	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q (use a duration like '10m' or cron like '*/10 * * * *')", raw)
	}
	if d < time.Second {
		return nil, fmt.Errorf("schedule interval must be >= 1s, got %s", d)
	}
	return cron.Every(d), nil
}

func parseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron schedule required")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return sched, nil
}
