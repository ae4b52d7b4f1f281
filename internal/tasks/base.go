package tasks

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Schedule is a recurring run time expressed as an RFC 5545 RRULE, e.g.
// "FREQ=MINUTELY;INTERVAL=15".
type Schedule struct {
	rule *rrule.RRule
}

// ParseSchedule anchors rule at start.
func ParseSchedule(rule string, start time.Time) (*Schedule, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", rule, err)
	}
	r.DTStart(start)
	return &Schedule{rule: r}, nil
}

// Next returns the first occurrence strictly after t, or the zero time once
// the rule is exhausted.
func (s *Schedule) Next(t time.Time) time.Time {
	return s.rule.After(t, false)
}
