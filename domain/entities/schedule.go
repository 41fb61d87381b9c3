package entities

import (
	"fmt"
	"time"
)

// CallTime is a daily reminder time in 24-hour "HH:MM" form.
type CallTime string

// ParseCallTime validates a "HH:MM" string and returns it as a CallTime.
func ParseCallTime(s string) (CallTime, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &hour, &minute); err != nil {
		return "", fmt.Errorf("invalid call time %q: %w", s, err)
	}
	if len(s) != 5 || s[2] != ':' {
		return "", fmt.Errorf("invalid call time %q: want HH:MM", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid call time %q: out of range", s)
	}
	return CallTime(s), nil
}

// HourMinute splits the call time into its components. The receiver is
// assumed to have come from ParseCallTime.
func (c CallTime) HourMinute() (hour, minute int) {
	fmt.Sscanf(string(c), "%02d:%02d", &hour, &minute)
	return hour, minute
}

// NextOccurrence returns the next wall-clock instant this call time
// fires: today at HH:MM if that is still ahead, otherwise tomorrow.
func (c CallTime) NextOccurrence(now time.Time) time.Time {
	hour, minute := c.HourMinute()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Schedule is the set of enabled call times for one user. The backend's
// copy is the single source of truth; registered alarms are a derived,
// eventually-consistent projection of it.
type Schedule struct {
	UserID    string
	CallTimes []CallTime
}

// AlarmAction tags a notification payload so a tap can be routed back
// into the app.
const AlarmActionScheduledCall = "scheduled_call"

// AlarmPayload travels with a scheduled notification and is read back
// when the user interacts with it.
type AlarmPayload struct {
	Action        string `json:"action"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// Alarm is one OS-level scheduled local notification. Daily alarms are
// keyed by their position in the enabled call-time list; the snooze
// alarm uses a fixed id and does not repeat.
type Alarm struct {
	ID          int
	Title       string
	Body        string
	FireAt      time.Time
	RepeatDaily bool
	Payload     AlarmPayload
}
