package repositories

import "github.com/tripot/companion/domain/entities"

// Notifier abstracts the platform's local-notification store. Only the
// alarm scheduler mutates it, which keeps the store race-free by
// convention.
type Notifier interface {
	// EnsureChannel registers the notification channel with high
	// importance, sound and vibration. Idempotent; safe on every launch.
	EnsureChannel() error
	// Schedule registers one alarm, replacing any alarm with the same id.
	Schedule(alarm entities.Alarm) error
	// CancelAll removes every registered alarm.
	CancelAll() error
	// Registered returns the currently registered alarms ordered by id.
	Registered() []entities.Alarm
}
