package notify

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tripot/companion/domain/entities"
	"github.com/tripot/companion/domain/repositories"
)

// MemoryNotifier is an in-process notification store. The deployable
// device build binds the platform notification subsystem; this
// implementation backs the daemon's local surface and the tests.
type MemoryNotifier struct {
	logger *zap.Logger

	mu           sync.Mutex
	channelReady bool
	alarms       map[int]entities.Alarm
}

var _ repositories.Notifier = (*MemoryNotifier)(nil)

// NewMemoryNotifier creates an empty notification store.
func NewMemoryNotifier(logger *zap.Logger) *MemoryNotifier {
	return &MemoryNotifier{
		logger: logger,
		alarms: make(map[int]entities.Alarm),
	}
}

// EnsureChannel marks the channel registered. Idempotent.
func (n *MemoryNotifier) EnsureChannel() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.channelReady {
		n.channelReady = true
		n.logger.Info("notification channel registered")
	}
	return nil
}

// Schedule registers an alarm, replacing any with the same id.
func (n *MemoryNotifier) Schedule(alarm entities.Alarm) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alarms[alarm.ID] = alarm
	return nil
}

// CancelAll removes every registered alarm.
func (n *MemoryNotifier) CancelAll() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alarms = make(map[int]entities.Alarm)
	return nil
}

// Registered returns the registered alarms ordered by id.
func (n *MemoryNotifier) Registered() []entities.Alarm {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]entities.Alarm, 0, len(n.alarms))
	for _, alarm := range n.alarms {
		out = append(out, alarm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
