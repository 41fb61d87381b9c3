package alarm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tripot/companion/domain/entities"
	"github.com/tripot/companion/domain/repositories"
)

const (
	// ChannelID is the notification channel reminders are delivered on.
	ChannelID = "scheduled-call-high-v1"

	// dailyAlarmBaseID is added to a call time's position in the
	// enabled list to derive its alarm id.
	dailyAlarmBaseID = 1000

	// snoozeAlarmID is the fixed id of the single one-shot snooze alarm.
	snoozeAlarmID = 3001

	// SnoozeDelay is how far a snoozed reminder is pushed out.
	SnoozeDelay = 10 * time.Minute

	// DefaultInitialPollDelay precedes the first schedule poll after
	// startup.
	DefaultInitialPollDelay = 5 * time.Second

	// DefaultPollInterval separates subsequent polls. No backoff: poll
	// failures are expected while offline and simply skipped.
	DefaultPollInterval = 2 * time.Minute

	// SpeakScreen is the navigation target that opens a voice session.
	SpeakScreen = "Speak"
)

// ErrNavigationUnavailable means a notification interaction arrived
// before the navigation layer registered its callback.
var ErrNavigationUnavailable = errors.New("navigation callback not registered")

const (
	dailyAlarmTitle = "Time for a conversation!"
	dailyAlarmBody  = "Your companion is ready to talk. Tap to open the app."
	snoozeTitle     = "Snoozed conversation"
	snoozeBody      = "Shall we start talking now?"
)

// Config carries the scheduler's identity and timing knobs.
type Config struct {
	UserID           string
	InitialPollDelay time.Duration
	PollInterval     time.Duration
}

func (c *Config) applyDefaults() {
	if c.InitialPollDelay <= 0 {
		c.InitialPollDelay = DefaultInitialPollDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Scheduler keeps device-local alarms consistent with the backend's
// authoritative schedule and routes notification interactions back into
// the app. One instance lives for the whole process; it is never torn
// down in normal operation. It caches nothing: every reconciliation
// derives fresh from the latest poll or explicit call.
type Scheduler struct {
	cfg      Config
	repo     repositories.ScheduleRepository
	notifier repositories.Notifier
	prompter repositories.Prompter
	clock    clock.Clock
	logger   *zap.Logger

	mu       sync.Mutex
	navigate func(screen string)
	stop     chan struct{}
	stopOnce sync.Once
}

// New builds the scheduler and registers the notification channel,
// which is idempotent and safe on every launch. Call Start to begin the
// poll loop.
func New(
	cfg Config,
	repo repositories.ScheduleRepository,
	notifier repositories.Notifier,
	prompter repositories.Prompter,
	clk clock.Clock,
	logger *zap.Logger,
) *Scheduler {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.New()
	}
	s := &Scheduler{
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		prompter: prompter,
		clock:    clk,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	if err := notifier.EnsureChannel(); err != nil {
		logger.Error("failed to register notification channel", zap.Error(err))
	}
	return s
}

// Start launches the background poll loop: first poll after the initial
// delay, then every poll interval, indefinitely.
func (s *Scheduler) Start() {
	go s.pollLoop()
	s.logger.Info("alarm sync started",
		zap.String("userID", s.cfg.UserID),
		zap.Duration("interval", s.cfg.PollInterval))
}

// Stop ends the poll loop. Only process shutdown and tests use it.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// SetNavigate registers the navigation callback the screen layer
// exposes. Interactions arriving before this is called surface a
// user-visible error instead of silently failing.
func (s *Scheduler) SetNavigate(fn func(screen string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigate = fn
}

func (s *Scheduler) pollLoop() {
	initial := s.clock.Timer(s.cfg.InitialPollDelay)
	defer initial.Stop()
	ticker := s.clock.Ticker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-initial.C:
			s.pollOnce()
		case <-ticker.C:
			s.pollOnce()
		}
	}
}

// pollOnce fetches the schedule and, when it holds at least one enabled
// call time, reconciles local alarms against it. Failed or empty polls
// change nothing; stale alarms are preferred over none while offline.
func (s *Scheduler) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schedule, err := s.repo.Fetch(ctx, s.cfg.UserID)
	if err != nil {
		s.logger.Debug("schedule poll failed, keeping current alarms",
			zap.String("userID", s.cfg.UserID),
			zap.Error(err))
		return
	}
	if len(schedule.CallTimes) == 0 {
		s.logger.Debug("schedule poll returned no enabled call times",
			zap.String("userID", s.cfg.UserID))
		return
	}
	s.reconcile(schedule.CallTimes)
}

// Reconcile recomputes the alarm set from an explicit call-time list,
// used right after the user edits their schedule so the change does not
// wait for the next poll. Unlike the poll path, an explicit empty list
// cancels every alarm.
func (s *Scheduler) Reconcile(times []entities.CallTime) error {
	if len(times) == 0 {
		return s.CancelAll()
	}
	return s.reconcile(times)
}

// CancelAll removes every registered alarm, used when the user clears
// their schedule entirely.
func (s *Scheduler) CancelAll() error {
	if err := s.notifier.CancelAll(); err != nil {
		return err
	}
	s.logger.Info("cancelled all alarms", zap.String("userID", s.cfg.UserID))
	return nil
}

// reconcile makes the registered alarms equal the given enabled call
// times: cancel everything, then register one daily alarm per time with
// ids derived from list position. Full replace, never an incremental
// diff; that is what keeps racing reconciliations safe, since the last
// completed one wins wholesale.
func (s *Scheduler) reconcile(times []entities.CallTime) error {
	if err := s.notifier.CancelAll(); err != nil {
		return err
	}

	now := s.clock.Now()
	for i, t := range times {
		alarm := entities.Alarm{
			ID:          dailyAlarmBaseID + i,
			Title:       dailyAlarmTitle,
			Body:        dailyAlarmBody,
			FireAt:      t.NextOccurrence(now),
			RepeatDaily: true,
			Payload: entities.AlarmPayload{
				Action:        entities.AlarmActionScheduledCall,
				ScheduledTime: string(t),
				UserID:        s.cfg.UserID,
			},
		}
		if err := s.notifier.Schedule(alarm); err != nil {
			return err
		}
		s.logger.Info("registered daily alarm",
			zap.Int("id", alarm.ID),
			zap.String("callTime", string(t)),
			zap.Time("firstFire", alarm.FireAt))
	}
	return nil
}

// HandleInteraction routes a notification tap or action back into the
// app. Unknown action tags are ignored.
func (s *Scheduler) HandleInteraction(payload entities.AlarmPayload) {
	if payload.Action != entities.AlarmActionScheduledCall {
		s.logger.Warn("ignoring notification with unknown action",
			zap.String("action", payload.Action))
		return
	}

	action := s.prompter.PromptScheduledCall(entities.ScheduledCallPrompt{
		ScheduledTime: payload.ScheduledTime,
	})

	switch action {
	case entities.PromptStartNow:
		if err := s.NavigateToSpeak(); err != nil {
			s.logger.Error("cannot open voice session", zap.Error(err))
		}
	case entities.PromptSnooze:
		if err := s.Snooze(); err != nil {
			s.logger.Error("failed to snooze reminder", zap.Error(err))
		}
	case entities.PromptSkip:
		s.logger.Info("scheduled call skipped for today")
	}
}

// NavigateToSpeak asks the navigation layer to open the voice screen.
func (s *Scheduler) NavigateToSpeak() error {
	s.mu.Lock()
	navigate := s.navigate
	s.mu.Unlock()

	if navigate == nil {
		s.prompter.Notice("Cannot open the conversation",
			"The app is still starting. Please open it again in a moment.")
		return ErrNavigationUnavailable
	}
	navigate(SpeakScreen)
	return nil
}

// Snooze registers the single one-shot snooze alarm. The recurring
// daily alarms are left untouched.
func (s *Scheduler) Snooze() error {
	fireAt := s.clock.Now().Add(SnoozeDelay)
	err := s.notifier.Schedule(entities.Alarm{
		ID:          snoozeAlarmID,
		Title:       snoozeTitle,
		Body:        snoozeBody,
		FireAt:      fireAt,
		RepeatDaily: false,
		Payload: entities.AlarmPayload{
			Action: entities.AlarmActionScheduledCall,
			UserID: s.cfg.UserID,
		},
	})
	if err != nil {
		return err
	}
	s.logger.Info("snoozed reminder", zap.Time("fireAt", fireAt))
	s.prompter.Notice("Reminder snoozed", "We will remind you again in 10 minutes.")
	return nil
}
