package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tripot/companion/adapters/notify"
	"github.com/tripot/companion/domain/entities"
	"github.com/tripot/companion/internal/alarm"
)

type stubRepo struct{}

func (stubRepo) Fetch(ctx context.Context, userID string) (entities.Schedule, error) {
	return entities.Schedule{UserID: userID}, nil
}

type stubPrompter struct {
	answer  entities.PromptAction
	notices int
	prompts int
}

func (s *stubPrompter) Notice(title, message string) { s.notices++ }
func (s *stubPrompter) PromptScheduledCall(p entities.ScheduledCallPrompt) entities.PromptAction {
	s.prompts++
	return s.answer
}

type stubSession struct {
	state    entities.SessionState
	captures int
	ends     int
}

func (s *stubSession) SessionID() string                        { return "sess-1" }
func (s *stubSession) State() entities.SessionState             { return s.state }
func (s *stubSession) Messages() []entities.ConversationMessage { return nil }
func (s *stubSession) StartCapture()                            { s.captures++ }
func (s *stubSession) StopCapture()                             {}
func (s *stubSession) End()                                     { s.ends++ }

func newTestDeps(t *testing.T) (*echo.Echo, Deps, *notify.MemoryNotifier, *stubSession, *stubPrompter) {
	t.Helper()
	logger := zap.NewNop()
	notifier := notify.NewMemoryNotifier(logger)
	prompter := &stubPrompter{answer: entities.PromptSkip}
	scheduler := alarm.New(
		alarm.Config{UserID: "user-1"},
		stubRepo{}, notifier, prompter, nil, logger,
	)
	session := &stubSession{state: entities.StateIdle}
	deps := Deps{
		Scheduler:   scheduler,
		Session:     session,
		Alarms:      notifier.Registered,
		OpenSession: func() error { return nil },
		Logger:      logger,
	}
	e := echo.New()
	InitRoutes(e, deps)
	return e, deps, notifier, session, prompter
}

func TestReconcileRegistersAlarms(t *testing.T) {
	e, _, notifier, _, _ := newTestDeps(t)

	body := strings.NewReader(`{"call_times": ["07:00", "19:00"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule/reconcile", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	if got := len(notifier.Registered()); got != 2 {
		t.Errorf("registered alarms = %d, want 2", got)
	}
}

func TestReconcileRejectsBadCallTime(t *testing.T) {
	e, _, notifier, _, _ := newTestDeps(t)

	body := strings.NewReader(`{"call_times": ["7pm"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule/reconcile", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body not JSON: %v", err)
	}
	if resp.Error != "invalid_call_time" {
		t.Errorf("error = %q, want invalid_call_time", resp.Error)
	}
	if got := len(notifier.Registered()); got != 0 {
		t.Errorf("no alarms may be registered on a rejected request, got %d", got)
	}
}

func TestCancelAlarms(t *testing.T) {
	e, deps, notifier, _, _ := newTestDeps(t)
	if err := deps.Scheduler.Reconcile([]entities.CallTime{"07:00"}); err != nil {
		t.Fatalf("seed reconcile failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/schedule/alarms", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := len(notifier.Registered()); got != 0 {
		t.Errorf("registered alarms = %d, want 0", got)
	}
}

func TestStatusReportsSessionAndAlarms(t *testing.T) {
	e, deps, _, session, _ := newTestDeps(t)
	session.state = entities.StateListening
	if err := deps.Scheduler.Reconcile([]entities.CallTime{"07:00"}); err != nil {
		t.Fatalf("seed reconcile failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("status body not JSON: %v", err)
	}
	if resp.SessionState != string(entities.StateListening) {
		t.Errorf("session state = %q, want listening", resp.SessionState)
	}
	if resp.SessionID != "sess-1" {
		t.Errorf("session id = %q", resp.SessionID)
	}
	if len(resp.Alarms) != 1 || !resp.Alarms[0].RepeatDaily {
		t.Errorf("alarms = %+v, want one repeating alarm", resp.Alarms)
	}
}

func TestSessionEndpointsDriveTheHandle(t *testing.T) {
	e, _, _, session, _ := newTestDeps(t)

	for _, path := range []string{"/api/v1/session/capture/start", "/api/v1/session/end"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Errorf("%s status = %d, want 202", path, rec.Code)
		}
	}
	if session.captures != 1 {
		t.Errorf("capture starts = %d, want 1", session.captures)
	}
	if session.ends != 1 {
		t.Errorf("ends = %d, want 1", session.ends)
	}
}

func TestOpenSessionConflict(t *testing.T) {
	_, deps, _, _, _ := newTestDeps(t)
	deps.OpenSession = func() error { return errSessionBusy }

	e := echo.New()
	InitRoutes(e, deps)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/open", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

var errSessionBusy = errors.New("session already started")

func TestNotificationInteractionSnoozes(t *testing.T) {
	e, deps, notifier, _, prompter := newTestDeps(t)
	prompter.answer = entities.PromptSnooze
	if err := deps.Scheduler.Reconcile([]entities.CallTime{"07:00"}); err != nil {
		t.Fatalf("seed reconcile failed: %v", err)
	}

	body := strings.NewReader(`{"action": "scheduled_call", "scheduled_time": "07:00", "user_id": "user-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/interaction", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if prompter.prompts != 1 {
		t.Errorf("prompts shown = %d, want 1", prompter.prompts)
	}

	alarms := notifier.Registered()
	if len(alarms) != 2 {
		t.Fatalf("registered alarms = %d, want daily plus snooze", len(alarms))
	}
	snooze := alarms[1]
	if snooze.ID != 3001 || snooze.RepeatDaily {
		t.Errorf("snooze alarm = %+v, want one-shot id 3001", snooze)
	}
}

func TestNotificationInteractionBeforeNavigation(t *testing.T) {
	e, _, _, _, prompter := newTestDeps(t)
	prompter.answer = entities.PromptStartNow

	body := strings.NewReader(`{"action": "scheduled_call", "scheduled_time": "07:00", "user_id": "user-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/interaction", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	// No navigation callback was registered; the interaction surfaces a
	// notice instead of failing silently or crashing.
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if prompter.notices != 1 {
		t.Errorf("notices shown = %d, want 1", prompter.notices)
	}
}
