package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tripot/companion/domain/entities"
	"github.com/tripot/companion/internal/alarm"
)

// SessionHandle is what the routes need from the active voice session.
type SessionHandle interface {
	SessionID() string
	State() entities.SessionState
	Messages() []entities.ConversationMessage
	StartCapture()
	StopCapture()
	End()
}

// Deps wires the local control surface to the running components.
type Deps struct {
	Scheduler *alarm.Scheduler
	Session   SessionHandle
	Alarms    func() []entities.Alarm
	// OpenSession asks the navigation layer to bring up the voice
	// session, the same path a notification tap takes.
	OpenSession func() error
	Logger      *zap.Logger
}

// InitRoutes initializes the daemon's local HTTP surface. It stands in
// for the screen collaborators: the settings screen posts schedule
// changes here and the shell drives the session.
func InitRoutes(e *echo.Echo, deps Deps) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "companion-daemon",
		})
	})

	e.GET("/status", func(c echo.Context) error {
		return status(c, deps)
	})

	v1 := e.Group("/api/v1")

	v1.POST("/schedule/reconcile", func(c echo.Context) error {
		return reconcile(c, deps)
	})
	v1.DELETE("/schedule/alarms", func(c echo.Context) error {
		return cancelAlarms(c, deps)
	})

	// The platform notification subsystem reports taps and actions here,
	// the same way the screens drive the session endpoints below.
	v1.POST("/notifications/interaction", func(c echo.Context) error {
		return notificationInteraction(c, deps)
	})

	v1.POST("/session/open", func(c echo.Context) error {
		return openSession(c, deps)
	})
	v1.POST("/session/capture/start", func(c echo.Context) error {
		deps.Session.StartCapture()
		return c.NoContent(http.StatusAccepted)
	})
	v1.POST("/session/capture/stop", func(c echo.Context) error {
		deps.Session.StopCapture()
		return c.NoContent(http.StatusAccepted)
	})
	v1.POST("/session/end", func(c echo.Context) error {
		deps.Session.End()
		return c.NoContent(http.StatusAccepted)
	})
}

func status(c echo.Context, deps Deps) error {
	resp := StatusResponse{
		SessionState: string(deps.Session.State()),
		SessionID:    deps.Session.SessionID(),
		Messages:     len(deps.Session.Messages()),
		Alarms:       []AlarmView{},
	}
	for _, a := range deps.Alarms() {
		resp.Alarms = append(resp.Alarms, AlarmView{
			ID:            a.ID,
			Title:         a.Title,
			FireAt:        a.FireAt.Format(time.RFC3339),
			RepeatDaily:   a.RepeatDaily,
			ScheduledTime: a.Payload.ScheduledTime,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func reconcile(c echo.Context, deps Deps) error {
	var req ReconcileRequest
	if err := c.Bind(&req); err != nil {
		deps.Logger.Error("Failed to bind reconcile request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	times := make([]entities.CallTime, 0, len(req.CallTimes))
	for _, raw := range req.CallTimes {
		t, err := entities.ParseCallTime(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_call_time",
				Message: err.Error(),
			})
		}
		times = append(times, t)
	}

	if err := deps.Scheduler.Reconcile(times); err != nil {
		deps.Logger.Error("Reconciliation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "reconcile_failed",
			Message: "Could not update alarms",
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func cancelAlarms(c echo.Context, deps Deps) error {
	if err := deps.Scheduler.CancelAll(); err != nil {
		deps.Logger.Error("Cancel all alarms failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "cancel_failed",
			Message: "Could not cancel alarms",
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func notificationInteraction(c echo.Context, deps Deps) error {
	var payload entities.AlarmPayload
	if err := c.Bind(&payload); err != nil {
		deps.Logger.Error("Failed to bind notification interaction", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	// Blocks until the user answers the dialog the interaction raises.
	deps.Scheduler.HandleInteraction(payload)
	return c.NoContent(http.StatusAccepted)
}

func openSession(c echo.Context, deps Deps) error {
	if err := deps.OpenSession(); err != nil {
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "session_unavailable",
			Message: err.Error(),
		})
	}
	return c.NoContent(http.StatusAccepted)
}
