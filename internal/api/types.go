package api

// StatusResponse reports the daemon's current session and alarm state.
type StatusResponse struct {
	SessionState string      `json:"session_state"`
	SessionID    string      `json:"session_id,omitempty"`
	Messages     int         `json:"messages"`
	Alarms       []AlarmView `json:"alarms"`
}

// AlarmView is the external shape of a registered alarm.
type AlarmView struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	FireAt        string `json:"fire_at"`
	RepeatDaily   bool   `json:"repeat_daily"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
}

// ReconcileRequest carries an explicit enabled call-time list from the
// settings collaborator.
type ReconcileRequest struct {
	CallTimes []string `json:"call_times"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
