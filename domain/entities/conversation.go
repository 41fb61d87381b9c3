package entities

// Role represents the sender of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationMessage is a single message in a voice session's transcript.
// Messages are append-only and live only as long as the session that
// produced them.
type ConversationMessage struct {
	ID        int64  `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// SessionState is the phase a voice session is in. A session is in
// exactly one state at a time and the state decides which operations
// are legal.
type SessionState string

const (
	// StateIdle means no turn is in progress. A freshly constructed
	// session is Idle, and a connected session returns to Idle between
	// turns.
	StateIdle SessionState = "idle"

	// StateConnecting means the socket is being opened or reopened.
	StateConnecting SessionState = "connecting"

	// StateListening means audio capture is running.
	StateListening SessionState = "listening"

	// StateProcessing means captured audio was sent and the session is
	// waiting for the server's reply.
	StateProcessing SessionState = "processing"

	// StateSpeaking means text-to-speech playback is running.
	StateSpeaking SessionState = "speaking"

	// StateDisconnected is terminal: the user ended the session or
	// reconnection was exhausted.
	StateDisconnected SessionState = "disconnected"
)

// legalTransitions is the closed transition table for a session.
// Every state may move to Disconnected (teardown happens from anywhere),
// and any connected state may fall back to Connecting when the socket
// drops mid-turn.
var legalTransitions = map[SessionState][]SessionState{
	StateIdle:         {StateConnecting, StateListening, StateSpeaking, StateDisconnected},
	StateConnecting:   {StateIdle, StateDisconnected},
	StateListening:    {StateProcessing, StateIdle, StateConnecting, StateDisconnected},
	StateProcessing:   {StateSpeaking, StateIdle, StateConnecting, StateDisconnected},
	StateSpeaking:     {StateListening, StateIdle, StateConnecting, StateDisconnected},
	StateDisconnected: {},
}

// CanTransition reports whether moving from s to next is legal.
func (s SessionState) CanTransition(next SessionState) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanStartCapture reports whether a new listening cycle may begin.
// Capture is rejected, not queued, while speaking or processing.
func (s SessionState) CanStartCapture() bool {
	return s == StateIdle
}

// Terminal reports whether the session can no longer make progress.
func (s SessionState) Terminal() bool {
	return s == StateDisconnected
}

// PromptAction is the user's decision on a scheduled-call prompt.
type PromptAction string

const (
	PromptStartNow PromptAction = "start_now"
	PromptSnooze   PromptAction = "snooze"
	PromptSkip     PromptAction = "skip"
)

// ScheduledCallPrompt is the transient value behind a "conversation
// time" invitation, delivered by the server or by a tapped notification.
type ScheduledCallPrompt struct {
	// ScheduledTime is the originating call time in "HH:MM", empty when
	// the prompt was not tied to a specific slot (snoozed reminders).
	ScheduledTime string
}
