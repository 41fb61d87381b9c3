package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tripot/companion/domain/entities"
	"github.com/tripot/companion/domain/repositories"
)

const (
	// DefaultReconnectDelay is the pause between reconnect attempts.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultMaxReconnects bounds consecutive failed socket opens before
	// the session gives up.
	DefaultMaxReconnects = 5

	// DefaultCaptureTimeout ends a listening cycle that saw no manual
	// stop.
	DefaultCaptureTimeout = 10 * time.Second

	// DefaultSettleDelay is the pause between finished playback and the
	// next automatic listening cycle.
	DefaultSettleDelay = 1 * time.Second
)

var (
	// ErrPermissionDenied means microphone access was refused. Terminal
	// for the session; never retried automatically.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrSessionActive means Start was called on a controller that is
	// already running or already finished.
	ErrSessionActive = errors.New("session already started")
)

// Config carries the session controller's connection parameters and
// timing knobs. Zero durations/counts fall back to the defaults above.
type Config struct {
	// BaseWSURL is the backend's websocket origin, e.g. "ws://host:8080".
	BaseWSURL string
	// UserID identifies the senior user; part of the socket path.
	UserID string
	// Token, when set, is sent as a bearer token on the handshake.
	Token string

	ReconnectDelay time.Duration
	MaxReconnects  int
	CaptureTimeout time.Duration
	SettleDelay    time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = DefaultMaxReconnects
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = DefaultCaptureTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
}

// inboundMessage is the wire shape of server-pushed frames.
type inboundMessage struct {
	Type          string `json:"type"`
	Content       string `json:"content"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
}

// scheduledCallResponse answers a scheduled-call prompt. Fire-and-forget;
// the server does not acknowledge it.
type scheduledCallResponse struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

// Controller owns one voice-conversation session: permission
// acquisition, the socket link with bounded reconnect, the
// listen/process/speak turn loop, and teardown. At most one instance
// with one open socket exists per process; the composition root
// enforces that.
type Controller struct {
	cfg Config

	recorder    repositories.Recorder
	speaker     repositories.Speaker
	prompter    repositories.Prompter
	permissions repositories.Permissions
	clock       clock.Clock
	logger      *zap.Logger
	dialer      *websocket.Dialer

	sessionID string

	mu           sync.Mutex
	state        entities.SessionState
	conn         *websocket.Conn
	messages     []entities.ConversationMessage
	nextID       int64
	retryCount   int
	userClosed   bool
	ended        bool
	captureTimer *clock.Timer
	settleTimer  *clock.Timer
	retryTimer   *clock.Timer

	// writeMu serializes socket writes; gorilla allows one writer.
	writeMu sync.Mutex
}

// New creates a session controller in the Idle state. Nothing connects
// until Start.
func New(
	cfg Config,
	recorder repositories.Recorder,
	speaker repositories.Speaker,
	prompter repositories.Prompter,
	permissions repositories.Permissions,
	clk clock.Clock,
	logger *zap.Logger,
) *Controller {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		cfg:         cfg,
		recorder:    recorder,
		speaker:     speaker,
		prompter:    prompter,
		permissions: permissions,
		clock:       clk,
		logger:      logger,
		dialer:      websocket.DefaultDialer,
		sessionID:   uuid.NewString(),
		state:       entities.StateIdle,
		nextID:      1,
	}
}

// SessionID returns the controller's unique id, used in logs and the
// local status surface.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// State returns the current session state.
func (c *Controller) State() entities.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the transcript in arrival order.
func (c *Controller) Messages() []entities.ConversationMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entities.ConversationMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Start acquires the microphone permission and opens the socket. The
// first listening cycle begins once the socket is open, not before.
// A permission refusal is terminal and returned; connectivity problems
// surface through the prompter while the retry policy runs.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != entities.StateIdle || c.ended {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.userClosed = false
	c.setStateLocked(entities.StateConnecting)
	c.mu.Unlock()

	if err := c.permissions.RequestMicrophone(ctx); err != nil {
		c.logger.Warn("microphone permission refused",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
		c.prompter.Notice("Permission needed",
			"Voice conversations need microphone access. Please allow it in settings and try again.")
		c.mu.Lock()
		c.ended = true
		c.setStateLocked(entities.StateDisconnected)
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	c.connect()
	return nil
}

// connect dials the backend socket. Failures funnel into the same
// bounded-retry path as mid-session closes.
func (c *Controller) connect() {
	c.mu.Lock()
	if c.ended || c.userClosed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	url := fmt.Sprintf("%s/api/v1/senior/ws/%s", c.cfg.BaseWSURL, c.cfg.UserID)
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	c.logger.Info("connecting websocket",
		zap.String("sessionID", c.sessionID),
		zap.String("url", url))

	conn, _, err := c.dialer.Dial(url, header)
	if err != nil {
		c.logger.Warn("websocket dial failed",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
		c.onSocketClosed()
		return
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.retryCount = 0
	c.setStateLocked(entities.StateIdle)
	c.mu.Unlock()

	c.logger.Info("websocket connected", zap.String("sessionID", c.sessionID))

	go c.readPump(conn)
	c.beginListening()
}

// readPump reads frames in arrival order until the socket drops.
func (c *Controller) readPump(conn *websocket.Conn) {
	defer c.onSocketClosed()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error",
					zap.String("sessionID", c.sessionID),
					zap.Error(err))
			}
			return
		}
		c.handleInbound(message)
	}
}

// onSocketClosed runs the reconnect policy for closes the user did not
// ask for. Exceeding the attempt budget surfaces exactly one
// connectivity notice and leaves the session Disconnected.
func (c *Controller) onSocketClosed() {
	c.mu.Lock()
	if c.ended || c.userClosed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.retryCount++
	wasRecording := c.state == entities.StateListening
	c.stopTimerLocked(&c.captureTimer)
	if c.retryCount >= c.cfg.MaxReconnects {
		c.logger.Error("reconnect attempts exhausted",
			zap.String("sessionID", c.sessionID),
			zap.Int("attempts", c.retryCount))
		c.teardownLocked()
		c.mu.Unlock()
		if wasRecording {
			c.recorder.Stop(context.Background())
		}
		c.speaker.Stop()
		c.prompter.Notice("Connection failed",
			"The server could not be reached. Please restart the app in a moment.")
		return
	}
	attempt := c.retryCount
	c.setStateLocked(entities.StateConnecting)
	c.retryTimer = c.clock.AfterFunc(c.cfg.ReconnectDelay, c.connect)
	c.mu.Unlock()

	if wasRecording {
		c.recorder.Stop(context.Background())
	}

	c.logger.Info("scheduling reconnect",
		zap.String("sessionID", c.sessionID),
		zap.Int("attempt", attempt),
		zap.Int("max", c.cfg.MaxReconnects))
}

// beginListening starts a capture cycle. Illegal while speaking,
// processing, recording or disconnected; rejected, never queued.
func (c *Controller) beginListening() {
	c.mu.Lock()
	if c.ended || c.conn == nil || !c.state.CanStartCapture() {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.Start(ctx); err != nil {
		c.logger.Error("failed to start capture",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
		c.prompter.Notice("Recording error", "Voice capture could not be started.")
		return
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		c.recorder.Stop(context.Background())
		return
	}
	// The session may have moved on while the recorder was starting,
	// e.g. a socket drop put it back into Connecting. A rejected
	// transition must release the microphone, not strand it.
	c.setStateLocked(entities.StateListening)
	if c.state != entities.StateListening {
		c.mu.Unlock()
		c.logger.Warn("discarding capture, session state changed during start",
			zap.String("sessionID", c.sessionID))
		c.recorder.Stop(context.Background())
		return
	}
	c.captureTimer = c.clock.AfterFunc(c.cfg.CaptureTimeout, c.onCaptureTimeout)
	c.mu.Unlock()
}

// StartCapture begins a listening cycle on user request.
func (c *Controller) StartCapture() {
	c.beginListening()
}

// StopCapture ends the running capture, sends the audio and moves to
// Processing. A no-op unless the session is Listening.
func (c *Controller) StopCapture() {
	c.mu.Lock()
	if c.state != entities.StateListening {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked(&c.captureTimer)
	c.setStateLocked(entities.StateProcessing)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	audio, err := c.recorder.Stop(ctx)
	if err != nil {
		c.logger.Error("failed to read capture",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
		c.prompter.Notice("Recording error", "The recorded voice could not be processed.")
		c.mu.Lock()
		if c.state == entities.StateProcessing {
			c.setStateLocked(entities.StateIdle)
		}
		c.mu.Unlock()
		return
	}

	// A send while disconnected is a silent no-op; the turn's audio is
	// simply lost.
	c.sendText(base64.StdEncoding.EncodeToString(audio))
}

// onCaptureTimeout fires when a listening cycle saw no manual stop
// within the capture window. Only the turn ends; the session survives.
func (c *Controller) onCaptureTimeout() {
	c.mu.Lock()
	if c.state != entities.StateListening {
		c.mu.Unlock()
		return
	}
	c.captureTimer = nil
	c.setStateLocked(entities.StateIdle)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.recorder.Stop(ctx); err != nil {
		c.logger.Warn("failed to stop timed-out capture",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
	}

	c.logger.Info("capture window elapsed without speech",
		zap.String("sessionID", c.sessionID))
	c.prompter.Notice("Conversation paused",
		"No speech was detected, so this turn was ended.")
}

// handleInbound dispatches one server frame. Unrecognized types are
// ignored, not fatal.
func (c *Controller) handleInbound(raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Error("failed to parse inbound message",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
		c.clearProcessing()
		return
	}

	switch msg.Type {
	case "ai_message":
		c.append(entities.RoleAssistant, msg.Content)
		// Playback may only start when the transition table grants
		// Speaking; the microphone and speaker are exclusive and the
		// state machine is the sole gate between them.
		c.mu.Lock()
		speaking := !c.ended && c.state.CanTransition(entities.StateSpeaking)
		if speaking {
			c.setStateLocked(entities.StateSpeaking)
		}
		c.mu.Unlock()
		if speaking {
			go c.speak(msg.Content)
		} else {
			c.logger.Warn("skipping playback, capture holds the microphone",
				zap.String("sessionID", c.sessionID))
		}

	case "user_message":
		c.append(entities.RoleUser, msg.Content)

	case "system_message":
		c.append(entities.RoleSystem, msg.Content)

	case "error":
		c.logger.Warn("server reported an error",
			zap.String("sessionID", c.sessionID),
			zap.String("content", msg.Content))
		c.prompter.Notice("Processing error", msg.Content)
		c.clearProcessing()

	case "scheduled_call":
		// Prompt immediately, whatever state the turn loop is in.
		go c.promptScheduledCall(msg.ScheduledTime)

	default:
		c.logger.Warn("ignoring unknown message type",
			zap.String("sessionID", c.sessionID),
			zap.String("type", msg.Type))
	}
}

// clearProcessing returns a turn that failed server-side to the state
// where capture may start again.
func (c *Controller) clearProcessing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == entities.StateProcessing {
		c.setStateLocked(entities.StateIdle)
	}
}

// speak plays an assistant reply and, once playback finishes, schedules
// the next listening cycle after the settle delay. This is what keeps
// the turn loop going without user action.
func (c *Controller) speak(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	err := c.speaker.Speak(ctx, text)

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	if c.state == entities.StateSpeaking {
		c.setStateLocked(entities.StateIdle)
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("text-to-speech playback failed",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
		return
	}
	c.settleTimer = c.clock.AfterFunc(c.cfg.SettleDelay, c.beginListening)
	c.mu.Unlock()
}

// promptScheduledCall raises the three-way conversation-time dialog and
// reports the decision back over the socket.
func (c *Controller) promptScheduledCall(scheduledTime string) {
	action := c.prompter.PromptScheduledCall(entities.ScheduledCallPrompt{
		ScheduledTime: scheduledTime,
	})

	c.logger.Info("scheduled call decision",
		zap.String("sessionID", c.sessionID),
		zap.String("action", string(action)))

	c.sendJSON(scheduledCallResponse{
		Type:      "scheduled_call_response",
		Action:    string(action),
		Timestamp: c.clock.Now().UTC().Format(time.RFC3339),
	})
}

// append records a transcript message with a controller-owned monotonic
// id.
func (c *Controller) append(role entities.Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, entities.ConversationMessage{
		ID:        c.nextID,
		Role:      role,
		Content:   content,
		Timestamp: c.clock.Now().Format(time.RFC3339),
	})
	c.nextID++
}

// sendText writes a raw text frame; silently dropped when disconnected.
func (c *Controller) sendText(payload string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.Debug("dropping outbound frame, not connected",
			zap.String("sessionID", c.sessionID))
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		c.logger.Warn("failed to write frame",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
	}
}

func (c *Controller) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal outbound message",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
		return
	}
	c.sendText(string(payload))
}

// End tears the session down on user request. On every exit path the
// capture is stopped, playback is stopped, pending timers are cancelled
// and the socket closes with reconnection suppressed.
func (c *Controller) End() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	wasRecording := c.state == entities.StateListening
	conn := c.conn
	c.conn = nil
	c.teardownLocked()
	c.mu.Unlock()

	if wasRecording {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.recorder.Stop(ctx)
	}
	c.speaker.Stop()
	if conn != nil {
		conn.Close()
	}

	c.logger.Info("session ended", zap.String("sessionID", c.sessionID))
}

// teardownLocked marks the session finished and cancels pending timers.
// Callers hold c.mu.
func (c *Controller) teardownLocked() {
	c.ended = true
	c.userClosed = true
	c.stopTimerLocked(&c.captureTimer)
	c.stopTimerLocked(&c.settleTimer)
	c.stopTimerLocked(&c.retryTimer)
	c.setStateLocked(entities.StateDisconnected)
}

func (c *Controller) stopTimerLocked(t **clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// setStateLocked moves the machine to next, logging transitions that
// the table does not allow. Teardown to Disconnected is always legal.
func (c *Controller) setStateLocked(next entities.SessionState) {
	if c.state == next || c.state.Terminal() {
		return
	}
	if next != entities.StateDisconnected && !c.state.CanTransition(next) {
		c.logger.Warn("rejecting illegal state transition",
			zap.String("sessionID", c.sessionID),
			zap.String("from", string(c.state)),
			zap.String("to", string(next)))
		return
	}
	c.logger.Debug("state transition",
		zap.String("sessionID", c.sessionID),
		zap.String("from", string(c.state)),
		zap.String("to", string(next)))
	c.state = next
}
