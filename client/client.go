package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyConnected = errors.New("client: already connected or connecting")
	ErrNotConnected     = errors.New("client: not connected")
	ErrNotInSession     = errors.New("client: join handshake not completed")
	ErrJoinFailed       = errors.New("client: join failed")
)

var errTransportDuringJoin = errors.New("client: transport failed during join")

type Options struct {
	URL           string
	SessionID     string
	ParticipantID string
	Nickname      string

	HeartbeatInterval time.Duration // default 30s
	BaseDelay         time.Duration // first reconnect delay, default 1s
	MaxAttempts       int           // reconnect attempts before giving up, default 5
	JoinTimeout       time.Duration // default 10s

	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

func (o *Options) defaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 10 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// Controller owns one client connection to a session: transport lifecycle,
// the reconnect-with-backoff state machine, the join handshake layered above
// the socket, and fan-out to local observers. At most one socket is live at
// a time; reconnect attempts are strictly sequential.
type Controller struct {
	opts      Options
	log       zerolog.Logger
	observers *observers

	writeMu sync.Mutex // serializes socket writes (heartbeat vs. sends)

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	gen            int // bumped by Disconnect; stale goroutines and timers check it
	attempts       int
	inSession      bool
	lastErr        error
	joinCh         chan error
	reconnectTimer *time.Timer
	hbStop         chan struct{}
}

func New(opts Options) *Controller {
	opts.defaults()
	return &Controller{
		opts:      opts,
		log:       opts.Logger,
		observers: newObservers(),
		state:     StateIdle,
	}
}

// On registers a callback for an event name and returns a registration id
// for Off. Registration and removal are safe during dispatch.
func (c *Controller) On(event string, fn Handler) int {
	return c.observers.On(event, fn)
}

func (c *Controller) Off(event string, id int) {
	c.observers.Off(event, id)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InSession reports whether the join handshake has completed on the current
// socket; a reconnected transport is not in session until it rejoins.
func (c *Controller) InSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inSession
}

func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect dials and runs the join handshake. A transport failure here
// engages the automatic retry schedule; a join failure does not.
func (c *Controller) Connect() error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.attempts = 0
	c.lastErr = nil
	gen := c.gen
	c.mu.Unlock()

	return c.attempt(gen)
}

// Reconnect is the manual retry after the controller gave up: it resets the
// attempt counter and re-enters connecting.
func (c *Controller) Reconnect() error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("client: reconnect only valid when disconnected, state is %s", c.state)
	}
	c.state = StateConnecting
	c.attempts = 0
	c.lastErr = nil
	gen := c.gen
	c.mu.Unlock()

	return c.attempt(gen)
}

// Disconnect leaves the session and tears the socket down. The state flips
// to idle and all timers stop before the socket is touched, so no stale
// reconnect can fire afterwards.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.state = StateIdle
	wasInSession := c.inSession
	c.inSession = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopHeartbeatLocked()
	c.joinCh = nil
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if wasInSession {
		c.write(conn, outbound{Type: eventLeaveSession})
	}
	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	conn.Close()
}

// SendMessage sends a chat message; the caller must be joined.
func (c *Controller) SendMessage(text string) error {
	c.mu.Lock()
	conn := c.conn
	joined := c.inSession
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if !joined {
		return ErrNotInSession
	}
	return c.write(conn, outbound{
		Type: eventSendMessage,
		Data: map[string]string{"message": text},
	})
}

// RequestParticipantList asks for a full presence snapshot; the reply
// arrives as a participant_list event.
func (c *Controller) RequestParticipantList() error {
	c.mu.Lock()
	conn := c.conn
	joined := c.inSession
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if !joined {
		return ErrNotInSession
	}
	return c.write(conn, outbound{Type: eventGetParticipantList})
}

// attempt performs exactly one dial plus join handshake. Dial failures feed
// the backoff schedule; join failures end in disconnected without consuming
// a transport attempt.
func (c *Controller) attempt(gen int) error {
	conn, _, err := c.opts.Dialer.Dial(c.opts.URL, nil)
	if err != nil {
		c.mu.Lock()
		exhausted := false
		if gen == c.gen && c.state == StateConnecting {
			c.transportFailureLocked(gen, err)
			exhausted = c.state == StateDisconnected
		}
		c.mu.Unlock()
		if exhausted {
			c.emitError(fmt.Sprintf("connection failed after %d attempts: %v", c.opts.MaxAttempts, err))
		}
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return errors.New("client: disconnected")
	}
	c.conn = conn
	c.state = StateConnected
	joinCh := make(chan error, 1)
	c.joinCh = joinCh
	c.mu.Unlock()

	go c.readLoop(gen, conn)

	err = c.write(conn, outbound{Type: eventJoinSession, Data: map[string]string{
		"session_id":     c.opts.SessionID,
		"participant_id": c.opts.ParticipantID,
		"nickname":       c.opts.Nickname,
	}})
	if err != nil {
		conn.Close() // read loop picks up the failure and schedules retry
		return err
	}

	select {
	case joinErr := <-joinCh:
		switch {
		case joinErr == nil:
			c.joined(gen)
			return nil
		case errors.Is(joinErr, errTransportDuringJoin):
			// The read loop already engaged the reconnect schedule.
			return joinErr
		default:
			c.joinFailure(gen, joinErr)
			return fmt.Errorf("%w: %v", ErrJoinFailed, joinErr)
		}
	case <-time.After(c.opts.JoinTimeout):
		err := errors.New("join handshake timed out")
		c.joinFailure(gen, err)
		return fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}
}

func (c *Controller) joined(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	c.lastErr = nil
	c.startHeartbeatLocked()
	c.mu.Unlock()
	c.log.Debug().Str("session_id", c.opts.SessionID).Msg("client: joined session")
}

// joinFailure is terminal for the automatic machinery: the transport worked
// but the room refused or ignored us, so retrying the socket would not help.
func (c *Controller) joinFailure(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.inSession = false
	c.lastErr = fmt.Errorf("%w: %v", ErrJoinFailed, err)
	c.joinCh = nil
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.emitError(fmt.Sprintf("could not join session: %v", err))
}

func (c *Controller) readLoop(gen int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}

		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			c.log.Debug().Err(err).Msg("client: unparseable frame dropped")
			continue
		}

		switch evt.Type {
		case EventSessionJoined:
			c.mu.Lock()
			stale := gen != c.gen
			if !stale && c.state == StateConnected {
				c.inSession = true
				if c.joinCh != nil {
					c.joinCh <- nil
					c.joinCh = nil
				}
			}
			c.mu.Unlock()
			if stale {
				return
			}
		case EventError:
			// An error during the handshake is the join verdict, not a
			// chat-level error.
			c.mu.Lock()
			if c.joinCh != nil {
				ch := c.joinCh
				c.joinCh = nil
				c.mu.Unlock()
				var p ErrorPayload
				json.Unmarshal(evt.Data, &p)
				ch <- errors.New(p.Message)
				continue
			}
			c.mu.Unlock()
		}

		c.observers.dispatch(evt)
	}
}

func (c *Controller) handleReadError(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	if c.joinCh != nil {
		c.joinCh <- errTransportDuringJoin
		c.joinCh = nil
	}
	wasInSession := c.inSession
	c.inSession = false
	c.stopHeartbeatLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.transportFailureLocked(gen, err)
	exhausted := c.state == StateDisconnected
	c.mu.Unlock()

	if wasInSession {
		c.emitError(fmt.Sprintf("connection lost: %v", err))
	}
	if exhausted {
		c.emitError(fmt.Sprintf("connection failed after %d attempts: %v", c.opts.MaxAttempts, err))
	}
}

// transportFailureLocked schedules the next attempt with exponential
// backoff, or gives up once the attempt budget is spent. Caller holds mu.
func (c *Controller) transportFailureLocked(gen int, err error) {
	if c.attempts < c.opts.MaxAttempts {
		c.attempts++
		delay := c.opts.BaseDelay << (c.attempts - 1)
		c.state = StateReconnecting
		c.reconnectTimer = time.AfterFunc(delay, func() { c.runReconnect(gen) })
		c.log.Debug().Int("attempt", c.attempts).Dur("delay", delay).Msg("client: reconnect scheduled")
	} else {
		c.state = StateDisconnected
		c.lastErr = err
	}
}

func (c *Controller) runReconnect(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.reconnectTimer = nil
	c.mu.Unlock()

	c.attempt(gen)
}

func (c *Controller) startHeartbeatLocked() {
	c.stopHeartbeatLocked()
	stop := make(chan struct{})
	c.hbStop = stop
	conn := c.conn

	go func() {
		ticker := time.NewTicker(c.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.write(conn, outbound{Type: eventHeartbeat}); err != nil {
					return
				}
			}
		}
	}()
}

func (c *Controller) stopHeartbeatLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
}

func (c *Controller) write(conn *websocket.Conn, evt outbound) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(evt)
}

// emitError surfaces a local (transport or join) failure through the same
// error observers that receive server-sent error events.
func (c *Controller) emitError(msg string) {
	data, _ := json.Marshal(ErrorPayload{Message: msg})
	c.observers.dispatch(Event{Type: EventError, Data: data})
}
