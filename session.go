package amaterasu

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EventHandler receives every Dispatch frame as (event name, raw
// payload). The payload slice is only valid until the handler returns.
// Panics inside the handler are recovered at the session boundary; a
// misbehaving handler cannot kill the connection.
type EventHandler func(event string, data []byte)

// Session is one live gateway connection plus the identity (session
// id, last sequence) that survives it across transient failures.
type Session struct {
	sync.RWMutex

	token      string
	intents    int64
	properties identifyProperties
	handler    EventHandler
	log        *zap.Logger

	// gatewayOverride skips URL discovery; used by tests and by
	// callers that already know their resume URL.
	gatewayOverride string

	identifyLimiter *rate.Limiter

	transport *gatewayTransport
	pacer     *sendPacer
	socketMu  sync.Mutex // serializes every write on the socket

	connected  bool
	disposed   bool
	userClosed bool

	sessionID     string
	userID        string
	sequence      *int64
	awaitingAck   bool
	heartbeatStop chan struct{}
}

// NewSession builds a session for the given bot token. A leading
// "Bot " scheme prefix is stripped so both forms are accepted.
func NewSession(token string, opts ...SessionOpt) *Session {
	s := &Session{
		token:           strings.TrimPrefix(token, "Bot "),
		properties:      defaultProperties(),
		log:             zap.NewNop(),
		identifyLimiter: rate.NewLimiter(rate.Every(identifyInterval), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionOpt customizes a Session.
type SessionOpt func(*Session)

// WithIntents sets the intent bitmask sent at identify time.
func WithIntents(intents int64) SessionOpt {
	return func(s *Session) { s.intents = intents }
}

// WithEventHandler installs the dispatch sink.
func WithEventHandler(h EventHandler) SessionOpt {
	return func(s *Session) { s.handler = h }
}

// WithSessionLogger attaches a logger.
func WithSessionLogger(log *zap.Logger) SessionOpt {
	return func(s *Session) { s.log = log }
}

// WithGatewayURL pins the gateway URL, bypassing discovery.
func WithGatewayURL(url string) SessionOpt {
	return func(s *Session) { s.gatewayOverride = url }
}

// SessionID returns the identity assigned by the last READY, or "".
func (s *Session) SessionID() string {
	s.RLock()
	defer s.RUnlock()
	return s.sessionID
}

// UserID returns the bot's own user id, populated from READY.
func (s *Session) UserID() string {
	s.RLock()
	defer s.RUnlock()
	return s.userID
}

// Connect dials the gateway and runs the session until it ends. The
// returned bool tells the caller whether to reconnect: true after
// transient failures (the session identity is kept so the next
// connect resumes), false when the session ended on purpose.
func (s *Session) Connect(ctx context.Context) (bool, error) {
	s.Lock()
	if s.disposed {
		s.Unlock()
		return false, ErrClosed
	}
	if s.connected {
		s.Unlock()
		return false, ErrAlreadyConnected
	}
	s.connected = true
	s.userClosed = false
	s.awaitingAck = false
	s.Unlock()

	if err := s.identifyLimiter.Wait(ctx); err != nil {
		s.clearConnected()
		return false, err
	}

	url := s.gatewayOverride
	if url == "" {
		url = gatewayURL(ctx)
	}

	transport := newGatewayTransport()
	if err := transport.connect(ctx, url); err != nil {
		s.clearConnected()
		return true, err
	}
	s.log.Debug("gateway connected", zap.String("url", url))

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pacer := newSendPacer(s.writeFrame, s.log)
	s.Lock()
	s.transport = transport
	s.pacer = pacer
	s.Unlock()
	go pacer.run(connCtx)

	// ReadMessage has no context; disposing the socket is how a
	// cancelled caller unblocks the receive loop.
	go func() {
		<-connCtx.Done()
		if ctx.Err() != nil {
			_ = transport.dispose()
		}
	}()

	return s.receiveLoop(ctx, transport)
}

func (s *Session) clearConnected() {
	s.Lock()
	s.connected = false
	s.transport = nil
	s.pacer = nil
	s.Unlock()
}

func (s *Session) receiveLoop(ctx context.Context, transport *gatewayTransport) (bool, error) {
	for {
		frame, err := transport.receive()
		if err != nil {
			s.RLock()
			userClosed := s.userClosed
			s.RUnlock()

			switch {
			case ctx.Err() != nil:
				// Cancellation is the caller's stop signal.
				s.teardown(transport)
				return false, nil
			case userClosed:
				// Close already tore everything down.
				return false, nil
			default:
				// Transport error or peer close frame. Identity is
				// kept so the next connect can resume.
				s.teardown(transport)
				var ce *CloseError
				if errors.As(err, &ce) {
					s.log.Warn("gateway closed by peer",
						zap.Int("code", ce.Code),
						zap.String("reason", ce.Reason))
					return true, ce
				}
				s.log.Warn("gateway receive failed", zap.Error(err))
				return true, err
			}
		}

		if done, reconnect := s.onFrame(frame); done {
			return reconnect, nil
		}
	}
}

func (s *Session) onFrame(frame []byte) (done, reconnect bool) {
	var e Event
	if err := jsonCodec.Unmarshal(frame, &e); err != nil {
		s.log.Debug("undecodable gateway frame", zap.Error(err))
		return false, false
	}

	if e.Sequence != nil {
		s.Lock()
		seq := *e.Sequence
		s.sequence = &seq
		s.Unlock()
	}

	switch e.Operation {
	case opHello:
		var h helloData
		if err := jsonCodec.Unmarshal(e.RawData, &h); err != nil {
			s.log.Warn("bad hello payload", zap.Error(err))
			return false, false
		}
		s.onHello(time.Duration(h.HeartbeatInterval) * time.Millisecond)

	case opHeartbeatAck:
		s.Lock()
		s.awaitingAck = false
		s.Unlock()

	case opHeartbeat:
		// Server asked for an immediate beat.
		s.enqueueHeartbeat()

	case opReconnect:
		s.log.Info("gateway requested reconnect")
		s.disconnect(closeNormal, "")
		return true, true

	case opDispatch:
		s.onDispatch(e.Type, e.RawData)

	default:
		// InvalidSession included: nothing to act on here.
	}
	return false, false
}

func (s *Session) onHello(interval time.Duration) {
	s.Lock()
	s.awaitingAck = false
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
	}
	stop := make(chan struct{})
	s.heartbeatStop = stop
	sessionID := s.sessionID
	var seq int64
	if s.sequence != nil {
		seq = *s.sequence
	}
	pacer := s.pacer
	s.Unlock()

	go s.heartbeatLoop(interval, stop)

	var frame []byte
	if sessionID == "" {
		frame, _ = jsonCodec.Marshal(identifyFrame{
			Op: opIdentify,
			Data: identifyData{
				Token:      s.token,
				Intents:    s.intents,
				Properties: s.properties,
			},
		})
		s.log.Debug("identifying")
	} else {
		frame, _ = jsonCodec.Marshal(resumeFrame{
			Op: opResume,
			Data: resumeData{
				Token:     s.token,
				SessionID: sessionID,
				Sequence:  seq,
			},
		})
		s.log.Debug("resuming", zap.String("session_id", sessionID))
	}
	if pacer != nil {
		pacer.push(frame, false)
	}
}

func (s *Session) onDispatch(event string, data []byte) {
	if event == "READY" {
		var r readyData
		if err := jsonCodec.Unmarshal(data, &r); err == nil {
			s.Lock()
			s.sessionID = r.SessionID
			s.userID = r.User.ID
			s.Unlock()
			s.log.Info("session ready",
				zap.String("session_id", r.SessionID),
				zap.String("user_id", r.User.ID))
		}
	}

	s.RLock()
	handler := s.handler
	s.RUnlock()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("event handler panicked",
				zap.String("event", event),
				zap.Any("panic", r))
		}
	}()
	handler(event, data)
}

// Send marshals payload and enqueues it as normal-priority traffic.
func (s *Session) Send(payload any) error {
	s.RLock()
	pacer := s.pacer
	connected := s.connected
	s.RUnlock()
	if !connected || pacer == nil {
		return ErrClosed
	}
	frame, err := jsonCodec.Marshal(payload)
	if err != nil {
		return err
	}
	pacer.push(frame, false)
	return nil
}

// writeFrame is the pacer's sink: one serialized write on the socket.
func (s *Session) writeFrame(frame []byte) error {
	s.RLock()
	transport := s.transport
	connected := s.connected
	s.RUnlock()
	if !connected || transport == nil {
		return ErrClosed
	}
	s.socketMu.Lock()
	defer s.socketMu.Unlock()
	return transport.send(frame)
}

// Close gracefully ends the session: close frame with normal status,
// identity reset, Connect returns false. The session cannot be reused.
func (s *Session) Close() {
	s.Lock()
	s.userClosed = true
	s.disposed = true
	s.Unlock()
	s.disconnect(closeNormal, "")
}

// disconnect is the graceful teardown: timers stopped, no further
// paced frames, close frame written, identity reset.
func (s *Session) disconnect(code int, reason string) {
	s.Lock()
	if !s.connected {
		s.Unlock()
		return
	}
	s.connected = false
	transport := s.transport
	pacer := s.pacer
	s.transport = nil
	s.pacer = nil
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	s.sessionID = ""
	s.sequence = nil
	s.Unlock()

	if pacer != nil {
		pacer.close()
	}
	if transport != nil {
		s.socketMu.Lock()
		_ = transport.close(code, reason)
		s.socketMu.Unlock()
	}
}

// teardown is the abrupt path: no close frame, identity kept so the
// next connect can resume.
func (s *Session) teardown(transport *gatewayTransport) {
	s.Lock()
	if !s.connected {
		s.Unlock()
		return
	}
	s.connected = false
	pacer := s.pacer
	s.transport = nil
	s.pacer = nil
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	s.Unlock()

	if pacer != nil {
		pacer.close()
	}
	_ = transport.dispose()
}

func defaultProperties() identifyProperties {
	return identifyProperties{
		OS:      osName(),
		Browser: "amaterasu",
		Device:  "amaterasu",
	}
}
