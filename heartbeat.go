package amaterasu

import (
	"time"

	"go.uber.org/zap"
)

// heartbeatLoop beats at the Hello-supplied interval until stop is
// closed. Every beat arms the ack latch; finding it still armed on the
// next tick means the server went quiet, and the only safe move is to
// drop the connection and let the caller reconnect.
func (s *Session) heartbeatLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.fireHeartbeat() {
				return
			}
		}
	}
}

func (s *Session) fireHeartbeat() bool {
	s.Lock()
	if s.awaitingAck {
		s.Unlock()
		s.log.Warn("heartbeat ack missed, disconnecting")
		s.disconnect(closeProtocolError, "heartbeat ack timeout")
		return false
	}
	s.awaitingAck = true
	s.Unlock()

	s.enqueueHeartbeat()
	return true
}

// enqueueHeartbeat puts a heartbeat at the head of the send queue so
// it preempts any backlog. The payload is the last seen sequence
// number, or null before the first sequenced frame.
func (s *Session) enqueueHeartbeat() {
	s.RLock()
	var seq *int64
	if s.sequence != nil {
		v := *s.sequence
		seq = &v
	}
	pacer := s.pacer
	s.RUnlock()
	if pacer == nil {
		return
	}

	frame, err := jsonCodec.Marshal(heartbeatFrame{Op: opHeartbeat, Data: seq})
	if err != nil {
		s.log.Warn("heartbeat marshal failed", zap.Error(err))
		return
	}
	pacer.push(frame, true)
}
