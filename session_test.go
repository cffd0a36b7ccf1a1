package amaterasu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// wsServer runs script against each inbound gateway connection.
func wsServer(t *testing.T, script func(*websocket.Conn)) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := jsonCodec.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readEvent(t *testing.T, conn *websocket.Conn) (Event, error) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}
	var e Event
	require.NoError(t, jsonCodec.Unmarshal(data, &e))
	return e, nil
}

func hello(intervalMS int64) map[string]any {
	return map[string]any{"op": opHello, "d": map[string]any{"heartbeat_interval": intervalMS}}
}

// testSession strips the identify pacing so back-to-back connects in
// tests don't sit out the five-second spacing.
func testSession(token string, opts ...SessionOpt) *Session {
	s := NewSession(token, opts...)
	s.identifyLimiter = rate.NewLimiter(rate.Inf, 1)
	return s
}

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) handle(event string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestSession_IdentifyThenResume(t *testing.T) {
	t.Parallel()

	type received struct {
		op   int
		data []byte
	}
	handshakes := make(chan received, 2)

	var connections int
	var mu sync.Mutex
	url := wsServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		sendJSON(t, conn, hello(60_000))
		e, err := readEvent(t, conn)
		if err != nil {
			return
		}
		handshakes <- received{e.Operation, e.RawData}

		if n == 1 {
			sendJSON(t, conn, map[string]any{
				"op": opDispatch, "t": "READY", "s": 1,
				"d": map[string]any{
					"session_id": "sess-1",
					"user":       map[string]any{"id": "999"},
				},
			})
			time.Sleep(50 * time.Millisecond)
			conn.Close() // abrupt: no close frame
			return
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeNormal, ""))
		conn.Close()
	})

	recorder := &eventRecorder{}
	s := testSession("Bot secret-token",
		WithIntents(641),
		WithGatewayURL(url),
		WithEventHandler(recorder.handle))

	reconnect, err := s.Connect(context.Background())
	require.True(t, reconnect)
	require.Error(t, err)

	require.Equal(t, "sess-1", s.SessionID())
	require.Equal(t, "999", s.UserID())
	require.Equal(t, []string{"READY"}, recorder.snapshot())

	first := <-handshakes
	require.Equal(t, opIdentify, first.op)
	var id identifyData
	require.NoError(t, jsonCodec.Unmarshal(first.data, &id))
	require.Equal(t, "secret-token", id.Token)
	require.EqualValues(t, 641, id.Intents)
	require.NotEmpty(t, id.Properties.OS)

	// Identity survived the transport error, so the second connect
	// resumes instead of identifying.
	reconnect, err = s.Connect(context.Background())
	require.True(t, reconnect)

	second := <-handshakes
	require.Equal(t, opResume, second.op)
	var res resumeData
	require.NoError(t, jsonCodec.Unmarshal(second.data, &res))
	require.Equal(t, "secret-token", res.Token)
	require.Equal(t, "sess-1", res.SessionID)
	require.EqualValues(t, 1, res.Sequence)
}

func TestSession_ReconnectOpcode(t *testing.T) {
	t.Parallel()

	closeCode := make(chan int, 1)
	url := wsServer(t, func(conn *websocket.Conn) {
		sendJSON(t, conn, hello(60_000))
		if _, err := readEvent(t, conn); err != nil {
			return
		}
		sendJSON(t, conn, map[string]any{"op": opReconnect})

		for {
			if _, err := readEvent(t, conn); err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					closeCode <- ce.Code
				}
				return
			}
		}
	})

	s := testSession("token", WithGatewayURL(url))
	reconnect, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, reconnect)

	select {
	case code := <-closeCode:
		require.Equal(t, closeNormal, code)
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the close frame")
	}
}

func TestSession_CancelDoesNotReconnect(t *testing.T) {
	t.Parallel()

	url := wsServer(t, func(conn *websocket.Conn) {
		sendJSON(t, conn, hello(60_000))
		readEvent(t, conn)
		// hold the connection open
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		conn.ReadMessage()
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := testSession("token", WithGatewayURL(url))

	done := make(chan bool, 1)
	go func() {
		reconnect, _ := s.Connect(ctx)
		done <- reconnect
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case reconnect := <-done:
		require.False(t, reconnect)
	case <-time.After(5 * time.Second):
		t.Fatal("connect did not return after cancellation")
	}
}

func TestSession_MissedHeartbeatAck(t *testing.T) {
	t.Parallel()

	closeCode := make(chan int, 1)
	url := wsServer(t, func(conn *websocket.Conn) {
		sendJSON(t, conn, hello(100))
		for {
			if _, err := readEvent(t, conn); err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					closeCode <- ce.Code
				}
				return
			}
			// never ack
		}
	})

	s := testSession("token", WithGatewayURL(url))
	start := time.Now()
	reconnect, _ := s.Connect(context.Background())
	require.True(t, reconnect)
	require.Less(t, time.Since(start), 5*time.Second)

	select {
	case code := <-closeCode:
		require.Equal(t, closeProtocolError, code)
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the protocol-error close")
	}
}

func TestSession_HandlerPanicIsContained(t *testing.T) {
	t.Parallel()

	url := wsServer(t, func(conn *websocket.Conn) {
		sendJSON(t, conn, hello(60_000))
		if _, err := readEvent(t, conn); err != nil {
			return
		}
		sendJSON(t, conn, map[string]any{"op": opDispatch, "t": "MESSAGE_CREATE", "s": 1, "d": map[string]any{}})
		sendJSON(t, conn, map[string]any{"op": opDispatch, "t": "MESSAGE_UPDATE", "s": 2, "d": map[string]any{}})
		time.Sleep(100 * time.Millisecond)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeNormal, ""))
		conn.Close()
	})

	recorder := &eventRecorder{}
	s := testSession("token",
		WithGatewayURL(url),
		WithEventHandler(func(event string, data []byte) {
			recorder.handle(event, data)
			if event == "MESSAGE_CREATE" {
				panic("user code is broken")
			}
		}))

	reconnect, _ := s.Connect(context.Background())
	require.True(t, reconnect)

	// The panic was swallowed; the next dispatch still arrived.
	require.Equal(t, []string{"MESSAGE_CREATE", "MESSAGE_UPDATE"}, recorder.snapshot())
}

func TestSession_ConnectPreconditions(t *testing.T) {
	t.Parallel()

	url := wsServer(t, func(conn *websocket.Conn) {
		sendJSON(t, conn, hello(60_000))
		readEvent(t, conn)
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		conn.ReadMessage()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := testSession("token", WithGatewayURL(url))
	go s.Connect(ctx)

	require.Eventually(t, func() bool {
		s.RLock()
		defer s.RUnlock()
		return s.connected && s.pacer != nil
	}, 5*time.Second, 10*time.Millisecond)

	_, err := s.Connect(ctx)
	require.ErrorIs(t, err, ErrAlreadyConnected)

	s.Close()
	_, err = s.Connect(ctx)
	require.ErrorIs(t, err, ErrClosed)
}
