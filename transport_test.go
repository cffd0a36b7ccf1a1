package amaterasu

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

func TestGatewayTransport_InflatesBinaryFrames(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"op":11}`)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		zw.Write(payload)
		zw.Close()
		conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
		conn.WriteMessage(websocket.TextMessage, []byte(`{"op":1}`))
		time.Sleep(50 * time.Millisecond)
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	tr := newGatewayTransport()
	require.NoError(t, tr.connect(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")))
	defer tr.dispose()

	frame, err := tr.receive()
	require.NoError(t, err)
	require.Equal(t, payload, frame)

	frame, err = tr.receive()
	require.NoError(t, err)
	require.Equal(t, []byte(`{"op":1}`), frame)
}

func TestGatewayTransport_PeerCloseSurfacesCode(t *testing.T) {
	t.Parallel()

	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(4008, "rate limited"))
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	tr := newGatewayTransport()
	require.NoError(t, tr.connect(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")))
	defer tr.dispose()

	_, err := tr.receive()
	var ce *CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 4008, ce.Code)
	require.Equal(t, "rate limited", ce.Reason)
}

func TestGatewayTransport_LargeFrameReassembled(t *testing.T) {
	t.Parallel()

	large := []byte(`{"op":0,"t":"X","d":"` + strings.Repeat("a", gatewayReadBuffer*4) + `"}`)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, large)
		time.Sleep(50 * time.Millisecond)
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	tr := newGatewayTransport()
	require.NoError(t, tr.connect(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")))
	defer tr.dispose()

	frame, err := tr.receive()
	require.NoError(t, err)
	require.Equal(t, large, frame)
}
