package amaterasu

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
)

// gatewayTransport owns the one WebSocket of a session. It hands up
// complete text payloads: binary frames are inflated, anything else is
// skipped. gorilla reassembles messages larger than the read buffer.
type gatewayTransport struct {
	dialer *websocket.Dialer
	conn   *websocket.Conn
}

func newGatewayTransport() *gatewayTransport {
	return &gatewayTransport{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
			ReadBufferSize:   gatewayReadBuffer,
			WriteBufferSize:  gatewayReadBuffer,
		},
	}
}

func (t *gatewayTransport) connect(ctx context.Context, url string) error {
	headers := http.Header{}
	headers.Add("Accept-Encoding", "zlib")

	conn, _, err := t.dialer.DialContext(ctx, url, headers)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

// receive blocks for the next text payload. A *CloseError is returned
// when the peer sent a close frame.
func (t *gatewayTransport) receive() ([]byte, error) {
	for {
		messageType, message, err := t.conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				return nil, &CloseError{Code: ce.Code, Reason: ce.Text}
			}
			return nil, err
		}

		switch messageType {
		case websocket.TextMessage:
			return message, nil
		case websocket.BinaryMessage:
			z, err := zlib.NewReader(bytes.NewReader(message))
			if err != nil {
				continue
			}
			inflated, err := io.ReadAll(z)
			z.Close()
			if err != nil {
				continue
			}
			return inflated, nil
		default:
			// ping/pong and friends are gorilla's problem
		}
	}
}

func (t *gatewayTransport) send(frame []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

// close sends a close frame and tears the socket down.
func (t *gatewayTransport) close(code int, reason string) error {
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	return t.conn.Close()
}

// dispose tears the socket down without a close frame.
func (t *gatewayTransport) dispose() error {
	return t.conn.Close()
}
