package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/websocket"
)

// messageCodec keeps the frame type of every message so text and binary
// payloads can be told apart.
var messageCodec = websocket.Codec{
	Marshal:   marshalMessage,
	Unmarshal: unmarshalMessage,
}

func marshalMessage(v interface{}) ([]byte, byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, 0, fmt.Errorf("relay: cannot marshal %T", v)
	}
	switch m.Kind {
	case Text:
		return m.Data, websocket.TextFrame, nil
	case Binary:
		return m.Data, websocket.BinaryFrame, nil
	}
	return nil, 0, fmt.Errorf("%w: %s", ErrUnexpectedMessage, m.Kind)
}

func unmarshalMessage(data []byte, payloadType byte, v interface{}) error {
	m, ok := v.(*Message)
	if !ok {
		return fmt.Errorf("relay: cannot unmarshal into %T", v)
	}
	switch payloadType {
	case websocket.TextFrame:
		m.Kind = Text
	case websocket.BinaryFrame:
		m.Kind = Binary
	default:
		return fmt.Errorf("%w: payload type %d", ErrUnexpectedMessage, payloadType)
	}
	m.Data = data
	return nil
}

// WebSocket is a Channel over a WebSocket connection
type WebSocket struct {
	conn *websocket.Conn
}

// Dial connects to url, offering protocols as subprotocols
func Dial(ctx context.Context, url, origin string, protocols []string) (*WebSocket, error) {
	cfg, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, err
	}
	cfg.Protocol = protocols

	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn), nil
}

// NewWebSocket wraps an established connection
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

// Protocol returns the subprotocol selected by the server, or the only one
// offered if the server did not answer with one. It is empty otherwise.
func (w *WebSocket) Protocol() string {
	if p := w.conn.Config().Protocol; len(p) == 1 {
		return p[0]
	}
	return ""
}

func (w *WebSocket) Send(ctx context.Context, m Message) error {
	stop := context.AfterFunc(ctx, func() { w.conn.Close() })
	defer stop()

	if err := messageCodec.Send(w.conn, m); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (w *WebSocket) Receive(ctx context.Context) (Message, error) {
	stop := context.AfterFunc(ctx, func() { w.conn.Close() })
	defer stop()

	var m Message
	if err := messageCodec.Receive(w.conn, &m); err != nil {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			return Message{}, ErrClosed
		}
		return Message{}, err
	}
	return m, nil
}

func (w *WebSocket) Close() error {
	return w.conn.Close()
}
