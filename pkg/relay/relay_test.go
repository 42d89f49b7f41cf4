package relay

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"bitslicer/pkg/decoder"
	"bitslicer/pkg/preprocess"
	"bitslicer/pkg/storage"
	"bitslicer/pkg/visualization"
)

var testGeometry = decoder.Geometry{
	Top:        4,
	Bottom:     44,
	Left:       6,
	BitWidth:   30,
	InsetStart: 2,
	InsetEnd:   1,
	Count:      8,
}

// encodeChar paints a frame whose six data bands spell c, which must lie
// in 0x40..0x7f. Zero bands are horizontal stripes, one bands vertical.
func encodeChar(t *testing.T, c rune) []byte {
	t.Helper()
	require.True(t, c >= 0x40 && c <= 0x7f)

	bits := []int{0, 1}
	for i := 5; i >= 0; i-- {
		bits = append(bits, int(c>>i)&1)
	}

	size := testGeometry.MinSize()
	img := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	for i, b := range bits {
		x0 := testGeometry.Left + i*testGeometry.BitWidth
		for y := testGeometry.Top; y < testGeometry.Bottom; y++ {
			for x := 0; x < testGeometry.BitWidth; x++ {
				stripe := (y - testGeometry.Top) / 8
				if b == 1 {
					stripe = x / 8
				}
				v := uint8(235)
				if stripe%2 == 0 {
					v = 20
				}
				img.SetGray(x0+x, y, color.Gray{Y: v})
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newDecoder(t *testing.T, v preprocess.Variant) *decoder.Decoder {
	t.Helper()
	d, err := decoder.New(testGeometry, preprocess.ForVariant(v, preprocess.DefaultOptions()), nil)
	require.NoError(t, err)
	return d
}

type fakeChannel struct {
	inbound []Message
	sent    []Message
	sendErr error
}

func (f *fakeChannel) Send(ctx context.Context, m Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeChannel) Receive(ctx context.Context) (Message, error) {
	if len(f.inbound) == 0 {
		return Message{}, ErrClosed
	}
	m := f.inbound[0]
	f.inbound = f.inbound[1:]
	return m, nil
}

func (f *fakeChannel) sentText() []string {
	var out []string
	for _, m := range f.sent {
		out = append(out, m.Text())
	}
	return out
}

func TestRunRepliesInOrder(t *testing.T) {
	ch := &fakeChannel{inbound: []Message{
		TextMessage("welcome"),
		BinaryMessage(encodeChar(t, 'G')),
		BinaryMessage(encodeChar(t, 'o')),
		TextMessage("halfway"),
		BinaryMessage(encodeChar(t, 'Z')),
	}}

	dir := filepath.Join(t.TempDir(), "imgs")
	sink, err := storage.NewDirSink(dir)
	require.NoError(t, err)

	var out bytes.Buffer
	r := New(ch, newDecoder(t, preprocess.VariantBlur), WithSink(sink), WithOutput(&out))
	err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, sink.Close())
	assert.Equal(t, "GoZ", out.String())

	assert.Equal(t, []string{DefaultHandshake, "G", "o", "Z"}, ch.sentText())
	for _, m := range ch.sent {
		assert.Equal(t, Text, m.Kind)
	}

	results, err := os.ReadFile(filepath.Join(dir, storage.ResultsFilename))
	require.NoError(t, err)
	assert.Equal(t, "0\tG\n1\to\n2\tZ\n", string(results))
	assert.FileExists(t, sink.FramePath(2))
}

func TestRunCustomHandshake(t *testing.T) {
	ch := &fakeChannel{}
	err := New(ch, newDecoder(t, preprocess.VariantComposite), WithHandshake("go")).Run(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []string{"go"}, ch.sentText())
}

func TestRunHandshakeFails(t *testing.T) {
	ch := &fakeChannel{sendErr: errors.New("broken pipe")}
	err := New(ch, newDecoder(t, preprocess.VariantBlur)).Run(context.Background())
	assert.ErrorContains(t, err, "handshake")
}

func TestRunStopsOnUndersizedFrame(t *testing.T) {
	small := image.NewGray(image.Rect(0, 0, 20, 20))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, small))

	ch := &fakeChannel{inbound: []Message{
		BinaryMessage(encodeChar(t, 'A')),
		BinaryMessage(buf.Bytes()),
		BinaryMessage(encodeChar(t, 'B')),
	}}

	err := New(ch, newDecoder(t, preprocess.VariantBlur)).Run(context.Background())
	assert.ErrorIs(t, err, decoder.ErrInvalidGeometry)
	assert.ErrorContains(t, err, "frame 1")
	assert.Equal(t, []string{DefaultHandshake, "A"}, ch.sentText())
	assert.Len(t, ch.inbound, 1, "frames after the failure stay unread")
}

func TestRunStopsOnGarbageFrame(t *testing.T) {
	ch := &fakeChannel{inbound: []Message{BinaryMessage([]byte("not an image"))}}
	err := New(ch, newDecoder(t, preprocess.VariantBlur)).Run(context.Background())
	assert.ErrorIs(t, err, image.ErrFormat)
	assert.ErrorContains(t, err, "frame 0")
}

func TestRunRejectsUnknownKind(t *testing.T) {
	ch := &fakeChannel{inbound: []Message{{Kind: Kind(9)}}}
	err := New(ch, newDecoder(t, preprocess.VariantBlur)).Run(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedMessage)
}

func TestRunDumpsDebugArtifacts(t *testing.T) {
	dir := t.TempDir()
	ch := &fakeChannel{inbound: []Message{BinaryMessage(encodeChar(t, 'D'))}}

	r := New(ch, newDecoder(t, preprocess.VariantBlur), WithDumper(visualization.NewDumper(dir)))
	assert.ErrorIs(t, r.Run(context.Background()), ErrClosed)

	assert.FileExists(t, filepath.Join(dir, "0", "slice_7.png"))
	assert.FileExists(t, filepath.Join(dir, "0", "diff2_1.png"))
	assert.FileExists(t, filepath.Join(dir, "0", visualization.ReportFilename))
}

func TestMessageCodec(t *testing.T) {
	data, payloadType, err := marshalMessage(TextMessage("A"))
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), data)
	assert.Equal(t, byte(websocket.TextFrame), payloadType)

	_, payloadType, err = marshalMessage(BinaryMessage([]byte{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, byte(websocket.BinaryFrame), payloadType)

	_, _, err = marshalMessage("A")
	assert.Error(t, err)

	var m Message
	require.NoError(t, unmarshalMessage([]byte{7}, websocket.BinaryFrame, &m))
	assert.Equal(t, BinaryMessage([]byte{7}), m)

	assert.ErrorIs(t, unmarshalMessage(nil, websocket.PingFrame, &m), ErrUnexpectedMessage)
}

func wsURL(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

// TestWebSocketRelay runs a complete session against a server that pins
// the composite variant through the subprotocol.
func TestWebSocketRelay(t *testing.T) {
	const want = "GoZ"
	var frames [][]byte
	for _, c := range want {
		frames = append(frames, encodeChar(t, c))
	}

	replies := make(chan string, 1)
	srv := httptest.NewServer(websocket.Server{
		Handshake: func(cfg *websocket.Config, req *http.Request) error {
			cfg.Protocol = []string{preprocess.VariantComposite.Protocol()}
			return nil
		},
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()

			var hello string
			if err := websocket.Message.Receive(ws, &hello); err != nil || hello != DefaultHandshake {
				replies <- "bad handshake"
				return
			}
			if err := websocket.Message.Send(ws, "welcome"); err != nil {
				replies <- err.Error()
				return
			}

			var got strings.Builder
			for _, f := range frames {
				if err := websocket.Message.Send(ws, f); err != nil {
					replies <- err.Error()
					return
				}
				var reply string
				if err := websocket.Message.Receive(ws, &reply); err != nil {
					replies <- err.Error()
					return
				}
				got.WriteString(reply)
			}
			replies <- got.String()
		},
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	offered := []string{preprocess.VariantBlur.Protocol(), preprocess.VariantComposite.Protocol()}
	ws, err := Dial(ctx, wsURL(srv), "http://localhost/", offered)
	require.NoError(t, err)
	defer ws.Close()

	variant, ok := preprocess.VariantForProtocol(ws.Protocol())
	require.True(t, ok)
	assert.Equal(t, preprocess.VariantComposite, variant)

	err = New(ws, newDecoder(t, variant)).Run(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, want, <-replies)
}

func TestWebSocketReceiveCancelled(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		<-done
	}))
	defer srv.Close()
	defer close(done)

	ws, err := Dial(context.Background(), wsURL(srv), "http://localhost/", nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Empty(t, ws.Protocol())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = ws.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
