package relay

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"strconv"
	"time"

	// Frames arrive as PNG
	_ "image/png"

	"bitslicer/internal/models"
	"bitslicer/pkg/storage"
	"bitslicer/pkg/visualization"
)

// DefaultHandshake is sent once after connecting
const DefaultHandshake = "start"

// Decoder turns a frame into a result. *decoder.Decoder satisfies it.
type Decoder interface {
	Inspect(img image.Image) (*models.Result, []models.Slice, error)
}

// Relay answers every binary frame on a channel with its decoded character
type Relay struct {
	ch        Channel
	dec       Decoder
	sink      storage.Sink
	dumper    *visualization.Dumper
	logger    *log.Logger
	out       io.Writer
	handshake string
}

// Option configures a Relay
type Option func(*Relay)

// WithSink stores every frame in s before it is decoded
func WithSink(s storage.Sink) Option {
	return func(r *Relay) { r.sink = s }
}

// WithDumper writes debug artifacts for every frame
func WithDumper(d *visualization.Dumper) Option {
	return func(r *Relay) { r.dumper = d }
}

// WithLogger sets the logger; the default discards output
func WithLogger(l *log.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithOutput writes every decoded character to w as it is sent
func WithOutput(w io.Writer) Option {
	return func(r *Relay) { r.out = w }
}

// WithHandshake replaces the initial text message
func WithHandshake(s string) Option {
	return func(r *Relay) { r.handshake = s }
}

// New returns a relay reading from and replying on ch
func New(ch Channel, dec Decoder, opts ...Option) *Relay {
	r := &Relay{
		ch:        ch,
		dec:       dec,
		sink:      storage.Discard,
		logger:    log.New(io.Discard, "", 0),
		out:       io.Discard,
		handshake: DefaultHandshake,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run sends the handshake and then processes messages strictly one at a
// time until the channel fails. Text messages are logged and skipped. Any
// failure to store, decode or reply ends the loop; the error names the
// frame. A peer closing the channel ends it with ErrClosed.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.ch.Send(ctx, TextMessage(r.handshake)); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	for seq := 0; ; seq++ {
		msg, err := r.nextFrame(ctx)
		if err != nil {
			return err
		}
		r.logger.Printf("got img %d (%d bytes)", seq, len(msg.Data))

		char, err := r.handle(ctx, models.Frame{Seq: seq, Data: msg.Data, ReceivedAt: time.Now()})
		if err != nil {
			return fmt.Errorf("frame %d: %w", seq, err)
		}

		r.logger.Printf("Sending %q", char)
		if err := r.ch.Send(ctx, TextMessage(string(char))); err != nil {
			return fmt.Errorf("frame %d: send reply: %w", seq, err)
		}
		fmt.Fprintf(r.out, "%c", char)

		if err := r.sink.Record(ctx, seq, char); err != nil {
			return fmt.Errorf("frame %d: record: %w", seq, err)
		}
	}
}

// nextFrame skips text messages until a binary one arrives
func (r *Relay) nextFrame(ctx context.Context) (Message, error) {
	for {
		msg, err := r.ch.Receive(ctx)
		if err != nil {
			return Message{}, err
		}
		switch msg.Kind {
		case Text:
			r.logger.Printf("Got message %q", msg.Text())
		case Binary:
			return msg, nil
		default:
			return Message{}, fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Kind)
		}
	}
}

func (r *Relay) handle(ctx context.Context, f models.Frame) (rune, error) {
	if err := r.sink.Store(ctx, f); err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}

	res, slices, err := r.dec.Inspect(img)
	if err != nil {
		return 0, err
	}

	if r.dumper != nil {
		if err := r.dumper.Dump(strconv.Itoa(f.Seq), res, slices); err != nil {
			return 0, fmt.Errorf("debug dump: %w", err)
		}
	}

	return res.Char, nil
}
