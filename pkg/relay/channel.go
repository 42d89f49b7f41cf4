// Package relay runs the receive, decode, reply loop over a duplex message
// channel.
package relay

import (
	"context"
	"errors"
)

var (
	// ErrUnexpectedMessage is returned for messages that are neither text
	// nor binary.
	ErrUnexpectedMessage = errors.New("relay: unexpected message type")

	// ErrClosed is returned by Receive once the peer has closed the channel.
	ErrClosed = errors.New("relay: channel closed")
)

// Kind tells text and binary messages apart
type Kind int

const (
	Text Kind = iota + 1
	Binary
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Binary:
		return "binary"
	}
	return "unknown"
}

// Message is one message on the channel
type Message struct {
	Kind Kind
	Data []byte
}

// TextMessage returns a text message carrying s
func TextMessage(s string) Message {
	return Message{Kind: Text, Data: []byte(s)}
}

// BinaryMessage returns a binary message carrying b
func BinaryMessage(b []byte) Message {
	return Message{Kind: Binary, Data: b}
}

// Text returns the payload as a string
func (m Message) Text() string {
	return string(m.Data)
}

// Channel is a bidirectional message transport. Receive blocks until a
// message arrives, the peer closes (ErrClosed) or ctx is done.
type Channel interface {
	Send(ctx context.Context, m Message) error
	Receive(ctx context.Context) (Message, error)
}
