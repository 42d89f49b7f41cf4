package models

import (
	"image"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Slice represents one bit slice cut out of a decoded frame
type Slice struct {
	// Index is the position of this slice, counted left to right
	Index int

	// Rect is the region of the intensity image covered by the slice
	Rect image.Rectangle

	// Pixels is a view into the intensity image; it shares storage with it
	Pixels *mat.Dense
}

// Reference patterns occupy the first two slice positions
const (
	ZeroReference = 0
	OneReference  = 1
)

// Score holds the comparison of one data slice against both references
type Score struct {
	// Index of the data slice (2..7 for the default layout)
	Index int

	// Score0 is the diff energy against the zero reference
	Score0 float64

	// Score1 is the diff energy against the one reference
	Score1 float64

	// Bit is the classification outcome, 0 or 1
	Bit uint8
}

// Result is the outcome of decoding one frame
type Result struct {
	// Value is the accumulator after folding every data slice
	Value uint

	// Char is Value interpreted as a code point
	Char rune

	// Scores lists the per-slice comparisons in fold order
	Scores []Score
}

// Bits returns the classification outcomes in fold order
func (r *Result) Bits() []uint8 {
	bits := make([]uint8, len(r.Scores))
	for i, s := range r.Scores {
		bits[i] = s.Bit
	}
	return bits
}

// Frame is a single encoded image received over the relay channel
type Frame struct {
	// Seq is the zero-based arrival order of the frame within a session
	Seq int

	// Data holds the encoded image bytes exactly as received
	Data []byte

	// ReceivedAt records when the frame arrived
	ReceivedAt time.Time
}
