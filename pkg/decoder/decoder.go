// Package decoder recovers the character carried by a bit-slice frame.
//
// A frame holds Count vertical stripes laid out by a Geometry. Slice 0 shows
// the pattern for a zero bit and slice 1 the pattern for a one bit; every
// following slice is classified by whichever reference it is closer to,
// measured as the sum of absolute intensity differences. The bits are folded
// into an accumulator seeded with 1 and the result is read as a code point.
package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log"

	// Frames arrive as PNG
	_ "image/png"

	"gonum.org/v1/gonum/mat"

	"bitslicer/internal/models"
	"bitslicer/pkg/preprocess"
)

// ErrInvalidGeometry is returned when an image is too small to contain the
// configured bounding box.
var ErrInvalidGeometry = errors.New("invalid input geometry")

// Decoder decodes frames with a fixed geometry and pre-processing pipeline.
// It holds no per-call state and is safe for concurrent use.
type Decoder struct {
	geometry Geometry
	pipeline *preprocess.Pipeline
	logger   *log.Logger
}

// New returns a Decoder. A nil logger discards output.
func New(g Geometry, p *preprocess.Pipeline, logger *log.Logger) (*Decoder, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("decoder: nil pipeline")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Decoder{
		geometry: g,
		pipeline: p,
		logger:   logger,
	}, nil
}

// Geometry returns the decoder's geometry
func (d *Decoder) Geometry() Geometry {
	return d.geometry
}

// Pipeline returns the decoder's pre-processing pipeline
func (d *Decoder) Pipeline() *preprocess.Pipeline {
	return d.pipeline
}

// WithPipeline returns a copy of d using p
func (d *Decoder) WithPipeline(p *preprocess.Pipeline) *Decoder {
	dup := *d
	dup.pipeline = p
	return &dup
}

// Decode returns the character carried by img
func (d *Decoder) Decode(img image.Image) (rune, error) {
	res, err := d.DecodeImage(img)
	if err != nil {
		return 0, err
	}
	return res.Char, nil
}

// DecodeImage decodes img and returns the full result including scores
func (d *Decoder) DecodeImage(img image.Image) (*models.Result, error) {
	res, _, err := d.Inspect(img)
	return res, err
}

// DecodeBytes decodes an encoded image held in b
func (d *Decoder) DecodeBytes(b []byte) (*models.Result, error) {
	return d.DecodeReader(bytes.NewReader(b))
}

// DecodeReader reads an encoded image from r and decodes it. Any format
// registered with the image package is accepted.
func (d *Decoder) DecodeReader(r io.Reader) (*models.Result, error) {
	img, err := decodeImage(r)
	if err != nil {
		return nil, err
	}
	return d.DecodeImage(img)
}

func decodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Inspect decodes img and also returns the extracted slices. The slices are
// views into an intensity matrix private to this call.
func (d *Decoder) Inspect(img image.Image) (*models.Result, []models.Slice, error) {
	b := img.Bounds()
	if err := d.checkSize(b.Dx(), b.Dy()); err != nil {
		return nil, nil, err
	}

	m, err := d.pipeline.Run(img)
	if err != nil {
		return nil, nil, err
	}
	return d.inspect(m)
}

// DecodeIntensity decodes an already pre-processed intensity matrix
func (d *Decoder) DecodeIntensity(m *mat.Dense) (*models.Result, error) {
	res, _, err := d.inspect(m)
	return res, err
}

func (d *Decoder) inspect(m *mat.Dense) (*models.Result, []models.Slice, error) {
	slices, err := Extract(m, d.geometry)
	if err != nil {
		return nil, nil, err
	}

	scores := Score(slices)
	bits := make([]uint8, len(scores))
	for i, s := range scores {
		d.logger.Printf("slice %d: score0=%.4f score1=%.4f bit=%d", s.Index, s.Score0, s.Score1, s.Bit)
		bits[i] = s.Bit
	}

	value := Accumulate(bits)
	return &models.Result{
		Value:  value,
		Char:   rune(value),
		Scores: scores,
	}, slices, nil
}

func (d *Decoder) checkSize(width, height int) error {
	if !d.geometry.Fits(width, height) {
		need := d.geometry.MinSize()
		return fmt.Errorf("%w: image is %dx%d, need at least %dx%d", ErrInvalidGeometry, width, height, need.X, need.Y)
	}
	return nil
}

// Extract cuts the slices described by g out of m. The slices share m's
// storage.
func Extract(m *mat.Dense, g Geometry) ([]models.Slice, error) {
	rows, cols := m.Dims()
	if !g.Fits(cols, rows) {
		need := g.MinSize()
		return nil, fmt.Errorf("%w: image is %dx%d, need at least %dx%d", ErrInvalidGeometry, cols, rows, need.X, need.Y)
	}

	slices := make([]models.Slice, g.Count)
	for i := range slices {
		r := g.SliceRect(i)
		slices[i] = models.Slice{
			Index:  i,
			Rect:   r,
			Pixels: m.Slice(r.Min.Y, r.Max.Y, r.Min.X, r.Max.X).(*mat.Dense),
		}
	}
	return slices, nil
}
