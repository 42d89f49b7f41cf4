// Package preprocess turns a decoded raster into the grayscale intensity
// matrix the slice decoder works on.
//
// A Pipeline is an ordered list of Steps. Each step reads and updates a
// Raster: color steps work on Raster.Color, intensity steps on Raster.Gray.
// The order matters, since blurring before or after compositing gives
// different numbers and therefore different decode decisions.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoIntensity is returned when a pipeline finishes, or an intensity
	// step runs, without a grayscale matrix having been produced.
	ErrNoIntensity = errors.New("preprocess: no grayscale intensity")

	// ErrNoColor is returned when a color step runs after the color image
	// was already reduced to intensities.
	ErrNoColor = errors.New("preprocess: no color image")

	// ErrEmptyImage is returned for images with zero width or height.
	ErrEmptyImage = errors.New("preprocess: empty image")
)

// Raster carries an image through the pipeline
type Raster struct {
	// Color is the source image, replaced by color steps
	Color image.Image

	// Gray is nil until a grayscale step has run
	Gray *mat.Dense
}

// Step is a single pre-processing stage
type Step interface {
	Name() string
	Apply(r *Raster) error
}

// Pipeline runs its steps in order
type Pipeline struct {
	steps []Step
}

// New returns a pipeline running steps in the given order
func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: append([]Step(nil), steps...)}
}

// Steps returns a copy of the step list
func (p *Pipeline) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

func (p *Pipeline) String() string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return strings.Join(names, " -> ")
}

// Run applies every step to img and returns the resulting intensity matrix.
// The matrix is freshly allocated and owned by the caller.
func (p *Pipeline) Run(img image.Image) (*mat.Dense, error) {
	r := &Raster{Color: img}
	for _, s := range p.steps {
		if err := s.Apply(r); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	if r.Gray == nil {
		return nil, ErrNoIntensity
	}
	return r.Gray, nil
}

// Options parameterize the standard steps
type Options struct {
	// Sigma is the Gaussian standard deviation in pixels
	Sigma float64

	// Truncate cuts the kernel off at Truncate*Sigma pixels
	Truncate float64

	// Background is what transparent pixels are composited onto
	Background color.Color
}

// DefaultOptions returns sigma 3, truncate 4 on a white background
func DefaultOptions() Options {
	return Options{
		Sigma:      3,
		Truncate:   4,
		Background: color.White,
	}
}

// ParseBackground maps a background name to a color
func ParseBackground(name string) (color.Color, error) {
	switch strings.ToLower(name) {
	case "white", "":
		return color.White, nil
	case "black":
		return color.Black, nil
	}
	return nil, fmt.Errorf("preprocess: unknown background %q", name)
}
