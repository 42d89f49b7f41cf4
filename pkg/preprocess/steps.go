package preprocess

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Luminance weights applied to linear RGB when graying color images
const (
	lumaR = 0.2125
	lumaG = 0.7154
	lumaB = 0.0721
)

// AlphaComposite flattens a translucent image onto an opaque background,
// computing (1-a)*bg + a*c per channel in float64. Images reporting Opaque()
// are passed through untouched.
type AlphaComposite struct {
	Background color.Color
}

func (AlphaComposite) Name() string { return "alpha-composite" }

func (a AlphaComposite) Apply(r *Raster) error {
	if r.Color == nil {
		return ErrNoColor
	}
	if o, ok := r.Color.(interface{ Opaque() bool }); ok && o.Opaque() {
		return nil
	}

	bg := a.Background
	if bg == nil {
		bg = color.White
	}
	br, bgr, bb, _ := bg.RGBA()
	back := [3]float64{float64(br) / 0xffff, float64(bgr) / 0xffff, float64(bb) / 0xffff}

	b := r.Color.Bounds()
	dst := newRGBFloat(b)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, alpha, premultiplied := channels(r.Color, x, y)
			for ch := range c {
				if premultiplied {
					dst.pix[i+ch] = c[ch] + (1-alpha)*back[ch]
				} else {
					dst.pix[i+ch] = (1-alpha)*back[ch] + alpha*c[ch]
				}
			}
			i += 3
		}
	}
	r.Color = dst
	return nil
}

// channels returns the color at (x, y) scaled to [0,1]. Non-premultiplied
// sources are read at their stored precision; everything else goes through
// RGBA, which is premultiplied.
func channels(img image.Image, x, y int) (c [3]float64, alpha float64, premultiplied bool) {
	switch src := img.(type) {
	case *image.NRGBA:
		p := src.NRGBAAt(x, y)
		return [3]float64{float64(p.R) / 0xff, float64(p.G) / 0xff, float64(p.B) / 0xff}, float64(p.A) / 0xff, false
	case *image.NRGBA64:
		p := src.NRGBA64At(x, y)
		return [3]float64{float64(p.R) / 0xffff, float64(p.G) / 0xffff, float64(p.B) / 0xffff}, float64(p.A) / 0xffff, false
	}
	cr, cg, cb, ca := img.At(x, y).RGBA()
	return [3]float64{float64(cr) / 0xffff, float64(cg) / 0xffff, float64(cb) / 0xffff}, float64(ca) / 0xffff, true
}

// rgbFloat is an opaque image with three float64 channels in [0,1] per pixel
type rgbFloat struct {
	rect image.Rectangle
	pix  []float64
}

func newRGBFloat(r image.Rectangle) *rgbFloat {
	return &rgbFloat{rect: r, pix: make([]float64, 3*r.Dx()*r.Dy())}
}

func (p *rgbFloat) ColorModel() color.Model { return color.RGBA64Model }

func (p *rgbFloat) Bounds() image.Rectangle { return p.rect }

func (p *rgbFloat) Opaque() bool { return true }

func (p *rgbFloat) offset(x, y int) int {
	return 3 * ((y-p.rect.Min.Y)*p.rect.Dx() + (x - p.rect.Min.X))
}

func (p *rgbFloat) At(x, y int) color.Color {
	if !image.Pt(x, y).In(p.rect) {
		return color.RGBA64{}
	}
	i := p.offset(x, y)
	q := func(v float64) uint16 { return uint16(v*0xffff + 0.5) }
	return color.RGBA64{R: q(p.pix[i]), G: q(p.pix[i+1]), B: q(p.pix[i+2]), A: 0xffff}
}

// Grayscale converts the color image into a [0,1] intensity matrix
type Grayscale struct{}

func (Grayscale) Name() string { return "grayscale" }

func (Grayscale) Apply(r *Raster) error {
	if r.Color == nil {
		return ErrNoColor
	}
	m, err := Intensity(r.Color)
	if err != nil {
		return err
	}
	r.Gray = m
	r.Color = nil
	return nil
}

// Intensity returns img as a rows-by-columns matrix of intensities in [0,1].
// Gray images keep their stored level; color images are weighted by
// luminance. Row 0, column 0 is img.Bounds().Min.
func Intensity(img image.Image) (*mat.Dense, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}
	w, h := b.Dx(), b.Dy()
	data := make([]float64, w*h)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				data[y*w+x] = float64(row[x]) / 0xff
			}
		}
	case *rgbFloat:
		for i := range data {
			px := src.pix[3*i : 3*i+3]
			data[i] = lumaR*px[0] + lumaG*px[1] + lumaB*px[2]
		}
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y) / 0xffff
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				cr, cg, cb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				data[y*w+x] = (lumaR*float64(cr) + lumaG*float64(cg) + lumaB*float64(cb)) / 0xffff
			}
		}
	}

	return mat.NewDense(h, w, data), nil
}

// GaussianBlur smooths the intensity matrix with a separable Gaussian.
// Pixels outside the image repeat the nearest edge pixel.
type GaussianBlur struct {
	Sigma    float64
	Truncate float64
}

func (GaussianBlur) Name() string { return "gaussian-blur" }

func (g GaussianBlur) Apply(r *Raster) error {
	if r.Gray == nil {
		return ErrNoIntensity
	}
	truncate := g.Truncate
	if truncate <= 0 {
		truncate = 4
	}
	r.Gray = Blur(r.Gray, g.Sigma, truncate)
	return nil
}

// Kernel returns the normalized 1-D Gaussian weights for sigma, with radius
// int(truncate*sigma + 0.5).
func Kernel(sigma, truncate float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	for i := range k {
		x := float64(i - radius)
		k[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// Blur returns a smoothed copy of src. Columns are filtered first, then rows.
// A non-positive sigma returns an unmodified copy.
func Blur(src *mat.Dense, sigma, truncate float64) *mat.Dense {
	if sigma <= 0 {
		return mat.DenseCopyOf(src)
	}
	k := Kernel(sigma, truncate)
	radius := len(k) / 2
	rows, cols := src.Dims()

	tmp := mat.NewDense(rows, cols, nil)
	col := make([]float64, rows+2*radius)
	for c := 0; c < cols; c++ {
		for i := range col {
			col[i] = src.At(clamp(i-radius, rows), c)
		}
		for r := 0; r < rows; r++ {
			tmp.Set(r, c, floats.Dot(k, col[r:r+len(k)]))
		}
	}

	out := mat.NewDense(rows, cols, nil)
	row := make([]float64, cols+2*radius)
	for r := 0; r < rows; r++ {
		in := tmp.RawRowView(r)
		for i := range row {
			row[i] = in[clamp(i-radius, cols)]
		}
		dst := out.RawRowView(r)
		for c := range dst {
			dst[c] = floats.Dot(k, row[c:c+len(k)])
		}
	}
	return out
}

func clamp(i, n int) int {
	switch {
	case i < 0:
		return 0
	case i >= n:
		return n - 1
	}
	return i
}
