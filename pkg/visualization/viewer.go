// Package visualization writes debug artifacts for decoded frames: the
// extracted slices, their difference maps against both references and a
// YAML report of the scores.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"bitslicer/internal/models"
)

// ReportFilename is the name of the per-frame score report
const ReportFilename = "report.yaml"

// Dumper writes debug artifacts below a base directory
type Dumper struct {
	dir string
}

// NewDumper creates a dumper rooted at dir
func NewDumper(dir string) *Dumper {
	return &Dumper{dir: dir}
}

// Report is the YAML document written next to the images
type Report struct {
	Char   string        `yaml:"char"`
	Value  uint          `yaml:"value"`
	Bits   string        `yaml:"bits"`
	Slices []SliceReport `yaml:"slices"`
}

// SliceReport describes one data slice
type SliceReport struct {
	Index  int     `yaml:"index"`
	Score0 float64 `yaml:"score0"`
	Score1 float64 `yaml:"score1"`
	Bit    uint8   `yaml:"bit"`
	RMSE0  float64 `yaml:"rmse0"`
	RMSE1  float64 `yaml:"rmse1"`
	SSIM0  float64 `yaml:"ssim0"`
	SSIM1  float64 `yaml:"ssim1"`
}

// Dump writes the artifacts for one frame into <dir>/<name>:
// slice_<i>.png for every slice, diff<i>_0.png and diff<i>_1.png for every
// data slice and report.yaml.
func (d *Dumper) Dump(name string, res *models.Result, slices []models.Slice) error {
	frameDir := filepath.Join(d.dir, name)
	if err := os.MkdirAll(frameDir, 0755); err != nil {
		return fmt.Errorf("failed to create debug directory: %w", err)
	}

	for _, s := range slices {
		filename := filepath.Join(frameDir, fmt.Sprintf("slice_%d.png", s.Index))
		if err := SaveImage(IntensityImage(s.Pixels), filename); err != nil {
			return err
		}
	}

	zero := slices[models.ZeroReference].Pixels
	one := slices[models.OneReference].Pixels

	report := Report{
		Char:  string(res.Char),
		Value: res.Value,
		Bits:  fmt.Sprintf("%b", res.Value),
	}

	for _, sc := range res.Scores {
		s := slices[sc.Index].Pixels
		for ref, m := range []*mat.Dense{zero, one} {
			filename := filepath.Join(frameDir, fmt.Sprintf("diff%d_%d.png", sc.Index, ref))
			if err := SaveImage(IntensityImage(AbsDiff(s, m)), filename); err != nil {
				return err
			}
		}

		report.Slices = append(report.Slices, SliceReport{
			Index:  sc.Index,
			Score0: sc.Score0,
			Score1: sc.Score1,
			Bit:    sc.Bit,
			RMSE0:  RMSE(s, zero),
			RMSE1:  RMSE(s, one),
			SSIM0:  SSIM(s, zero),
			SSIM1:  SSIM(s, one),
		})
	}

	data, err := yaml.Marshal(&report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(frameDir, ReportFilename), data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// AbsDiff returns |a - b| element-wise
func AbsDiff(a, b mat.Matrix) *mat.Dense {
	var diff mat.Dense
	diff.Sub(a, b)
	diff.Apply(func(_, _ int, v float64) float64 { return math.Abs(v) }, &diff)
	return &diff
}

// IntensityImage converts a [0,1] matrix into a 16-bit grayscale image,
// clamping values outside the range
func IntensityImage(m mat.Matrix) *image.Gray16 {
	rows, cols := m.Dims()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			value := uint16(math.Max(0, math.Min(65535, m.At(y, x)*65535)))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}

	return img
}

// SaveImage saves img as a PNG file
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return file.Close()
}
