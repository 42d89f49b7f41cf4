package decoder

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"bitslicer/internal/models"
)

// DiffEnergy returns the sum of absolute pixel differences between a and b.
// It panics with mat.ErrShape if the dimensions differ.
func DiffEnergy(a, b *mat.Dense) float64 {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(mat.ErrShape)
	}

	var sum float64
	for r := 0; r < ar; r++ {
		sum += floats.Distance(a.RawRowView(r), b.RawRowView(r), 1)
	}
	return sum
}

// Classify turns a pair of diff energies into a bit. A slice is a 0 only
// when it is strictly closer to the zero reference; ties go to 1.
func Classify(score0, score1 float64) uint8 {
	if score0 < score1 {
		return 0
	}
	return 1
}

// Accumulate folds bits into a value seeded with 1, so the result always
// carries a leading 1 above the data bits.
func Accumulate(bits []uint8) uint {
	value := uint(0b01)
	for _, b := range bits {
		if b == 0 {
			value *= 2
		} else {
			value = 2*value + 1
		}
	}
	return value
}

// Score compares every data slice against both references, in slice order.
func Score(slices []models.Slice) []models.Score {
	zero := slices[models.ZeroReference].Pixels
	one := slices[models.OneReference].Pixels

	scores := make([]models.Score, 0, len(slices)-2)
	for _, s := range slices[2:] {
		score0 := DiffEnergy(s.Pixels, zero)
		score1 := DiffEnergy(s.Pixels, one)
		scores = append(scores, models.Score{
			Index:  s.Index,
			Score0: score0,
			Score1: score1,
			Bit:    Classify(score0, score1),
		})
	}
	return scores
}
