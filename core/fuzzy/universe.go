package fuzzy

import (
	"math"
)

// Universe is the closed interval [Min, Max] sampled every Step.
type Universe struct {
	min, max, step float64
	n              int
}

const stepTolerance = 1e-9

func NewUniverse(min, max, step float64) (Universe, error) {
	if math.IsNaN(min) || math.IsNaN(max) || math.IsNaN(step) ||
		math.IsInf(min, 0) || math.IsInf(max, 0) || math.IsInf(step, 0) {
		return Universe{}, &ConfigurationError{Reason: "universe bounds must be finite"}
	}
	if !(min < max) {
		return Universe{}, &ConfigurationError{Reason: "universe minimum must be less than maximum"}
	}
	if !(step > 0) {
		return Universe{}, &ConfigurationError{Reason: "universe step must be positive"}
	}
	k := (max - min) / step
	r := math.Round(k)
	if math.Abs(k-r) > stepTolerance*math.Max(1, k) {
		return Universe{}, &ConfigurationError{Reason: "universe width must be a multiple of the step"}
	}
	return Universe{min: min, max: max, step: step, n: int(r) + 1}, nil
}

func (u Universe) Min() float64  { return u.min }
func (u Universe) Max() float64  { return u.max }
func (u Universe) Step() float64 { return u.step }

// Len returns the number of samples, (Max-Min)/Step + 1.
func (u Universe) Len() int { return u.n }

// At returns the i-th sample. Samples are computed from Min to avoid
// accumulating rounding errors; the last sample is exactly Max.
func (u Universe) At(i int) float64 {
	if i < 0 || i >= u.n {
		panic("universe sample index out of range")
	}
	if i == u.n-1 {
		return u.max
	}
	return u.min + float64(i)*u.step
}

func (u Universe) Samples() []float64 {
	xs := make([]float64, u.n)
	for i := range xs {
		xs[i] = u.At(i)
	}
	return xs
}

func (u Universe) Midpoint() float64 {
	return u.min + (u.max-u.min)/2.0
}

// Clip limits x to [Min, Max].
func (u Universe) Clip(x float64) float64 {
	return math.Max(u.min, math.Min(x, u.max))
}
