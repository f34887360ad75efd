package floats

import (
	"math"
	"slices"
)

func midpoint(x, y float64) float64 {
	return x + (y-x)/2.0
}

// Median returns the median of fs. fs is left unmodified.
func Median(fs []float64) float64 {
	n := len(fs)
	if n == 0 {
		panic("unexpected number of values")
	}
	s := slices.Clone(fs)
	slices.Sort(s)
	i := n / 2
	if n%2 != 0 {
		return s[i]
	}
	return midpoint(s[i-1], s[i])
}

// Rescale maps x linearly from [x0, x1] onto [y0, y1] and clamps the result
// to the target interval. x0 may be greater than x1 (inverted sensors).
func Rescale(x, x0, x1, y0, y1 float64) float64 {
	if x0 == x1 {
		panic("empty source interval")
	}
	y := y0 + (x-x0)*(y1-y0)/(x1-x0)
	return math.Max(math.Min(y0, y1), math.Min(y, math.Max(y0, y1)))
}

// Finite reports whether f is neither NaN nor infinite.
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
