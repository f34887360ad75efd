package fuzzy

import (
	"fmt"
	"math"
)

// Shape is a membership function. Degree must return a value in [0, 1] for
// every x; Support returns the interval outside of which Degree is 0.
type Shape interface {
	Degree(x float64) float64
	Support() (lo, hi float64)
}

// Triangle rises linearly from 0 at A to 1 at B and falls back to 0 at C.
// A == B or B == C yields a shoulder.
type Triangle struct {
	A, B, C float64
}

// Trapezoid rises over [A, B], is 1 on [B, C] and falls over [C, D].
type Trapezoid struct {
	A, B, C, D float64
}

var (
	_ Shape = Triangle{}
	_ Shape = Trapezoid{}
)

func finite(ps ...float64) bool {
	for _, p := range ps {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
	}
	return true
}

func NewTriangle(a, b, c float64) (Triangle, error) {
	if !finite(a, b, c) {
		return Triangle{}, &ConfigurationError{Reason: "triangle parameters must be finite"}
	}
	if !(a <= b && b <= c) {
		return Triangle{}, &ConfigurationError{
			Reason: fmt.Sprintf("triangle parameters must satisfy a <= b <= c, got (%v, %v, %v)", a, b, c)}
	}
	if a == c {
		return Triangle{}, &ConfigurationError{Reason: "triangle must have a non-empty support"}
	}
	return Triangle{A: a, B: b, C: c}, nil
}

func (t Triangle) Degree(x float64) float64 {
	switch {
	case x == t.B:
		return 1.0
	case x <= t.A || x >= t.C:
		return 0.0
	case x < t.B:
		return (x - t.A) / (t.B - t.A)
	default:
		return (t.C - x) / (t.C - t.B)
	}
}

func (t Triangle) Support() (float64, float64) { return t.A, t.C }

func (t Triangle) String() string {
	return fmt.Sprintf("trimf(%v, %v, %v)", t.A, t.B, t.C)
}

func NewTrapezoid(a, b, c, d float64) (Trapezoid, error) {
	if !finite(a, b, c, d) {
		return Trapezoid{}, &ConfigurationError{Reason: "trapezoid parameters must be finite"}
	}
	if !(a <= b && b <= c && c <= d) {
		return Trapezoid{}, &ConfigurationError{
			Reason: fmt.Sprintf("trapezoid parameters must satisfy a <= b <= c <= d, got (%v, %v, %v, %v)", a, b, c, d)}
	}
	if a == d {
		return Trapezoid{}, &ConfigurationError{Reason: "trapezoid must have a non-empty support"}
	}
	return Trapezoid{A: a, B: b, C: c, D: d}, nil
}

func (t Trapezoid) Degree(x float64) float64 {
	switch {
	case x >= t.B && x <= t.C:
		return 1.0
	case x <= t.A || x >= t.D:
		return 0.0
	case x < t.B:
		return (x - t.A) / (t.B - t.A)
	default:
		return (t.D - x) / (t.D - t.C)
	}
}

func (t Trapezoid) Support() (float64, float64) { return t.A, t.D }

func (t Trapezoid) String() string {
	return fmt.Sprintf("trapmf(%v, %v, %v, %v)", t.A, t.B, t.C, t.D)
}
