package fuzzy

import (
	"errors"
	"math"
)

// FuzzySet is a membership function sampled over an output universe. It lives
// for a single inference pass.
type FuzzySet struct {
	Universe Universe
	Degrees  []float64
}

func NewFuzzySet(u Universe) FuzzySet {
	return FuzzySet{Universe: u, Degrees: make([]float64, u.Len())}
}

// Empty reports whether the set is zero everywhere.
func (s FuzzySet) Empty() bool {
	for _, d := range s.Degrees {
		if d > 0 {
			return false
		}
	}
	return true
}

// Result is the outcome of one inference pass for one output variable.
type Result struct {
	Output    string
	Value     float64
	Strengths []float64
	Set       FuzzySet
	Fallback  bool
}

var errUnknownOutput = errors.New("unknown output variable")

// Implicate clips the membership function of the rule's consequent term by
// the firing strength: min(strength, mf(x)).
func Implicate(out *Variable, term string, strength float64) FuzzySet {
	t, ok := out.Term(term)
	if !ok {
		panic("implication on unknown term")
	}
	u := out.Universe()
	s := NewFuzzySet(u)
	strength = clamp01(strength)
	for i := range s.Degrees {
		s.Degrees[i] = math.Min(strength, t.Shape.Degree(u.At(i)))
	}
	return s
}

// Aggregate combines per-rule sets over the same universe by pointwise
// maximum.
func Aggregate(u Universe, sets ...FuzzySet) FuzzySet {
	agg := NewFuzzySet(u)
	for _, s := range sets {
		if len(s.Degrees) != len(agg.Degrees) {
			panic("aggregation over mismatched universes")
		}
		for i, d := range s.Degrees {
			agg.Degrees[i] = math.Max(agg.Degrees[i], d)
		}
	}
	return agg
}

// Infer evaluates all rules concluding on output and returns the aggregated
// fuzzy set together with the firing strength of each rule.
func (c *Config) Infer(output string, in Inputs) (FuzzySet, []float64, error) {
	out, ok := c.variables[output]
	if !ok || out.Role() != Consequent {
		return FuzzySet{}, nil, errUnknownOutput
	}
	rs := c.Rules(output)
	strengths := make([]float64, len(rs))
	sets := make([]FuzzySet, len(rs))
	for i, r := range rs {
		s, err := FireStrength(r, in)
		if err != nil {
			return FuzzySet{}, nil, err
		}
		strengths[i] = s
		sets[i] = Implicate(out, r.Consequent.Term, s)
	}
	return Aggregate(out.Universe(), sets...), strengths, nil
}

// Compute runs inference and centroid defuzzification for output. If no rule
// fired, the result carries the fallback value and the returned error is a
// *NoRuleFiredWarning; callers should treat that error as non-fatal.
func (c *Config) Compute(output string, in Inputs) (Result, error) {
	set, strengths, err := c.Infer(output, in)
	if err != nil {
		return Result{}, err
	}
	r := Result{
		Output:    output,
		Strengths: strengths,
		Set:       set,
	}
	r.Value, err = Defuzzify(output, set)
	if err != nil {
		r.Fallback = true
	}
	return r, err
}
