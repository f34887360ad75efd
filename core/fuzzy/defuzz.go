package fuzzy

// Centroid returns the center of area of s over its sampled universe,
// Σ(x·μ(x)) / Σμ(x). ok is false if the set is zero everywhere.
func Centroid(s FuzzySet) (x float64, ok bool) {
	var num, den float64
	for i, d := range s.Degrees {
		if d <= 0 {
			continue
		}
		num += s.Universe.At(i) * d
		den += d
	}
	if den <= 0 {
		return 0, false
	}
	return num / den, true
}

// Defuzzify reduces s to a crisp value. An empty set yields the midpoint of
// the universe together with a *NoRuleFiredWarning.
func Defuzzify(output string, s FuzzySet) (float64, error) {
	x, ok := Centroid(s)
	if !ok {
		fallback := s.Universe.Midpoint()
		return fallback, &NoRuleFiredWarning{Output: output, Fallback: fallback}
	}
	return x, nil
}
