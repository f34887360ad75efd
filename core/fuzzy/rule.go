package fuzzy

import (
	"math"
)

// Rule maps an antecedent expression onto one term of an output variable.
type Rule struct {
	Name       string
	Antecedent Expr
	Consequent TermRef
}

func NewRule(name string, antecedent Expr, consequent TermRef) Rule {
	return Rule{Name: name, Antecedent: antecedent, Consequent: consequent}
}

func (r Rule) String() string {
	return "IF " + r.Antecedent.String() + " THEN " + r.Consequent.String()
}

func clamp01(x float64) float64 {
	return math.Max(0.0, math.Min(x, 1.0))
}

// FireStrength evaluates the rule's antecedent against the fuzzified inputs
// of the current pass.
func FireStrength(r Rule, in Inputs) (float64, error) {
	if r.Antecedent == nil {
		return 0, &ConfigurationError{Rule: r.Name, Reason: "antecedent missing"}
	}
	d, err := r.Antecedent.Eval(in)
	if err != nil {
		return 0, err
	}
	return clamp01(d), nil
}
