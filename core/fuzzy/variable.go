package fuzzy

import (
	"fmt"
	"math"
)

type Role int

const (
	Antecedent Role = iota
	Consequent
)

func (r Role) String() string {
	switch r {
	case Antecedent:
		return "antecedent"
	case Consequent:
		return "consequent"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

type Term struct {
	Name  string
	Shape Shape
}

// Degrees maps term names to membership degrees.
type Degrees map[string]float64

// Variable is a linguistic variable. It is immutable once constructed.
type Variable struct {
	name     string
	role     Role
	universe Universe
	terms    []Term
	index    map[string]int
}

// NewVariable validates the universe and terms. Shapes whose support reaches
// outside of the universe are accepted and reported as warnings.
func NewVariable(name string, role Role, u Universe, terms ...Term) (
	*Variable, []ConfigurationWarning, error) {
	if name == "" {
		return nil, nil, &ConfigurationError{Reason: "variable name must not be empty"}
	}
	if role != Antecedent && role != Consequent {
		return nil, nil, &ConfigurationError{Variable: name, Reason: "unknown role"}
	}
	if u.Len() < 2 {
		return nil, nil, &ConfigurationError{Variable: name, Reason: "universe is not initialized"}
	}
	if len(terms) == 0 {
		return nil, nil, &ConfigurationError{Variable: name, Reason: "at least one term is required"}
	}
	v := &Variable{
		name:     name,
		role:     role,
		universe: u,
		terms:    make([]Term, len(terms)),
		index:    make(map[string]int, len(terms)),
	}
	var warnings []ConfigurationWarning
	for i, t := range terms {
		if t.Name == "" {
			return nil, nil, &ConfigurationError{Variable: name, Reason: "term name must not be empty"}
		}
		if t.Shape == nil {
			return nil, nil, &ConfigurationError{Variable: name, Term: t.Name, Reason: "membership function missing"}
		}
		if _, ok := v.index[t.Name]; ok {
			return nil, nil, &ConfigurationError{Variable: name, Term: t.Name, Reason: "duplicate term"}
		}
		lo, hi := t.Shape.Support()
		if lo < u.Min() || hi > u.Max() {
			warnings = append(warnings, ConfigurationWarning{
				Variable: name,
				Term:     t.Name,
				Reason: fmt.Sprintf("support [%v, %v] exceeds universe [%v, %v]",
					lo, hi, u.Min(), u.Max()),
			})
		}
		v.terms[i] = t
		v.index[t.Name] = i
	}
	return v, warnings, nil
}

func (v *Variable) Name() string       { return v.name }
func (v *Variable) Role() Role         { return v.role }
func (v *Variable) Universe() Universe { return v.universe }

// Terms returns the terms in declaration order.
func (v *Variable) Terms() []Term {
	ts := make([]Term, len(v.terms))
	copy(ts, v.terms)
	return ts
}

func (v *Variable) Term(name string) (Term, bool) {
	i, ok := v.index[name]
	if !ok {
		return Term{}, false
	}
	return v.terms[i], true
}

// Fuzzify evaluates every term at x. The crisp value is clipped to the
// universe first. NaN belongs to no term.
func (v *Variable) Fuzzify(x float64) Degrees {
	ds := make(Degrees, len(v.terms))
	if math.IsNaN(x) {
		for _, t := range v.terms {
			ds[t.Name] = 0
		}
		return ds
	}
	x = v.universe.Clip(x)
	for _, t := range v.terms {
		ds[t.Name] = t.Shape.Degree(x)
	}
	return ds
}
