package fuzzy

import (
	"math"
	"strings"
)

// Inputs holds the fuzzified inputs of one inference pass, keyed by variable
// name.
type Inputs map[string]Degrees

// Expr is an antecedent expression tree: term references combined by OR
// (maximum), AND (minimum) and NOT (complement).
type Expr interface {
	Eval(in Inputs) (float64, error)
	String() string
	walk(visit func(Expr) error) error
}

type TermRef struct {
	Variable string
	Term     string
}

type orExpr struct{ operands []Expr }

type andExpr struct{ operands []Expr }

type notExpr struct{ operand Expr }

var (
	_ Expr = TermRef{}
	_ Expr = orExpr{}
	_ Expr = andExpr{}
	_ Expr = notExpr{}
)

func Is(variable, term string) TermRef {
	return TermRef{Variable: variable, Term: term}
}

func Or(operands ...Expr) Expr  { return orExpr{operands: operands} }
func And(operands ...Expr) Expr { return andExpr{operands: operands} }
func Not(operand Expr) Expr     { return notExpr{operand: operand} }

func (r TermRef) Eval(in Inputs) (float64, error) {
	ds, ok := in[r.Variable]
	if !ok {
		return 0, &MissingInputError{Variable: r.Variable}
	}
	d, ok := ds[r.Term]
	if !ok {
		return 0, &ConfigurationError{Variable: r.Variable, Term: r.Term, Reason: "unknown term"}
	}
	return d, nil
}

func (r TermRef) String() string { return r.Variable + "[" + r.Term + "]" }

func (r TermRef) walk(visit func(Expr) error) error { return visit(r) }

func evalAll(in Inputs, xs []Expr, init float64, f func(float64, float64) float64) (float64, error) {
	acc := init
	for _, x := range xs {
		d, err := x.Eval(in)
		if err != nil {
			return 0, err
		}
		acc = f(acc, d)
	}
	return acc, nil
}

func (e orExpr) Eval(in Inputs) (float64, error) {
	return evalAll(in, e.operands, 0.0, math.Max)
}

func (e andExpr) Eval(in Inputs) (float64, error) {
	return evalAll(in, e.operands, 1.0, math.Min)
}

func (e notExpr) Eval(in Inputs) (float64, error) {
	d, err := e.operand.Eval(in)
	if err != nil {
		return 0, err
	}
	return 1.0 - d, nil
}

func join(op string, xs []Expr) string {
	ss := make([]string, len(xs))
	for i, x := range xs {
		ss[i] = x.String()
	}
	return "(" + strings.Join(ss, " "+op+" ") + ")"
}

func (e orExpr) String() string  { return join("OR", e.operands) }
func (e andExpr) String() string { return join("AND", e.operands) }
func (e notExpr) String() string { return "NOT " + e.operand.String() }

func walkAll(e Expr, xs []Expr, visit func(Expr) error) error {
	if err := visit(e); err != nil {
		return err
	}
	for _, x := range xs {
		if x == nil {
			return &ConfigurationError{Reason: "nil operand in antecedent"}
		}
		if err := x.walk(visit); err != nil {
			return err
		}
	}
	return nil
}

func (e orExpr) walk(visit func(Expr) error) error  { return walkAll(e, e.operands, visit) }
func (e andExpr) walk(visit func(Expr) error) error { return walkAll(e, e.operands, visit) }
func (e notExpr) walk(visit func(Expr) error) error {
	return walkAll(e, []Expr{e.operand}, visit)
}
