package fuzzy

import (
	"fmt"
)

// Config is the immutable engine configuration: linguistic variables and the
// rule base. It is built once at startup and safe for concurrent use.
type Config struct {
	variables map[string]*Variable
	order     []string
	rules     []Rule
	outputs   []string
	byOutput  map[string][]int
}

func NewConfig(variables []*Variable, rules []Rule) (*Config, error) {
	c := &Config{
		variables: make(map[string]*Variable, len(variables)),
		byOutput:  make(map[string][]int),
	}
	for _, v := range variables {
		if v == nil {
			return nil, &ConfigurationError{Reason: "nil variable"}
		}
		if _, ok := c.variables[v.Name()]; ok {
			return nil, &ConfigurationError{Variable: v.Name(), Reason: "duplicate variable"}
		}
		c.variables[v.Name()] = v
		c.order = append(c.order, v.Name())
		if v.Role() == Consequent {
			c.outputs = append(c.outputs, v.Name())
		}
	}
	if len(c.outputs) == 0 {
		return nil, &ConfigurationError{Reason: "at least one consequent variable is required"}
	}
	for i, r := range rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule%d", i+1)
		}
		err := c.checkRule(r)
		if err != nil {
			return nil, err
		}
		c.rules = append(c.rules, r)
		c.byOutput[r.Consequent.Variable] = append(c.byOutput[r.Consequent.Variable], i)
	}
	for _, o := range c.outputs {
		if len(c.byOutput[o]) == 0 {
			return nil, &ConfigurationError{Variable: o, Reason: "no rule concludes on this output"}
		}
	}
	return c, nil
}

func (c *Config) checkRule(r Rule) error {
	if r.Antecedent == nil {
		return &ConfigurationError{Rule: r.Name, Reason: "antecedent missing"}
	}
	err := r.Antecedent.walk(func(x Expr) error {
		switch x := x.(type) {
		case TermRef:
			v, ok := c.variables[x.Variable]
			if !ok {
				return &ConfigurationError{Rule: r.Name, Variable: x.Variable, Reason: "unknown variable"}
			}
			if v.Role() != Antecedent {
				return &ConfigurationError{Rule: r.Name, Variable: x.Variable,
					Reason: "antecedent references a consequent variable"}
			}
			if _, ok := v.Term(x.Term); !ok {
				return &ConfigurationError{Rule: r.Name, Variable: x.Variable, Term: x.Term, Reason: "unknown term"}
			}
		case orExpr:
			if len(x.operands) == 0 {
				return &ConfigurationError{Rule: r.Name, Reason: "OR without operands"}
			}
		case andExpr:
			if len(x.operands) == 0 {
				return &ConfigurationError{Rule: r.Name, Reason: "AND without operands"}
			}
		}
		return nil
	})
	if err != nil {
		if ce, ok := err.(*ConfigurationError); ok && ce.Rule == "" {
			ce.Rule = r.Name
		}
		return err
	}
	v, ok := c.variables[r.Consequent.Variable]
	if !ok {
		return &ConfigurationError{Rule: r.Name, Variable: r.Consequent.Variable, Reason: "unknown variable"}
	}
	if v.Role() != Consequent {
		return &ConfigurationError{Rule: r.Name, Variable: r.Consequent.Variable,
			Reason: "consequent references an antecedent variable"}
	}
	if _, ok := v.Term(r.Consequent.Term); !ok {
		return &ConfigurationError{Rule: r.Name, Variable: r.Consequent.Variable, Term: r.Consequent.Term,
			Reason: "unknown term"}
	}
	return nil
}

func (c *Config) Variable(name string) (*Variable, bool) {
	v, ok := c.variables[name]
	return v, ok
}

// Variables returns all variables in declaration order.
func (c *Config) Variables() []*Variable {
	vs := make([]*Variable, len(c.order))
	for i, n := range c.order {
		vs[i] = c.variables[n]
	}
	return vs
}

// Outputs returns the names of the consequent variables in declaration order.
func (c *Config) Outputs() []string {
	return append([]string(nil), c.outputs...)
}

// Rules returns the rules concluding on output, in declaration order.
func (c *Config) Rules(output string) []Rule {
	idx := c.byOutput[output]
	rs := make([]Rule, len(idx))
	for i, j := range idx {
		rs[i] = c.rules[j]
	}
	return rs
}

// Inputs returns the antecedent variables referenced by the rules of output,
// in declaration order.
func (c *Config) Inputs(output string) []string {
	used := make(map[string]bool)
	for _, r := range c.Rules(output) {
		_ = r.Antecedent.walk(func(x Expr) error {
			if t, ok := x.(TermRef); ok {
				used[t.Variable] = true
			}
			return nil
		})
	}
	var ns []string
	for _, n := range c.order {
		if used[n] {
			ns = append(ns, n)
		}
	}
	return ns
}

// Fuzzify fuzzifies the given crisp values. Names that do not denote an
// antecedent variable are ignored.
func (c *Config) Fuzzify(crisp map[string]float64) Inputs {
	in := make(Inputs, len(crisp))
	for n, x := range crisp {
		v, ok := c.variables[n]
		if !ok || v.Role() != Antecedent {
			continue
		}
		in[n] = v.Fuzzify(x)
	}
	return in
}
