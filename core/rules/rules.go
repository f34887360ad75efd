package rules

import (
	"example.com/fieldctl/core/fuzzy"
)

const (
	Temperature    = "temperature"
	Humidity       = "humidity"
	SoilMoisture   = "soil_moisture"
	PHLevel        = "ph_level"
	WaterPump      = "water_pump"
	PesticideSpray = "pesticide_spray"
)

// Inputs lists the antecedent variables in acquisition order.
var Inputs = [...]string{Temperature, Humidity, SoilMoisture, PHLevel}

// Outputs lists the consequent variables, one per actuator.
var Outputs = [...]string{WaterPump, PesticideSpray}

type termSpec struct {
	name    string
	a, b, c float64
}

type variableSpec struct {
	name           string
	role           fuzzy.Role
	min, max, step float64
	terms          []termSpec
}

var (
	percentTerms = []termSpec{
		{"low", 0, 20, 40},
		{"medium", 30, 50, 70},
		{"high", 60, 80, 100},
	}
	intensityTerms = []termSpec{
		{"low", 0, 30, 60},
		{"medium", 40, 70, 100},
		{"high", 80, 100, 100},
	}

	variableSpecs = []variableSpec{
		{Temperature, fuzzy.Antecedent, 0, 100, 1, percentTerms},
		{Humidity, fuzzy.Antecedent, 0, 100, 1, percentTerms},
		{SoilMoisture, fuzzy.Antecedent, 0, 100, 1, []termSpec{
			{"dry", 0, 20, 40},
			{"moist", 30, 50, 70},
			{"wet", 60, 80, 100},
		}},
		{PHLevel, fuzzy.Antecedent, 0, 14.9, 0.1, []termSpec{
			{"acidic", 0, 3, 6},
			{"neutral", 5, 7, 9},
			{"alkaline", 8, 11, 14},
		}},
		{WaterPump, fuzzy.Consequent, 0, 100, 1, intensityTerms},
		{PesticideSpray, fuzzy.Consequent, 0, 100, 1, intensityTerms},
	}
)

func newVariable(s variableSpec) (*fuzzy.Variable, []fuzzy.ConfigurationWarning, error) {
	u, err := fuzzy.NewUniverse(s.min, s.max, s.step)
	if err != nil {
		if ce, ok := err.(*fuzzy.ConfigurationError); ok {
			ce.Variable = s.name
		}
		return nil, nil, err
	}
	ts := make([]fuzzy.Term, len(s.terms))
	for i, t := range s.terms {
		shape, err := fuzzy.NewTriangle(t.a, t.b, t.c)
		if err != nil {
			if ce, ok := err.(*fuzzy.ConfigurationError); ok {
				ce.Variable, ce.Term = s.name, t.name
			}
			return nil, nil, err
		}
		ts[i] = fuzzy.Term{Name: t.name, Shape: shape}
	}
	return fuzzy.NewVariable(s.name, s.role, u, ts...)
}

// Base returns the two independent rule subsets: irrigation when it is hot,
// humid or dry, and spraying when the soil is acidic or dry.
func Base() []fuzzy.Rule {
	return []fuzzy.Rule{
		fuzzy.NewRule("irrigation",
			fuzzy.Or(
				fuzzy.Is(Temperature, "high"),
				fuzzy.Is(Humidity, "high"),
				fuzzy.Is(SoilMoisture, "dry"),
			),
			fuzzy.Is(WaterPump, "high"),
		),
		fuzzy.NewRule("spraying",
			fuzzy.Or(
				fuzzy.Is(PHLevel, "acidic"),
				fuzzy.Is(SoilMoisture, "dry"),
			),
			fuzzy.Is(PesticideSpray, "high"),
		),
	}
}

// NewConfig builds the engine configuration for the field controller.
func NewConfig() (*fuzzy.Config, []fuzzy.ConfigurationWarning, error) {
	var (
		vs []*fuzzy.Variable
		ws []fuzzy.ConfigurationWarning
	)
	for _, s := range variableSpecs {
		v, w, err := newVariable(s)
		if err != nil {
			return nil, nil, err
		}
		vs = append(vs, v)
		ws = append(ws, w...)
	}
	c, err := fuzzy.NewConfig(vs, Base())
	if err != nil {
		return nil, nil, err
	}
	return c, ws, nil
}
