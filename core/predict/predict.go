// Package predict evaluates the advisory regression models shipped with a
// field controller.
package predict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"example.com/fieldctl/base/floats"
)

const (
	SoilMoisture = "soil_moisture"
	PlantHealth  = "plant_health"

	KindLinear   = "linear"
	KindLogistic = "logistic"
)

var (
	errUnknownModel    = errors.New("unknown model")
	errUnknownKind     = errors.New("unknown model kind")
	errNoFeatures      = errors.New("model has no features")
	errFeatureMismatch = errors.New("number of coefficients does not match number of features")
	errFeatureCount    = errors.New("unexpected number of features")
	errNotFinite       = errors.New("non-finite parameter")
	errInvalidClamp    = errors.New("invalid output clamp")
	errIDMismatch      = errors.New("artifact id does not match the configured model")
)

type ModelLoadError struct {
	ModelID string
	Path    string
	Cause   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %q from %s: %v", e.ModelID, e.Path, e.Cause)
}

func (e *ModelLoadError) Unwrap() error { return e.Cause }

type InferenceError struct {
	ModelID string
	Cause   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("model %q: %v", e.ModelID, e.Cause)
}

func (e *InferenceError) Unwrap() error { return e.Cause }

// Model is a generalized linear model artifact.
type Model struct {
	ID           string    `yaml:"id"`
	Kind         string    `yaml:"kind"`
	Features     []string  `yaml:"features"`
	Intercept    float64   `yaml:"intercept"`
	Coefficients []float64 `yaml:"coefficients"`
	Clamp        []float64 `yaml:"clamp,omitempty"`
}

func (m *Model) validate() error {
	switch m.Kind {
	case KindLinear, KindLogistic:
	default:
		return errUnknownKind
	}
	if len(m.Features) == 0 {
		return errNoFeatures
	}
	if len(m.Coefficients) != len(m.Features) {
		return errFeatureMismatch
	}
	if !floats.Finite(m.Intercept) {
		return errNotFinite
	}
	for _, c := range m.Coefficients {
		if !floats.Finite(c) {
			return errNotFinite
		}
	}
	if len(m.Clamp) != 0 {
		if len(m.Clamp) != 2 || !floats.Finite(m.Clamp[0]) || !floats.Finite(m.Clamp[1]) ||
			m.Clamp[0] >= m.Clamp[1] {
			return errInvalidClamp
		}
	}
	return nil
}

func (m *Model) eval(x []float64) float64 {
	z := m.Intercept
	for i, c := range m.Coefficients {
		z += c * x[i]
	}
	if m.Kind == KindLogistic {
		z = 1 / (1 + math.Exp(-z))
	}
	if len(m.Clamp) == 2 {
		z = math.Max(m.Clamp[0], math.Min(z, m.Clamp[1]))
	}
	return z
}

// DecodeModel parses a YAML model artifact.
func DecodeModel(raw []byte) (*Model, error) {
	var m Model
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	err := dec.Decode(&m)
	if err != nil {
		return nil, err
	}
	err = m.validate()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Handle owns the loaded models. It is immutable after Load and safe for
// concurrent use.
type Handle struct {
	models map[string]*Model
}

// Load reads one artifact per model id. Entries with an empty path are
// skipped.
func Load(paths map[string]string) (*Handle, error) {
	h := &Handle{models: make(map[string]*Model, len(paths))}
	for id, path := range paths {
		if path == "" {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &ModelLoadError{ModelID: id, Path: path, Cause: err}
		}
		m, err := DecodeModel(raw)
		if err != nil {
			return nil, &ModelLoadError{ModelID: id, Path: path, Cause: err}
		}
		if m.ID == "" {
			m.ID = id
		} else if m.ID != id {
			return nil, &ModelLoadError{ModelID: id, Path: path, Cause: errIDMismatch}
		}
		h.models[id] = m
	}
	return h, nil
}

// NewHandle wraps already decoded models.
func NewHandle(ms ...*Model) (*Handle, error) {
	h := &Handle{models: make(map[string]*Model, len(ms))}
	for _, m := range ms {
		err := m.validate()
		if err != nil {
			return nil, &ModelLoadError{ModelID: m.ID, Cause: err}
		}
		h.models[m.ID] = m
	}
	return h, nil
}

// Models returns the ids of the loaded models in lexical order.
func (h *Handle) Models() []string {
	ids := make([]string, 0, len(h.models))
	for id := range h.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Features returns the input names model id expects, in order.
func (h *Handle) Features(id string) []string {
	m, ok := h.models[id]
	if !ok {
		return nil
	}
	return slices.Clone(m.Features)
}

// FeatureVector picks the features of model id out of named values.
func (h *Handle) FeatureVector(id string, values map[string]float64) ([]float64, error) {
	m, ok := h.models[id]
	if !ok {
		return nil, &InferenceError{ModelID: id, Cause: errUnknownModel}
	}
	x := make([]float64, len(m.Features))
	for i, f := range m.Features {
		v, ok := values[f]
		if !ok {
			return nil, &InferenceError{ModelID: id, Cause: fmt.Errorf("missing feature %q", f)}
		}
		x[i] = v
	}
	return x, nil
}

func (h *Handle) Predict(ctx context.Context, id string, features []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &InferenceError{ModelID: id, Cause: err}
	}
	m, ok := h.models[id]
	if !ok {
		return 0, &InferenceError{ModelID: id, Cause: errUnknownModel}
	}
	if len(features) != len(m.Features) {
		return 0, &InferenceError{ModelID: id, Cause: errFeatureCount}
	}
	for _, x := range features {
		if !floats.Finite(x) {
			return 0, &InferenceError{ModelID: id, Cause: errNotFinite}
		}
	}
	return m.eval(features), nil
}
