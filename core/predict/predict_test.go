package predict_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"example.com/fieldctl/core/predict"
)

const soilModel = `
id: soil_moisture
kind: linear
features: [humidity, temperature]
intercept: 10
coefficients: [0.5, -0.2]
clamp: [0, 100]
`

const healthModel = `
kind: logistic
features: [temperature, humidity, soil_moisture, ph_level]
intercept: 0
coefficients: [0, 0, 0, 0]
`

func writeModel(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	err := os.WriteFile(p, []byte(content), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadAndPredict(t *testing.T) {
	dir := t.TempDir()
	h, err := predict.Load(map[string]string{
		predict.SoilMoisture: writeModel(t, dir, "soil.yaml", soilModel),
		predict.PlantHealth:  writeModel(t, dir, "health.yaml", healthModel),
	})
	if err != nil {
		t.Fatal(err)
	}
	if ids := h.Models(); len(ids) != 2 || ids[0] != predict.PlantHealth || ids[1] != predict.SoilMoisture {
		t.Fatalf("Models() = %v", ids)
	}

	ctx := context.Background()
	tests := []struct {
		id       string
		features []float64
		want     float64
	}{
		{predict.SoilMoisture, []float64{40, 25}, 10 + 20 - 5},
		{predict.SoilMoisture, []float64{0, 200}, 0},
		{predict.SoilMoisture, []float64{300, 0}, 100},
		{predict.PlantHealth, []float64{1, 2, 3, 4}, 0.5},
	}
	for _, tt := range tests {
		got, err := h.Predict(ctx, tt.id, tt.features)
		if err != nil {
			t.Errorf("Predict(%s, %v) failed: %v", tt.id, tt.features, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Predict(%s, %v) = %v, want %v", tt.id, tt.features, got, tt.want)
		}
	}
}

func TestLoadSkipsEmptyPath(t *testing.T) {
	h, err := predict.Load(map[string]string{predict.PlantHealth: ""})
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Models()) != 0 {
		t.Errorf("Models() = %v, want none", h.Models())
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, content string
	}{
		{"unknown field", "kind: linear\nfeatures: [a]\ncoefficients: [1]\nbias: 2\n"},
		{"unknown kind", "kind: forest\nfeatures: [a]\ncoefficients: [1]\n"},
		{"mismatch", "kind: linear\nfeatures: [a, b]\ncoefficients: [1]\n"},
		{"no features", "kind: linear\n"},
		{"clamp", "kind: linear\nfeatures: [a]\ncoefficients: [1]\nclamp: [5, 1]\n"},
		{"id", "id: plant_health\nkind: linear\nfeatures: [a]\ncoefficients: [1]\n"},
		{"syntax", "kind: [linear\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeModel(t, dir, tt.name+".yaml", tt.content)
			_, err := predict.Load(map[string]string{predict.SoilMoisture: p})
			var le *predict.ModelLoadError
			if !errors.As(err, &le) || le.ModelID != predict.SoilMoisture || le.Path != p {
				t.Errorf("Load = %v; want ModelLoadError for %s", err, p)
			}
		})
	}

	_, err := predict.Load(map[string]string{predict.SoilMoisture: filepath.Join(dir, "missing.yaml")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v; want ErrNotExist", err)
	}
}

func TestPredictErrors(t *testing.T) {
	h, err := predict.NewHandle(&predict.Model{
		ID:           predict.SoilMoisture,
		Kind:         predict.KindLinear,
		Features:     []string{"humidity", "temperature"},
		Coefficients: []float64{1, 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		ctx      context.Context
		id       string
		features []float64
	}{
		{"unknown model", context.Background(), predict.PlantHealth, []float64{1, 2, 3, 4}},
		{"feature count", context.Background(), predict.SoilMoisture, []float64{1}},
		{"NaN", context.Background(), predict.SoilMoisture, []float64{math.NaN(), 1}},
		{"canceled", canceled, predict.SoilMoisture, []float64{1, 2}},
	}
	for _, tt := range tests {
		_, err := h.Predict(tt.ctx, tt.id, tt.features)
		var ie *predict.InferenceError
		if !errors.As(err, &ie) || ie.ModelID != tt.id {
			t.Errorf("%s: Predict = %v; want InferenceError for %s", tt.name, err, tt.id)
		}
	}
}

func TestFeatureVector(t *testing.T) {
	h, err := predict.NewHandle(&predict.Model{
		ID:           predict.SoilMoisture,
		Kind:         predict.KindLinear,
		Features:     []string{"humidity", "temperature"},
		Coefficients: []float64{1, 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	x, err := h.FeatureVector(predict.SoilMoisture, map[string]float64{
		"temperature": 30, "humidity": 60, "ph_level": 7,
	})
	if err != nil || len(x) != 2 || x[0] != 60 || x[1] != 30 {
		t.Errorf("FeatureVector = %v, %v; want [60 30]", x, err)
	}
	_, err = h.FeatureVector(predict.SoilMoisture, map[string]float64{"temperature": 30})
	if err == nil {
		t.Errorf("FeatureVector accepted missing humidity")
	}
}
