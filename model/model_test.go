package model_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/feature"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/model"
)

const featuresYAML = `features: [vehicle_count, avg_speed, speed_std, avg_acceleration, acc_std, avg_co2, avg_fuel, sudden_brake_count]
`

// 单棵树：vehicle_count <= 2.5 ? 0.2 : (avg_speed <= 4 ? 0.9 : 0.5)
const forestYAML = `kind: forest
` + featuresYAML + `trees:
  - children_left: [1, -1, 3, -1, -1]
    children_right: [2, -1, 4, -1, -1]
    feature: [0, -2, 1, -2, -2]
    threshold: [2.5, -2, 4, -2, -2]
    value: [0, 0.2, 0, 0.9, 0.5]
  - children_left: [-1]
    children_right: [-1]
    feature: [-2]
    threshold: [-2]
    value: [0.3]
`

const linearYAML = `kind: linear
` + featuresYAML + `intercept: 0.1
coef: [0.1, 0.01, 0, 0, 0, 0, 0, 0.05]
`

func mustParse(t *testing.T, data string) model.Predictor {
	t.Helper()
	p, err := model.Parse([]byte(data))
	require.NoError(t, err)
	return p
}

func TestForestPredict(t *testing.T) {
	p := mustParse(t, forestYAML)

	y, err := p.Predict(feature.Vector{VehicleCount: 1}.Slice())
	require.NoError(t, err)
	assert.InDelta(t, (0.2+0.3)/2, y, 1e-12)

	y, err = p.Predict(feature.Vector{VehicleCount: 3, AvgSpeed: 4}.Slice())
	require.NoError(t, err)
	assert.InDelta(t, (0.9+0.3)/2, y, 1e-12)

	y, err = p.Predict(feature.Vector{VehicleCount: 3, AvgSpeed: 4.5}.Slice())
	require.NoError(t, err)
	assert.InDelta(t, (0.5+0.3)/2, y, 1e-12)
}

func TestBoostingPredict(t *testing.T) {
	data := `kind: boosting
base_score: 0.5
learning_rate: 0.1
` + featuresYAML + `trees:
  - children_left: [1, -1, -1]
    children_right: [2, -1, -1]
    feature: [7, -2, -2]
    threshold: [0.5, -2, -2]
    value: [0, -1, 2]
`
	p := mustParse(t, data)
	y, err := p.Predict(feature.Vector{}.Slice())
	require.NoError(t, err)
	assert.InDelta(t, 0.4, y, 1e-12)
	y, err = p.Predict(feature.Vector{SuddenBrakeCount: 1}.Slice())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, y, 1e-12)
}

func TestLinearPredict(t *testing.T) {
	p := mustParse(t, linearYAML)
	y, err := p.Predict(feature.Vector{VehicleCount: 3, AvgSpeed: 5, SuddenBrakeCount: 2}.Slice())
	require.NoError(t, err)
	assert.InDelta(t, 0.1+0.3+0.05+0.1, y, 1e-12)
}

func TestParseFeatureContract(t *testing.T) {
	reordered := `kind: linear
features: [avg_speed, vehicle_count, speed_std, avg_acceleration, acc_std, avg_co2, avg_fuel, sudden_brake_count]
coef: [0, 0, 0, 0, 0, 0, 0, 0]
`
	_, err := model.Parse([]byte(reordered))
	assert.ErrorIs(t, err, model.ErrFeatureContract)

	missing := `kind: linear
features: [vehicle_count, avg_speed]
coef: [0, 0]
`
	_, err = model.Parse([]byte(missing))
	assert.ErrorIs(t, err, model.ErrFeatureContract)
}

func TestParseBadModel(t *testing.T) {
	cases := map[string]string{
		"unknown kind": "kind: svm\n" + featuresYAML,
		"no trees":     "kind: forest\n" + featuresYAML,
		"short coef":   "kind: linear\n" + featuresYAML + "coef: [1]\n",
		"cyclic tree": "kind: forest\n" + featuresYAML + `trees:
  - children_left: [0]
    children_right: [0]
    feature: [0]
    threshold: [1]
    value: [1]
`,
		"unknown field": "kind: linear\n" + featuresYAML + "coef: [0, 0, 0, 0, 0, 0, 0, 0]\nbias: 1\n",
	}
	for name, data := range cases {
		_, err := model.Parse([]byte(data))
		assert.ErrorIs(t, err, model.ErrBadModel, name)
	}
}

func TestPredictRejectsBadInput(t *testing.T) {
	p := mustParse(t, linearYAML)
	_, err := p.Predict([]float64{1, 2, 3})
	assert.ErrorIs(t, err, model.ErrFeatureContract)

	x := feature.Vector{AvgSpeed: math.NaN()}.Slice()
	_, err = p.Predict(x)
	assert.ErrorIs(t, err, model.ErrNonFinite)
}

func TestEnsembleMean(t *testing.T) {
	forest := mustParse(t, forestYAML)
	linear := mustParse(t, linearYAML)
	e, err := model.NewEnsemble(
		model.Member{Name: "rf", Predictor: forest},
		model.Member{Name: "lin", Predictor: linear},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Len())

	f := feature.Vector{VehicleCount: 3, AvgSpeed: 5, AvgCO2: 2000, AvgFuel: 600}
	a, err := forest.Predict(f.Slice())
	require.NoError(t, err)
	b, err := linear.Predict(f.Slice())
	require.NoError(t, err)
	tis, err := e.Score(f)
	require.NoError(t, err)
	assert.InDelta(t, (a+b)/2, tis, 1e-12)
}

func TestEnsembleWeights(t *testing.T) {
	e, err := model.NewEnsemble(
		model.Member{Name: "one", Predictor: &model.Linear{Intercept: 1, Coef: make([]float64, 8)}, Weight: 3},
		model.Member{Name: "zero", Predictor: &model.Linear{Coef: make([]float64, 8)}, Weight: 1},
	)
	require.NoError(t, err)
	tis, err := e.Score(feature.Vector{})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, tis, 1e-12)

	_, err = model.NewEnsemble()
	assert.ErrorIs(t, err, model.ErrBadModel)
	_, err = model.NewEnsemble(model.Member{Name: "neg", Predictor: &model.Linear{Coef: make([]float64, 8)}, Weight: -1})
	assert.ErrorIs(t, err, model.ErrBadModel)
}

func TestEnsembleNonFinitePrediction(t *testing.T) {
	e, err := model.NewEnsemble(model.Member{Name: "inf", Predictor: &model.Linear{Intercept: math.Inf(1), Coef: make([]float64, 8)}})
	require.NoError(t, err)
	_, err = e.Score(feature.Vector{})
	assert.ErrorIs(t, err, model.ErrNonFinite)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(linearYAML), 0644))
	p, err := model.Load(path)
	require.NoError(t, err)
	assert.IsType(t, &model.Linear{}, p)

	_, err = model.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
