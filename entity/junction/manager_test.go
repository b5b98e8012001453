package junction_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/clock"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/feature"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/envtest"
)

type testContext struct {
	env entity.IEnvironment
	rc  *config.RuntimeConfig
	clk *clock.Clock
}

func (c *testContext) Clock() *clock.Clock                  { return c.clk }
func (c *testContext) Environment() entity.IEnvironment     { return c.env }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }

func newContext(env entity.IEnvironment, kind string) *testContext {
	c := config.Default()
	c.Control.Policy.Kind = kind
	return &testContext{env: env, rc: config.NewRuntimeConfig(c), clk: clock.New(c.Control.Step)}
}

// linearScorer TIS = 车辆数 * 0.1
type linearScorer struct{}

func (linearScorer) Score(f feature.Vector) (float64, error) {
	return f.VehicleCount * 0.1, nil
}

// crossing 两相位路口：南北直行与东西直行，北进口车道对应两个连接
func crossing() *envtest.TrafficLight {
	return &envtest.TrafficLight{
		ID:         "tl0",
		Controlled: []string{"n", "n", "s", "e", "w"},
		Phases: []entity.PhaseDefinition{
			{Index: 0, State: "GGGrr", Duration: 30},
			{Index: 1, State: "yyyrr", Duration: 3},
			{Index: 2, State: "rrrGG", Duration: 30},
			{Index: 3, State: "rrryy", Duration: 3},
		},
		Remaining: 30,
	}
}

func addVehicles(env *envtest.Env, lane string, n int) {
	for i := 0; i < n; i++ {
		env.AddVehicle(lane, entity.VehicleState{ID: lane + string(rune('0'+i)), TypeID: "passenger", Speed: 1})
	}
}

func TestInitNoTrafficLight(t *testing.T) {
	env := envtest.New()
	m := junction.NewManager(newContext(env, config.PolicyTIS))
	err := m.Init(nil, trafficlight.NewTISScorer(linearScorer{}, -3, false))
	assert.ErrorIs(t, err, junction.ErrNoTrafficLight)
}

func TestInitUnknownTrafficLight(t *testing.T) {
	env := envtest.New(crossing())
	m := junction.NewManager(newContext(env, config.PolicyTIS))
	err := m.Init([]string{"tl9"}, trafficlight.NewTISScorer(linearScorer{}, -3, false))
	assert.ErrorIs(t, err, junction.ErrUnknownTrafficLight)
}

func TestInitDefaultsToFirstTrafficLight(t *testing.T) {
	second := crossing()
	second.ID = "tl1"
	env := envtest.New(crossing(), second)
	m := junction.NewManager(newContext(env, config.PolicyTIS))
	require.NoError(t, m.Init(nil, trafficlight.NewTISScorer(linearScorer{}, -3, false)))
	require.Len(t, m.Junctions(), 1)
	assert.Equal(t, "tl0", m.Junctions()[0].ID())
	assert.Equal(t, []string{"n", "s", "e", "w"}, m.Lanes())
}

func TestStepNormal(t *testing.T) {
	env := envtest.New(crossing())
	addVehicles(env, "n", 1)
	addVehicles(env, "e", 3)
	addVehicles(env, "w", 2)
	m := junction.NewManager(newContext(env, config.PolicyTIS))
	require.NoError(t, m.Init(nil, trafficlight.NewTISScorer(linearScorer{}, -3, false)))

	actions, err := m.Step(false)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, entity.ActionNormal, a.Kind)
	assert.Equal(t, 2, a.Phase)
	assert.InDelta(t, 0.5, a.Utility, 1e-12)
	assert.InDelta(t, 15+30*0.5, a.Duration, 1e-9)

	want := []envtest.Command{
		{Kind: "phase", TrafficLight: "tl0", Phase: 2},
		{Kind: "duration", TrafficLight: "tl0", Phase: 2, Duration: a.Duration},
	}
	if diff := cmp.Diff(want, env.Commands); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}

	g, err := m.Get(0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), g.Phase())
	assert.Equal(t, a.Duration, g.RemainingTime())
	assert.Equal(t, a, g.LastAction())
}

func TestStepPriorityTakesPrecedence(t *testing.T) {
	env := envtest.New(crossing())
	addVehicles(env, "e", 5)
	env.AddVehicle("", entity.VehicleState{ID: "amb", TypeID: "emergency"})
	m := junction.NewManager(newContext(env, config.PolicyTIS))
	require.NoError(t, m.Init(nil, trafficlight.NewTISScorer(linearScorer{}, -3, false)))

	priority, err := trafficlight.DetectPriority(env, "emergency")
	require.NoError(t, err)
	require.True(t, priority)
	actions, err := m.Step(priority)
	require.NoError(t, err)
	assert.Equal(t, entity.Action{TrafficLight: "tl0", Kind: entity.ActionPriority, Phase: 0, Duration: 40}, actions[0])
	assert.Equal(t, []envtest.Command{{Kind: "duration", TrafficLight: "tl0", Phase: 0, Duration: 40}}, env.Commands)
	assert.Equal(t, "Priority(tl=tl0, duration=40)", actions[0].String())
}

func TestStepFixedHolds(t *testing.T) {
	env := envtest.New(crossing())
	addVehicles(env, "e", 5)
	m := junction.NewManager(newContext(env, config.PolicyFixed))
	require.NoError(t, m.Init(nil, nil))
	actions, err := m.Step(true)
	require.NoError(t, err)
	assert.Equal(t, entity.ActionHold, actions[0].Kind)
	assert.Empty(t, env.Commands)
}

func TestStepMaxPressure(t *testing.T) {
	env := envtest.New(crossing())
	env.Halting["n"] = 2
	env.Halting["s"] = 1
	env.Halting["e"] = 2
	m := junction.NewManager(newContext(env, config.PolicyMaxPressure))
	require.NoError(t, m.Init(nil, trafficlight.NewPressureScorer()))
	actions, err := m.Step(false)
	require.NoError(t, err)
	// 北进口两个连接：2+2+1 > 2
	assert.Equal(t, 0, actions[0].Phase)
	assert.Equal(t, 5., actions[0].Utility)
}

func TestStepEmptyNetworkSelectsFirstPhase(t *testing.T) {
	env := envtest.New(crossing())
	m := junction.NewManager(newContext(env, config.PolicyTIS))
	require.NoError(t, m.Init(nil, trafficlight.NewTISScorer(linearScorer{}, -3, false)))
	actions, err := m.Step(false)
	require.NoError(t, err)
	assert.Equal(t, entity.ActionNormal, actions[0].Kind)
	assert.Equal(t, 0, actions[0].Phase)
	assert.Equal(t, 15., actions[0].Duration)
}

func TestGetTrafficLightRPC(t *testing.T) {
	env := envtest.New(crossing())
	addVehicles(env, "e", 2)
	m := junction.NewManager(newContext(env, config.PolicyTIS))
	require.NoError(t, m.Init(nil, trafficlight.NewTISScorer(linearScorer{}, -3, false)))
	_, err := m.Step(false)
	require.NoError(t, err)

	res, err := m.GetTrafficLight(context.Background(), connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 0}))
	require.NoError(t, err)
	assert.Equal(t, int32(2), res.Msg.PhaseIndex)
	assert.InDelta(t, 21., res.Msg.TimeRemaining, 1e-9)
	require.Len(t, res.Msg.TrafficLight.Phases, 4)
	assert.Equal(t, []mapv2.LightState{
		mapv2.LightState_LIGHT_STATE_RED,
		mapv2.LightState_LIGHT_STATE_RED,
		mapv2.LightState_LIGHT_STATE_RED,
		mapv2.LightState_LIGHT_STATE_GREEN,
		mapv2.LightState_LIGHT_STATE_GREEN,
	}, res.Msg.TrafficLight.Phases[2].States)

	_, err = m.GetTrafficLight(context.Background(), connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 7}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
