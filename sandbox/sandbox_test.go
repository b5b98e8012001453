package sandbox_test

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/sandbox"
)

const crossYAML = `
interval: 1
seed: 7
lanes:
  - {id: n_in, length: 120, max_speed: 13.9}
  - {id: e_in, length: 120, max_speed: 13.9}
traffic_lights:
  - id: tl0
    controlled: [n_in, e_in]
    phases:
      - {state: Gr, duration: 10}
      - {state: yr, duration: 3}
      - {state: rG, duration: 10}
      - {state: ry, duration: 3}
vehicle_types:
  - {id: passenger}
  - {id: emergency_ambulance, max_speed: 20}
flows:
  - id: n
    lane: n_in
    types: [{type: passenger, weight: 9}, {type: emergency_ambulance, weight: 1}]
    probability: 0.2
    begin: 0
    end: 200
  - id: e
    lane: e_in
    types: [{type: passenger, weight: 1}]
    period: 6
    begin: 0
    end: 200
`

const redYAML = `
interval: 1
lanes:
  - {id: l0, length: 100, max_speed: 15}
traffic_lights:
  - id: tl0
    controlled: [l0]
    phases:
      - {state: r, duration: 1000}
      - {state: G, duration: 1000}
vehicle_types:
  - {id: passenger}
vehicles:
  - {id: v0, type: passenger, lane: l0, depart: 0}
  - {id: v1, type: passenger, lane: l0, depart: 3}
`

func newSandbox(t *testing.T, data string, seed *uint64) *sandbox.Sandbox {
	t.Helper()
	s, err := sandbox.ParseScenario([]byte(data))
	require.NoError(t, err)
	sb, err := sandbox.New(s, seed)
	require.NoError(t, err)
	return sb
}

func TestParseScenarioDefaults(t *testing.T) {
	s, err := sandbox.ParseScenario([]byte(crossYAML))
	require.NoError(t, err)
	require.Len(t, s.VehicleTypes, 2)
	p := s.VehicleTypes[0]
	assert.Equal(t, 2.6, p.MaxA)
	assert.Equal(t, -4.5, p.UsualBrakingA)
	assert.Equal(t, 5., p.Length)
	assert.Equal(t, 20., s.VehicleTypes[1].MaxV)
}

func TestParseScenarioInvalid(t *testing.T) {
	cases := map[string]string{
		"bad state": `
interval: 1
lanes: [{id: l0, length: 10, max_speed: 10}]
traffic_lights: [{id: tl0, controlled: [l0], phases: [{state: X, duration: 5}]}]
`,
		"state length": `
interval: 1
lanes: [{id: l0, length: 10, max_speed: 10}]
traffic_lights: [{id: tl0, controlled: [l0], phases: [{state: GG, duration: 5}]}]
`,
		"unknown lane": `
interval: 1
lanes: [{id: l0, length: 10, max_speed: 10}]
vehicle_types: [{id: car}]
vehicles: [{id: v0, type: car, lane: l9, depart: 0}]
`,
		"unknown type": `
interval: 1
lanes: [{id: l0, length: 10, max_speed: 10}]
vehicles: [{id: v0, type: car, lane: l0, depart: 0}]
`,
		"zero interval": `
lanes: [{id: l0, length: 10, max_speed: 10}]
`,
		"unknown field": `
interval: 1
lanes: [{id: l0, length: 10, max_speed: 10, width: 3}]
`,
	}
	for name, data := range cases {
		_, err := sandbox.ParseScenario([]byte(data))
		assert.ErrorIs(t, err, sandbox.ErrInvalidScenario, name)
	}
}

func TestDeterministic(t *testing.T) {
	a := newSandbox(t, crossYAML, nil)
	b := newSandbox(t, crossYAML, nil)
	for i := 0; i < 150; i++ {
		require.NoError(t, a.Step())
		require.NoError(t, b.Step())
		require.Equal(t, a.VehicleIDs(), b.VehicleIDs(), "step %d", i)
		for _, id := range a.VehicleIDs() {
			va, err := a.Vehicle(id)
			require.NoError(t, err)
			vb, err := b.Vehicle(id)
			require.NoError(t, err)
			require.Equal(t, va, vb)
		}
	}
	assert.Equal(t, a.MinExpectedNumber(), b.MinExpectedNumber())
}

func TestPeriodicFlow(t *testing.T) {
	sb := newSandbox(t, crossYAML, lo.ToPtr(uint64(1)))
	// 周期6秒，[0, 200]内共34辆车
	n := 0
	seen := map[string]struct{}{}
	for i := 0; i < 400 && sb.MinExpectedNumber() > 0; i++ {
		require.NoError(t, sb.Step())
		ids, err := sb.LaneVehicleIDs("e_in")
		require.NoError(t, err)
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				n++
			}
		}
	}
	assert.Equal(t, 34, n)
	assert.Equal(t, 0, sb.MinExpectedNumber())
}

func TestStopAtRedAndWaitingTime(t *testing.T) {
	sb := newSandbox(t, redYAML, nil)
	for i := 0; i < 80; i++ {
		require.NoError(t, sb.Step())
	}
	ids, err := sb.LaneVehicleIDs("l0")
	require.NoError(t, err)
	assert.Equal(t, []string{"v0", "v1"}, ids)
	halting, err := sb.LaneHaltingNumber("l0")
	require.NoError(t, err)
	assert.Equal(t, 2, halting)
	v, err := sb.Vehicle("v1")
	require.NoError(t, err)
	assert.Less(t, v.Speed, 0.1)
	assert.Greater(t, v.WaitingTime, 0.)

	// 停止时等待时间逐步累加
	waited := v.WaitingTime
	require.NoError(t, sb.Step())
	v, err = sb.Vehicle("v1")
	require.NoError(t, err)
	assert.InDelta(t, waited+1, v.WaitingTime, 1e-9)

	// 转为绿灯后起步，等待时间清零
	require.NoError(t, sb.SetPhase("tl0", 1))
	for i := 0; i < 5 && v.Speed < 0.1; i++ {
		require.NoError(t, sb.Step())
		v, err = sb.Vehicle("v1")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, v.Speed, 0.1)
	assert.Equal(t, 0., v.WaitingTime)
	assert.Greater(t, v.CO2, 0.)
	assert.Greater(t, v.Fuel, 0.)
	_, err = sb.Vehicle("v0")
	assert.ErrorIs(t, err, entity.ErrUnknownVehicle)

	for i := 0; i < 30 && sb.MinExpectedNumber() > 0; i++ {
		require.NoError(t, sb.Step())
	}
	assert.Equal(t, 0, sb.MinExpectedNumber())
}

func TestTrafficLightProgram(t *testing.T) {
	sb := newSandbox(t, crossYAML, nil)
	assert.Equal(t, []string{"tl0"}, sb.TrafficLightIDs())
	lanes, err := sb.ControlledLanes("tl0")
	require.NoError(t, err)
	assert.Equal(t, []string{"n_in", "e_in"}, lanes)
	phases, err := sb.Phases("tl0")
	require.NoError(t, err)
	assert.Equal(t, entity.PhaseDefinition{Index: 2, State: "rG", Duration: 10}, phases[2])

	for i := 0; i < 10; i++ {
		require.NoError(t, sb.Step())
	}
	cur, err := sb.CurrentPhase("tl0")
	require.NoError(t, err)
	assert.Equal(t, 1, cur)
	remaining, err := sb.RemainingTime("tl0")
	require.NoError(t, err)
	assert.InDelta(t, 3., remaining, 1e-9)

	require.NoError(t, sb.SetPhase("tl0", 2))
	remaining, err = sb.RemainingTime("tl0")
	require.NoError(t, err)
	assert.Equal(t, 10., remaining)
	require.NoError(t, sb.SetPhaseDuration("tl0", 40))
	remaining, err = sb.RemainingTime("tl0")
	require.NoError(t, err)
	assert.Equal(t, 40., remaining)
	cur, err = sb.CurrentPhase("tl0")
	require.NoError(t, err)
	assert.Equal(t, 2, cur)

	assert.ErrorIs(t, sb.SetPhase("tl0", 4), entity.ErrBadPhaseIndex)
	assert.Error(t, sb.SetPhaseDuration("tl0", 0))
	assert.ErrorIs(t, sb.SetPhase("tl9", 0), entity.ErrUnknownTrafficLight)
	_, err = sb.LaneVehicleIDs("nowhere")
	assert.ErrorIs(t, err, entity.ErrUnknownLane)
}

func TestClose(t *testing.T) {
	sb := newSandbox(t, redYAML, nil)
	require.NoError(t, sb.Close())
	require.NoError(t, sb.Close())
	assert.Error(t, sb.Step())
}
