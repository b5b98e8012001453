// Package envtest 测试用的内存仿真环境，车辆、车道与信号灯状态均由测试直接设置
package envtest

import (
	"fmt"

	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
)

// TrafficLight 测试信号灯
type TrafficLight struct {
	ID         string
	Controlled []string
	Phases     []entity.PhaseDefinition
	Current    int
	Remaining  float64
}

// Command 环境收到的控制指令
type Command struct {
	Kind         string // "phase" | "duration"
	TrafficLight string
	Phase        int
	Duration     float64
}

// Env 测试环境，实现entity.IEnvironment
// 说明：OnStep在每次Step时被调用，用于按步改变车辆状态；Steps为0时MinExpectedNumber返回0
type Env struct {
	T        float64
	DT       float64
	Steps    int // 剩余步数
	Vehicles []entity.VehicleState
	Lanes    map[string][]string // 车道 -> 车辆ID
	Halting  map[string]int
	Lights   []*TrafficLight
	OnStep   func(e *Env)
	StepErr  error

	Commands []Command
	Closed   bool
}

var _ entity.IEnvironment = (*Env)(nil)

// New 创建空环境
func New(lights ...*TrafficLight) *Env {
	return &Env{
		DT:      1,
		Lanes:   make(map[string][]string),
		Halting: make(map[string]int),
		Lights:  lights,
	}
}

// AddVehicle 在车道上加入车辆
func (e *Env) AddVehicle(lane string, v entity.VehicleState) {
	e.Vehicles = append(e.Vehicles, v)
	if lane != "" {
		e.Lanes[lane] = append(e.Lanes[lane], v.ID)
	}
}

func (e *Env) Step() error {
	if e.StepErr != nil {
		return e.StepErr
	}
	e.T += e.DT
	if e.Steps > 0 {
		e.Steps--
	}
	if e.OnStep != nil {
		e.OnStep(e)
	}
	return nil
}

func (e *Env) Time() float64 { return e.T }

func (e *Env) MinExpectedNumber() int { return e.Steps }

func (e *Env) VehicleIDs() []string {
	ids := make([]string, len(e.Vehicles))
	for i, v := range e.Vehicles {
		ids[i] = v.ID
	}
	return ids
}

func (e *Env) Vehicle(id string) (entity.VehicleState, error) {
	for _, v := range e.Vehicles {
		if v.ID == id {
			return v, nil
		}
	}
	return entity.VehicleState{}, fmt.Errorf("%w: %s", entity.ErrUnknownVehicle, id)
}

func (e *Env) TrafficLightIDs() []string {
	ids := make([]string, len(e.Lights))
	for i, l := range e.Lights {
		ids[i] = l.ID
	}
	return ids
}

func (e *Env) light(id string) (*TrafficLight, error) {
	for _, l := range e.Lights {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", entity.ErrUnknownTrafficLight, id)
}

func (e *Env) ControlledLanes(tlID string) ([]string, error) {
	l, err := e.light(tlID)
	if err != nil {
		return nil, err
	}
	return l.Controlled, nil
}

func (e *Env) Phases(tlID string) ([]entity.PhaseDefinition, error) {
	l, err := e.light(tlID)
	if err != nil {
		return nil, err
	}
	return l.Phases, nil
}

func (e *Env) CurrentPhase(tlID string) (int, error) {
	l, err := e.light(tlID)
	if err != nil {
		return 0, err
	}
	return l.Current, nil
}

func (e *Env) RemainingTime(tlID string) (float64, error) {
	l, err := e.light(tlID)
	if err != nil {
		return 0, err
	}
	return l.Remaining, nil
}

func (e *Env) SetPhase(tlID string, index int) error {
	l, err := e.light(tlID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(l.Phases) {
		return fmt.Errorf("%w: %d", entity.ErrBadPhaseIndex, index)
	}
	l.Current = index
	l.Remaining = l.Phases[index].Duration
	e.Commands = append(e.Commands, Command{Kind: "phase", TrafficLight: tlID, Phase: index})
	return nil
}

func (e *Env) SetPhaseDuration(tlID string, duration float64) error {
	l, err := e.light(tlID)
	if err != nil {
		return err
	}
	l.Remaining = duration
	e.Commands = append(e.Commands, Command{Kind: "duration", TrafficLight: tlID, Phase: l.Current, Duration: duration})
	return nil
}

func (e *Env) LaneVehicleIDs(laneID string) ([]string, error) {
	return e.Lanes[laneID], nil
}

func (e *Env) LaneHaltingNumber(laneID string) (int, error) {
	return e.Halting[laneID], nil
}

func (e *Env) Close() error {
	e.Closed = true
	return nil
}
