// Package sandbox 内置的确定性微观交通仿真环境
// 单车道跟车(IDM)、按相位放行的信号灯、按场景生成的车流，用于在没有外部仿真器时运行与测试控制器
package sandbox

import (
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/randengine"
)

// Sandbox 沙盒仿真环境，实现entity.IEnvironment
type Sandbox struct {
	dt float64
	t  float64

	lanes    []*lane
	laneMap  map[string]*lane
	tls      []*trafficLight
	tlMap    map[string]*trafficLight
	vehicles map[string]*vehicle // 活动车辆
	signals  map[string]entity.SignalState

	seq      uint64
	departed int
	arrived  int
	closed   bool
}

var _ entity.IEnvironment = (*Sandbox)(nil)

// New 创建沙盒环境
// 功能：根据场景初始化车道、信号灯，并预先生成全部车流的出发计划
// 参数：s-已校验的场景，seed-随机数种子（nil时使用场景中的种子）
// 返回：沙盒环境，车辆ID重复时返回错误
func New(s *Scenario, seed *uint64) (*Sandbox, error) {
	sb := &Sandbox{
		dt:       s.Interval,
		laneMap:  make(map[string]*lane, len(s.Lanes)),
		tlMap:    make(map[string]*trafficLight, len(s.TrafficLights)),
		vehicles: make(map[string]*vehicle),
		signals:  make(map[string]entity.SignalState),
	}
	for _, spec := range s.Lanes {
		l := newLane(spec)
		sb.lanes = append(sb.lanes, l)
		sb.laneMap[spec.ID] = l
	}
	for _, spec := range s.TrafficLights {
		tl, err := newTrafficLight(spec)
		if err != nil {
			return nil, err
		}
		sb.tls = append(sb.tls, tl)
		sb.tlMap[spec.ID] = tl
	}
	types := make(map[string]*VehicleType, len(s.VehicleTypes))
	for i := range s.VehicleTypes {
		types[s.VehicleTypes[i].ID] = &s.VehicleTypes[i]
	}

	rng := randengine.New(lo.FromPtrOr(seed, s.Seed))
	ids := make(map[string]struct{})
	schedule := func(laneID, id string, typ *VehicleType, depart float64) error {
		if _, ok := ids[id]; ok {
			return fmt.Errorf("%w: duplicated vehicle %s", ErrInvalidScenario, id)
		}
		ids[id] = struct{}{}
		sb.laneMap[laneID].pending.Push(&pendingVehicle{id: id, typ: typ, depart: depart}, depart)
		return nil
	}
	for _, v := range s.Vehicles {
		if err := schedule(v.Lane, v.ID, types[v.Type], v.Depart); err != nil {
			return nil, err
		}
	}
	for _, f := range s.Flows {
		weights := lo.Map(f.Types, func(tw TypeWeight, _ int) float64 { return tw.Weight })
		departs := flowDepartures(f, sb.dt, rng)
		for n, depart := range departs {
			k, err := rng.DiscreteDistribution(weights)
			if err != nil {
				return nil, fmt.Errorf("flow %s: %w", f.ID, err)
			}
			if err := schedule(f.Lane, fmt.Sprintf("%s.%d", f.ID, n), types[f.Types[k].Type], depart); err != nil {
				return nil, err
			}
		}
	}
	for _, l := range sb.lanes {
		l.pending.Heapify()
	}
	sb.refreshSignals()
	log.Infof("sandbox: %d lanes, %d traffic lights, %d scheduled vehicles", len(sb.lanes), len(sb.tls), len(ids))
	return sb, nil
}

// flowDepartures 车流的出发时间
// 算法说明：
// 1. Period>0：从Begin开始每隔Period发一辆车，直到End
// 2. 否则在[Begin, End]内的每个仿真步以Probability*dt的概率发车
func flowDepartures(f FlowSpec, dt float64, rng *randengine.Engine) []float64 {
	var departs []float64
	if f.Period > 0 {
		for t := f.Begin; t <= f.End+departEpsilon; t += f.Period {
			departs = append(departs, t)
		}
		return departs
	}
	p := math.Min(1, f.Probability*dt)
	for n := math.Ceil(f.Begin/dt - departEpsilon); n*dt <= f.End+departEpsilon; n++ {
		if rng.PTrue(p) {
			departs = append(departs, n*dt)
		}
	}
	return departs
}

func (sb *Sandbox) nextSeq() uint64 {
	sb.seq++
	return sb.seq
}

// refreshSignals 根据信号灯当前相位计算各车道灯色
func (sb *Sandbox) refreshSignals() {
	clear(sb.signals)
	for _, tl := range sb.tls {
		tl.laneSignals(sb.signals)
	}
}

// signal 车道灯色，不受信号灯控制的车道始终放行
func (sb *Sandbox) signal(laneID string) entity.SignalState {
	if s, ok := sb.signals[laneID]; ok {
		return s
	}
	return entity.SignalGreenMajor
}

// Step 推进一个仿真步
// 算法说明：
// 1. 时间前进dt
// 2. 信号灯更新并刷新车道灯色
// 3. 车辆跟车与停车，移除离开的车辆
// 4. 放入出发时间已到的车辆
func (sb *Sandbox) Step() error {
	if sb.closed {
		return fmt.Errorf("sandbox: step after close")
	}
	sb.t += sb.dt
	for _, tl := range sb.tls {
		tl.update(sb.dt)
	}
	sb.refreshSignals()
	for _, l := range sb.lanes {
		for _, v := range l.update(sb.signal(l.spec.ID), sb.dt) {
			delete(sb.vehicles, v.id)
			sb.arrived++
		}
	}
	for _, l := range sb.lanes {
		for _, v := range l.insert(sb.t, sb.nextSeq) {
			sb.vehicles[v.id] = v
			sb.departed++
		}
	}
	return nil
}

func (sb *Sandbox) Time() float64 {
	return sb.t
}

func (sb *Sandbox) MinExpectedNumber() int {
	n := len(sb.vehicles)
	for _, l := range sb.lanes {
		n += l.pending.Len()
	}
	return n
}

// VehicleIDs 活动车辆，按进入路网的顺序
func (sb *Sandbox) VehicleIDs() []string {
	vs := lo.Values(sb.vehicles)
	sort.Slice(vs, func(i, j int) bool { return vs[i].seq < vs[j].seq })
	return lo.Map(vs, func(v *vehicle, _ int) string { return v.id })
}

func (sb *Sandbox) Vehicle(id string) (entity.VehicleState, error) {
	v, ok := sb.vehicles[id]
	if !ok {
		return entity.VehicleState{}, fmt.Errorf("%w: %s", entity.ErrUnknownVehicle, id)
	}
	return v.state(), nil
}

func (sb *Sandbox) TrafficLightIDs() []string {
	return lo.Map(sb.tls, func(tl *trafficLight, _ int) string { return tl.id })
}

func (sb *Sandbox) getTrafficLight(tlID string) (*trafficLight, error) {
	tl, ok := sb.tlMap[tlID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownTrafficLight, tlID)
	}
	return tl, nil
}

func (sb *Sandbox) ControlledLanes(tlID string) ([]string, error) {
	tl, err := sb.getTrafficLight(tlID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), tl.controlled...), nil
}

func (sb *Sandbox) Phases(tlID string) ([]entity.PhaseDefinition, error) {
	tl, err := sb.getTrafficLight(tlID)
	if err != nil {
		return nil, err
	}
	return tl.definitions(), nil
}

func (sb *Sandbox) CurrentPhase(tlID string) (int, error) {
	tl, err := sb.getTrafficLight(tlID)
	if err != nil {
		return 0, err
	}
	return tl.phaseIndex, nil
}

func (sb *Sandbox) RemainingTime(tlID string) (float64, error) {
	tl, err := sb.getTrafficLight(tlID)
	if err != nil {
		return 0, err
	}
	return tl.remainingT, nil
}

// SetPhase 切换相位，立即刷新车道灯色
func (sb *Sandbox) SetPhase(tlID string, index int) error {
	tl, err := sb.getTrafficLight(tlID)
	if err != nil {
		return err
	}
	if err := tl.setPhase(index); err != nil {
		return err
	}
	sb.refreshSignals()
	return nil
}

func (sb *Sandbox) SetPhaseDuration(tlID string, duration float64) error {
	tl, err := sb.getTrafficLight(tlID)
	if err != nil {
		return err
	}
	return tl.setPhaseDuration(duration)
}

func (sb *Sandbox) getLane(laneID string) (*lane, error) {
	l, ok := sb.laneMap[laneID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownLane, laneID)
	}
	return l, nil
}

// LaneVehicleIDs 车道上的车辆，按位置从前到后
func (sb *Sandbox) LaneVehicleIDs(laneID string) ([]string, error) {
	l, err := sb.getLane(laneID)
	if err != nil {
		return nil, err
	}
	return lo.Map(l.vehicles, func(v *vehicle, _ int) string { return v.id }), nil
}

func (sb *Sandbox) LaneHaltingNumber(laneID string) (int, error) {
	l, err := sb.getLane(laneID)
	if err != nil {
		return 0, err
	}
	return l.haltingNumber(), nil
}

// Close 关闭环境
func (sb *Sandbox) Close() error {
	if sb.closed {
		return nil
	}
	sb.closed = true
	log.Infof("sandbox closed at t=%.1f: departed=%d arrived=%d running=%d", sb.t, sb.departed, sb.arrived, len(sb.vehicles))
	return nil
}
