package sandbox

import (
	"errors"
	"fmt"
	"os"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"gopkg.in/yaml.v2"
)

var (
	ErrInvalidScenario = errors.New("sandbox: invalid scenario")
)

// LaneSpec 车道
// 说明：车辆从s=0驶入，到达s=Length（停车线）后离开路网
type LaneSpec struct {
	ID     string  `yaml:"id"`
	Length float64 `yaml:"length"`
	MaxV   float64 `yaml:"max_speed"`
}

// PhaseSpec 信号灯相位
type PhaseSpec struct {
	State    string  `yaml:"state"`
	Duration float64 `yaml:"duration"`
}

// TrafficLightSpec 信号灯
// 说明：Controlled与相位状态串逐位对齐，同一车道可以出现多次（对应多条连接）
type TrafficLightSpec struct {
	ID         string      `yaml:"id"`
	Controlled []string    `yaml:"controlled"`
	Phases     []PhaseSpec `yaml:"phases"`
}

// VehicleType 车辆类型参数
type VehicleType struct {
	ID            string  `yaml:"id"`
	MaxA          float64 `yaml:"max_acceleration"`
	UsualBrakingA float64 `yaml:"usual_braking"` // 负数
	MaxBrakingA   float64 `yaml:"max_braking"`   // 负数
	Length        float64 `yaml:"length"`
	MinGap        float64 `yaml:"min_gap"`
	Headway       float64 `yaml:"headway"`
	MaxV          float64 `yaml:"max_speed"`
	IgnoreSignal  bool    `yaml:"ignore_signal,omitempty"` // 不受信号灯约束（如执行任务的紧急车辆）
}

// TypeWeight 车流中车辆类型的权重
type TypeWeight struct {
	Type   string  `yaml:"type"`
	Weight float64 `yaml:"weight"`
}

// FlowSpec 车流
// 说明：Period>0时按固定间隔发车，否则每步以Probability*dt的概率发车
type FlowSpec struct {
	ID          string       `yaml:"id"`
	Lane        string       `yaml:"lane"`
	Types       []TypeWeight `yaml:"types"`
	Probability float64      `yaml:"probability,omitempty"` // 每秒发车概率
	Period      float64      `yaml:"period,omitempty"`      // 发车间隔（秒）
	Begin       float64      `yaml:"begin"`
	End         float64      `yaml:"end"`
}

// VehicleSpec 单独指定的车辆
type VehicleSpec struct {
	ID     string  `yaml:"id"`
	Type   string  `yaml:"type"`
	Lane   string  `yaml:"lane"`
	Depart float64 `yaml:"depart"`
}

// Scenario 沙盒仿真场景
type Scenario struct {
	Interval      float64            `yaml:"interval"`
	Seed          uint64             `yaml:"seed"`
	Lanes         []LaneSpec         `yaml:"lanes"`
	TrafficLights []TrafficLightSpec `yaml:"traffic_lights"`
	VehicleTypes  []VehicleType      `yaml:"vehicle_types"`
	Flows         []FlowSpec         `yaml:"flows,omitempty"`
	Vehicles      []VehicleSpec      `yaml:"vehicles,omitempty"`
}

// defaultVehicleType 默认乘用车参数
var defaultVehicleType = VehicleType{
	MaxA:          2.6,
	UsualBrakingA: -4.5,
	MaxBrakingA:   -9,
	Length:        5,
	MinGap:        2.5,
	Headway:       1,
	MaxV:          50,
}

// withDefaults 未填写的车辆参数使用默认乘用车参数
func (t VehicleType) withDefaults() VehicleType {
	d := defaultVehicleType
	t.MaxA = lo.CoalesceOrEmpty(t.MaxA, d.MaxA)
	t.UsualBrakingA = lo.CoalesceOrEmpty(t.UsualBrakingA, d.UsualBrakingA)
	t.MaxBrakingA = lo.CoalesceOrEmpty(t.MaxBrakingA, d.MaxBrakingA)
	t.Length = lo.CoalesceOrEmpty(t.Length, d.Length)
	t.MinGap = lo.CoalesceOrEmpty(t.MinGap, d.MinGap)
	t.Headway = lo.CoalesceOrEmpty(t.Headway, d.Headway)
	t.MaxV = lo.CoalesceOrEmpty(t.MaxV, d.MaxV)
	return t
}

// ParseScenario 解析场景YAML并校验
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	s.VehicleTypes = lo.Map(s.VehicleTypes, func(t VehicleType, _ int) VehicleType { return t.withDefaults() })
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadScenario 从文件加载场景
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// Validate 校验场景
// 算法说明：
// 1. 步长、车道长度与限速为正，ID不重复
// 2. 信号灯受控车道存在，相位状态串可解析且长度与受控车道一致，相位时长为正
// 3. 车流与车辆引用的车道、车辆类型存在
func (s *Scenario) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
	}
	if s.Interval <= 0 {
		return bad("interval must be positive")
	}
	lanes := make(map[string]struct{}, len(s.Lanes))
	for _, l := range s.Lanes {
		if _, ok := lanes[l.ID]; ok {
			return bad("duplicated lane %s", l.ID)
		}
		if l.Length <= 0 || l.MaxV <= 0 {
			return bad("lane %s needs positive length and max_speed", l.ID)
		}
		lanes[l.ID] = struct{}{}
	}
	tlIDs := make(map[string]struct{}, len(s.TrafficLights))
	for _, tl := range s.TrafficLights {
		if _, ok := tlIDs[tl.ID]; ok {
			return bad("duplicated traffic light %s", tl.ID)
		}
		tlIDs[tl.ID] = struct{}{}
		for _, l := range tl.Controlled {
			if _, ok := lanes[l]; !ok {
				return bad("traffic light %s controls unknown lane %s", tl.ID, l)
			}
		}
		if len(tl.Phases) == 0 {
			return bad("traffic light %s has no phase", tl.ID)
		}
		for i, p := range tl.Phases {
			states, err := entity.ParsePhaseState(p.State)
			if err != nil {
				return bad("traffic light %s: %v", tl.ID, err)
			}
			if len(states) != len(tl.Controlled) {
				return bad("traffic light %s phase %d has %d signals for %d controlled lanes", tl.ID, i, len(states), len(tl.Controlled))
			}
			if p.Duration <= 0 {
				return bad("traffic light %s phase %d needs positive duration", tl.ID, i)
			}
		}
	}
	types := lo.SliceToMap(s.VehicleTypes, func(t VehicleType) (string, struct{}) { return t.ID, struct{}{} })
	for _, t := range s.VehicleTypes {
		if t.MaxA <= 0 || t.UsualBrakingA >= 0 || t.MaxBrakingA > t.UsualBrakingA || t.Length <= 0 || t.MaxV <= 0 || t.Headway <= 0 {
			return bad("vehicle type %s has bad parameters", t.ID)
		}
	}
	for _, f := range s.Flows {
		if _, ok := lanes[f.Lane]; !ok {
			return bad("flow %s on unknown lane %s", f.ID, f.Lane)
		}
		if len(f.Types) == 0 {
			return bad("flow %s has no vehicle type", f.ID)
		}
		for _, tw := range f.Types {
			if _, ok := types[tw.Type]; !ok {
				return bad("flow %s uses unknown vehicle type %s", f.ID, tw.Type)
			}
		}
		if f.End < f.Begin || (f.Period <= 0 && f.Probability <= 0) {
			return bad("flow %s needs end >= begin and a positive period or probability", f.ID)
		}
	}
	for _, v := range s.Vehicles {
		if _, ok := lanes[v.Lane]; !ok {
			return bad("vehicle %s on unknown lane %s", v.ID, v.Lane)
		}
		if _, ok := types[v.Type]; !ok {
			return bad("vehicle %s uses unknown vehicle type %s", v.ID, v.Type)
		}
	}
	return nil
}
