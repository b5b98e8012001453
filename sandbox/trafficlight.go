package sandbox

import (
	"fmt"

	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
)

// phase 解析后的相位
type phase struct {
	states   []entity.SignalState
	duration float64
}

// trafficLight 沙盒中的信号灯程序运行时
// 功能：按预设相位顺序与时长循环切换，并接受控制器的相位与时长指令
type trafficLight struct {
	id         string
	controlled []string // 与相位状态逐位对齐的受控车道
	phases     []phase

	phaseIndex int     // 当前相位
	remainingT float64 // 当前相位剩余时间
}

// newTrafficLight 创建信号灯
// 说明：从第0个相位开始，剩余时间为该相位的预设时长
func newTrafficLight(spec TrafficLightSpec) (*trafficLight, error) {
	tl := &trafficLight{
		id:         spec.ID,
		controlled: spec.Controlled,
		phases:     make([]phase, 0, len(spec.Phases)),
	}
	for _, p := range spec.Phases {
		states, err := entity.ParsePhaseState(p.State)
		if err != nil {
			return nil, fmt.Errorf("traffic light %s: %w", spec.ID, err)
		}
		tl.phases = append(tl.phases, phase{states: states, duration: p.Duration})
	}
	tl.remainingT = tl.phases[0].duration
	return tl, nil
}

// update 推进信号灯
// 算法说明：
// 1. 剩余时间减去步长
// 2. 剩余时间耗尽时依次切换到下一相位，直到剩余时间为正
func (l *trafficLight) update(dt float64) {
	l.remainingT -= dt
	for l.remainingT <= 0 {
		l.phaseIndex = (l.phaseIndex + 1) % len(l.phases)
		l.remainingT += l.phases[l.phaseIndex].duration
	}
}

// setPhase 立即切换到指定相位，剩余时间重置为该相位的预设时长
func (l *trafficLight) setPhase(index int) error {
	if index < 0 || index >= len(l.phases) {
		return fmt.Errorf("%w: %d of traffic light %s with %d phases", entity.ErrBadPhaseIndex, index, l.id, len(l.phases))
	}
	l.phaseIndex = index
	l.remainingT = l.phases[index].duration
	return nil
}

// setPhaseDuration 设置当前相位的剩余时间
func (l *trafficLight) setPhaseDuration(duration float64) error {
	if duration <= 0 {
		return fmt.Errorf("traffic light %s: phase duration must be positive, got %v", l.id, duration)
	}
	l.remainingT = duration
	return nil
}

// definitions 相位定义
func (l *trafficLight) definitions() []entity.PhaseDefinition {
	defs := make([]entity.PhaseDefinition, len(l.phases))
	for i, p := range l.phases {
		state := make([]byte, len(p.states))
		for j, s := range p.states {
			state[j] = byte(s)
		}
		defs[i] = entity.PhaseDefinition{Index: i, State: string(state), Duration: p.duration}
	}
	return defs
}

// laneSignals 当前相位下各受控车道的灯色
// 说明：一条车道对应多个连接时，任一连接放行即视为放行，否则任一为黄灯即视为黄灯
func (l *trafficLight) laneSignals(out map[string]entity.SignalState) {
	current := l.phases[l.phaseIndex].states
	for i, laneID := range l.controlled {
		s := current[i]
		old, ok := out[laneID]
		switch {
		case !ok:
			out[laneID] = s
		case old.PermitsMovement():
		case s.PermitsMovement():
			out[laneID] = s
		case s == entity.SignalYellow || s == entity.SignalRedYellow:
			out[laneID] = s
		}
	}
}
