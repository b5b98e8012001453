package trafficlight

import (
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

// DurationPolicy 绿灯时长映射
// 功能：duration = Base + Scale * utility，再限制在[Min, Max]内
// 说明：Max<=0表示不设上限；Scale>=0时时长关于效用单调不减
type DurationPolicy struct {
	Base  float64
	Scale float64
	Min   float64
	Max   float64
}

// NewDurationPolicy 从配置构造绿灯时长映射
func NewDurationPolicy(p config.Policy) DurationPolicy {
	return DurationPolicy{
		Base:  p.GreenBase,
		Scale: p.GreenScale,
		Min:   p.MinGreen,
		Max:   p.MaxGreen,
	}
}

// Duration 由效用计算绿灯时长
func (p DurationPolicy) Duration(utility float64) float64 {
	d := p.Base + p.Scale*utility
	if d < p.Min {
		d = p.Min
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}
