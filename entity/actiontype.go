package entity

import "fmt"

// ActionKind 控制动作类型
type ActionKind int

const (
	ActionHold     ActionKind = iota // 不下发指令（固定配时）
	ActionNormal                     // 切换到选定相位并设置绿灯时长
	ActionPriority                   // 紧急车辆优先，延长当前相位
)

func (k ActionKind) String() string {
	switch k {
	case ActionHold:
		return "hold"
	case ActionNormal:
		return "normal"
	case ActionPriority:
		return "priority"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// MarshalText 事件输出中以名称表示动作类型
func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Action 每步对单个信号灯下发的控制动作
// 说明：Priority只设置当前相位时长，不切换相位，Phase为下发时的当前相位
type Action struct {
	TrafficLight string     `json:"traffic_light"`
	Kind         ActionKind `json:"kind"`
	Phase        int        `json:"phase"`
	Duration     float64    `json:"duration"`
	Utility      float64    `json:"utility"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionPriority:
		return fmt.Sprintf("Priority(tl=%s, duration=%v)", a.TrafficLight, a.Duration)
	case ActionNormal:
		return fmt.Sprintf("Normal(tl=%s, phase=%d, duration=%v, utility=%.3f)", a.TrafficLight, a.Phase, a.Duration, a.Utility)
	default:
		return fmt.Sprintf("Hold(tl=%s)", a.TrafficLight)
	}
}
