package entity

import (
	"fmt"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// SignalState 单条受控车道的信号状态
// 功能：将相位状态串中的单个字符解析为枚举值，统一回答“是否允许通行”
// 说明：字符编码与SUMO一致，大写G为优先绿灯，小写g为许可绿灯
type SignalState byte

const (
	SignalRed            SignalState = 'r' // 红灯
	SignalYellow         SignalState = 'y' // 黄灯
	SignalGreenMinor     SignalState = 'g' // 许可绿灯（需让行）
	SignalGreenMajor     SignalState = 'G' // 优先绿灯
	SignalGreenRightTurn SignalState = 's' // 右转绿箭头（先停后行）
	SignalRedYellow      SignalState = 'u' // 红黄（即将变绿）
	SignalOffBlinking    SignalState = 'o' // 关闭，黄闪
	SignalOffNoSignal    SignalState = 'O' // 关闭，无信号
)

// PermitsMovement 是否允许车辆通行
// 说明：只有G与g参与相位效用计算，其余状态（包括s与O）均视为不可通行
func (s SignalState) PermitsMovement() bool {
	return s == SignalGreenMajor || s == SignalGreenMinor
}

func (s SignalState) String() string {
	return string(rune(s))
}

// ToPb 转换为protobuf信号灯状态
func (s SignalState) ToPb() mapv2.LightState {
	switch s {
	case SignalGreenMajor, SignalGreenMinor, SignalGreenRightTurn:
		return mapv2.LightState_LIGHT_STATE_GREEN
	case SignalYellow, SignalRedYellow:
		return mapv2.LightState_LIGHT_STATE_YELLOW
	case SignalRed:
		return mapv2.LightState_LIGHT_STATE_RED
	default:
		return mapv2.LightState_LIGHT_STATE_UNSPECIFIED
	}
}

// ParseSignalState 解析单个信号字符
func ParseSignalState(c byte) (SignalState, error) {
	switch s := SignalState(c); s {
	case SignalRed, SignalYellow, SignalGreenMinor, SignalGreenMajor,
		SignalGreenRightTurn, SignalRedYellow, SignalOffBlinking, SignalOffNoSignal:
		return s, nil
	default:
		return 0, fmt.Errorf("unknown signal state %q", c)
	}
}

// ParsePhaseState 解析相位状态串
// 功能：将形如"GrGr"的状态串逐字符解析为信号状态列表
// 参数：state-相位状态串
// 返回：信号状态列表与错误
// 说明：遇到未知字符直接报错，避免把其他编码误当作红灯处理
func ParsePhaseState(state string) ([]SignalState, error) {
	res := make([]SignalState, len(state))
	for i := 0; i < len(state); i++ {
		s, err := ParseSignalState(state[i])
		if err != nil {
			return nil, fmt.Errorf("phase state %q at %d: %w", state, i, err)
		}
		res[i] = s
	}
	return res, nil
}
