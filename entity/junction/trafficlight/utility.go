// 相位效用计算：对每个相位，把允许通行的受控车道的得分相加，选取效用最大的相位
package trafficlight

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
)

// Phase 解析后的相位
type Phase struct {
	Index    int
	States   []entity.SignalState
	Duration float64 // 程序默认时长
}

// NewPhases 解析信号灯程序
// 功能：逐个解析相位状态串，并检查长度与受控车道数一致
// 参数：defs-环境给出的相位定义，numLanes-受控车道列表长度
// 返回：解析后的相位列表与错误
func NewPhases(defs []entity.PhaseDefinition, numLanes int) ([]Phase, error) {
	phases := make([]Phase, 0, len(defs))
	for i, d := range defs {
		states, err := entity.ParsePhaseState(d.State)
		if err != nil {
			return nil, err
		}
		if len(states) != numLanes {
			return nil, fmt.Errorf("phase %d state %q has %d signals but %d controlled lanes", i, d.State, len(states), numLanes)
		}
		phases = append(phases, Phase{Index: i, States: states, Duration: d.Duration})
	}
	return phases, nil
}

// PhaseUtilities 计算每个相位的效用
// 功能：相位效用 = 该相位下允许通行的受控车道得分之和
// 参数：phases-相位列表，laneScore-车道得分，controlledLanes-与状态串逐位对齐的受控车道
// 返回：与phases等长的效用列表
// 说明：车道得分缺失时按0计；同一车道在状态串中出现多次则按出现次数累加
func PhaseUtilities(phases []Phase, laneScore map[string]float64, controlledLanes []string) []float64 {
	return lo.Map(phases, func(p Phase, _ int) float64 {
		utility := 0.
		for i, s := range p.States {
			if !s.PermitsMovement() || i >= len(controlledLanes) {
				continue
			}
			utility += laneScore[controlledLanes[i]]
		}
		return utility
	})
}

// SelectPhase 选择效用最大的相位
// 功能：计算所有相位效用并取最大值
// 返回：最优相位序号与其效用；相位为空时返回(-1, 0)
// 说明：效用相同时取序号最小的相位，结果只取决于输入
func SelectPhase(phases []Phase, laneScore map[string]float64, controlledLanes []string) (best int, utility float64) {
	utilities := PhaseUtilities(phases, laneScore, controlledLanes)
	best = -1
	for i, u := range utilities {
		if best == -1 || u > utility {
			best, utility = i, u
		}
	}
	if best == -1 {
		return -1, 0
	}
	return phases[best].Index, utility
}
