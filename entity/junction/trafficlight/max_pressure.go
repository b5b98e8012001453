// 提供最大压力车道打分
// 以车道上停止的车辆数作为压力，与TIS共用相位效用计算，用于与TIS策略对比
package trafficlight

import (
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
)

// PressureScorer 最大压力车道打分
type PressureScorer struct{}

// NewPressureScorer 创建最大压力车道打分器
func NewPressureScorer() *PressureScorer {
	return &PressureScorer{}
}

func (s *PressureScorer) Name() string {
	return "max_pressure"
}

// ScoreLanes 车道压力 = 停止车辆数
func (s *PressureScorer) ScoreLanes(env entity.IEnvironment, lanes []string) (map[string]float64, error) {
	res := make(map[string]float64, len(lanes))
	for _, lane := range lanes {
		n, err := env.LaneHaltingNumber(lane)
		if err != nil {
			return nil, err
		}
		res[lane] = float64(n)
	}
	return res, nil
}
