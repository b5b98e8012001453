package trafficlight

import (
	"git.fiblab.net/general/common/v2/parallel"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/feature"
)

// ILaneScorer 车道打分接口
// 功能：对一组（去重后的）车道给出本步得分，供相位效用计算使用
type ILaneScorer interface {
	Name() string
	ScoreLanes(env entity.IEnvironment, lanes []string) (map[string]float64, error)
}

// IFeatureScorer 特征向量打分接口，由集成打分器实现
type IFeatureScorer interface {
	Score(f feature.Vector) (float64, error)
}

// TISScorer 基于交通智能分数（TIS）的车道打分
// 功能：提取车道特征后交给集成模型打分
// 说明：空车道的TIS恒为0，不提取特征也不调用模型
type TISScorer struct {
	scorer               IFeatureScorer
	suddenBrakeThreshold float64
	parallel             bool
}

// NewTISScorer 创建TIS车道打分器
// 参数：scorer-集成打分器，suddenBrakeThreshold-急刹车阈值，parallel-是否并行计算特征与打分
func NewTISScorer(scorer IFeatureScorer, suddenBrakeThreshold float64, parallel bool) *TISScorer {
	return &TISScorer{
		scorer:               scorer,
		suddenBrakeThreshold: suddenBrakeThreshold,
		parallel:             parallel,
	}
}

func (s *TISScorer) Name() string {
	return "tis"
}

type laneResult struct {
	tis float64
	err error
}

// ScoreLanes 计算每条车道的TIS
// 算法说明：
// 1. 在当前协程中读取所有车道的车辆遥测（环境只在控制循环协程中访问）
// 2. 对非空车道提取特征并打分，可选并行
// 3. 任一车道打分失败则整步失败
func (s *TISScorer) ScoreLanes(env entity.IEnvironment, lanes []string) (map[string]float64, error) {
	telemetry := make([][]entity.VehicleState, len(lanes))
	for i, lane := range lanes {
		vehicles, err := feature.LaneTelemetry(env, lane)
		if err != nil {
			return nil, err
		}
		telemetry[i] = vehicles
	}
	score := func(vehicles []entity.VehicleState) laneResult {
		f, ok := feature.Extract(vehicles, s.suddenBrakeThreshold)
		if !ok {
			return laneResult{}
		}
		tis, err := s.scorer.Score(f)
		return laneResult{tis: tis, err: err}
	}
	var results []laneResult
	if s.parallel {
		results = parallel.GoMap(telemetry, score)
	} else {
		results = make([]laneResult, len(telemetry))
		for i, vehicles := range telemetry {
			results[i] = score(vehicles)
		}
	}
	res := make(map[string]float64, len(lanes))
	for i, lane := range lanes {
		if results[i].err != nil {
			return nil, results[i].err
		}
		res[lane] = results[i].tis
	}
	return res, nil
}
