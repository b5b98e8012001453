package model

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/feature"
)

// Member 集成中的一个模型
type Member struct {
	Name      string
	Predictor Predictor
	Weight    float64
}

// Ensemble 集成打分器
// 功能：对同一特征向量调用多个独立的回归模型，按权重求平均得到TIS
// 说明：默认两个模型权重均为1，即算术平均；打分器不关心模型内部结构
type Ensemble struct {
	members     []Member
	totalWeight float64
}

// NewEnsemble 创建集成打分器
// 说明：权重为0视为1；权重之和必须为正
func NewEnsemble(members ...Member) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: ensemble without members", ErrBadModel)
	}
	members = lo.Map(members, func(m Member, _ int) Member {
		if m.Weight == 0 {
			m.Weight = 1
		}
		return m
	})
	total := lo.SumBy(members, func(m Member) float64 { return m.Weight })
	if total <= 0 {
		return nil, fmt.Errorf("%w: ensemble weights sum to %v", ErrBadModel, total)
	}
	return &Ensemble{members: members, totalWeight: total}, nil
}

// Score 计算TIS
// 功能：所有模型对同一输入预测，返回加权平均
// 参数：f-车道特征向量
// 返回：TIS与错误，任何模型失败或输出非有限值都作为错误返回
func (e *Ensemble) Score(f feature.Vector) (float64, error) {
	x := f.Slice()
	sum := 0.
	for _, m := range e.members {
		y, err := m.Predictor.Predict(x)
		if err != nil {
			return 0, fmt.Errorf("model %s: %w", m.Name, err)
		}
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return 0, fmt.Errorf("model %s: %w: prediction %v", m.Name, ErrNonFinite, y)
		}
		sum += m.Weight * y
	}
	return sum / e.totalWeight, nil
}

// Len 集成中的模型数量
func (e *Ensemble) Len() int {
	return len(e.members)
}
