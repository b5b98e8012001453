// 回归模型推理：树集成（随机森林、梯度提升）与线性模型，输入为固定顺序的8维特征
package model

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrFeatureContract = errors.New("model: feature contract mismatch")
	ErrNonFinite       = errors.New("model: non-finite value")
	ErrBadModel        = errors.New("model: malformed model")
)

// Predictor 标量回归预测器
// 功能：对一条按特征契约排列的输入给出一个预测值
// 说明：实现必须是确定性的，推理时不允许有随机性
type Predictor interface {
	Predict(x []float64) (float64, error)
}

// Tree sklearn导出格式的回归树
// 说明：节点以数组形式存储，ChildrenLeft[i] == -1 表示叶子；x[Feature[i]] <= Threshold[i] 时走左子树
type Tree struct {
	ChildrenLeft  []int     `yaml:"children_left"`
	ChildrenRight []int     `yaml:"children_right"`
	Feature       []int     `yaml:"feature"`
	Threshold     []float64 `yaml:"threshold"`
	Value         []float64 `yaml:"value"`
}

// validate 检查树结构
// 说明：数组等长、子节点下标合法且只指向更大的下标（无环）
func (t *Tree) validate(numFeatures int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("%w: empty tree", ErrBadModel)
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("%w: tree arrays have different lengths", ErrBadModel)
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == -1 {
			continue
		}
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("%w: node %d has bad children (%d, %d)", ErrBadModel, i, l, r)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= numFeatures {
			return fmt.Errorf("%w: node %d splits on feature %d", ErrBadModel, i, t.Feature[i])
		}
	}
	return nil
}

// predict 从根节点走到叶子
func (t *Tree) predict(x []float64) float64 {
	i := 0
	for t.ChildrenLeft[i] != -1 {
		if x[t.Feature[i]] <= t.Threshold[i] {
			i = t.ChildrenLeft[i]
		} else {
			i = t.ChildrenRight[i]
		}
	}
	return t.Value[i]
}

// 树集成的聚合方式
const (
	KindForest   = "forest"   // 随机森林：所有树的均值
	KindBoosting = "boosting" // 梯度提升：base + learning_rate * 所有树之和
	KindLinear   = "linear"
)

// TreeEnsemble 树集成回归模型
type TreeEnsemble struct {
	Kind         string
	BaseScore    float64
	LearningRate float64
	Trees        []Tree
	numFeatures  int
}

// Predict 树集成推理
func (m *TreeEnsemble) Predict(x []float64) (float64, error) {
	if err := checkInput(x, m.numFeatures); err != nil {
		return 0, err
	}
	sum := 0.
	for i := range m.Trees {
		sum += m.Trees[i].predict(x)
	}
	var y float64
	switch m.Kind {
	case KindForest:
		y = sum / float64(len(m.Trees))
	case KindBoosting:
		y = m.BaseScore + m.LearningRate*sum
	default:
		return 0, fmt.Errorf("%w: unknown ensemble kind %q", ErrBadModel, m.Kind)
	}
	return y, nil
}

// Linear 线性回归模型
type Linear struct {
	Intercept float64
	Coef      []float64
}

// Predict 线性模型推理
func (m *Linear) Predict(x []float64) (float64, error) {
	if err := checkInput(x, len(m.Coef)); err != nil {
		return 0, err
	}
	y := m.Intercept
	for i, c := range m.Coef {
		y += c * x[i]
	}
	return y, nil
}

func checkInput(x []float64, n int) error {
	if len(x) != n {
		return fmt.Errorf("%w: got %d features, want %d", ErrFeatureContract, len(x), n)
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: feature %d is %v", ErrNonFinite, i, v)
		}
	}
	return nil
}
