package model

import (
	"fmt"
	"os"
	"slices"

	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/feature"
	"gopkg.in/yaml.v2"
)

// modelFile 模型参数文件格式
// 说明：由训练端从sklearn导出，JSON也是合法的YAML，可以直接读取
type modelFile struct {
	Kind         string    `yaml:"kind"`
	Features     []string  `yaml:"features"`
	BaseScore    float64   `yaml:"base_score,omitempty"`
	LearningRate float64   `yaml:"learning_rate,omitempty"`
	Trees        []Tree    `yaml:"trees,omitempty"`
	Intercept    float64   `yaml:"intercept,omitempty"`
	Coef         []float64 `yaml:"coef,omitempty"`
}

// Parse 解析模型参数
// 功能：解析模型文件内容并检查特征契约与模型结构
// 参数：data-模型文件内容
// 返回：预测器与错误
// 算法说明：
// 1. 严格解析YAML/JSON
// 2. 特征名列表必须与feature.Names完全一致（名称与顺序）
// 3. 按kind构造树集成或线性模型，并检查结构合法性
func Parse(data []byte) (Predictor, error) {
	var f modelFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModel, err)
	}
	if !slices.Equal(f.Features, feature.Names) {
		return nil, fmt.Errorf("%w: model features %v, want %v", ErrFeatureContract, f.Features, feature.Names)
	}
	n := len(feature.Names)
	switch f.Kind {
	case KindForest, KindBoosting:
		if len(f.Trees) == 0 {
			return nil, fmt.Errorf("%w: %s without trees", ErrBadModel, f.Kind)
		}
		if f.Kind == KindBoosting && f.LearningRate <= 0 {
			return nil, fmt.Errorf("%w: boosting learning_rate must be positive", ErrBadModel)
		}
		for i := range f.Trees {
			if err := f.Trees[i].validate(n); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		return &TreeEnsemble{
			Kind:         f.Kind,
			BaseScore:    f.BaseScore,
			LearningRate: f.LearningRate,
			Trees:        f.Trees,
			numFeatures:  n,
		}, nil
	case KindLinear:
		if len(f.Coef) != n {
			return nil, fmt.Errorf("%w: linear model has %d coefficients, want %d", ErrBadModel, len(f.Coef), n)
		}
		return &Linear{Intercept: f.Intercept, Coef: f.Coef}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrBadModel, f.Kind)
	}
}

// Load 从文件加载模型
func Load(path string) (Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	log.Infof("loaded model %s (%T)", path, p)
	return p, nil
}
