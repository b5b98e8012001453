// Package input 加载控制器运行所需的输入数据：沙盒场景与回归模型
package input

import (
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/model"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/sandbox"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

var log = logrus.WithField("module", "input")

// Input 输入数据
// 功能：存储控制器启动所需的所有输入数据
// 说明：Ensemble只在TIS策略下加载，其余策略为nil
type Input struct {
	Scenario *sandbox.Scenario
	Ensemble *model.Ensemble
}

type loaded struct {
	member model.Member
	err    error
}

// Init 加载输入数据
// 功能：根据配置加载场景文件与全部模型文件
// 参数：c-配置对象
// 返回：输入数据与错误；任何文件缺失、格式错误或特征契约不符都作为错误返回，控制循环不得启动
// 算法说明：
// 1. 加载并校验场景
// 2. TIS策略下并行加载所有模型文件
// 3. 组装集成打分器
func Init(c config.Config) (*Input, error) {
	if c.Input.Scenario == "" {
		return nil, fmt.Errorf("%w: input.scenario is empty", config.ErrInvalidConfig)
	}
	s, err := sandbox.LoadScenario(c.Input.Scenario)
	if err != nil {
		return nil, err
	}
	log.Infof("scenario %s: %d lanes, %d traffic lights, %d flows, %d vehicles",
		c.Input.Scenario, len(s.Lanes), len(s.TrafficLights), len(s.Flows), len(s.Vehicles))
	res := &Input{Scenario: s}
	if c.Control.Policy.Kind != config.PolicyTIS {
		return res, nil
	}
	res.Ensemble, err = LoadEnsemble(c.Input.Models)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// LoadEnsemble 加载模型文件并组装集成打分器
func LoadEnsemble(models []config.Model) (*model.Ensemble, error) {
	results := parallel.GoMap(models, func(m config.Model) loaded {
		p, err := model.Load(m.File)
		if err != nil {
			return loaded{err: fmt.Errorf("model %s: %w", m.Name, err)}
		}
		return loaded{member: model.Member{Name: m.Name, Predictor: p, Weight: m.Weight}}
	})
	members := make([]model.Member, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		members = append(members, r.member)
		log.Infof("load model %s", r.member.Name)
	}
	return model.NewEnsemble(members...)
}
