package junction

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

// Junction 一个受控信号灯（路口）的控制器
// 功能：每步根据车道得分选择相位与绿灯时长，或在紧急车辆出现时延长当前相位
// 说明：每个Junction的状态互相独立，不跨步保存任何决策状态
type Junction struct {
	ctx entity.ITaskContext

	index           int32                    // 在受控列表中的序号，作为RPC中的junction_id
	id              string                   // 信号灯ID
	controlledLanes []string                 // 受控车道，与相位状态串逐位对齐
	lanes           []string                 // 去重后的受控车道，用于打分
	defs            []entity.PhaseDefinition // 原始相位定义
	phases          []trafficlight.Phase     // 解析后的相位
	scorer          ILaneScorer              // 车道打分（nil表示固定配时）
	duration        trafficlight.DurationPolicy
	priorityT       float64 // 紧急优先延长时长

	// 每步结束时写入的快照
	phase      int32
	remainingT float64
	lastAction entity.Action
}

// newJunction 创建并初始化一个Junction控制器
// 功能：从环境读取受控车道与信号灯程序，解析相位并校验
// 参数：ctx-任务上下文，index-受控序号，id-信号灯ID，scorer-车道打分器（固定配时为nil）
// 返回：Junction实例与错误
func newJunction(ctx entity.ITaskContext, index int32, id string, scorer ILaneScorer) (*Junction, error) {
	env := ctx.Environment()
	policy := ctx.RuntimeConfig().C.Policy
	controlled, err := env.ControlledLanes(id)
	if err != nil {
		return nil, fmt.Errorf("traffic light %s: %w", id, err)
	}
	defs, err := env.Phases(id)
	if err != nil {
		return nil, fmt.Errorf("traffic light %s: %w", id, err)
	}
	phases, err := trafficlight.NewPhases(defs, len(controlled))
	if err != nil {
		return nil, fmt.Errorf("traffic light %s: %w", id, err)
	}
	if policy.Kind == config.PolicyFixed {
		scorer = nil
	}
	j := &Junction{
		ctx:             ctx,
		index:           index,
		id:              id,
		controlledLanes: controlled,
		lanes:           lo.Uniq(controlled),
		defs:            defs,
		phases:          phases,
		scorer:          scorer,
		duration:        trafficlight.NewDurationPolicy(policy),
		priorityT:       policy.PriorityDuration,
		lastAction:      entity.Action{TrafficLight: id, Kind: entity.ActionHold},
	}
	return j, nil
}

// decide 计算本步动作
// 功能：紧急优先 -> 延长当前相位；否则车道打分 -> 相位效用 -> 绿灯时长
// 参数：priority-本步路网中是否存在紧急车辆
// 返回：本步动作与错误
func (j *Junction) decide(priority bool) (entity.Action, error) {
	env := j.ctx.Environment()
	if j.scorer == nil {
		return entity.Action{TrafficLight: j.id, Kind: entity.ActionHold}, nil
	}
	if priority {
		cur, err := env.CurrentPhase(j.id)
		if err != nil {
			return entity.Action{}, err
		}
		return entity.Action{
			TrafficLight: j.id,
			Kind:         entity.ActionPriority,
			Phase:        cur,
			Duration:     j.priorityT,
		}, nil
	}
	scores, err := j.scorer.ScoreLanes(env, j.lanes)
	if err != nil {
		return entity.Action{}, fmt.Errorf("traffic light %s: %w", j.id, err)
	}
	best, utility := trafficlight.SelectPhase(j.phases, scores, j.controlledLanes)
	if best < 0 {
		return entity.Action{TrafficLight: j.id, Kind: entity.ActionHold}, nil
	}
	return entity.Action{
		TrafficLight: j.id,
		Kind:         entity.ActionNormal,
		Phase:        best,
		Duration:     j.duration.Duration(utility),
		Utility:      utility,
	}, nil
}

// apply 向环境下发动作
func (j *Junction) apply(a entity.Action) error {
	env := j.ctx.Environment()
	switch a.Kind {
	case entity.ActionNormal:
		if err := env.SetPhase(j.id, a.Phase); err != nil {
			return err
		}
		return env.SetPhaseDuration(j.id, a.Duration)
	case entity.ActionPriority:
		return env.SetPhaseDuration(j.id, a.Duration)
	default:
		return nil
	}
}

// snapshot 记录本步结束时的信号灯状态，供RPC读取
func (j *Junction) snapshot(a entity.Action) error {
	env := j.ctx.Environment()
	cur, err := env.CurrentPhase(j.id)
	if err != nil {
		return err
	}
	remaining, err := env.RemainingTime(j.id)
	if err != nil {
		return err
	}
	j.phase = int32(cur)
	j.remainingT = remaining
	j.lastAction = a
	return nil
}

// ID 获取信号灯ID
func (j *Junction) ID() string {
	return j.id
}

// Phase 当前相位
func (j *Junction) Phase() int32 {
	return j.phase
}

// RemainingTime 当前相位剩余时长
func (j *Junction) RemainingTime() float64 {
	return j.remainingT
}

// LastAction 上一步下发的动作
func (j *Junction) LastAction() entity.Action {
	return j.lastAction
}

// Lanes 去重后的受控车道
func (j *Junction) Lanes() []string {
	return j.lanes
}
