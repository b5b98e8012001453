package task

import (
	"context"
	"flag"
	"fmt"

	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/metrics"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/output"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// finished 运行是否结束
// 说明：定步长运行（Total>0）只以结束步为准，即使车辆提前清空也跑满；否则环境中不再有车辆时结束
func (ctx *Context) finished() bool {
	if ctx.clock.END_STEP > 0 {
		return ctx.clock.Done()
	}
	return ctx.env.MinExpectedNumber() == 0
}

// prepare 准备阶段，每步执行一次
// 功能：推进环境一步并更新时钟
func (ctx *Context) prepare() error {
	if err := ctx.env.Step(); err != nil {
		return fmt.Errorf("step %d: %w", ctx.clock.InternalStep, err)
	}
	ctx.clock.Tick(ctx.env.Time())

	if *heartBeatInterval > 0 && ctx.clock.InternalStep%int32(*heartBeatInterval) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		log.Infof(
			"STEP: %d(%d:%d:%.2f) vehicles=%d",
			ctx.clock.InternalStep,
			hour, minute, second,
			ctx.env.MinExpectedNumber(),
		)
	}
	return nil
}

// update 更新阶段，每步执行一次
// 功能：检测紧急车辆、所有受控路口决策并下发、汇总本步指标
// 算法说明：
// 1. 非固定配时时检测路网中是否存在紧急车辆
// 2. 受控路口依次决策并立即下发动作
// 3. 汇总本步指标并追加到累加器
// 4. 分发每步事件，写入时钟快照
func (ctx *Context) update() error {
	priority := false
	policy := ctx.runtimeConfig.C.Policy
	if ctx.scorer != nil {
		var err error
		priority, err = trafficlight.DetectPriority(ctx.env, policy.EmergencyKeyword)
		if err != nil {
			return fmt.Errorf("step %d: detect priority: %w", ctx.clock.InternalStep, err)
		}
	}
	actions, err := ctx.junctionManager.Step(priority)
	if err != nil {
		return fmt.Errorf("step %d: %w", ctx.clock.InternalStep, err)
	}
	m, err := CollectStepMetrics(ctx.env, ctx.junctionManager.ControlledLanes())
	if err != nil {
		return fmt.Errorf("step %d: metrics: %w", ctx.clock.InternalStep, err)
	}
	m.Step = ctx.clock.InternalStep
	m.T = ctx.clock.T
	ctx.acc = ctx.acc.Append(m)

	ctx.output.Step(context.Background(), output.StepEvent{
		RunID:   ctx.runID,
		Policy:  policy.Kind,
		Metrics: m,
		Actions: actions,
	})
	ctx.clockService.Snapshot(ctx.clock)
	return nil
}

// CollectStepMetrics 汇总单步指标
// 功能：等待时间、CO2、油耗为所有活动车辆之和，排队长度为受控车道停止车辆数之和
// 参数：env-仿真环境，lanes-受控连接对应的车道（不去重，控制多个连接的车道按连接数计入）
func CollectStepMetrics(env entity.IEnvironment, lanes []string) (metrics.StepMetrics, error) {
	var m metrics.StepMetrics
	for _, id := range env.VehicleIDs() {
		v, err := env.Vehicle(id)
		if err != nil {
			return m, err
		}
		m.WaitingTime += v.WaitingTime
		m.CO2 += v.CO2
		m.Fuel += v.Fuel
	}
	for _, lane := range lanes {
		n, err := env.LaneHaltingNumber(lane)
		if err != nil {
			return m, err
		}
		m.QueueLength += float64(n)
	}
	return m, nil
}

// Run 运行控制循环
// 功能：初始化后逐步推进，直到环境中不再有车辆、到达结束步或收到关闭指令
// 返回：所有步的指标与错误；任一步出错立即终止，不重试
// 说明：初始化成功后，运行结束（包括出错）时写入报告；最后关闭输出与环境
func (ctx *Context) Run() (acc metrics.Accumulator, err error) {
	started := false
	defer func() {
		acc = ctx.acc
		if started {
			ctx.output.Report(context.Background(), metrics.Report{
				RunID:   ctx.runID,
				Policy:  ctx.runtimeConfig.C.Policy.Kind,
				Summary: acc.Summary(),
				Steps:   acc.Steps(),
			})
		}
		if closeErr := ctx.output.Close(); closeErr != nil {
			log.Errorf("output: %v", closeErr)
			if err == nil {
				err = closeErr
			}
		}
		if closeErr := ctx.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if err = ctx.Init(); err != nil {
		return
	}
	started = true
	// init syncer
	if ctx.sidecar != nil {
		ctx.sidecar.Step(false)
	}
	for !ctx.finished() {
		if err = ctx.prepare(); err != nil {
			return
		}
		// 通知准备阶段完成
		if ctx.sidecar != nil {
			ctx.sidecar.NotifyStepReady()
		}
		if err = ctx.update(); err != nil {
			return
		}
		log.Debugf("step %d: update complete", ctx.clock.InternalStep)
		closing := ctx.finished()
		if ctx.sidecar != nil && ctx.sidecar.Step(closing) {
			break
		}
		if ctx.closed.Load() {
			break
		}
	}
	log.Infof("control loop complete after %d steps", ctx.clock.Steps())
	return
}

// RunConfig 使用给定环境完成一次运行（不提供RPC）
func RunConfig(job string, c config.Config, env entity.IEnvironment, scorer trafficlight.IFeatureScorer, out *output.Output) (metrics.Accumulator, error) {
	ctx, err := NewContext(job, c, env, scorer, out, nil, false)
	if err != nil {
		return metrics.Accumulator{}, err
	}
	return ctx.Run()
}
