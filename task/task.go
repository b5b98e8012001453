// Package task 控制任务：把仿真环境、受控路口、指标与输出组装成一次完整的控制运行
package task

import (
	"fmt"
	"sync/atomic"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/clock"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/metrics"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/output"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

const (
	SelfName = "signal" // 本程序在模拟任务集群中的名字
)

var log = logrus.WithField("module", "task")

// Context 控制任务上下文
// 功能：包含一次控制运行的所有变量和状态，不使用全局变量，多个运行实例互相独立
// 说明：环境只在控制循环所在的协程中访问，sidecar协程只读取每步结束时的快照
type Context struct {
	// 任务名
	job string
	// 运行ID
	runID string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock        *clock.Clock
	clockService *clock.Service

	// 辅助程序，处理分布式模式下相关调用（可选）
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}

	// 仿真环境
	env entity.IEnvironment
	// 受控路口管理器
	junctionManager *junction.JunctionManager
	// 车道打分器（固定配时为nil）
	scorer junction.ILaneScorer

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig
	// 输出
	output *output.Output
	// 指标
	acc metrics.Accumulator
}

// NewContext 创建新的控制任务上下文
// 功能：组装控制运行所需的全部组件
// 参数：
//   - job: 任务名称
//   - c: 配置对象
//   - env: 仿真环境
//   - scorer: 特征打分器，TIS策略必须提供
//   - out: 输出（可为nil）
//   - sidecar: sidecar实例（可为nil，表示不提供RPC）
//   - startSidecarServe: 是否启动sidecar服务
//
// 返回：初始化完成的Context实例与错误
func NewContext(
	job string,
	c config.Config,
	env entity.IEnvironment,
	scorer trafficlight.IFeatureScorer,
	out *output.Output,
	sidecar *syncer.Sidecar,
	startSidecarServe bool,
) (*Context, error) {
	laneScorer, err := NewLaneScorer(c.Control.Policy, scorer)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = &output.Output{}
	}
	ctx := &Context{
		job:            job,
		runID:          uuid.NewString(),
		clock:          clock.New(c.Control.Step),
		clockService:   clock.NewService(),
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
		env:            env,
		scorer:         laneScorer,
		runtimeConfig:  config.NewRuntimeConfig(c),
		output:         out,
	}
	ctx.junctionManager = junction.NewManager(ctx)

	if ctx.sidecar != nil {
		ctx.clockService.Register(ctx.sidecar)
		ctx.junctionManager.Register(ctx.sidecar)
		// sidecar协程，用于提供gRPC服务
		if startSidecarServe {
			go func() {
				err := ctx.sidecar.Serve()
				if err != nil {
					log.Panicf("failed to serve: %v", err)
				}
				ctx.sidecarCloseCh <- struct{}{}
			}()
		} else {
			close(ctx.sidecarCloseCh)
		}
	}
	return ctx, nil
}

// NewLaneScorer 根据策略选择车道打分器
// 返回：车道打分器，固定配时返回nil
func NewLaneScorer(p config.Policy, scorer trafficlight.IFeatureScorer) (junction.ILaneScorer, error) {
	switch p.Kind {
	case config.PolicyTIS:
		if scorer == nil {
			return nil, fmt.Errorf("%w: policy %s without ensemble", config.ErrInvalidConfig, p.Kind)
		}
		return trafficlight.NewTISScorer(scorer, p.SuddenBrakeThreshold, p.Parallel), nil
	case config.PolicyMaxPressure:
		return trafficlight.NewPressureScorer(), nil
	case config.PolicyFixed:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown policy %q", config.ErrInvalidConfig, p.Kind)
	}
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) Environment() entity.IEnvironment {
	return ctx.env
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) JunctionManager() *junction.JunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) RunID() string {
	return ctx.runID
}

// Init 初始化时钟与受控路口
// 返回：错误；环境中没有信号灯时返回junction.ErrNoTrafficLight
func (ctx *Context) Init() error {
	ctx.clock.Init()
	ctx.clockService.Snapshot(ctx.clock)
	ctx.acc = metrics.Accumulator{}
	c := ctx.runtimeConfig.C
	if err := ctx.junctionManager.Init(c.TrafficLights, ctx.scorer); err != nil {
		return err
	}
	scorerName := "none"
	if ctx.scorer != nil {
		scorerName = ctx.scorer.Name()
	}
	log.Infof("run %s: policy=%s scorer=%s traffic lights=%d controlled lanes=%d",
		ctx.runID, c.Policy.Kind, scorerName, len(ctx.junctionManager.Junctions()), len(ctx.junctionManager.Lanes()))
	return nil
}

// Stop 请求控制循环在当前步结束后退出
func (ctx *Context) Stop() {
	ctx.closed.Store(true)
}

// Close 关闭sidecar与环境
func (ctx *Context) Close() error {
	if ctx.sidecar != nil {
		ctx.sidecar.Close()
		// wait for graceful stop
		<-ctx.sidecarCloseCh
		ctx.sidecar = nil
	}
	return ctx.env.Close()
}
