package entity

import (
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/clock"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

// ITaskContext 控制任务上下文的依赖倒置
type ITaskContext interface {
	Clock() *clock.Clock
	Environment() IEnvironment
	RuntimeConfig() *config.RuntimeConfig
}
