package clock

import (
	"fmt"

	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

// Clock 控制循环时钟
// 功能：记录控制循环的步数与仿真时间，判断定步长运行是否结束
// 说明：步长与环境的推进步长一致，Total为0时没有结束步，由环境决定何时结束
type Clock struct {
	DT         float64 // 每步时间间隔（秒）
	START_STEP int32   // 起始步
	END_STEP   int32   // 结束步，模拟区间[START, END)，为0表示不限制

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前步数
}

// New 根据配置创建新的时钟实例
// 功能：根据控制步配置初始化时钟
// 参数：stepConfig-控制步配置
// 返回：初始化完成的时钟实例
func New(stepConfig config.ControlStep) *Clock {
	c := &Clock{
		DT:         stepConfig.Interval,
		START_STEP: stepConfig.Start,
	}
	if stepConfig.Total > 0 {
		c.END_STEP = stepConfig.Start + stepConfig.Total
	}
	c.Init()
	return c
}

// Init 重置时钟状态
func (c *Clock) Init() {
	c.InternalStep = c.START_STEP
	c.T = float64(c.InternalStep) * c.DT
}

// Tick 前进一步
// 说明：T以环境报告的时间为准，环境未提供时间时按步长推算
func (c *Clock) Tick(envTime float64) {
	c.InternalStep++
	if envTime > 0 {
		c.T = envTime
	} else {
		c.T = float64(c.InternalStep) * c.DT
	}
}

// Done 定步长运行是否已经结束
func (c *Clock) Done() bool {
	return c.END_STEP > 0 && c.InternalStep >= c.END_STEP
}

// Steps 已经执行的步数
func (c *Clock) Steps() int32 {
	return c.InternalStep - c.START_STEP
}

// String 获取时钟的字符串表示
// 功能：将当前时间格式化为可读的字符串（HH:MM:SS）
func (c *Clock) String() string {
	t := c.T
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
