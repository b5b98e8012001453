// 运行指标：每步汇总的等待时间、排放、油耗与排队长度，只追加，运行结束时求均值
package metrics

import (
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// StepMetrics 单步汇总指标
type StepMetrics struct {
	Step        int32   `json:"step"`         // 步数
	T           float64 `json:"t"`            // 仿真时间
	WaitingTime float64 `json:"waiting_time"` // 所有活动车辆的等待时间之和
	CO2         float64 `json:"co2"`          // 所有活动车辆的CO2排放率之和
	Fuel        float64 `json:"fuel"`         // 所有活动车辆的油耗率之和
	QueueLength float64 `json:"queue_length"` // 受控车道停止车辆数之和
}

// Accumulator 指标累加器
// 功能：按步追加指标，运行结束时统一读取
// 说明：值类型，由控制循环在每步传入并返回，不使用全局变量，每个运行实例互相独立
type Accumulator struct {
	steps []StepMetrics
}

// Append 追加一步的指标，返回新的累加器
// 说明：不会写入原累加器的底层数组，同一累加器多次追加得到的结果互不影响
func (a Accumulator) Append(s StepMetrics) Accumulator {
	a.steps = append(a.steps[:len(a.steps):len(a.steps)], s)
	return a
}

// Len 已记录的步数
func (a Accumulator) Len() int {
	return len(a.steps)
}

// Steps 返回所有步的指标（副本）
func (a Accumulator) Steps() []StepMetrics {
	return append([]StepMetrics(nil), a.steps...)
}

// Summary 运行结果汇总
type Summary struct {
	Steps          int
	AvgWaitingTime float64
	AvgQueueLength float64
	AvgCO2         float64
	AvgFuel        float64
}

// Summary 计算每项指标在整个运行中的均值
// 说明：没有任何步时所有均值为0
func (a Accumulator) Summary() Summary {
	if len(a.steps) == 0 {
		return Summary{}
	}
	mean := func(f func(StepMetrics) float64) float64 {
		return stat.Mean(lo.Map(a.steps, func(s StepMetrics, _ int) float64 { return f(s) }), nil)
	}
	return Summary{
		Steps:          len(a.steps),
		AvgWaitingTime: mean(func(s StepMetrics) float64 { return s.WaitingTime }),
		AvgQueueLength: mean(func(s StepMetrics) float64 { return s.QueueLength }),
		AvgCO2:         mean(func(s StepMetrics) float64 { return s.CO2 }),
		AvgFuel:        mean(func(s StepMetrics) float64 { return s.Fuel }),
	}
}

// Report 一次运行的完整报告
type Report struct {
	RunID   string
	Policy  string
	Summary Summary
	Steps   []StepMetrics
}

// Row 报告中的一行指标均值
type Row struct {
	Metric string
	Value  float64
}

// Rows 报告的指标行，顺序与输出文件一致
func (s Summary) Rows() []Row {
	return []Row{
		{"Waiting Time", s.AvgWaitingTime},
		{"Queue Length", s.AvgQueueLength},
		{"CO2", s.AvgCO2},
		{"Fuel", s.AvgFuel},
	}
}
