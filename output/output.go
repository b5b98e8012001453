// Package output 运行报告与每步事件的输出
// 报告在运行结束时写入（CSV、SQLite、MongoDB、PNG曲线），每步事件在每步结束时发布（NATS、InfluxDB）
package output

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/metrics"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

var log = logrus.WithField("module", "output")

// StepEvent 每步结束时发布的事件
type StepEvent struct {
	RunID   string              `json:"run_id"`
	Policy  string              `json:"policy"`
	Metrics metrics.StepMetrics `json:"metrics"`
	Actions []entity.Action     `json:"actions"`
}

// IReportSink 运行报告输出
type IReportSink interface {
	Name() string
	WriteReport(ctx context.Context, r metrics.Report) error
}

// IStepSink 每步事件输出
type IStepSink interface {
	Name() string
	WriteStep(ctx context.Context, ev StepEvent) error
	Close() error
}

// stepSink 每步输出及其失败记录
// 说明：只保留第一次失败的错误与失败次数，持续失败时内存不随步数增长
type stepSink struct {
	IStepSink
	firstErr error
	failed   int
}

// Output 所有已配置输出的集合
// 功能：每步把事件分发给所有每步输出，运行结束时写入所有报告输出
// 说明：单个输出失败只记录日志并继续，错误在Close时统一返回
type Output struct {
	reports []IReportSink
	steps   []*stepSink
	start   time.Time // 运行开始的墙钟时间，时序数据以此为基准
	errs    []error
}

// New 根据配置创建输出
// 功能：创建所有已配置的输出，每步输出在此时建立连接
// 返回：输出集合与错误，任一连接失败时关闭已建立的连接并返回错误
func New(c config.Output) (*Output, error) {
	o := &Output{start: time.Now()}
	if c.CSV != nil {
		o.reports = append(o.reports, NewCSVSink(c.CSV.File))
	}
	if c.SQLite != nil {
		o.reports = append(o.reports, NewSQLiteSink(c.SQLite.File, c.SQLite.Table))
	}
	if c.Mongo != nil {
		o.reports = append(o.reports, NewMongoSink(*c.Mongo))
	}
	if c.Chart != nil {
		o.reports = append(o.reports, NewChartSink(c.Chart.File))
	}
	if c.NATS != nil {
		s, err := NewNATSSink(c.NATS.URL, c.NATS.Subject)
		if err != nil {
			o.Close()
			return nil, err
		}
		o.steps = append(o.steps, &stepSink{IStepSink: s})
	}
	if c.Influx != nil {
		o.steps = append(o.steps, &stepSink{IStepSink: NewInfluxSink(*c.Influx, o.start)})
	}
	return o, nil
}

// Add 追加输出，用于在配置之外注入自定义输出
func (o *Output) Add(sink any) {
	if r, ok := sink.(IReportSink); ok {
		o.reports = append(o.reports, r)
	}
	if s, ok := sink.(IStepSink); ok {
		o.steps = append(o.steps, &stepSink{IStepSink: s})
	}
}

// Step 分发每步事件
func (o *Output) Step(ctx context.Context, ev StepEvent) {
	for _, s := range o.steps {
		if err := s.WriteStep(ctx, ev); err != nil {
			if s.failed == 0 {
				log.Warnf("step sink %s: %v (further failures are counted)", s.Name(), err)
				s.firstErr = err
			}
			s.failed++
		}
	}
}

// Report 写入运行报告
// 说明：汇总结果总是输出到日志，其余报告输出依次写入
func (o *Output) Report(ctx context.Context, r metrics.Report) {
	log.Infof("===== %s RESULTS (run %s, %d steps) =====", r.Policy, r.RunID, r.Summary.Steps)
	for _, row := range r.Summary.Rows() {
		log.Infof("%-12s %f", row.Metric, row.Value)
	}
	for _, s := range o.reports {
		if err := s.WriteReport(ctx, r); err != nil {
			log.Errorf("report sink %s: %v", s.Name(), err)
			o.errs = append(o.errs, fmt.Errorf("report sink %s: %w", s.Name(), err))
		} else {
			log.Infof("report written to %s", s.Name())
		}
	}
}

// Close 关闭所有每步输出，返回运行期间累积的全部错误
func (o *Output) Close() error {
	for _, s := range o.steps {
		if s.failed > 0 {
			o.errs = append(o.errs, fmt.Errorf("step sink %s: %d failed steps, first: %w", s.Name(), s.failed, s.firstErr))
		}
		if err := s.Close(); err != nil {
			o.errs = append(o.errs, fmt.Errorf("close step sink %s: %w", s.Name(), err))
		}
	}
	o.steps = nil
	err := errors.Join(o.errs...)
	o.errs = nil
	return err
}
