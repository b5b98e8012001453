package output

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

const defaultMeasurement = "tis_step"

// InfluxSink 每步把汇总指标写成InfluxDB时序点
// 说明：时间戳为运行开始的墙钟时间加仿真时间
type InfluxSink struct {
	client      influxdb2.Client
	writer      api.WriteAPIBlocking
	measurement string
	start       time.Time
}

func NewInfluxSink(c config.InfluxOutput, start time.Time) *InfluxSink {
	client := influxdb2.NewClient(c.URL, c.Token)
	measurement := c.Measurement
	if measurement == "" {
		measurement = defaultMeasurement
	}
	return &InfluxSink{
		client:      client,
		writer:      client.WriteAPIBlocking(c.Org, c.Bucket),
		measurement: measurement,
		start:       start,
	}
}

func (s *InfluxSink) Name() string {
	return "influx:" + s.measurement
}

func (s *InfluxSink) WriteStep(ctx context.Context, ev StepEvent) error {
	m := ev.Metrics
	p := influxdb2.NewPoint(
		s.measurement,
		map[string]string{"run_id": ev.RunID, "policy": ev.Policy},
		map[string]any{
			"step":         m.Step,
			"waiting_time": m.WaitingTime,
			"queue_length": m.QueueLength,
			"co2":          m.CO2,
			"fuel":         m.Fuel,
			"actions":      len(ev.Actions),
		},
		s.start.Add(time.Duration(m.T*float64(time.Second))),
	)
	return s.writer.WritePoint(ctx, p)
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
