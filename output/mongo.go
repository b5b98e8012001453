package output

import (
	"context"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/metrics"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
	"go.mongodb.org/mongo-driver/bson"
)

// MongoSink 将一次运行写成一个MongoDB文档
type MongoSink struct {
	c config.MongoOutput
}

func NewMongoSink(c config.MongoOutput) *MongoSink {
	return &MongoSink{c: c}
}

func (s *MongoSink) Name() string {
	return "mongo:" + s.c.DB + "." + s.c.Col
}

// WriteReport 写入运行文档
// 说明：文档包含汇总指标与全部每步指标，_id为运行ID
func (s *MongoSink) WriteReport(ctx context.Context, r metrics.Report) error {
	client := mongoutil.NewClient(s.c.URI)
	defer client.Disconnect(context.Background())

	summary := bson.M{}
	for _, row := range r.Summary.Rows() {
		summary[row.Metric] = row.Value
	}
	steps := make(bson.A, 0, len(r.Steps))
	for _, m := range r.Steps {
		steps = append(steps, bson.M{
			"step":         m.Step,
			"t":            m.T,
			"waiting_time": m.WaitingTime,
			"queue_length": m.QueueLength,
			"co2":          m.CO2,
			"fuel":         m.Fuel,
		})
	}
	_, err := client.Database(s.c.DB).Collection(s.c.Col).InsertOne(ctx, bson.M{
		"_id":     r.RunID,
		"policy":  r.Policy,
		"steps":   r.Summary.Steps,
		"summary": summary,
		"series":  steps,
	})
	return err
}
