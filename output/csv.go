package output

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/metrics"
)

// CSVSink 以 Metric,Value 两列写出汇总指标
type CSVSink struct {
	file string
}

func NewCSVSink(file string) *CSVSink {
	return &CSVSink{file: file}
}

func (s *CSVSink) Name() string {
	return "csv:" + s.file
}

func (s *CSVSink) WriteReport(_ context.Context, r metrics.Report) error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0755); err != nil {
		return err
	}
	f, err := os.Create(s.file)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	records := [][]string{{"Metric", "Value"}}
	for _, row := range r.Summary.Rows() {
		records = append(records, []string{row.Metric, strconv.FormatFloat(row.Value, 'f', -1, 64)})
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return f.Close()
}
