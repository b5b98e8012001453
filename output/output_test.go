package output_test

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/metrics"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/output"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
)

func testReport() metrics.Report {
	var acc metrics.Accumulator
	acc = acc.Append(metrics.StepMetrics{Step: 1, T: 1, WaitingTime: 2, CO2: 100, Fuel: 30, QueueLength: 1})
	acc = acc.Append(metrics.StepMetrics{Step: 2, T: 2, WaitingTime: 4, CO2: 300, Fuel: 50, QueueLength: 3})
	return metrics.Report{RunID: "run-1", Policy: "tis", Summary: acc.Summary(), Steps: acc.Steps()}
}

func TestCSVSink(t *testing.T) {
	file := filepath.Join(t.TempDir(), "out", "summary.csv")
	s := output.NewCSVSink(file)
	require.NoError(t, s.WriteReport(context.Background(), testReport()))

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Metric", "Value"},
		{"Waiting Time", "3"},
		{"Queue Length", "2"},
		{"CO2", "200"},
		{"Fuel", "40"},
	}, records)
}

func TestSQLiteSink(t *testing.T) {
	file := filepath.Join(t.TempDir(), "runs.db")
	s := output.NewSQLiteSink(file, "")
	ctx := context.Background()
	require.NoError(t, s.WriteReport(ctx, testReport()))
	// 同一数据库追加第二次运行
	r := testReport()
	r.RunID = "run-2"
	require.NoError(t, s.WriteReport(ctx, r))

	db, err := sql.Open("sqlite", file)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tis_runs`).Scan(&n))
	assert.Equal(t, 8, n)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tis_runs_steps WHERE run_id = ?`, "run-2").Scan(&n))
	assert.Equal(t, 2, n)

	var v float64
	require.NoError(t, db.QueryRow(`SELECT value FROM tis_runs WHERE run_id = ? AND metric = ?`, "run-1", "CO2").Scan(&v))
	assert.Equal(t, 200., v)
}

func TestSQLiteSinkBadTable(t *testing.T) {
	s := output.NewSQLiteSink(filepath.Join(t.TempDir(), "runs.db"), "runs; DROP TABLE x")
	assert.Error(t, s.WriteReport(context.Background(), testReport()))
}

func TestChartSink(t *testing.T) {
	dir := t.TempDir()
	s := output.NewChartSink(filepath.Join(dir, "run.png"))
	assert.Equal(t, []string{
		filepath.Join(dir, "run_waiting_time.png"),
		filepath.Join(dir, "run_queue_length.png"),
		filepath.Join(dir, "run_co2.png"),
		filepath.Join(dir, "run_fuel.png"),
	}, s.Files())

	require.NoError(t, s.WriteReport(context.Background(), testReport()))
	for _, f := range s.Files() {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestChartSinkEmptyRun(t *testing.T) {
	dir := t.TempDir()
	s := output.NewChartSink(filepath.Join(dir, "run"))
	assert.Equal(t, filepath.Join(dir, "run_fuel.png"), s.Files()[3])
	require.NoError(t, s.WriteReport(context.Background(), metrics.Report{}))
	_, err := os.Stat(s.Files()[0])
	assert.True(t, os.IsNotExist(err))
}

type fakeSink struct {
	reports []metrics.Report
	events  []output.StepEvent
	err     error
	closed  bool
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) WriteReport(_ context.Context, r metrics.Report) error {
	s.reports = append(s.reports, r)
	return s.err
}

func (s *fakeSink) WriteStep(_ context.Context, ev output.StepEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func TestOutputDispatch(t *testing.T) {
	o, err := output.New(config.Output{})
	require.NoError(t, err)
	ok := &fakeSink{}
	o.Add(ok)

	ctx := context.Background()
	o.Step(ctx, output.StepEvent{RunID: "run-1", Policy: "tis"})
	o.Step(ctx, output.StepEvent{RunID: "run-1", Policy: "tis"})
	o.Report(ctx, testReport())
	require.NoError(t, o.Close())

	assert.Len(t, ok.events, 2)
	assert.Len(t, ok.reports, 1)
	assert.True(t, ok.closed)
}

func TestOutputErrorsCollected(t *testing.T) {
	o, err := output.New(config.Output{})
	require.NoError(t, err)
	errBroken := errors.New("broken")
	bad := &fakeSink{err: errBroken}
	good := &fakeSink{}
	o.Add(bad)
	o.Add(good)

	ctx := context.Background()
	o.Step(ctx, output.StepEvent{})
	o.Report(ctx, testReport())
	// 失败的输出不影响其它输出
	assert.Len(t, good.events, 1)
	assert.Len(t, good.reports, 1)

	err = o.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, errBroken)
	assert.NoError(t, o.Close())
}

func TestOutputRepeatedStepFailures(t *testing.T) {
	o, err := output.New(config.Output{})
	require.NoError(t, err)
	errDown := errors.New("server down")
	bad := &fakeSink{err: errDown}
	o.Add(bad)

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		o.Step(ctx, output.StepEvent{})
	}
	assert.Len(t, bad.events, 1000)

	err = o.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
	assert.Contains(t, err.Error(), "1000 failed steps")
	// 每个输出只汇总成一条错误
	assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 1)
}

func TestOutputFromConfig(t *testing.T) {
	dir := t.TempDir()
	o, err := output.New(config.Output{
		CSV:    &config.CSVOutput{File: filepath.Join(dir, "summary.csv")},
		SQLite: &config.SQLiteOutput{File: filepath.Join(dir, "runs.db")},
		Chart:  &config.ChartOutput{File: filepath.Join(dir, "run.png")},
	})
	require.NoError(t, err)
	o.Report(context.Background(), testReport())
	require.NoError(t, o.Close())

	for _, f := range []string{"summary.csv", "runs.db", "run_co2.png"} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}
}
