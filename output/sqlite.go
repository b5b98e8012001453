package output

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/metrics"
	_ "modernc.org/sqlite"
)

const defaultSQLiteTable = "tis_runs"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSink 将汇总指标与每步指标写入SQLite数据库
// 说明：汇总写入<table>，每步指标写入<table>_steps，同一数据库可以保存多次运行，以run_id区分
type SQLiteSink struct {
	file  string
	table string
}

func NewSQLiteSink(file, table string) *SQLiteSink {
	if table == "" {
		table = defaultSQLiteTable
	}
	return &SQLiteSink{file: file, table: table}
}

func (s *SQLiteSink) Name() string {
	return "sqlite:" + s.file
}

// WriteReport 在一个事务中写入一次运行
func (s *SQLiteSink) WriteReport(ctx context.Context, r metrics.Report) (err error) {
	if !identifier.MatchString(s.table) {
		return fmt.Errorf("bad table name %q", s.table)
	}
	db, err := sql.Open("sqlite", s.file)
	if err != nil {
		return err
	}
	defer db.Close()
	_, _ = db.Exec("PRAGMA busy_timeout = 5000;")

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	run_id TEXT NOT NULL,
	policy TEXT NOT NULL,
	metric TEXT NOT NULL,
	value REAL NOT NULL,
	steps INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS %[1]s_steps (
	run_id TEXT NOT NULL,
	step INTEGER NOT NULL,
	t REAL NOT NULL,
	waiting_time REAL NOT NULL,
	queue_length REAL NOT NULL,
	co2 REAL NOT NULL,
	fuel REAL NOT NULL
);`, s.table)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, row := range r.Summary.Rows() {
		if _, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (run_id, policy, metric, value, steps, created_at) VALUES (?, ?, ?, ?, ?, ?)`, s.table),
			r.RunID, r.Policy, row.Metric, row.Value, r.Summary.Steps, now,
		); err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}
	}
	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s_steps (run_id, step, t, waiting_time, queue_length, co2, fuel) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table),
	)
	if err != nil {
		return fmt.Errorf("prepare steps: %w", err)
	}
	defer stmt.Close()
	for _, m := range r.Steps {
		if _, err = stmt.ExecContext(ctx, r.RunID, m.Step, m.T, m.WaitingTime, m.QueueLength, m.CO2, m.Fuel); err != nil {
			return fmt.Errorf("insert step %d: %w", m.Step, err)
		}
	}
	return tx.Commit()
}
