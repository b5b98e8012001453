package output

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/metrics"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// series 曲线图中的一个指标
type series struct {
	name  string
	unit  string
	color color.Color
	value func(metrics.StepMetrics) float64
}

var chartSeries = []series{
	{"waiting_time", "Waiting Time (s)", color.RGBA{R: 214, G: 39, B: 40, A: 255}, func(m metrics.StepMetrics) float64 { return m.WaitingTime }},
	{"queue_length", "Queue Length (veh)", color.RGBA{R: 31, G: 119, B: 180, A: 255}, func(m metrics.StepMetrics) float64 { return m.QueueLength }},
	{"co2", "CO2", color.RGBA{R: 44, G: 160, B: 44, A: 255}, func(m metrics.StepMetrics) float64 { return m.CO2 }},
	{"fuel", "Fuel", color.RGBA{R: 255, G: 127, B: 14, A: 255}, func(m metrics.StepMetrics) float64 { return m.Fuel }},
}

// ChartSink 把每步指标画成PNG曲线
// 说明：每个指标一个文件，文件名为配置文件名加指标后缀，如 out/run.png -> out/run_waiting_time.png
type ChartSink struct {
	file string
}

func NewChartSink(file string) *ChartSink {
	return &ChartSink{file: file}
}

func (s *ChartSink) Name() string {
	return "chart:" + s.file
}

// Files 各指标曲线图的文件路径
func (s *ChartSink) Files() []string {
	ext := filepath.Ext(s.file)
	if ext == "" {
		ext = ".png"
	}
	base := strings.TrimSuffix(s.file, filepath.Ext(s.file))
	files := make([]string, len(chartSeries))
	for i, se := range chartSeries {
		files[i] = base + "_" + se.name + ext
	}
	return files
}

func (s *ChartSink) WriteReport(_ context.Context, r metrics.Report) error {
	if len(r.Steps) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.file), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	files := s.Files()
	for i, se := range chartSeries {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s - %s (run %s)", r.Policy, se.unit, r.RunID)
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = se.unit

		pts := make(plotter.XYs, len(r.Steps))
		for j, m := range r.Steps {
			pts[j] = plotter.XY{X: m.T, Y: se.value(m)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = se.color
		line.Width = vg.Points(1)
		p.Add(line, plotter.NewGrid())

		if err := p.Save(14*vg.Inch, 6*vg.Inch, files[i]); err != nil {
			return fmt.Errorf("save %s plot: %w", se.name, err)
		}
	}
	return nil
}
