// Package chart renders an entity's history series as a PNG plot of cpu and
// memory fractions over time.
package chart

import (
	"bytes"

	"github.com/wcharczuk/go-chart/v2"

	"pvebot/internal/models"
)

// Render plots the given series and returns the encoded PNG. Fewer than two
// points cannot form a line; the result is then empty with no error.
func Render(name string, entries []models.HistoryEntry) ([]byte, error) {
	if len(entries) < 2 {
		return nil, nil
	}

	times := make([]float64, 0, len(entries))
	cpu := make([]float64, 0, len(entries))
	mem := make([]float64, 0, len(entries))
	for _, e := range entries {
		times = append(times, chart.TimeToFloat64(e.Time))
		cpu = append(cpu, e.CPU*100)
		mem = append(mem, e.Mem*100)
	}

	graph := chart.Chart{
		Title: name,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04"),
		},
		YAxis: chart.YAxis{
			Name:  "percent",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "cpu",
				XValues: times,
				YValues: cpu,
				Style:   chart.Style{StrokeColor: chart.ColorBlue},
			},
			chart.ContinuousSeries{
				Name:    "mem",
				XValues: times,
				YValues: mem,
				Style:   chart.Style{StrokeColor: chart.ColorRed},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
