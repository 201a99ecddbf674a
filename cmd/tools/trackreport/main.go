// Command trackreport replays a recorded measurement stream and renders
// an HTML report with per-entity confidence and speed history charts,
// built with go-echarts the way the teacher's debug dashboards are.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/fusion.report/internal/replay"
	"github.com/banshee-data/fusion.report/internal/track"
)

var (
	dbPath     = flag.String("db", "", "sqlite file previously written by fusiond's -record flag")
	outputFile = flag.String("out", "track_report.html", "HTML file to write")
)

type entityHistory struct {
	ticks       []string
	confidence  []opts.LineData
	speed       []opts.LineData
	measurement []opts.LineData
}

func main() {
	flag.Parse()
	if *dbPath == "" {
		log.Fatal("trackreport: -db is required")
	}

	store, err := replay.Open(*dbPath)
	if err != nil {
		log.Fatalf("trackreport: %v", err)
	}
	defer store.Close()

	engine := track.NewEngine(nil)

	histories := make(map[uint64]*entityHistory)
	tick := 0
	engine.SetOutputCallback(func(s track.FusedEntityState) {
		h, ok := histories[s.EntityID]
		if !ok {
			h = &entityHistory{}
			histories[s.EntityID] = h
		}
		speed := math.Sqrt(s.Velocity.VX*s.Velocity.VX + s.Velocity.VY*s.Velocity.VY + s.Velocity.VZ*s.Velocity.VZ)
		h.ticks = append(h.ticks, fmt.Sprintf("%d", tick))
		h.confidence = append(h.confidence, opts.LineData{Value: s.Confidence})
		h.speed = append(h.speed, opts.LineData{Value: speed})
		h.measurement = append(h.measurement, opts.LineData{Value: s.MeasurementCount})
	})
	engine.Start()

	ctx := context.Background()
	if err := store.Replay(ctx, 1000.0, func(m track.Measurement) {
		tick++
		engine.Ingest(m)
	}); err != nil {
		log.Fatalf("trackreport: replay: %v", err)
	}
	engine.Stop()

	page := components.NewPage()
	page.PageTitle = "Entity Fusion Report"

	var ids []uint64
	for id := range histories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		h := histories[id]
		page.AddCharts(confidenceChart(id, h), speedChart(id, h))
	}

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("trackreport: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("trackreport: render: %v", err)
	}

	fmt.Printf("wrote report for %d entities to %s\n", len(ids), *outputFile)
}

func confidenceChart(entityID uint64, h *entityHistory) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Entity %d confidence", entityID)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	line.SetXAxis(h.ticks).
		AddSeries("confidence", h.confidence).
		AddSeries("measurements", h.measurement).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func speedChart(entityID uint64, h *entityHistory) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Entity %d speed (m/s)", entityID)}),
	)
	line.SetXAxis(h.ticks).
		AddSeries("speed", h.speed).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}
