// Command trackplot reads a recorded measurement stream and renders
// per-entity trajectory plots with 95% position-covariance ellipses,
// one PNG per entity, by replaying the recording through a fusion
// engine exactly as fusiond would at run time.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/fusion.report/internal/replay"
	"github.com/banshee-data/fusion.report/internal/track"
)

var (
	dbPath    = flag.String("db", "", "sqlite file previously written by fusiond's -record flag")
	outputDir = flag.String("out", "plots", "directory to write per-entity PNGs into")
)

// entitySample is one fused-state snapshot captured during replay.
type entitySample struct {
	position   track.Position
	covariance *mat.SymDense // position block only, 3x3
}

func main() {
	flag.Parse()
	if *dbPath == "" {
		log.Fatal("trackplot: -db is required")
	}

	store, err := replay.Open(*dbPath)
	if err != nil {
		log.Fatalf("trackplot: %v", err)
	}
	defer store.Close()

	engine := track.NewEngine(nil)

	samples := make(map[uint64][]entitySample)
	engine.SetOutputCallback(func(s track.FusedEntityState) {
		cov := mat.NewSymDense(3, nil)
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				cov.SetSym(i, j, s.Covariance.At(i, j))
			}
		}
		samples[s.EntityID] = append(samples[s.EntityID], entitySample{position: s.Position, covariance: cov})
	})
	engine.Start()

	ctx := context.Background()
	if err := store.Replay(ctx, 1000.0, engine.Ingest); err != nil {
		log.Fatalf("trackplot: replay: %v", err)
	}
	engine.Stop()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("trackplot: %v", err)
	}

	var ids []uint64
	for id := range samples {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := plotEntity(id, samples[id]); err != nil {
			log.Fatalf("trackplot: entity %d: %v", id, err)
		}
	}

	fmt.Printf("wrote %d plot(s) to %s\n", len(ids), *outputDir)
}

func plotEntity(entityID uint64, samples []entitySample) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Entity %d trajectory", entityID)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	path := make(plotter.XYs, len(samples))
	for i, s := range samples {
		path[i] = plotter.XY{X: s.position.X, Y: s.position.Y}
	}
	line, err := plotter.NewLine(path)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{B: 200, A: 255}
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("path", line)

	// Draw a 95% confidence ellipse at every 10th sample so the plot
	// stays readable on long trajectories.
	ellipseColor := color.RGBA{R: 200, A: 120}
	for i := 0; i < len(samples); i += 10 {
		ell := covarianceEllipse(samples[i].position, samples[i].covariance, 95)
		if ell == nil {
			continue
		}
		poly, err := plotter.NewPolygon(ell)
		if err != nil {
			return err
		}
		poly.Color = color.RGBA{}
		poly.LineStyle.Color = ellipseColor
		p.Add(poly)
	}

	p.Legend.Top = true
	p.Legend.Left = false

	outFile := filepath.Join(*outputDir, fmt.Sprintf("entity_%d.png", entityID))
	return p.Save(10*vg.Inch, 8*vg.Inch, outFile)
}

// chiSquare95TwoDOF is the chi-square critical value at 95% confidence
// for 2 degrees of freedom, used to scale the covariance ellipse's axes.
const chiSquare95TwoDOF = 5.991

// covarianceEllipse returns the boundary points of the confidencePct%
// position-covariance ellipse centered at pos, built from the XY block
// of cov via its eigendecomposition. Returns nil if cov is degenerate.
func covarianceEllipse(pos track.Position, cov *mat.SymDense, confidencePct float64) plotter.XYs {
	xy := mat.NewSymDense(2, nil)
	xy.SetSym(0, 0, cov.At(0, 0))
	xy.SetSym(0, 1, cov.At(0, 1))
	xy.SetSym(1, 1, cov.At(1, 1))

	var eig mat.EigenSym
	if ok := eig.Factorize(xy, true); !ok {
		return nil
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	if values[0] <= 0 || values[1] <= 0 {
		return nil
	}

	// For 2 degrees of freedom the chi-square quantile is -2*ln(1-p).
	scale := chiSquare95TwoDOF
	if confidencePct != 95 {
		scale = -2 * math.Log(1-confidencePct/100)
	}
	semiMajor := math.Sqrt(values[1] * scale)
	semiMinor := math.Sqrt(values[0] * scale)
	angle := math.Atan2(vectors.At(1, 1), vectors.At(0, 1))

	const segments = 48
	pts := make(plotter.XYs, segments+1)
	for i := 0; i <= segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		ex := semiMajor * math.Cos(theta)
		ey := semiMinor * math.Sin(theta)
		pts[i] = plotter.XY{
			X: pos.X + ex*math.Cos(angle) - ey*math.Sin(angle),
			Y: pos.Y + ex*math.Sin(angle) + ey*math.Cos(angle),
		}
	}
	return pts
}
