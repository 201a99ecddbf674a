// Package output holds the ambient OutputConsumer implementations: the
// terminal visualizer and the streaming push server. Neither carries
// fusion logic; both exist to give a registered consumer something
// concrete to display.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"text/tabwriter"

	"github.com/banshee-data/fusion.report/internal/track"
)

// CLIVisualizer is an OutputConsumer that redraws a table of tracked
// entities to a writer (os.Stdout by default) at each publish, mirroring
// CLIVisualizer's displaySummary.
type CLIVisualizer struct {
	w      io.Writer
	clear  bool
	mu     sync.Mutex
	latest map[uint64]track.FusedEntityState
}

// NewCLIVisualizer returns a visualizer writing to os.Stdout with the
// terminal-clear escape sequence enabled.
func NewCLIVisualizer() *CLIVisualizer {
	return &CLIVisualizer{
		w:      os.Stdout,
		clear:  true,
		latest: make(map[uint64]track.FusedEntityState),
	}
}

// SetWriter redirects output, disabling the clear-screen escape sequence
// (meant for tests and file capture).
func (v *CLIVisualizer) SetWriter(w io.Writer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.w = w
	v.clear = false
}

// Start prints the header once.
func (v *CLIVisualizer) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.printHeader()
	return nil
}

// Stop is a no-op; the visualizer owns no background resources.
func (v *CLIVisualizer) Stop() error {
	return nil
}

// PublishState records s and redraws the full table.
func (v *CLIVisualizer) PublishState(s track.FusedEntityState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.latest[s.EntityID] = s
	v.draw()
}

// PublishStates records every state in ss and redraws the full table
// once. Not called by the orchestrator today, but kept for consumers
// that batch.
func (v *CLIVisualizer) PublishStates(ss []track.FusedEntityState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, s := range ss {
		v.latest[s.EntityID] = s
	}
	v.draw()
}

func (v *CLIVisualizer) printHeader() {
	fmt.Fprintln(v.w)
	fmt.Fprintln(v.w, "================================================================================")
	fmt.Fprintln(v.w, "                              FUSED ENTITY TRACKS")
	fmt.Fprintln(v.w, "================================================================================")
}

func (v *CLIVisualizer) draw() {
	if v.clear {
		fmt.Fprint(v.w, "\033[2J\033[1;1H")
	}
	v.printHeader()

	ids := make([]uint64, 0, len(v.latest))
	for id := range v.latest {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Fprintf(v.w, "Active Entities: %d\n", len(ids))

	tw := tabwriter.NewWriter(v.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tType\tPosition (x,y,z)\tVelocity (vx,vy,vz)\tConf%\tMeas")
	for _, id := range ids {
		s := v.latest[id]
		fmt.Fprintf(tw, "%d\t%s\t(%.1f, %.1f, %.1f)\t(%.2f, %.2f, %.2f)\t%.1f%%\t%d\n",
			s.EntityID, s.EntityKind,
			s.Position.X, s.Position.Y, s.Position.Z,
			s.Velocity.VX, s.Velocity.VY, s.Velocity.VZ,
			s.Confidence*100.0, s.MeasurementCount)
	}
	tw.Flush()

	fmt.Fprintln(v.w, "================================================================================")
}
