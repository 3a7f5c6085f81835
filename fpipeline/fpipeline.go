// Package fpipeline implements the filter pipeline (P in SPEC_FULL.md §2):
// an ordered, mutable sequence of filters.Filter values applied sequentially
// to one image, with per-step timing, error isolation, and optional
// intermediate persistence. Modeled on
// original_source/core/filter_pipeline.py's apply()/add_filter()/
// remove_filter() trio.
package fpipeline

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Skryldev/imageflow/filters"
)

// Options are the pipeline's construction flags.
type Options struct {
	// StopOnError halts on the first failing step when true. The zero value
	// (false) runs every step, skipping past failed ones.
	StopOnError bool
	// SaveIntermediate persists the working image after each successful
	// step into OutputDir.
	SaveIntermediate bool
	OutputDir        string
}

// StepStat records one filter's outcome within a pipeline run.
type StepStat struct {
	Name   string        `json:"name"`
	Index  int           `json:"index"`
	Time   time.Duration `json:"time"`
	Status string        `json:"status"` // "success" | "failed"
	Error  string        `json:"error,omitempty"`
}

// Stats summarizes one Apply call.
type Stats struct {
	TotalTime     time.Duration `json:"total_time"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	TotalFilters  int           `json:"total_filters"`
	PerStep       []StepStat    `json:"per_step"`
}

// Pipeline is an ordered non-empty sequence of filters plus the flags
// governing error handling and intermediate persistence. Pipeline identity
// is structural: equal filter sequences behave identically.
//
// Mutation (AddFilter/RemoveFilter) is not required to be safe against
// concurrent Apply calls on the same instance; concurrent Apply calls that
// do not race with mutation are safe, since Apply never writes pipeline
// state (spec.md §4.P).
type Pipeline struct {
	mu    sync.RWMutex
	steps []filters.Filter
	opts  Options
}

// New constructs a Pipeline from a non-empty slice of filters. An empty
// slice is rejected, matching spec.md §4.P and §8's boundary case.
func New(steps []filters.Filter, opts Options) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("fpipeline: cannot construct an empty pipeline")
	}
	for i, s := range steps {
		if s == nil {
			return nil, fmt.Errorf("fpipeline: step %d is not a filter", i)
		}
	}
	cp := make([]filters.Filter, len(steps))
	copy(cp, steps)
	return &Pipeline{steps: cp, opts: opts}, nil
}

// AddFilter appends f to the end of the pipeline.
func (p *Pipeline) AddFilter(f filters.Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, f)
}

// RemoveFilter removes the filter at index i, range-checked.
func (p *Pipeline) RemoveFilter(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.steps) {
		return fmt.Errorf("fpipeline: index %d out of range [0,%d)", i, len(p.steps))
	}
	p.steps = append(p.steps[:i], p.steps[i+1:]...)
	return nil
}

// FilterNames returns the type tags of the filters, in order.
func (p *Pipeline) FilterNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Type()
	}
	return names
}

// Apply clones img, walks the filters in order, and returns the resulting
// image (nil iff every step failed) alongside per-step stats. The working
// image is only replaced on a successful step; a failed step that does not
// halt the pipeline leaves the working image unchanged, per spec.md §4.P.
func (p *Pipeline) Apply(src image.Image, outputDir string) (image.Image, Stats, error) {
	p.mu.RLock()
	steps := make([]filters.Filter, len(p.steps))
	copy(steps, p.steps)
	opts := p.opts
	p.mu.RUnlock()

	if outputDir == "" {
		outputDir = opts.OutputDir
	}

	stats := Stats{TotalFilters: len(steps), PerStep: make([]StepStat, 0, len(steps))}
	start := time.Now()

	clone := image.NewRGBA(src.Bounds())
	draw.Draw(clone, clone.Bounds(), src, src.Bounds().Min, draw.Src)
	working := image.Image(clone)
	haveSuccess := false

	for i, f := range steps {
		stepStart := time.Now()
		out, err := f.Apply(working)
		elapsed := time.Since(stepStart)

		if err != nil {
			stats.Failed++
			stats.PerStep = append(stats.PerStep, StepStat{
				Name: f.String(), Index: i, Time: elapsed, Status: "failed", Error: err.Error(),
			})
			if opts.StopOnError {
				break
			}
			continue
		}

		working = out
		haveSuccess = true
		stats.Successful++
		stats.PerStep = append(stats.PerStep, StepStat{
			Name: f.String(), Index: i, Time: elapsed, Status: "success",
		})

		if opts.SaveIntermediate {
			if err := saveIntermediate(outputDir, i, f.Type(), working); err != nil {
				return nil, stats, fmt.Errorf("fpipeline: save intermediate step %d: %w", i, err)
			}
		}
	}

	stats.TotalTime = time.Since(start)
	if !haveSuccess {
		return nil, stats, nil
	}
	return working, stats, nil
}

// saveIntermediate persists the working image as
// step_{i:02d}_{FilterName}.{ext} into dir (created idempotently), per
// spec.md §4.P. JPEG is used as the intermediate format — cheap, lossy
// snapshots are enough to inspect a pipeline's progress.
func saveIntermediate(dir string, index int, name string, img image.Image) error {
	if dir == "" {
		return fmt.Errorf("save_intermediate requires an output_dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("step_%02d_%s.jpg", index, name))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}
