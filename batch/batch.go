// Package batch implements the queue-less local driver (B in
// SPEC_FULL.md §2): walk a directory, apply one pipeline to every image
// found, and return an aggregate report. Grounded on
// original_source/core/batch_processor.py, kept deliberately sequential —
// SPEC_FULL.md's Open Question resolution — since the component is explicitly
// queue-less and per-image isolation is simplest to reason about one image
// at a time.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Skryldev/imageflow/fpipeline"
	"github.com/Skryldev/imageflow/imageio"
)

// supportedExt mirrors original_source's SUPPORTED_FORMATS.
var supportedExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true,
}

// Options controls one Run call.
type Options struct {
	InputDir          string
	OutputDir         string
	Recursive         bool
	PreserveStructure bool
}

// ImageResult is one file's outcome within a batch.
type ImageResult struct {
	InputPath  string        `json:"input_path"`
	OutputPath string        `json:"output_path,omitempty"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Time       time.Duration `json:"time"`
}

// Report is the aggregate result of one Run call, per spec.md §4.B.
type Report struct {
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Results    []ImageResult `json:"results"`
	TotalTime  time.Duration `json:"total_time"`
	AvgTime    time.Duration `json:"avg_time"`
	Pipeline   string        `json:"pipeline"`
}

// Processor walks a directory and feeds every recognized image through one
// pipeline — no queue, no worker registry.
type Processor struct{}

// New returns a Processor. It carries no state: each Run call is
// independent, matching BatchProcessor's statelessness in original_source.
func New() *Processor { return &Processor{} }

// FindImages collects files under dir whose extension is in
// {.jpg,.jpeg,.png,.bmp,.gif} (case-insensitive), sorted lexicographically.
func (p *Processor) FindImages(dir string, recursive bool) ([]string, error) {
	var found []string
	walk := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if supportedExt[strings.ToLower(filepath.Ext(path))] {
			found = append(found, path)
		}
		return nil
	}
	if err := filepath.WalkDir(dir, walk); err != nil {
		return nil, fmt.Errorf("batch: find images in %s: %w", dir, err)
	}
	sort.Strings(found)
	return found, nil
}

// Run applies pipe to every image FindImages discovers, writing to
// opts.OutputDir (optionally preserving the relative directory structure).
// Per-image failure is isolated: the batch continues and the failure is
// recorded in Report.Results.
func (p *Processor) Run(opts Options, pipe *fpipeline.Pipeline) (Report, error) {
	paths, err := p.FindImages(opts.InputDir, opts.Recursive)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Total:    len(paths),
		Results:  make([]ImageResult, 0, len(paths)),
		Pipeline: strings.Join(pipe.FilterNames(), " -> "),
	}

	start := time.Now()
	for _, in := range paths {
		out := outputPath(opts, in)
		res := p.processOne(in, out, pipe)
		if res.Success {
			report.Successful++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}
	report.TotalTime = time.Since(start)
	if report.Total > 0 {
		report.AvgTime = report.TotalTime / time.Duration(report.Total)
	}
	return report, nil
}

func (p *Processor) processOne(in, out string, pipe *fpipeline.Pipeline) ImageResult {
	start := time.Now()
	res := ImageResult{InputPath: in}

	img, err := imageio.Load(in)
	if err != nil {
		res.Error = err.Error()
		res.Time = time.Since(start)
		return res
	}

	result, stats, err := pipe.Apply(img, "")
	if err != nil {
		res.Error = err.Error()
		res.Time = time.Since(start)
		return res
	}
	if result == nil {
		res.Error = fmt.Sprintf("every filter step failed (%d/%d)", stats.Failed, stats.TotalFilters)
		res.Time = time.Since(start)
		return res
	}

	if err := imageio.Save(out, result); err != nil {
		res.Error = err.Error()
		res.Time = time.Since(start)
		return res
	}

	res.OutputPath = out
	res.Success = true
	res.Time = time.Since(start)
	return res
}

func outputPath(opts Options, in string) string {
	name := filepath.Base(in)
	if !opts.PreserveStructure {
		return filepath.Join(opts.OutputDir, name)
	}
	rel, err := filepath.Rel(opts.InputDir, in)
	if err != nil {
		return filepath.Join(opts.OutputDir, name)
	}
	return filepath.Join(opts.OutputDir, rel)
}
