// Command batch runs the queue-less local driver over a directory of
// images, printing an aggregate report. No broker, no registry — spec.md
// §4.B's batch processor is entirely in-process.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Skryldev/imageflow/batch"
	"github.com/Skryldev/imageflow/filters"
	"github.com/Skryldev/imageflow/pipeline/factory"
)

func main() {
	var (
		inputDir          = flag.String("input", "", "directory of images to process (required)")
		outputDir         = flag.String("output", "", "directory to write processed images to (required)")
		recursive         = flag.Bool("recursive", false, "walk input directory recursively")
		preserveStructure = flag.Bool("preserve-structure", false, "mirror input subdirectories under output")
		filterList        = flag.String("filters", "grayscale", "comma-separated filter names, e.g. \"blur,brightness\"")
		jsonOut           = flag.Bool("json", false, "print the report as JSON")
	)
	flag.Parse()

	if *inputDir == "" || *outputDir == "" {
		fmt.Fprintln(os.Stderr, "batch: -input and -output are required")
		flag.Usage()
		os.Exit(2)
	}

	descs := make([]filters.Descriptor, 0)
	for _, name := range strings.Split(*filterList, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		descs = append(descs, filters.NormalizeName(name))
	}

	fac := factory.New()
	pipe, err := fac.CreatePipeline(descs, factory.CreatePipelineOptions{StopOnError: true})
	if err != nil {
		log.Fatalf("batch: build pipeline: %v", err)
	}

	proc := batch.New()
	report, err := proc.Run(batch.Options{
		InputDir:          *inputDir,
		OutputDir:         *outputDir,
		Recursive:         *recursive,
		PreserveStructure: *preserveStructure,
	}, pipe)
	if err != nil {
		log.Fatalf("batch: run: %v", err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("batch: encode report: %v", err)
		}
		return
	}

	fmt.Printf("pipeline:   %s\n", report.Pipeline)
	fmt.Printf("total:      %d\n", report.Total)
	fmt.Printf("successful: %d\n", report.Successful)
	fmt.Printf("failed:     %d\n", report.Failed)
	fmt.Printf("total time: %s\n", report.TotalTime)
	fmt.Printf("avg time:   %s\n", report.AvgTime)
	for _, r := range report.Results {
		if r.Success {
			fmt.Printf("  OK   %s -> %s (%s)\n", r.InputPath, r.OutputPath, r.Time)
		} else {
			fmt.Printf("  FAIL %s: %s\n", r.InputPath, r.Error)
		}
	}
}
