package fpipeline_test

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/Skryldev/imageflow/filters"
	"github.com/Skryldev/imageflow/fpipeline"
)

type fakeFilter struct {
	name string
	fail bool
}

func (f *fakeFilter) Type() string { return f.name }
func (f *fakeFilter) String() string { return f.name + "()" }
func (f *fakeFilter) Apply(src image.Image) (image.Image, error) {
	if f.fail {
		return nil, errors.New("synthetic failure")
	}
	return src, nil
}

func solidImage(t *testing.T, w, h int) *image.RGBA {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	return img
}

func TestNew_RejectsEmpty(t *testing.T) {
	if _, err := fpipeline.New(nil, fpipeline.Options{}); err == nil {
		t.Fatal("expected error constructing an empty pipeline")
	}
}

func TestApply_AllSucceed(t *testing.T) {
	gray, err := filters.NewGrayscale()
	if err != nil {
		t.Fatalf("NewGrayscale: %v", err)
	}
	blur, err := filters.NewBlur(1)
	if err != nil {
		t.Fatalf("NewBlur: %v", err)
	}
	pipe, err := fpipeline.New([]filters.Filter{gray, blur}, fpipeline.Options{StopOnError: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, stats, err := pipe.Apply(solidImage(t, 8, 8), "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out == nil {
		t.Fatal("expected non-nil result")
	}
	if stats.Successful != 2 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 2 successful, 0 failed", stats)
	}
}

func TestApply_StepStatNameUsesCanonicalString(t *testing.T) {
	ok := &fakeFilter{name: "grayscale"}
	bad := &fakeFilter{name: "blur", fail: true}

	pipe, err := fpipeline.New([]filters.Filter{ok, bad}, fpipeline.Options{StopOnError: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, stats, err := pipe.Apply(solidImage(t, 4, 4), "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(stats.PerStep) != 2 {
		t.Fatalf("expected both steps to run, got %d", len(stats.PerStep))
	}
	if stats.PerStep[0].Name != ok.String() {
		t.Fatalf("PerStep[0].Name = %q, want canonical String() form %q", stats.PerStep[0].Name, ok.String())
	}
	if stats.PerStep[1].Name != bad.String() {
		t.Fatalf("PerStep[1].Name = %q, want canonical String() form %q", stats.PerStep[1].Name, bad.String())
	}
}

func TestApply_StopOnError_HaltsPipeline(t *testing.T) {
	ok := &fakeFilter{name: "ok"}
	bad := &fakeFilter{name: "bad", fail: true}
	never := &fakeFilter{name: "never"}

	pipe, err := fpipeline.New([]filters.Filter{ok, bad, never}, fpipeline.Options{StopOnError: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, stats, err := pipe.Apply(solidImage(t, 4, 4), "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(stats.PerStep) != 2 {
		t.Fatalf("expected pipeline to halt after 2 steps, ran %d", len(stats.PerStep))
	}
	if stats.Successful != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestApply_ContinueOnError_RunsAllSteps(t *testing.T) {
	ok := &fakeFilter{name: "ok"}
	bad := &fakeFilter{name: "bad", fail: true}
	pipe, err := fpipeline.New([]filters.Filter{bad, ok}, fpipeline.Options{StopOnError: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, stats, err := pipe.Apply(solidImage(t, 4, 4), "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out == nil {
		t.Fatal("expected a result since the second step succeeded")
	}
	if len(stats.PerStep) != 2 {
		t.Fatalf("expected both steps to run, got %d", len(stats.PerStep))
	}
}

func TestApply_AllStepsFail_ReturnsNilImage(t *testing.T) {
	bad1 := &fakeFilter{name: "bad1", fail: true}
	bad2 := &fakeFilter{name: "bad2", fail: true}
	pipe, err := fpipeline.New([]filters.Filter{bad1, bad2}, fpipeline.Options{StopOnError: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, stats, err := pipe.Apply(solidImage(t, 4, 4), "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out != nil {
		t.Fatal("expected nil result when every step fails")
	}
	if stats.Failed != 2 {
		t.Fatalf("stats.Failed = %d, want 2", stats.Failed)
	}
}

func TestApply_SaveIntermediate_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	gray, err := filters.NewGrayscale()
	if err != nil {
		t.Fatalf("NewGrayscale: %v", err)
	}
	pipe, err := fpipeline.New([]filters.Filter{gray}, fpipeline.Options{SaveIntermediate: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := pipe.Apply(solidImage(t, 4, 4), dir); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 intermediate file, found %d", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".jpg" {
		t.Fatalf("unexpected intermediate file name %q", entries[0].Name())
	}
}

func TestRemoveFilter_OutOfRange(t *testing.T) {
	gray, _ := filters.NewGrayscale()
	pipe, err := fpipeline.New([]filters.Filter{gray}, fpipeline.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := pipe.RemoveFilter(5); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestFilterNames(t *testing.T) {
	gray, _ := filters.NewGrayscale()
	edges, _ := filters.NewEdges()
	pipe, err := fpipeline.New([]filters.Filter{gray, edges}, fpipeline.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	names := pipe.FilterNames()
	if len(names) != 2 || names[0] != "grayscale" || names[1] != "edges" {
		t.Fatalf("FilterNames() = %v", names)
	}
}
