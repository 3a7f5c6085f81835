package batch_test

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/Skryldev/imageflow/batch"
	"github.com/Skryldev/imageflow/filters"
	"github.com/Skryldev/imageflow/pipeline/factory"
)

func writeTestJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 80, B: 40, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func TestFindImages_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeTestJPEG(t, filepath.Join(dir, "a.jpg"), 4, 4)
	writeTestJPEG(t, filepath.Join(dir, "b.JPG"), 4, 4)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write notes.txt: %v", err)
	}

	proc := batch.New()
	found, err := proc.FindImages(dir, false)
	if err != nil {
		t.Fatalf("FindImages: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("FindImages found %v, want 2 entries", found)
	}
}

func TestFindImages_NonRecursiveSkipsSubdirs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}
	writeTestJPEG(t, filepath.Join(dir, "top.jpg"), 4, 4)
	writeTestJPEG(t, filepath.Join(sub, "nested.jpg"), 4, 4)

	proc := batch.New()
	found, err := proc.FindImages(dir, false)
	if err != nil {
		t.Fatalf("FindImages: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("non-recursive FindImages = %v, want 1 entry", found)
	}

	foundRec, err := proc.FindImages(dir, true)
	if err != nil {
		t.Fatalf("FindImages recursive: %v", err)
	}
	if len(foundRec) != 2 {
		t.Fatalf("recursive FindImages = %v, want 2 entries", foundRec)
	}
}

func TestRun_ProcessesEveryImageAndWritesOutput(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeTestJPEG(t, filepath.Join(inDir, "one.jpg"), 8, 8)
	writeTestJPEG(t, filepath.Join(inDir, "two.jpg"), 8, 8)

	fac := factory.New()
	pipe, err := fac.CreatePipeline([]filters.Descriptor{{Type: "grayscale"}}, factory.CreatePipelineOptions{StopOnError: true})
	if err != nil {
		t.Fatalf("CreatePipeline: %v", err)
	}

	proc := batch.New()
	report, err := proc.Run(batch.Options{InputDir: inDir, OutputDir: outDir}, pipe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Total != 2 || report.Successful != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	for _, res := range report.Results {
		if !res.Success {
			t.Fatalf("expected success for %s: %s", res.InputPath, res.Error)
		}
		if _, err := os.Stat(res.OutputPath); err != nil {
			t.Fatalf("expected output file %s to exist: %v", res.OutputPath, err)
		}
	}
}

func TestRun_IsolatesPerImageFailure(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeTestJPEG(t, filepath.Join(inDir, "good.jpg"), 4, 4)
	// A .jpg extension with garbage content should fail to decode without
	// aborting the rest of the batch.
	if err := os.WriteFile(filepath.Join(inDir, "bad.jpg"), []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write bad.jpg: %v", err)
	}

	fac := factory.New()
	pipe, err := fac.CreatePipeline([]filters.Descriptor{{Type: "grayscale"}}, factory.CreatePipelineOptions{StopOnError: true})
	if err != nil {
		t.Fatalf("CreatePipeline: %v", err)
	}

	proc := batch.New()
	report, err := proc.Run(batch.Options{InputDir: inDir, OutputDir: outDir}, pipe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Total != 2 || report.Successful != 1 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestRun_PreserveStructure(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	sub := filepath.Join(inDir, "album")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeTestJPEG(t, filepath.Join(sub, "pic.jpg"), 4, 4)

	fac := factory.New()
	pipe, err := fac.CreatePipeline([]filters.Descriptor{{Type: "grayscale"}}, factory.CreatePipelineOptions{StopOnError: true})
	if err != nil {
		t.Fatalf("CreatePipeline: %v", err)
	}

	proc := batch.New()
	report, err := proc.Run(batch.Options{
		InputDir: inDir, OutputDir: outDir, Recursive: true, PreserveStructure: true,
	}, pipe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Successful != 1 {
		t.Fatalf("report.Successful = %d, want 1", report.Successful)
	}
	want := filepath.Join(outDir, "album", "pic.jpg")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected %s to exist: %v", want, err)
	}
}
