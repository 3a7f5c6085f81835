// Package imageio loads and saves images for the worker loop and batch
// processor. Filter math is pure image.Image → image.Image (spec.md §1
// treats it as opaque); this package only owns the filesystem boundary.
// Decode support spans the formats batch.Processor recognizes (spec.md
// §4.B): JPEG and PNG via the standard library, GIF via the standard
// library, and BMP/WebP via golang.org/x/image.
package imageio

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"

	apperrors "github.com/Skryldev/imageflow/errors"
)

// Load decodes the image at path, dispatching on its extension.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.load", err)
	}
	defer f.Close()

	switch ext(path) {
	case ".jpg", ".jpeg":
		img, err := jpeg.Decode(f)
		return img, apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.load", err)
	case ".png":
		img, err := png.Decode(f)
		return img, apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.load", err)
	case ".gif":
		img, err := gif.Decode(f)
		return img, apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.load", err)
	case ".bmp":
		img, err := bmp.Decode(f)
		return img, apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.load", err)
	case ".webp":
		img, err := webp.Decode(f)
		return img, apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.load", err)
	default:
		// Fall back to format sniffing for extensionless or unexpected paths.
		img, _, err := image.Decode(f)
		return img, apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.load", err)
	}
}

// Save encodes img to path, creating parent directories idempotently and
// dispatching the encoder on the output extension (default JPEG quality 95,
// matching original_source/core/batch_processor.py's hardcoded save
// quality). Writes overwrite any existing file, the idempotent-output
// requirement spec.md §5 demands for at-least-once delivery.
func Save(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.save", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.save", err)
	}
	defer f.Close()

	switch ext(path) {
	case ".png":
		return apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.save", png.Encode(f, img))
	case ".gif":
		return apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.save", gif.Encode(f, img, nil))
	case ".bmp":
		return apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.save", bmp.Encode(f, img))
	case ".jpg", ".jpeg", "":
		return apperrors.Wrap(apperrors.CategoryIoFailure, "imageio.save", jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
	default:
		return fmt.Errorf("imageio: unsupported output extension %q", ext(path))
	}
}

func ext(path string) string { return strings.ToLower(filepath.Ext(path)) }
