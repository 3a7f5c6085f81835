package filters

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// ── Blur ──────────────────────────────────────────────────────────────────────

// Blur is a box blur with a configurable radius. radius=0 is the identity
// transform within numerical tolerance, matching spec.md §8's boundary.
type Blur struct {
	Radius int
}

// NewBlur validates radius (default 2, must be ≥ 0) the way
// original_source/core/filter_factory.py validates blur.radius.
func NewBlur(radius int) (*Blur, error) {
	if radius < 0 {
		return nil, fmt.Errorf("blur: radius must be >= 0, got %d", radius)
	}
	return &Blur{Radius: radius}, nil
}

func (b *Blur) Type() string { return TypeBlur }

func (b *Blur) String() string { return fmt.Sprintf("Blur(radius=%d)", b.Radius) }

func (b *Blur) Apply(src image.Image) (image.Image, error) {
	if b.Radius <= 0 {
		return cloneImage(src), nil
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	r := b.Radius

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var sumR, sumG, sumB, sumA, n float64
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					px, py := x+dx, y+dy
					if px < bounds.Min.X || px >= bounds.Max.X || py < bounds.Min.Y || py >= bounds.Max.Y {
						continue
					}
					cr, cg, cb, ca := src.At(px, py).RGBA()
					sumR += float64(cr)
					sumG += float64(cg)
					sumB += float64(cb)
					sumA += float64(ca)
					n++
				}
			}
			dst.Set(x, y, color.RGBA64{
				R: uint16(sumR / n),
				G: uint16(sumG / n),
				B: uint16(sumB / n),
				A: uint16(sumA / n),
			})
		}
	}
	return dst, nil
}

// ── Brightness ────────────────────────────────────────────────────────────────

// Brightness scales each pixel's channels by Factor. factor=1.0 is identity.
type Brightness struct {
	Factor float64
}

// NewBrightness validates factor (default 1.5, must be > 0); factors above
// 5.0 are accepted but unusual enough that callers may want to warn, per
// spec.md §4.F.
func NewBrightness(factor float64) (*Brightness, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("brightness: factor must be > 0, got %v", factor)
	}
	return &Brightness{Factor: factor}, nil
}

func (b *Brightness) Type() string { return TypeBrightness }

func (b *Brightness) String() string { return fmt.Sprintf("Brightness(factor=%v)", b.Factor) }

func (b *Brightness) Apply(src image.Image) (image.Image, error) {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, ca := src.At(x, y).RGBA()
			dst.Set(x, y, color.RGBA64{
				R: scaleChannel(cr, b.Factor),
				G: scaleChannel(cg, b.Factor),
				B: scaleChannel(cb, b.Factor),
				A: uint16(ca),
			})
		}
	}
	return dst, nil
}

func scaleChannel(v uint32, factor float64) uint16 {
	scaled := float64(v) * factor
	if scaled > 0xffff {
		scaled = 0xffff
	}
	if scaled < 0 {
		scaled = 0
	}
	return uint16(scaled)
}

// ── Edges ─────────────────────────────────────────────────────────────────────

// Edges runs a Sobel operator over the luminance channel, the same kind of
// pixel-loop convolution the teacher's GrayscaleStep performs for its own
// per-pixel conversion.
type Edges struct{}

func NewEdges() (*Edges, error) { return &Edges{}, nil }

func (e *Edges) Type() string { return TypeEdges }

func (e *Edges) String() string { return "Edges()" }

var sobelX = [3][3]int{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
var sobelY = [3][3]int{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}

func (e *Edges) Apply(src image.Image) (image.Image, error) {
	bounds := src.Bounds()
	gray := toGray(src)
	dst := image.NewGray(bounds)

	at := func(x, y int) int {
		if x < bounds.Min.X {
			x = bounds.Min.X
		}
		if x >= bounds.Max.X {
			x = bounds.Max.X - 1
		}
		if y < bounds.Min.Y {
			y = bounds.Min.Y
		}
		if y >= bounds.Max.Y {
			y = bounds.Max.Y - 1
		}
		return int(gray.GrayAt(x, y).Y)
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var gx, gy int
			for j := -1; j <= 1; j++ {
				for i := -1; i <= 1; i++ {
					v := at(x+i, y+j)
					gx += sobelX[j+1][i+1] * v
					gy += sobelY[j+1][i+1] * v
				}
			}
			mag := int(math.Sqrt(float64(gx*gx + gy*gy)))
			if mag > 255 {
				mag = 255
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(mag)})
		}
	}
	return dst, nil
}

// ── Grayscale ─────────────────────────────────────────────────────────────────

// Grayscale converts to luminance, with "gray" as an accepted alias (spec.md
// §3).
type Grayscale struct{}

func NewGrayscale() (*Grayscale, error) { return &Grayscale{}, nil }

func (g *Grayscale) Type() string { return TypeGrayscale }

func (g *Grayscale) String() string { return "Grayscale()" }

func (g *Grayscale) Apply(src image.Image) (image.Image, error) {
	return toGray(src), nil
}

func toGray(src image.Image) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return dst
}

func cloneImage(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, src.At(x, y))
		}
	}
	return dst
}
