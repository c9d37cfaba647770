package canvas

import (
	"image"
	"math"

	"golang.org/x/image/vector"
)

const (
	// DefaultWidth and DefaultHeight match the virtual canvas the web client draws on.
	DefaultWidth  = 900
	DefaultHeight = 500

	// DefaultPenWidth is wide enough that neighbouring scribbles merge into solid
	// coverage instead of leaving hairline seams.
	DefaultPenWidth = 32.0

	// Coordinates are clamped to this magnitude before clipping so the clip arithmetic
	// stays finite for absurd inputs.
	coordLimit = 1e9

	// Half-circle cap resolution.
	capSegments = 8
)

// Rasterizer is the pixel-coverage Meter.
//
// Every stroke is drawn as an opaque capsule of a fixed pen width onto an alpha bitmap.
// Client-supplied width and color are ignored so coverage cannot be gamed by drawing
// unusually thin or thick strokes. The bitmap is padded by the pen radius on every side:
// segments are clipped to the surface, so a capsule never leaves the padded raster.
type Rasterizer struct {
	width, height int
	pen           float64
	margin        int

	bitmap  *image.Alpha
	surface image.Rectangle // the width x height region inside the margin
	z       *vector.Rasterizer

	covered int
}

// NewRasterizer returns a Rasterizer for a width x height surface.
// Non-positive arguments fall back to the defaults.
func NewRasterizer(width, height int, penWidth float64) *Rasterizer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if penWidth <= 0 || math.IsNaN(penWidth) || math.IsInf(penWidth, 0) {
		penWidth = DefaultPenWidth
	}

	margin := int(math.Ceil(penWidth/2)) + 1
	full := image.Rect(0, 0, width+2*margin, height+2*margin)

	return &Rasterizer{
		width:   width,
		height:  height,
		pen:     penWidth,
		margin:  margin,
		bitmap:  image.NewAlpha(full),
		surface: image.Rect(margin, margin, margin+width, margin+height),
		z:       vector.NewRasterizer(full.Dx(), full.Dy()),
	}
}

// Add draws s and returns the covered fraction of the surface.
func (r *Rasterizer) Add(s Stroke) float64 {
	x1, y1, x2, y2, ok := clipSegment(
		clampCoord(s.X1), clampCoord(s.Y1), clampCoord(s.X2), clampCoord(s.Y2),
		0, 0, float64(r.width), float64(r.height),
	)
	if !ok {
		return r.Coverage()
	}

	m := float64(r.margin)
	radius := r.pen / 2
	box := image.Rect(
		int(math.Floor(math.Min(x1, x2)-radius+m)),
		int(math.Floor(math.Min(y1, y2)-radius+m)),
		int(math.Ceil(math.Max(x1, x2)+radius+m))+1,
		int(math.Ceil(math.Max(y1, y2)+radius+m))+1,
	).Intersect(r.surface)

	before := r.countInk(box)

	size := r.bitmap.Bounds().Size()
	r.z.Reset(size.X, size.Y)
	addCapsule(r.z, x1+m, y1+m, x2+m, y2+m, radius)
	r.z.Draw(r.bitmap, r.bitmap.Bounds(), image.Opaque, image.Point{})

	r.covered += r.countInk(box) - before
	return r.Coverage()
}

// Coverage returns the fraction of surface pixels that are no longer background.
func (r *Rasterizer) Coverage() float64 {
	total := r.width * r.height
	if total == 0 {
		return 0
	}
	c := float64(r.covered) / float64(total)
	if c > 1 {
		return 1
	}
	return c
}

// Reset repaints the bitmap to background.
func (r *Rasterizer) Reset() {
	clear(r.bitmap.Pix)
	r.covered = 0
}

// Surface returns the coverage bitmap restricted to the drawable surface.
// The returned image shares memory with the rasterizer.
func (r *Rasterizer) Surface() *image.Alpha {
	return r.bitmap.SubImage(r.surface).(*image.Alpha)
}

func (r *Rasterizer) countInk(box image.Rectangle) int {
	n := 0
	b := r.bitmap
	for y := box.Min.Y; y < box.Max.Y; y++ {
		row := b.Pix[(y-b.Rect.Min.Y)*b.Stride:]
		for x := box.Min.X; x < box.Max.X; x++ {
			if row[x-b.Rect.Min.X] != 0 {
				n++
			}
		}
	}
	return n
}

func clampCoord(v float64) float64 {
	return math.Max(-coordLimit, math.Min(coordLimit, v))
}

// clipSegment clips (x1,y1)-(x2,y2) to the rectangle using Liang-Barsky.
// ok is false when no part of the segment lies inside.
func clipSegment(x1, y1, x2, y2, xMin, yMin, xMax, yMax float64) (cx1, cy1, cx2, cy2 float64, ok bool) {
	dx, dy := x2-x1, y2-y1
	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{x1 - xMin, xMax - x1, y1 - yMin, yMax - y1}

	t0, t1 := 0.0, 1.0
	for i := range p {
		if p[i] == 0 {
			if q[i] < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		t := q[i] / p[i]
		if p[i] < 0 {
			if t > t1 {
				return 0, 0, 0, 0, false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return 0, 0, 0, 0, false
			}
			if t < t1 {
				t1 = t
			}
		}
	}
	return x1 + t0*dx, y1 + t0*dy, x1 + t1*dx, y1 + t1*dy, true
}

// addCapsule adds the outline of a segment with round caps. A zero-length segment
// becomes a disc.
func addCapsule(z *vector.Rasterizer, ax, ay, bx, by, radius float64) {
	if radius < 0.5 {
		radius = 0.5
	}

	ux, uy := 1.0, 0.0
	if l := math.Hypot(bx-ax, by-ay); l > 1e-9 {
		ux, uy = (bx-ax)/l, (by-ay)/l
	}
	// Angle of the left normal; each cap sweeps half a turn away from it.
	base := math.Atan2(ux, -uy)

	first := true
	emit := func(x, y float64) {
		if first {
			z.MoveTo(float32(x), float32(y))
			first = false
			return
		}
		z.LineTo(float32(x), float32(y))
	}

	for i := 0; i <= capSegments; i++ {
		a := base - math.Pi*float64(i)/capSegments
		emit(bx+radius*math.Cos(a), by+radius*math.Sin(a))
	}
	for i := 0; i <= capSegments; i++ {
		a := base + math.Pi - math.Pi*float64(i)/capSegments
		emit(ax+radius*math.Cos(a), ay+radius*math.Sin(a))
	}
	z.ClosePath()
}
