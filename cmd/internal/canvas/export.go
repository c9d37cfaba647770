package canvas

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/image/vector"
)

const (
	// DefaultBrushWidth is used for exported strokes that carry no width.
	DefaultBrushWidth = 8.0
	maxBrushWidth     = 64.0
)

// Content types produced by the encoders.
const (
	ContentTypePNG = "image/png"
	ContentTypePDF = "application/pdf"
)

func brushWidth(s Stroke) float64 {
	w := s.Width
	if w <= 0 {
		w = DefaultBrushWidth
	}
	return math.Min(w, maxBrushWidth)
}

// Render paints the snapshot onto a white image in stroke order, each stroke in its
// own color and brush width with round caps.
func Render(snap Snapshot) *image.RGBA {
	w, h := snap.Width, snap.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}

	margin := int(math.Ceil(maxBrushWidth/2)) + 1
	padded := image.NewRGBA(image.Rect(0, 0, w+2*margin, h+2*margin))
	draw.Draw(padded, padded.Bounds(), image.White, image.Point{}, draw.Src)

	z := vector.NewRasterizer(padded.Bounds().Dx(), padded.Bounds().Dy())
	m := float64(margin)
	for _, s := range snap.Lines {
		x1, y1, x2, y2, ok := clipSegment(
			clampCoord(s.X1), clampCoord(s.Y1), clampCoord(s.X2), clampCoord(s.Y2),
			0, 0, float64(w), float64(h),
		)
		if !ok {
			continue
		}
		ink, _ := ParseColor(s.Color)
		z.Reset(padded.Bounds().Dx(), padded.Bounds().Dy())
		addCapsule(z, x1+m, y1+m, x2+m, y2+m, brushWidth(s)/2)
		z.Draw(padded, padded.Bounds(), image.NewUniform(ink), image.Point{})
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), padded, image.Pt(margin, margin), draw.Src)
	return out
}

// EncodePNG renders the snapshot as PNG.
func EncodePNG(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Render(snap)); err != nil {
		return nil, fmt.Errorf("canvas: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePDF renders the snapshot as a single-page vector PDF sized to the surface,
// one point per surface unit.
func EncodePDF(snap Snapshot) ([]byte, error) {
	w, h := float64(snap.Width), float64(snap.Height)
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetCreator("scrblit", true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.SetLineCapStyle("round")

	for _, s := range snap.Lines {
		x1, y1, x2, y2, ok := clipSegment(
			clampCoord(s.X1), clampCoord(s.Y1), clampCoord(s.X2), clampCoord(s.Y2),
			0, 0, w, h,
		)
		if !ok {
			continue
		}
		ink, _ := ParseColor(s.Color)
		pdf.SetDrawColor(int(ink.R), int(ink.G), int(ink.B))
		pdf.SetLineWidth(brushWidth(s))
		pdf.Line(x1, y1, x2, y2)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("canvas: encode pdf: %w", err)
	}
	return buf.Bytes(), nil
}
