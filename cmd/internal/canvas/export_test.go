package canvas

import (
	"bytes"
	"image/png"
	"testing"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Width:  120,
		Height: 80,
		Lines: []Stroke{
			{X1: 10, Y1: 40, X2: 110, Y2: 40, Color: "#ff0000", Width: 10},
			{X1: -50, Y1: -50, X2: -10, Y2: -10, Color: "#0000ff"},
		},
	}
}

func TestEncodePNG(t *testing.T) {
	t.Parallel()

	b, err := EncodePNG(testSnapshot())
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := img.Bounds(); got.Dx() != 120 || got.Dy() != 80 {
		t.Fatalf("bounds=%v want 120x80", got)
	}

	r, g, bl, _ := img.At(60, 40).RGBA()
	if r>>8 != 0xff || g>>8 != 0 || bl>>8 != 0 {
		t.Fatalf("stroke pixel=(%d,%d,%d) want red", r>>8, g>>8, bl>>8)
	}
	r, g, bl, _ = img.At(60, 5).RGBA()
	if r>>8 != 0xff || g>>8 != 0xff || bl>>8 != 0xff {
		t.Fatalf("background pixel=(%d,%d,%d) want white", r>>8, g>>8, bl>>8)
	}
}

func TestRender_EmptySnapshotUsesDefaults(t *testing.T) {
	t.Parallel()

	img := Render(Snapshot{})
	if b := img.Bounds(); b.Dx() != DefaultWidth || b.Dy() != DefaultHeight {
		t.Fatalf("bounds=%v", b)
	}
}

func TestEncodePDF(t *testing.T) {
	t.Parallel()

	b, err := EncodePDF(testSnapshot())
	if err != nil {
		t.Fatalf("EncodePDF: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("missing PDF header: %q", b[:min(len(b), 16)])
	}
}
