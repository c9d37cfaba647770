package canvas

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestRasterizer_EmptyIsZero(t *testing.T) {
	t.Parallel()

	r := NewRasterizer(0, 0, 0)
	if got := r.Coverage(); got != 0 {
		t.Fatalf("coverage=%v want 0", got)
	}
	b := r.Surface().Bounds()
	if b.Dx() != DefaultWidth || b.Dy() != DefaultHeight {
		t.Fatalf("surface=%v want %dx%d", b, DefaultWidth, DefaultHeight)
	}
}

func TestRasterizer_SingleStrokeArea(t *testing.T) {
	t.Parallel()

	r := NewRasterizer(900, 500, 32)
	got := r.Add(Stroke{X1: 100, Y1: 250, X2: 300, Y2: 250, Color: "#000"})

	// Capsule area: 200*32 + pi*16^2, plus an antialiased rim.
	want := (200*32 + math.Pi*16*16) / (900 * 500)
	if got < want*0.95 || got > want*1.15 {
		t.Fatalf("coverage=%v want about %v", got, want)
	}
}

func TestRasterizer_DotHasArea(t *testing.T) {
	t.Parallel()

	r := NewRasterizer(100, 100, 10)
	got := r.Add(Stroke{X1: 50, Y1: 50, X2: 50, Y2: 50, Color: "#000"})
	if got <= 0 {
		t.Fatalf("zero-length stroke must still leave ink, got %v", got)
	}
}

func TestRasterizer_RepeatedStrokeAddsNothing(t *testing.T) {
	t.Parallel()

	r := NewRasterizer(300, 200, 20)
	s := Stroke{X1: 10, Y1: 10, X2: 250, Y2: 150, Color: "#000"}
	first := r.Add(s)
	second := r.Add(s)
	if second != first {
		t.Fatalf("redrawing the same stroke changed coverage: %v -> %v", first, second)
	}
}

func TestRasterizer_OutOfBoundsIsClipped(t *testing.T) {
	t.Parallel()

	r := NewRasterizer(200, 100, 16)
	if got := r.Add(Stroke{X1: -500, Y1: -500, X2: -100, Y2: -50, Color: "#000"}); got != 0 {
		t.Fatalf("segment fully outside must not add coverage, got %v", got)
	}
	if got := r.Add(Stroke{X1: -1e300, Y1: 50, X2: 1e300, Y2: 50, Color: "#000"}); got <= 0 || got > 1 {
		t.Fatalf("crossing segment coverage=%v want (0,1]", got)
	}
}

func TestRasterizer_Monotonic(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	r := NewRasterizer(320, 240, 24)

	prev := 0.0
	for i := 0; i < 400; i++ {
		s := Stroke{
			X1:    rng.Float64()*480 - 80,
			Y1:    rng.Float64()*360 - 60,
			X2:    rng.Float64()*480 - 80,
			Y2:    rng.Float64()*360 - 60,
			Color: "#000",
		}
		got := r.Add(s)
		if got < prev {
			t.Fatalf("stroke %d decreased coverage: %v -> %v", i, prev, got)
		}
		if got > 1 {
			t.Fatalf("stroke %d coverage above 1: %v", i, got)
		}
		prev = got
	}
}

func TestRasterizer_FullCoverage(t *testing.T) {
	t.Parallel()

	r := NewRasterizer(200, 100, 32)
	for y := 0.0; y <= 100; y += 16 {
		r.Add(Stroke{X1: -20, Y1: y, X2: 220, Y2: y, Color: "#000"})
	}
	if got := r.Coverage(); got < 0.999 {
		t.Fatalf("coverage=%v want ~1", got)
	}
}

func TestRasterizer_Reset(t *testing.T) {
	t.Parallel()

	r := NewRasterizer(200, 100, 32)
	r.Add(Stroke{X1: 0, Y1: 0, X2: 200, Y2: 100, Color: "#000"})
	r.Reset()

	if got := r.Coverage(); got != 0 {
		t.Fatalf("coverage after reset=%v", got)
	}
	for i, p := range r.bitmap.Pix {
		if p != 0 {
			t.Fatalf("pixel %d not background after reset", i)
		}
	}
}

func TestClipSegment(t *testing.T) {
	t.Parallel()

	x1, y1, x2, y2, ok := clipSegment(-10, 5, 20, 5, 0, 0, 10, 10)
	if !ok || x1 != 0 || x2 != 10 || y1 != 5 || y2 != 5 {
		t.Fatalf("got (%v,%v)-(%v,%v) ok=%v", x1, y1, x2, y2, ok)
	}
	if _, _, _, _, ok := clipSegment(-5, -5, -1, -1, 0, 0, 10, 10); ok {
		t.Fatalf("expected segment outside")
	}
	if _, _, _, _, ok := clipSegment(3, 3, 3, 3, 0, 0, 10, 10); !ok {
		t.Fatalf("expected inside point to survive")
	}
}

func TestLengthMeter_SaturatesAtMax(t *testing.T) {
	t.Parallel()

	m := NewLengthMeter(10)
	m.Add(Stroke{X2: 100, Color: "#000"})
	if m.Coverage() != 1 || m.Score() != 10 {
		t.Fatalf("coverage=%v score=%v want 1/10", m.Coverage(), m.Score())
	}
	m.Reset()
	if m.Coverage() != 0 {
		t.Fatalf("coverage after reset=%v", m.Coverage())
	}
}

func TestNewMeter(t *testing.T) {
	t.Parallel()

	if m, err := NewMeter("", 10, 10, 2); err != nil || m == nil {
		t.Fatalf("default model: m=%v err=%v", m, err)
	}
	if m, err := NewMeter("LENGTH", 10, 10, 2); err != nil {
		t.Fatalf("length model: %v", err)
	} else if _, ok := m.(*LengthMeter); !ok {
		t.Fatalf("got %T want *LengthMeter", m)
	}
	if _, err := NewMeter("pixels", 10, 10, 2); err == nil {
		t.Fatalf("expected unknown model error")
	}
}
