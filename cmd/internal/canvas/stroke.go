package canvas

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidStroke is wrapped by Stroke.Validate failures.
var ErrInvalidStroke = errors.New("canvas: invalid stroke")

// Stroke is one immutable line segment in surface-local coordinates.
// Width is the client brush width; it only affects exported images.
type Stroke struct {
	X1, Y1 float64
	X2, Y2 float64
	Color  string
	Width  float64
}

// Validate checks structural shape only. Out-of-bounds coordinates are valid; meters clip.
func (s Stroke) Validate() error {
	for _, c := range [...]struct {
		name string
		v    float64
	}{
		{"x1", s.X1}, {"y1", s.Y1}, {"x2", s.X2}, {"y2", s.Y2}, {"width", s.Width},
	} {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidStroke, c.name)
		}
	}
	if s.Width < 0 {
		return fmt.Errorf("%w: negative width", ErrInvalidStroke)
	}
	if strings.TrimSpace(s.Color) == "" {
		return fmt.Errorf("%w: empty color", ErrInvalidStroke)
	}
	return nil
}

// Length returns the Euclidean length of the segment.
func (s Stroke) Length() float64 {
	return math.Hypot(s.X2-s.X1, s.Y2-s.Y1)
}
