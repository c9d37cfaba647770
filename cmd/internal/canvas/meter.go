package canvas

import (
	"errors"
	"fmt"
	"strings"
)

// Meter accumulates strokes into a coverage estimate.
//
// Implementations must keep Coverage in [0, 1] and never let it decrease between
// Resets: drawing only ever adds ink.
type Meter interface {
	// Add records s and returns the coverage after it.
	Add(s Stroke) float64
	Coverage() float64
	Reset()
}

// Coverage models selectable through configuration.
const (
	ModelRaster = "raster"
	ModelLength = "length"
)

// ErrUnknownModel is returned by NewMeter for unsupported model names.
var ErrUnknownModel = errors.New("canvas: unknown coverage model")

// lengthScoreFactor scales segment length into score units.
const lengthScoreFactor = 0.5

// DefaultMaxScore is the length model's full-coverage score for a width x height surface.
func DefaultMaxScore(width, height int) float64 {
	return float64(width*height) * 0.1
}

// NewMeter builds the meter named by model for a width x height surface.
func NewMeter(model string, width, height int, penWidth float64) (Meter, error) {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case "", ModelRaster:
		return NewRasterizer(width, height, penWidth), nil
	case ModelLength:
		return NewLengthMeter(DefaultMaxScore(width, height)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
}

// LengthMeter scores strokes by length instead of rasterizing them.
// Score grows by half the segment length and saturates at MaxScore.
type LengthMeter struct {
	maxScore float64
	score    float64
}

// NewLengthMeter returns a LengthMeter saturating at maxScore (must be > 0).
func NewLengthMeter(maxScore float64) *LengthMeter {
	if maxScore <= 0 {
		maxScore = DefaultMaxScore(DefaultWidth, DefaultHeight)
	}
	return &LengthMeter{maxScore: maxScore}
}

func (m *LengthMeter) Add(s Stroke) float64 {
	m.score += s.Length() * lengthScoreFactor
	if m.score > m.maxScore {
		m.score = m.maxScore
	}
	return m.Coverage()
}

func (m *LengthMeter) Coverage() float64 { return m.score / m.maxScore }

func (m *LengthMeter) Reset() { m.score = 0 }

// Score returns the raw accumulated score.
func (m *LengthMeter) Score() float64 { return m.score }
