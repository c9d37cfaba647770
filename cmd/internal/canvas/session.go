package canvas

import (
	"errors"
	"time"
)

// State is the lifecycle state of a Session.
type State uint8

const (
	// StateActive accepts strokes and lets the coordinator evaluate coverage.
	StateActive State = iota
	// StateSnapshotInProgress still accepts strokes but suppresses threshold evaluation
	// until the pending archival completes.
	StateSnapshotInProgress
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateSnapshotInProgress:
		return "SNAPSHOT_IN_PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// ErrResetWhileActive means Reset was called without a pending snapshot.
// It always indicates a coordinator defect; the session is left untouched.
var ErrResetWhileActive = errors.New("canvas: reset requested while ACTIVE")

// SessionConfig configures NewSession. Zero values select defaults.
type SessionConfig struct {
	Width  int
	Height int

	// Meter defaults to a Rasterizer with DefaultPenWidth.
	Meter Meter

	// Now stamps snapshots. Defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a frozen copy of a session taken at a threshold crossing.
type Snapshot struct {
	Cycle    uint64
	Lines    []Stroke
	Coverage float64
	Width    int
	Height   int
	TakenAt  time.Time
}

// Session is the authoritative record of strokes and coverage since the last reset.
type Session struct {
	width, height int
	meter         Meter
	now           func() time.Time

	strokes  []Stroke
	coverage float64
	state    State
	cycle    uint64

	// frozen is the length of the log prefix captured by the pending snapshot.
	frozen int
}

// NewSession constructs an ACTIVE, empty session.
func NewSession(cfg SessionConfig) *Session {
	w, h := cfg.Width, cfg.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	m := cfg.Meter
	if m == nil {
		m = NewRasterizer(w, h, DefaultPenWidth)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		width:   w,
		height:  h,
		meter:   m,
		now:     now,
		strokes: make([]Stroke, 0, 256),
	}
}

// AddStroke appends s to the log and folds it into coverage.
// It is accepted in every state; only structurally invalid strokes are rejected.
func (s *Session) AddStroke(st Stroke) (float64, error) {
	if err := st.Validate(); err != nil {
		return s.coverage, err
	}
	s.strokes = append(s.strokes, st)
	if c := s.meter.Add(st); c > s.coverage {
		s.coverage = c
	}
	return s.coverage, nil
}

// Coverage returns the current coverage in [0, 1].
func (s *Session) Coverage() float64 { return s.coverage }

// Lines returns a copy of the stroke log in append order.
func (s *Session) Lines() []Stroke {
	out := make([]Stroke, len(s.strokes))
	copy(out, s.strokes)
	return out
}

// Len returns the number of strokes since the last reset.
func (s *Session) Len() int { return len(s.strokes) }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Cycle returns how many resets have completed.
func (s *Session) Cycle() uint64 { return s.cycle }

// Size returns the surface dimensions.
func (s *Session) Size() (width, height int) { return s.width, s.height }

// Snapshot freezes the current log and coverage.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Cycle:    s.cycle,
		Lines:    s.Lines(),
		Coverage: s.coverage,
		Width:    s.width,
		Height:   s.height,
		TakenAt:  s.now().UTC(),
	}
}

// freeze moves the session to SNAPSHOT_IN_PROGRESS and returns the snapshot Reset will
// later drop.
func (s *Session) freeze() Snapshot {
	s.state = StateSnapshotInProgress
	s.frozen = len(s.strokes)
	return s.Snapshot()
}

// Pending returns how many strokes were accepted after the pending snapshot was taken.
func (s *Session) Pending() int {
	if s.state != StateSnapshotInProgress {
		return 0
	}
	return len(s.strokes) - s.frozen
}

// Reset drops the strokes captured by the pending snapshot and repaints the meter in one
// step. Strokes accepted after the snapshot carry over into the next cycle and are replayed
// into coverage. It is only legal while a snapshot is pending; it does not change the state
// (the coordinator does).
func (s *Session) Reset() error {
	if s.state != StateSnapshotInProgress {
		return ErrResetWhileActive
	}
	carried := make([]Stroke, len(s.strokes)-s.frozen, cap(s.strokes))
	copy(carried, s.strokes[s.frozen:])

	s.meter.Reset()
	s.coverage = 0
	for _, st := range carried {
		if c := s.meter.Add(st); c > s.coverage {
			s.coverage = c
		}
	}
	s.strokes = carried
	s.frozen = 0
	s.cycle++
	return nil
}
