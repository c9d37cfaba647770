package canvas

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultThreshold is the coverage fraction that finalizes a canvas.
const DefaultThreshold = 0.9

var (
	// ErrInvalidThreshold is returned for thresholds outside (0, 1].
	ErrInvalidThreshold = errors.New("canvas: threshold must be in (0, 1]")
	// ErrNoSnapshotPending is returned by Complete when nothing was triggered.
	ErrNoSnapshotPending = errors.New("canvas: no snapshot pending")
	// ErrUnknownPolicy is returned by ParseFailurePolicy.
	ErrUnknownPolicy = errors.New("canvas: unknown archive failure policy")
)

// FailurePolicy decides what happens to the drawing when archival fails.
type FailurePolicy uint8

const (
	// PolicyReset clears the canvas even if the archive was lost.
	PolicyReset FailurePolicy = iota
	// PolicyRetain keeps the drawing; the next stroke re-triggers and retries archival.
	PolicyRetain
)

func (p FailurePolicy) String() string {
	switch p {
	case PolicyRetain:
		return "retain"
	default:
		return "reset"
	}
}

// ParseFailurePolicy parses "reset" or "retain". Empty selects PolicyReset.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reset":
		return PolicyReset, nil
	case "retain":
		return PolicyRetain, nil
	default:
		return PolicyReset, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Outcome reports how Complete resolved a pending snapshot.
type Outcome uint8

const (
	OutcomeReset Outcome = iota + 1
	OutcomeRetained
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReset:
		return "reset"
	case OutcomeRetained:
		return "retained"
	default:
		return "none"
	}
}

// Coordinator gates threshold crossings: at most one trigger per cycle.
type Coordinator struct {
	threshold float64
	policy    FailurePolicy
}

// NewCoordinator validates threshold and returns a Coordinator.
func NewCoordinator(threshold float64, policy FailurePolicy) (*Coordinator, error) {
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return &Coordinator{threshold: threshold, policy: policy}, nil
}

// Threshold returns the configured coverage fraction.
func (c *Coordinator) Threshold() float64 { return c.threshold }

// Policy returns the configured failure policy.
func (c *Coordinator) Policy() FailurePolicy { return c.policy }

// Evaluate moves s to SNAPSHOT_IN_PROGRESS the first time coverage reaches the
// threshold while ACTIVE, and returns the frozen snapshot to archive. Any other call
// returns false without side effects.
func (c *Coordinator) Evaluate(s *Session) (Snapshot, bool) {
	if s.State() != StateActive {
		return Snapshot{}, false
	}
	if s.Coverage() < c.threshold {
		return Snapshot{}, false
	}
	return s.freeze(), true
}

// Complete resolves the pending snapshot with the archival result and re-arms. On reset,
// strokes drawn while the snapshot was pending survive into the next cycle; the caller
// should Evaluate again since they may already cover the threshold.
func (c *Coordinator) Complete(s *Session, archiveErr error) (Outcome, error) {
	if s.State() != StateSnapshotInProgress {
		return 0, ErrNoSnapshotPending
	}

	if archiveErr != nil && c.policy == PolicyRetain {
		s.state = StateActive
		s.frozen = 0
		return OutcomeRetained, nil
	}

	if err := s.Reset(); err != nil {
		return 0, err
	}
	s.state = StateActive
	return OutcomeReset, nil
}
