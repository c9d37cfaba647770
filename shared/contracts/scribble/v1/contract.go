// Package v1 defines the Scrblit realtime wire protocol.
//
// Messages are flat JSON objects discriminated by a "type" field. On the Go side they are a
// closed tagged variant: every decoded value implements Message and reports its Kind, so
// consumers switch on concrete types instead of comparing strings.
//
// This package is dependency-light. It is shared by the server and the smoke client.
package v1

// Wire type discriminators (stable).
const (
	// TypeDraw carries one stroke (client -> server, relayed server -> other clients).
	TypeDraw = "DRAW"
	// TypeHeartbeat is an optional keep-alive (client -> server). No state effect.
	TypeHeartbeat = "HEARTBEAT"
	// TypeInitialState replays the current stroke log to a newly joined client.
	TypeInitialState = "INITIAL_STATE"
	// TypeTriggerSave tells every client the canvas is finalized and will be reset.
	TypeTriggerSave = "TRIGGER_SAVE"
)

// Kind enumerates the message variants.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDraw
	KindHeartbeat
	KindInitialState
	KindTriggerSave
)

// String returns the wire discriminator for k.
func (k Kind) String() string {
	switch k {
	case KindDraw:
		return TypeDraw
	case KindHeartbeat:
		return TypeHeartbeat
	case KindInitialState:
		return TypeInitialState
	case KindTriggerSave:
		return TypeTriggerSave
	default:
		return "UNKNOWN"
	}
}

// Message is implemented by every protocol message.
type Message interface {
	Kind() Kind
}

// Line is one stroke segment in surface-local coordinates.
// Width is the client brush width; zero means "not provided".
type Line struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Color string  `json:"color"`
	Width float64 `json:"width,omitempty"`
}

// Draw is a stroke to add and relay.
type Draw struct {
	Line
}

// Heartbeat is a keep-alive.
type Heartbeat struct{}

// InitialState is sent once per connection on join.
type InitialState struct {
	Lines []Line
}

// TriggerSave is broadcast to all clients when the coverage threshold is crossed.
type TriggerSave struct{}

func (Draw) Kind() Kind         { return KindDraw }
func (Heartbeat) Kind() Kind    { return KindHeartbeat }
func (InitialState) Kind() Kind { return KindInitialState }
func (TriggerSave) Kind() Kind  { return KindTriggerSave }
