package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by every Decode failure.
var ErrMalformed = errors.New("malformed message")

type typeProbe struct {
	Type string `json:"type"`
}

// drawIn uses pointers so absent fields are distinguishable from zero values.
type drawIn struct {
	X1    *float64 `json:"x1"`
	Y1    *float64 `json:"y1"`
	X2    *float64 `json:"x2"`
	Y2    *float64 `json:"y2"`
	Color *string  `json:"color"`
	Width *float64 `json:"width"`
}

type drawOut struct {
	Type string `json:"type"`
	Line
}

type initialStateWire struct {
	Type  string  `json:"type"`
	Lines []Line `json:"lines"`
}

type bareWire struct {
	Type string `json:"type"`
}

// Decode parses one wire message. Unknown types and missing required fields are
// reported as errors wrapping ErrMalformed.
func Decode(data []byte) (Message, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch strings.TrimSpace(probe.Type) {
	case TypeDraw:
		return decodeDraw(data)
	case TypeHeartbeat:
		return Heartbeat{}, nil
	case TypeTriggerSave:
		return TriggerSave{}, nil
	case TypeInitialState:
		var w initialStateWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if w.Lines == nil {
			w.Lines = []Line{}
		}
		return InitialState{Lines: w.Lines}, nil
	case "":
		return nil, fmt.Errorf("%w: missing field: type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unknown type: %q", ErrMalformed, probe.Type)
	}
}

func decodeDraw(data []byte) (Message, error) {
	var in drawIn
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case in.X1 == nil:
		return nil, fmt.Errorf("%w: missing field: x1", ErrMalformed)
	case in.Y1 == nil:
		return nil, fmt.Errorf("%w: missing field: y1", ErrMalformed)
	case in.X2 == nil:
		return nil, fmt.Errorf("%w: missing field: x2", ErrMalformed)
	case in.Y2 == nil:
		return nil, fmt.Errorf("%w: missing field: y2", ErrMalformed)
	case in.Color == nil:
		return nil, fmt.Errorf("%w: missing field: color", ErrMalformed)
	}

	d := Draw{Line: Line{
		X1:    *in.X1,
		Y1:    *in.Y1,
		X2:    *in.X2,
		Y2:    *in.Y2,
		Color: *in.Color,
	}}
	if in.Width != nil {
		d.Width = *in.Width
	}
	return d, nil
}

// Encode renders m in wire form.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case Draw:
		return json.Marshal(drawOut{Type: TypeDraw, Line: msg.Line})
	case InitialState:
		lines := msg.Lines
		if lines == nil {
			lines = []Line{}
		}
		return json.Marshal(initialStateWire{Type: TypeInitialState, Lines: lines})
	case TriggerSave:
		return json.Marshal(bareWire{Type: TypeTriggerSave})
	case Heartbeat:
		return json.Marshal(bareWire{Type: TypeHeartbeat})
	case nil:
		return nil, errors.New("v1: nil message")
	default:
		return nil, fmt.Errorf("v1: unsupported message %T", m)
	}
}
