package v1

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode_Draw(t *testing.T) {
	t.Parallel()

	msg, err := Decode([]byte(`{"type":"DRAW","x1":1,"y1":2.5,"x2":-3,"y2":4,"color":"#ff0000"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	d, ok := msg.(Draw)
	if !ok {
		t.Fatalf("got %T want Draw", msg)
	}
	want := Line{X1: 1, Y1: 2.5, X2: -3, Y2: 4, Color: "#ff0000"}
	if d.Line != want {
		t.Fatalf("line=%+v want=%+v", d.Line, want)
	}
	if d.Kind() != KindDraw {
		t.Fatalf("kind=%v", d.Kind())
	}
}

func TestDecode_DrawWithWidth(t *testing.T) {
	t.Parallel()

	msg, err := Decode([]byte(`{"type":"DRAW","x1":0,"y1":0,"x2":0,"y2":0,"color":"black","width":8}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := msg.(Draw).Width; got != 8 {
		t.Fatalf("width=%v want 8", got)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
	}{
		{name: "not json", in: `{"type":`},
		{name: "missing type", in: `{"x1":1}`},
		{name: "unknown type", in: `{"type":"ERASE"}`},
		{name: "missing x1", in: `{"type":"DRAW","y1":0,"x2":0,"y2":0,"color":"#000"}`},
		{name: "missing color", in: `{"type":"DRAW","x1":0,"y1":0,"x2":0,"y2":0}`},
		{name: "string coordinate", in: `{"type":"DRAW","x1":"a","y1":0,"x2":0,"y2":0,"color":"#000"}`},
		{name: "array", in: `[1,2,3]`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tc.in))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecode_Heartbeat(t *testing.T) {
	t.Parallel()

	msg, err := Decode([]byte(`{"type":"HEARTBEAT"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Kind() != KindHeartbeat {
		t.Fatalf("kind=%v want HEARTBEAT", msg.Kind())
	}
}

func TestEncode_WireShapes(t *testing.T) {
	t.Parallel()

	b, err := Encode(Draw{Line: Line{X1: 1, Y1: 2, X2: 3, Y2: 4, Color: "#123456"}})
	if err != nil {
		t.Fatalf("Encode draw: %v", err)
	}
	var draw map[string]any
	if err := json.Unmarshal(b, &draw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if draw["type"] != TypeDraw || draw["x2"] != float64(3) || draw["color"] != "#123456" {
		t.Fatalf("unexpected draw wire form: %s", b)
	}
	if _, ok := draw["width"]; ok {
		t.Fatalf("zero width must be omitted: %s", b)
	}

	b, err = Encode(InitialState{})
	if err != nil {
		t.Fatalf("Encode initial state: %v", err)
	}
	if string(b) != `{"type":"INITIAL_STATE","lines":[]}` {
		t.Fatalf("initial state=%s", b)
	}

	b, err = Encode(TriggerSave{})
	if err != nil {
		t.Fatalf("Encode trigger: %v", err)
	}
	if string(b) != `{"type":"TRIGGER_SAVE"}` {
		t.Fatalf("trigger=%s", b)
	}

	if _, err := Encode(nil); err == nil {
		t.Fatalf("expected error for nil message")
	}
}

func TestEncodeDecode_InitialStatePreservesOrder(t *testing.T) {
	t.Parallel()

	in := InitialState{Lines: []Line{
		{X1: 1, Color: "a"},
		{X1: 2, Color: "b"},
		{X1: 3, Color: "c"},
	}}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := msg.(InitialState).Lines
	if len(got) != 3 || got[0].Color != "a" || got[2].Color != "c" {
		t.Fatalf("lines=%+v", got)
	}
}
