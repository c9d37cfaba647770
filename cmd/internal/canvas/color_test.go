package canvas

import (
	"image/color"
	"testing"
)

func TestParseColor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{in: "#f00", want: color.RGBA{R: 0xff, A: 0xff}, ok: true},
		{in: "#00FF00", want: color.RGBA{G: 0xff, A: 0xff}, ok: true},
		{in: "#0000ff80", want: color.RGBA{B: 0xff, A: 0xff}, ok: true},
		{in: "rgb(1, 2, 3)", want: color.RGBA{R: 1, G: 2, B: 3, A: 0xff}, ok: true},
		{in: "rgba(10,20,30,0.5)", want: color.RGBA{R: 10, G: 20, B: 30, A: 0xff}, ok: true},
		{in: " Blue ", want: color.RGBA{B: 0xff, A: 0xff}, ok: true},
		{in: "#12", want: inkFallback, ok: false},
		{in: "#zzzzzz", want: inkFallback, ok: false},
		{in: "rgb(300,0,0)", want: inkFallback, ok: false},
		{in: "not-a-color", want: inkFallback, ok: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseColor(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("ParseColor(%q)=(%v,%v) want (%v,%v)", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}
