package canvas

import (
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

var inkFallback = color.RGBA{A: 0xff}

// ParseColor understands the CSS forms browsers put on the wire: #rgb, #rrggbb,
// #rrggbbaa, rgb()/rgba() and SVG color names. Unknown values yield opaque black
// and ok=false.
func ParseColor(s string) (c color.RGBA, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "#"):
		return parseHexColor(s[1:])
	case strings.HasPrefix(s, "rgb"):
		return parseFuncColor(s)
	}
	if named, found := colornames.Map[s]; found {
		return named, true
	}
	return inkFallback, false
}

func parseHexColor(h string) (color.RGBA, bool) {
	switch len(h) {
	case 3:
		v, err := strconv.ParseUint(h, 16, 16)
		if err != nil {
			return inkFallback, false
		}
		r, g, b := uint8(v>>8&0xf), uint8(v>>4&0xf), uint8(v&0xf)
		return color.RGBA{R: r * 0x11, G: g * 0x11, B: b * 0x11, A: 0xff}, true
	case 6, 8:
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			return inkFallback, false
		}
		if len(h) == 6 {
			v = v<<8 | 0xff
		}
		return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: 0xff}, true
	default:
		return inkFallback, false
	}
}

func parseFuncColor(s string) (color.RGBA, bool) {
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return inkFallback, false
	}
	parts := strings.Split(s[open+1:end], ",")
	if len(parts) < 3 {
		return inkFallback, false
	}
	var ch [3]uint8
	for i := range ch {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > 255 {
			return inkFallback, false
		}
		ch[i] = uint8(n)
	}
	return color.RGBA{R: ch[0], G: ch[1], B: ch[2], A: 0xff}, true
}
