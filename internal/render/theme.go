package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Theme holds the plot colors.
type Theme struct {
	Background color.NRGBA
	Grid       color.NRGBA
	Plot       color.NRGBA
	Axis       color.NRGBA
	Marker     color.NRGBA
	Position   color.NRGBA
}

// DefaultTheme is a lavender plot with a translucent blue trace, a faint zero
// axis, green markers and a red position line.
func DefaultTheme() Theme {
	return Theme{
		Background: color.NRGBA{0xe6, 0xdd, 0xee, 0xff},
		Grid:       color.NRGBA{0xff, 0xff, 0xff, 0xb0},
		Plot:       color.NRGBA{0x00, 0x26, 0x99, 0x99},
		Axis:       color.NRGBA{0x00, 0x00, 0x00, 0x4c},
		Marker:     color.NRGBA{0x00, 0x80, 0x00, 0xff},
		Position:   color.NRGBA{0xff, 0x00, 0x00, 0xff},
	}
}

// ParseHexColor parses "#rrggbb" or "#rrggbbaa".
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: want #rrggbb or #rrggbbaa", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// HexColor formats c as "#rrggbbaa".
func HexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}
