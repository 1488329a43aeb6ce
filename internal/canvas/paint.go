package canvas

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
)

// Style selects how a shape is painted.
type Style int

const (
	Fill Style = iota
	Stroke
	FillStroke
)

// ParseStyle accepts "fill", "stroke" and "fill-stroke".
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(s) {
	case "", "fill":
		return Fill, nil
	case "stroke":
		return Stroke, nil
	case "fill-stroke", "fillstroke", "both":
		return FillStroke, nil
	}
	return Fill, fmt.Errorf("%w: unknown paint style %q", ErrInvalidArgument, s)
}

// Paint is a reusable set of drawing attributes.
type Paint struct {
	Color       color.Color
	StrokeColor color.Color // used for the stroke of FillStroke; defaults to Color
	Style       Style
	StrokeWidth float64
	Cap         gg.LineCap
	Join        gg.LineJoin
	Dash        []float64
	Font        string // name registered with Context.LoadFont; "" = built-in face
	Align       float64
}

// DefaultPaint is opaque white fill with a one pixel stroke.
func DefaultPaint() *Paint {
	return &Paint{
		Color:       color.White,
		Style:       Fill,
		StrokeWidth: 1,
		Cap:         gg.LineCapRound,
		Join:        gg.LineJoinRound,
	}
}

// ParseColor reads "#rgb", "#rrggbb", "#rrggbbaa" or a small set of names.
func ParseColor(s string) (color.Color, error) {
	switch strings.ToLower(s) {
	case "transparent":
		return color.Transparent, nil
	case "white":
		return color.White, nil
	case "black":
		return color.Black, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return nil, fmt.Errorf("%w: bad color %q", ErrInvalidArgument, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad color %q", ErrInvalidArgument, s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
