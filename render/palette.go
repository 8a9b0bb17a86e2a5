/*
Copyright © 2021 the wrfpost authors.
This file is part of wrfpost.

wrfpost is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

wrfpost is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with wrfpost.  If not, see <http://www.gnu.org/licenses/>.
*/

package render

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/ctessum/geom/carto"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/palette/moreland"
)

// viridis holds evenly spaced anchor colors of the viridis color map.
var viridis = []color.Color{
	color.NRGBA{68, 1, 84, 255},
	color.NRGBA{72, 40, 120, 255},
	color.NRGBA{62, 74, 137, 255},
	color.NRGBA{49, 104, 142, 255},
	color.NRGBA{38, 130, 142, 255},
	color.NRGBA{31, 158, 137, 255},
	color.NRGBA{53, 183, 121, 255},
	color.NRGBA{110, 206, 88, 255},
	color.NRGBA{181, 222, 43, 255},
	color.NRGBA{253, 231, 37, 255},
}

// morelandMaps are the continuous color maps available by name.
var morelandMaps = map[string]func() palette.ColorMap{
	"SmoothBlueRed":     func() palette.ColorMap { return moreland.SmoothBlueRed() },
	"ExtendedBlackBody": func() palette.ColorMap { return moreland.ExtendedBlackBody() },
	"BlackBody":         func() palette.ColorMap { return moreland.BlackBody() },
	"Kindlmann":         func() palette.ColorMap { return moreland.Kindlmann() },
}

// cartoMaps are the color lists available by name.
var cartoMaps = map[string]carto.Colorlist{
	"Optimized": carto.Optimized,
	"Jet":       carto.Jet,
}

// Palette returns n colors evenly sampled from the named color palette.
// Names may be ColorBrewer schemes such as "BuPu" or "PRGn", "viridis",
// one of the Moreland maps ("SmoothBlueRed", "ExtendedBlackBody",
// "BlackBody", "Kindlmann") or "Optimized" or "Jet".
func Palette(name string, n int) ([]color.Color, error) {
	if n < 1 {
		return nil, fmt.Errorf("render: palette %s: invalid number of colors %d", name, n)
	}
	anchors, err := anchorColors(name)
	if err != nil {
		return nil, err
	}
	return interpolate(anchors, n), nil
}

func anchorColors(name string) ([]color.Color, error) {
	if name == "viridis" {
		return viridis, nil
	}
	if f, ok := morelandMaps[name]; ok {
		cm := f()
		cm.SetMin(0)
		cm.SetMax(1)
		return cm.Palette(33).Colors(), nil
	}
	if cl, ok := cartoMaps[name]; ok {
		c := make([]color.Color, len(cl.R))
		for i := range c {
			c[i] = color.NRGBA{uint8(cl.R[i]), uint8(cl.G[i]), uint8(cl.B[i]), 255}
		}
		return c, nil
	}
	// ColorBrewer schemes have between 3 and 12 classes; use the largest.
	for k := 12; k >= 3; k-- {
		p, err := brewer.GetPalette(brewer.TypeAny, name, k)
		if err == nil {
			return p.Colors(), nil
		}
	}
	return nil, fmt.Errorf("render: unknown palette %q", name)
}

// interpolate returns n colors linearly interpolated between anchors.
func interpolate(anchors []color.Color, n int) []color.Color {
	out := make([]color.Color, n)
	if len(anchors) == 1 {
		for i := range out {
			out[i] = anchors[0]
		}
		return out
	}
	for i := range out {
		pos := 0.5
		if n > 1 {
			pos = float64(i) / float64(n-1)
		}
		x := pos * float64(len(anchors)-1)
		lo := int(math.Floor(x))
		if lo >= len(anchors)-1 {
			lo = len(anchors) - 2
		}
		w := x - float64(lo)
		a := color.NRGBAModel.Convert(anchors[lo]).(color.NRGBA)
		b := color.NRGBAModel.Convert(anchors[lo+1]).(color.NRGBA)
		mix := func(x, y uint8) uint8 {
			return uint8(math.Floor(float64(x)*(1-w) + float64(y)*w + 0.5))
		}
		out[i] = color.NRGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), mix(a.A, b.A)}
	}
	return out
}

// Bands assigns colors to the intervals between contour levels.
type Bands struct {
	// Levels are the increasing band boundaries.
	Levels []float64

	// Colors holds one color per band.
	Colors []color.Color

	// Under and Over are the colors of values below the first and
	// above the last level. They are nil when out-of-range values
	// are not drawn.
	Under, Over color.Color
}

// NewBands creates color bands between levels using the named palette.
// If extend is true, values outside of the levels get the colors at the
// ends of the palette.
func NewBands(levels []float64, paletteName string, extend bool) (*Bands, error) {
	if len(levels) < 2 {
		return nil, fmt.Errorf("render: need at least 2 contour levels, have %d", len(levels))
	}
	if !sort.Float64sAreSorted(levels) {
		return nil, fmt.Errorf("render: contour levels %v are not increasing", levels)
	}
	nBands := len(levels) - 1
	b := &Bands{Levels: levels}
	if !extend {
		c, err := Palette(paletteName, nBands)
		if err != nil {
			return nil, err
		}
		b.Colors = c
		return b, nil
	}
	c, err := Palette(paletteName, nBands+2)
	if err != nil {
		return nil, err
	}
	b.Under, b.Colors, b.Over = c[0], c[1:nBands+1], c[nBands+1]
	return b, nil
}

// Color returns the color of value v. ok is false if v should not be drawn.
func (b *Bands) Color(v float64) (c color.Color, ok bool) {
	if math.IsNaN(v) {
		return nil, false
	}
	n := len(b.Levels)
	switch {
	case v < b.Levels[0]:
		return b.Under, b.Under != nil
	case v > b.Levels[n-1]:
		return b.Over, b.Over != nil
	case v == b.Levels[n-1]:
		return b.Colors[len(b.Colors)-1], true
	}
	i := sort.SearchFloat64s(b.Levels, v)
	if i < n && b.Levels[i] == v {
		return b.Colors[i], true
	}
	return b.Colors[i-1], true
}

// Extended reports whether out-of-range values are drawn.
func (b *Bands) Extended() bool { return b.Under != nil || b.Over != nil }

// nrgba converts c to the type used by carto.
func nrgba(c color.Color) color.NRGBA {
	return color.NRGBAModel.Convert(c).(color.NRGBA)
}
