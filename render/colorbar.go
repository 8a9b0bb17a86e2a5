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
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// maxTickLabels is the most labels drawn on a colorbar.
const maxTickLabels = 16

// bandBar is a plotter that draws one rectangle per contour band,
// with triangles for extended bands.
type bandBar struct {
	b *Bands

	// ext is the height of the extension triangles in data units.
	ext float64
}

func newBandBar(b *Bands) bandBar {
	bb := bandBar{b: b}
	if b.Extended() {
		bb.ext = 0.05 * (b.Levels[len(b.Levels)-1] - b.Levels[0])
	}
	return bb
}

// Plot implements the plot.Plotter interface.
func (bb bandBar) Plot(c draw.Canvas, p *plot.Plot) {
	trX, trY := p.Transforms(&c)
	x0, x1 := trX(0), trX(1)
	levels := bb.b.Levels
	for i, col := range bb.b.Colors {
		y0, y1 := trY(levels[i]), trY(levels[i+1])
		c.FillPolygon(col, []vg.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}})
	}
	xm := (x0 + x1) / 2
	if bb.b.Under != nil {
		lo := levels[0]
		c.FillPolygon(bb.b.Under, []vg.Point{{X: x0, Y: trY(lo)}, {X: x1, Y: trY(lo)}, {X: xm, Y: trY(lo - bb.ext)}})
	}
	if bb.b.Over != nil {
		hi := levels[len(levels)-1]
		c.FillPolygon(bb.b.Over, []vg.Point{{X: x0, Y: trY(hi)}, {X: x1, Y: trY(hi)}, {X: xm, Y: trY(hi + bb.ext)}})
	}
}

// DataRange implements the plot.DataRanger interface.
func (bb bandBar) DataRange() (xmin, xmax, ymin, ymax float64) {
	levels := bb.b.Levels
	return 0, 1, levels[0] - bb.ext, levels[len(levels)-1] + bb.ext
}

// levelTicks marks every contour level, labeling at most max of them.
type levelTicks struct {
	levels []float64
	max    int
}

// Ticks implements the plot.Ticker interface.
func (t levelTicks) Ticks(min, max float64) []plot.Tick {
	step := 1
	if t.max > 0 {
		step = (len(t.levels) + t.max - 1) / t.max
	}
	span := t.levels[len(t.levels)-1] - t.levels[0]
	var ticks []plot.Tick
	for i, l := range t.levels {
		if l < min || l > max {
			continue
		}
		tick := plot.Tick{Value: l}
		if i%step == 0 {
			tick.Label = levelLabel(l, span)
		}
		ticks = append(ticks, tick)
	}
	return ticks
}

func levelLabel(v, span float64) string {
	if math.Abs(v) < 1e-9*span {
		return "0"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// drawColorbar draws a vertical colorbar for b with the given label
// onto c.
func drawColorbar(c draw.Canvas, b *Bands, label string) error {
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("render: colorbar: %w", err)
	}
	p.Add(newBandBar(b))
	p.HideX()
	p.Y.Label.Text = label
	p.Y.Tick.Marker = levelTicks{levels: b.Levels, max: maxTickLabels}
	p.Y.Padding = 0
	p.Draw(c)
	return nil
}
