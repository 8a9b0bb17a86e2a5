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
	"time"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Defaults for time-height sections.
const (
	SectionWidth      = 9 * vg.Inch
	SectionHeight     = 6 * vg.Inch
	SectionTimeFormat = "02-Jan-06 15:00"
	maxTimeLabels     = 6
)

// TimeHeightField is a field on a time by vertical level grid.
type TimeHeightField struct {
	// Values has the shape [time, level].
	Values *sparse.DenseArray

	Times []time.Time

	// Pressure is the pressure of each level [hPa].
	Pressure []float64
}

// TimeHeightConfig holds the settings of a time-height section.
type TimeHeightConfig struct {
	Levels  []float64
	Extend  bool
	Palette string

	ColorbarLabel, Title, XLabel, YLabel string

	// PressureTop and PressureBottom are the limits of the vertical
	// axis [hPa]. They default to 100 and 1000.
	PressureTop, PressureBottom float64

	// YTicks are the labeled pressures. They default to every 100 hPa.
	YTicks []float64

	// TimeFormat defaults to SectionTimeFormat.
	TimeFormat string

	Width, Height vg.Length
	DPI           int

	Filename string
}

// invertedLog is a logarithmic axis scale with the minimum at the top.
type invertedLog struct{}

// Normalize implements the plot.Normalizer interface.
func (invertedLog) Normalize(min, max, x float64) float64 {
	return 1 - math.Log(x/min)/math.Log(max/min)
}

// sectionCells is a plotter that fills one rectangle per value.
type sectionCells struct {
	values *sparse.DenseArray
	x, y   []float64 // cell edges
	bands  *Bands
}

// Plot implements the plot.Plotter interface.
func (s sectionCells) Plot(c draw.Canvas, p *plot.Plot) {
	trX, trY := p.Transforms(&c)
	nz := len(s.y) - 1
	for t := 0; t < len(s.x)-1; t++ {
		x0, x1 := trX(s.x[t]), trX(s.x[t+1])
		for k := 0; k < nz; k++ {
			col, ok := s.bands.Color(s.values.Elements[t*nz+k])
			if !ok {
				continue
			}
			if s.y[k] == s.y[k+1] || math.IsNaN(s.y[k]) || math.IsNaN(s.y[k+1]) {
				continue
			}
			y0, y1 := trY(s.y[k]), trY(s.y[k+1])
			c.FillPolygon(col, []vg.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}})
		}
	}
}

// edges returns the n+1 boundaries of cells centered on the n values
// in v. A single cell is width wide.
func edges(v []float64, width float64) []float64 {
	n := len(v)
	out := make([]float64, n+1)
	if n == 1 {
		out[0], out[1] = v[0]-width/2, v[0]+width/2
		return out
	}
	for i := 1; i < n; i++ {
		out[i] = (v[i-1] + v[i]) / 2
	}
	out[0] = v[0] - (out[1] - v[0])
	out[n] = v[n-1] + (v[n-1] - out[n-1])
	return out
}

func (cfg *TimeHeightConfig) setDefaults() {
	if cfg.PressureTop == 0 {
		cfg.PressureTop = 100
	}
	if cfg.PressureBottom == 0 {
		cfg.PressureBottom = 1000
	}
	if cfg.YTicks == nil {
		cfg.YTicks = make([]float64, 10)
		floats.Span(cfg.YTicks, cfg.PressureTop, cfg.PressureBottom)
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = SectionTimeFormat
	}
	if cfg.Width == 0 {
		cfg.Width = SectionWidth
	}
	if cfg.Height == 0 {
		cfg.Height = SectionHeight
	}
}

// TimeHeight draws f as a time-height section with time on the
// horizontal axis and pressure, decreasing upward on a logarithmic
// scale, on the vertical axis. The figure is saved to cfg.Filename
// as a PNG image, replacing any existing file.
func TimeHeight(cfg TimeHeightConfig, f TimeHeightField) error {
	cfg.setDefaults()
	if f.Values == nil || len(f.Values.Shape) != 2 {
		return fmt.Errorf("render: time-height field must be 2-D")
	}
	nt, nz := f.Values.Shape[0], f.Values.Shape[1]
	if nt == 0 || nz == 0 {
		return fmt.Errorf("render: time-height field is empty")
	}
	if len(f.Times) != nt {
		return fmt.Errorf("render: time-height field has %d times but %d time steps", len(f.Times), nt)
	}
	if len(f.Pressure) != nz {
		return fmt.Errorf("render: time-height field has %d pressures but %d levels", len(f.Pressure), nz)
	}
	if !(0 < cfg.PressureTop && cfg.PressureTop < cfg.PressureBottom) {
		return fmt.Errorf("render: invalid pressure range %g-%g", cfg.PressureTop, cfg.PressureBottom)
	}
	bands, err := NewBands(cfg.Levels, cfg.Palette, cfg.Extend)
	if err != nil {
		return err
	}

	t := make([]float64, nt)
	for i, tt := range f.Times {
		t[i] = float64(tt.Unix())
	}
	x := edges(t, float64(time.Hour/time.Second))
	y := edges(f.Pressure, 0)
	for i, v := range y {
		y[i] = math.Min(math.Max(v, cfg.PressureTop), cfg.PressureBottom)
	}

	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	p.Title.Text = cfg.Title
	p.X.Label.Text = cfg.XLabel
	p.Y.Label.Text = cfg.YLabel
	p.Add(sectionCells{values: f.Values, x: x, y: y, bands: bands})
	p.X.Min, p.X.Max = x[0], x[nt]
	p.Y.Min, p.Y.Max = cfg.PressureTop, cfg.PressureBottom
	p.Y.Scale = invertedLog{}
	p.X.Tick.Marker = timeTicks(f.Times, cfg.TimeFormat)
	p.Y.Tick.Marker = pressureTicks(cfg.YTicks, cfg.PressureTop, cfg.PressureBottom)

	img, dc := newImage(cfg.Width, cfg.Height, cfg.DPI)
	p.Draw(region(dc, dc.Min.X, dc.Min.Y, dc.Max.X-1.3*vg.Inch, dc.Max.Y))
	cb := region(dc, dc.Max.X-1.0*vg.Inch, dc.Min.Y+0.5*vg.Inch, dc.Max.X-0.3*vg.Inch, dc.Max.Y-0.4*vg.Inch)
	if err := drawColorbar(cb, bands, cfg.ColorbarLabel); err != nil {
		return err
	}
	return savePNG(img, cfg.Filename)
}

// timeTicks marks every time, labeling at most maxTimeLabels of them.
func timeTicks(times []time.Time, format string) plot.TimeTicks {
	step := (len(times) + maxTimeLabels - 1) / maxTimeLabels
	ticks := make(plot.ConstantTicks, len(times))
	for i, t := range times {
		ticks[i].Value = float64(t.Unix())
		if i%step == 0 {
			// Replaced by the formatted time.
			ticks[i].Label = "t"
		}
	}
	return plot.TimeTicks{Ticker: ticks, Format: format}
}

func pressureTicks(values []float64, top, bottom float64) plot.ConstantTicks {
	var ticks plot.ConstantTicks
	for _, v := range values {
		if v < top || v > bottom {
			continue
		}
		ticks = append(ticks, plot.Tick{Value: v, Label: strconv.FormatFloat(v, 'f', -1, 64)})
	}
	return ticks
}
