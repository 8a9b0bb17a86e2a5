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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/carto"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Default map size.
const (
	MapWidth  = 12 * vg.Inch
	MapHeight = 9 * vg.Inch
)

// Map layout.
const (
	titleHeight   = 0.6 * vg.Inch
	colorbarWidth = 1.6 * vg.Inch
	labelMargin   = 0.7 * vg.Inch
	labelPad      = 2 * vg.Millimeter
)

var (
	clearFill      = color.NRGBA{0, 255, 0, 0}
	frameStyle     = draw.LineStyle{Color: color.Black, Width: 0.3 * vg.Millimeter}
	graticuleStyle = draw.LineStyle{
		Color:  color.NRGBA{80, 80, 80, 255},
		Width:  0.2 * vg.Millimeter,
		Dashes: []vg.Length{vg.Points(1), vg.Points(2)},
	}
)

// GeoField is a 2-D field on a curvilinear grid. Values, Lat and Lon
// all have the shape [south_north, west_east].
type GeoField struct {
	Values, Lat, Lon *sparse.DenseArray
}

func (f GeoField) check() (ny, nx int, err error) {
	if f.Values == nil || f.Lat == nil || f.Lon == nil {
		return 0, 0, fmt.Errorf("render: map field is missing values or coordinates")
	}
	if len(f.Values.Shape) != 2 {
		return 0, 0, fmt.Errorf("render: map field must be 2-D; has shape %v", f.Values.Shape)
	}
	for _, c := range []*sparse.DenseArray{f.Lat, f.Lon} {
		if len(c.Shape) != 2 || c.Shape[0] != f.Values.Shape[0] || c.Shape[1] != f.Values.Shape[1] {
			return 0, 0, fmt.Errorf("render: coordinate shape %v does not match field shape %v",
				c.Shape, f.Values.Shape)
		}
	}
	ny, nx = f.Values.Shape[0], f.Values.Shape[1]
	if ny < 2 || nx < 2 {
		return 0, 0, fmt.Errorf("render: map grid must be at least 2x2; is %dx%d", ny, nx)
	}
	return ny, nx, nil
}

// MapConfig holds the settings of a geographic map.
type MapConfig struct {
	// Projection is the map projection, usually the native projection
	// of the model grid. nil means longitude/latitude.
	Projection *proj.SR

	// Extent is the visible area as west, east, south, north [degrees].
	Extent [4]float64

	// Levels are the contour band boundaries.
	Levels []float64

	// Extend colors values outside of Levels with the end colors.
	Extend bool

	Palette       string
	ColorbarLabel string
	Title         string

	// XTicks and YTicks are the longitudes and latitudes of the
	// graticule lines.
	XTicks, YTicks []float64

	Overlays []*Overlay

	// Width and Height default to MapWidth and MapHeight.
	Width, Height vg.Length
	DPI           int

	Filename string
}

// Map draws f on a map and saves it to cfg.Filename as a PNG image.
// Grid cells are filled with the color of their contour band and
// clipped to the map extent.
func Map(cfg MapConfig, f GeoField) error {
	ny, nx, err := f.check()
	if err != nil {
		return err
	}
	w, e, s, n := cfg.Extent[0], cfg.Extent[1], cfg.Extent[2], cfg.Extent[3]
	if !(w < e && s < n) {
		return fmt.Errorf("render: invalid map extent %v", cfg.Extent)
	}
	bands, err := NewBands(cfg.Levels, cfg.Palette, cfg.Extend)
	if err != nil {
		return err
	}
	ct, err := fromLonLat(cfg.Projection)
	if err != nil {
		return err
	}
	box := &geom.Bounds{Min: geom.Point{X: w, Y: s}, Max: geom.Point{X: e, Y: n}}
	frame, err := projectLine(ct, geom.LineString{
		{X: w, Y: s}, {X: e, Y: s}, {X: e, Y: n}, {X: w, Y: n}, {X: w, Y: s},
	})
	if err != nil {
		return err
	}
	extent := geom.Polygon{[]geom.Point(frame)}
	b := extent.Bounds()

	width, height := cfg.Width, cfg.Height
	if width == 0 {
		width = MapWidth
	}
	if height == 0 {
		height = MapHeight
	}
	img, dc := newImage(width, height, cfg.DPI)
	mc := fitAspect(region(dc, dc.Min.X+labelMargin, dc.Min.Y+labelMargin,
		dc.Max.X-colorbarWidth, dc.Max.Y-titleHeight), (b.Max.X-b.Min.X)/(b.Max.Y-b.Min.Y))
	m := carto.NewCanvas(b.Max.Y, b.Min.Y, b.Max.X, b.Min.X, mc)

	if err := drawCells(m, ct, f, ny, nx, bands, box, extent); err != nil {
		return err
	}
	for _, o := range cfg.Overlays {
		if err := drawOverlay(m, ct, o, box); err != nil {
			return err
		}
	}
	if err := drawGraticule(m, ct, cfg.XTicks, cfg.YTicks, box); err != nil {
		return err
	}
	if err := m.DrawVector(frame, clearFill, frameStyle, draw.GlyphStyle{}); err != nil {
		return err
	}

	ts, err := textStyle(vg.Points(16))
	if err != nil {
		return err
	}
	dc.FillText(ts, vg.Point{X: mc.Min.X, Y: mc.Max.Y + 0.15*vg.Inch}, cfg.Title)

	cb := region(dc, mc.Max.X+0.7*vg.Inch, mc.Min.Y, mc.Max.X+colorbarWidth-0.4*vg.Inch, mc.Max.Y)
	if err := drawColorbar(cb, bands, cfg.ColorbarLabel); err != nil {
		return err
	}
	return savePNG(img, cfg.Filename)
}

// fromLonLat returns a transform from longitude/latitude to sr.
func fromLonLat(sr *proj.SR) (proj.Transformer, error) {
	src, err := proj.Parse(lonLat)
	if err != nil {
		return nil, err
	}
	if sr == nil {
		sr = src
	}
	ct, err := src.NewTransform(sr)
	if err != nil {
		return nil, fmt.Errorf("render: map projection: %w", err)
	}
	return ct, nil
}

// fitAspect returns the largest part of c in the upper left corner with
// the given width/height ratio.
func fitAspect(c draw.Canvas, aspect float64) draw.Canvas {
	w, h := c.Max.X-c.Min.X, c.Max.Y-c.Min.Y
	if float64(w) > float64(h)*aspect {
		c.Max.X = c.Min.X + vg.Length(float64(h)*aspect)
	} else {
		c.Min.Y = c.Max.Y - vg.Length(float64(w)/aspect)
	}
	return c
}

// drawCells fills the grid cells of f. Cell corners are midway between
// neighboring mass points.
func drawCells(m *carto.Canvas, ct proj.Transformer, f GeoField, ny, nx int, bands *Bands,
	box *geom.Bounds, extent geom.Polygon) error {
	px := make([]float64, ny*nx)
	py := make([]float64, ny*nx)
	for i := range px {
		var err error
		px[i], py[i], err = ct(f.Lon.Elements[i], f.Lat.Elements[i])
		if err != nil {
			return fmt.Errorf("render: projecting grid: %w", err)
		}
	}
	cx, cy := corners(px, ny, nx), corners(py, ny, nx)
	clon, clat := corners(f.Lon.Elements, ny, nx), corners(f.Lat.Elements, ny, nx)
	inside := func(k int) bool {
		return clon[k] >= box.Min.X && clon[k] <= box.Max.X && clat[k] >= box.Min.Y && clat[k] <= box.Max.Y
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			c, ok := bands.Color(f.Values.Elements[j*nx+i])
			if !ok {
				continue
			}
			k := [4]int{j*(nx+1) + i, j*(nx+1) + i + 1, (j+1)*(nx+1) + i + 1, (j+1)*(nx+1) + i}
			cell := geom.Polygon{{
				{X: cx[k[0]], Y: cy[k[0]]}, {X: cx[k[1]], Y: cy[k[1]]},
				{X: cx[k[2]], Y: cy[k[2]]}, {X: cx[k[3]], Y: cy[k[3]]},
				{X: cx[k[0]], Y: cy[k[0]]},
			}}
			if !(inside(k[0]) && inside(k[1]) && inside(k[2]) && inside(k[3])) {
				if !cell.Bounds().Overlaps(m.Bounds) {
					continue
				}
				cell = cell.Intersection(extent)
				if len(cell) == 0 {
					continue
				}
			}
			fill := nrgba(c)
			ls := draw.LineStyle{Color: fill, Width: 0.1}
			if err := m.DrawVector(cell, fill, ls, draw.GlyphStyle{}); err != nil {
				return err
			}
		}
	}
	return nil
}

// corners returns the values of a at the (ny+1)*(nx+1) cell corners,
// extrapolating linearly beyond the edges of the grid.
func corners(a []float64, ny, nx int) []float64 {
	row := func(j, i int) float64 {
		switch {
		case i < 0:
			return 2*a[j*nx] - a[j*nx+1]
		case i >= nx:
			return 2*a[j*nx+nx-1] - a[j*nx+nx-2]
		}
		return a[j*nx+i]
	}
	val := func(j, i int) float64 {
		switch {
		case j < 0:
			return 2*row(0, i) - row(1, i)
		case j >= ny:
			return 2*row(ny-1, i) - row(ny-2, i)
		}
		return row(j, i)
	}
	out := make([]float64, (ny+1)*(nx+1))
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			out[j*(nx+1)+i] = (val(j-1, i-1) + val(j-1, i) + val(j, i-1) + val(j, i)) / 4
		}
	}
	return out
}

func drawOverlay(m *carto.Canvas, ct proj.Transformer, o *Overlay, box *geom.Bounds) error {
	for _, gI := range o.Tree.SearchIntersect(box) {
		for _, l := range lines(gI.(geom.Geom)) {
			for _, piece := range clipLine(l, box) {
				pl, err := projectLine(ct, piece)
				if err != nil {
					return err
				}
				if err := m.DrawVector(pl, clearFill, o.Style, draw.GlyphStyle{}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// drawGraticule draws dotted meridians and parallels with degree labels
// on the bottom and left edges of the map.
func drawGraticule(m *carto.Canvas, ct proj.Transformer, lons, lats []float64, box *geom.Bounds) error {
	ts, err := textStyle(vg.Points(11))
	if err != nil {
		return err
	}
	line := func(p, q geom.Point) (geom.LineString, error) {
		l, err := projectLine(ct, geom.LineString{p, q})
		if err != nil {
			return nil, err
		}
		return l, m.DrawVector(l, clearFill, graticuleStyle, draw.GlyphStyle{})
	}
	for _, lon := range lons {
		if lon < box.Min.X || lon > box.Max.X {
			continue
		}
		l, err := line(geom.Point{X: lon, Y: box.Min.Y}, geom.Point{X: lon, Y: box.Max.Y})
		if err != nil {
			return err
		}
		pt := m.Coordinates(l[0])
		t := ts
		t.XAlign, t.YAlign = -0.5, -1
		m.FillText(t, vg.Point{X: pt.X, Y: m.Min.Y - labelPad}, LonLabel(lon))
	}
	for _, lat := range lats {
		if lat < box.Min.Y || lat > box.Max.Y {
			continue
		}
		l, err := line(geom.Point{X: box.Min.X, Y: lat}, geom.Point{X: box.Max.X, Y: lat})
		if err != nil {
			return err
		}
		pt := m.Coordinates(l[0])
		t := ts
		t.XAlign, t.YAlign = -1, -0.5
		m.FillText(t, vg.Point{X: m.Min.X - labelPad, Y: pt.Y}, LatLabel(lat))
	}
	return nil
}
