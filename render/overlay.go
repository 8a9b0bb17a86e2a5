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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// lonLat is the geographic coordinate system that overlay features
// and grid coordinates are stored in.
const lonLat = "+proj=longlat +a=6370000 +b=6370000 +no_defs"

// maxSegment is the longest line segment [degrees] drawn before
// projection; longer segments are split so they follow the projection.
const maxSegment = 0.25

// OverlayStyle is the default line style for coastlines and boundaries.
var OverlayStyle = draw.LineStyle{
	Color: color.NRGBA{100, 100, 100, 255},
	Width: 0.25 * vg.Millimeter,
}

// Overlay is a set of features, such as coastlines or state
// boundaries, that is drawn as lines on top of a map.
type Overlay struct {
	Name string

	// Tree holds the features in longitude/latitude coordinates.
	Tree *rtree.Rtree

	Style draw.LineStyle
}

// NewOverlay creates an overlay from features in longitude/latitude
// coordinates.
func NewOverlay(name string, features ...geom.Geom) *Overlay {
	o := &Overlay{
		Name:  name,
		Tree:  rtree.NewTree(25, 50),
		Style: OverlayStyle,
	}
	for _, g := range features {
		o.Tree.Insert(g)
	}
	return o
}

// LoadShapefile reads the features in the shapefile at path into an
// overlay. Features are converted to longitude/latitude using the
// shapefile's .prj file, which must exist.
func LoadShapefile(path string) (*Overlay, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("render: opening shapefile: %w", err)
	}
	defer d.Close()
	src, err := d.SR()
	if err != nil {
		return nil, fmt.Errorf("render: reading projection of %s: %w", path, err)
	}
	dst, err := proj.Parse(lonLat)
	if err != nil {
		return nil, err
	}
	ct, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("render: projection of %s: %w", path, err)
	}
	o := NewOverlay(path)
	for {
		var rec struct {
			geom.Geom
		}
		if more := d.DecodeRow(&rec); !more {
			break
		}
		if rec.Geom == nil {
			continue
		}
		g, err := rec.Geom.Transform(ct)
		if err != nil {
			return nil, fmt.Errorf("render: projecting shape in %s: %w", path, err)
		}
		o.Tree.Insert(g)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("render: reading %s: %w", path, err)
	}
	return o, nil
}

// lines returns the outlines of g.
func lines(g geom.Geom) []geom.LineString {
	switch t := g.(type) {
	case geom.LineString:
		return []geom.LineString{t}
	case geom.MultiLineString:
		return []geom.LineString(t)
	case geom.Polygon:
		out := make([]geom.LineString, len(t))
		for i, r := range t {
			out[i] = geom.LineString(r)
		}
		return out
	case geom.MultiPolygon:
		var out []geom.LineString
		for _, p := range t {
			out = append(out, lines(p)...)
		}
		return out
	}
	return nil
}

// clipLine returns the parts of l that are within b.
func clipLine(l geom.LineString, b *geom.Bounds) geom.MultiLineString {
	box := geom.Polygon{{
		b.Min, {X: b.Max.X, Y: b.Min.Y}, b.Max, {X: b.Min.X, Y: b.Max.Y}, b.Min,
	}}
	var out geom.MultiLineString
	for _, piece := range l.Clip(box).(geom.MultiLineString) {
		if len(piece) > 1 {
			out = append(out, piece)
		}
	}
	return out
}

// densify splits segments of l that are longer than maxSegment.
func densify(l geom.LineString) geom.LineString {
	if len(l) == 0 {
		return nil
	}
	out := geom.LineString{l[0]}
	for i := 1; i < len(l); i++ {
		p, q := l[i-1], l[i]
		n := int(math.Ceil(math.Hypot(q.X-p.X, q.Y-p.Y) / maxSegment))
		for k := 1; k < n; k++ {
			f := float64(k) / float64(n)
			out = append(out, geom.Point{X: p.X + f*(q.X-p.X), Y: p.Y + f*(q.Y-p.Y)})
		}
		out = append(out, q)
	}
	return out
}

// projectLine transforms l from longitude/latitude with ct after
// densifying it.
func projectLine(ct proj.Transformer, l geom.LineString) (geom.LineString, error) {
	g, err := densify(l).Transform(ct)
	if err != nil {
		return nil, fmt.Errorf("render: projecting line: %w", err)
	}
	return g.(geom.LineString), nil
}
