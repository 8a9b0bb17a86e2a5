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

// Package render draws gridded WRF fields as PNG maps and time-height
// sections.
package render

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"strconv"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Default figure settings.
const (
	DefaultDPI = 200
	fontName   = "Helvetica"
)

// PNG renders figures to PNG files.
type PNG struct{}

// Map draws a geographic map of f.
func (PNG) Map(cfg MapConfig, f GeoField) error { return Map(cfg, f) }

// TimeHeight draws a time-height section of f.
func (PNG) TimeHeight(cfg TimeHeightConfig, f TimeHeightField) error {
	return TimeHeight(cfg, f)
}

// newImage returns a raster canvas of the given size.
func newImage(w, h vg.Length, dpi int) (*vgimg.Canvas, draw.Canvas) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	img := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))
	return img, draw.New(img)
}

// savePNG writes img to filename, replacing any existing file.
func savePNG(img *vgimg.Canvas, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if _, err = (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("render: writing %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("render: closing %s: %w", filename, err)
	}
	return nil
}

func textStyle(size vg.Length) (draw.TextStyle, error) {
	font, err := vg.MakeFont(fontName, size)
	if err != nil {
		return draw.TextStyle{}, fmt.Errorf("render: %w", err)
	}
	return draw.TextStyle{Color: color.Black, Font: font}, nil
}

// region returns the part of c within the given absolute limits.
func region(c draw.Canvas, minX, minY, maxX, maxY vg.Length) draw.Canvas {
	return draw.Canvas{
		Canvas: c.Canvas,
		Rectangle: vg.Rectangle{
			Min: vg.Point{X: minX, Y: minY},
			Max: vg.Point{X: maxX, Y: maxY},
		},
	}
}

// LonLabel formats a longitude like "98°W".
func LonLabel(lon float64) string {
	return degreeLabel(lon, "E", "W")
}

// LatLabel formats a latitude like "39°N".
func LatLabel(lat float64) string {
	return degreeLabel(lat, "N", "S")
}

func degreeLabel(v float64, pos, neg string) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', -1, 64) + "°"
	switch {
	case v > 0:
		return s + pos
	case v < 0:
		return s + neg
	}
	return s
}
