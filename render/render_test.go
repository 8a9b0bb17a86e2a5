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
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

func TestNewBands(t *testing.T) {
	levels := []float64{0, 1, 2, 3}
	b, err := NewBands(levels, "BuPu", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Colors) != 3 {
		t.Errorf("have %d colors, want 3", len(b.Colors))
	}
	for _, test := range []struct {
		v    float64
		band int
		ok   bool
	}{
		{v: -1, ok: false},
		{v: 0, band: 0, ok: true},
		{v: 0.5, band: 0, ok: true},
		{v: 1, band: 1, ok: true},
		{v: 3, band: 2, ok: true},
		{v: 3.5, ok: false},
		{v: math.NaN(), ok: false},
	} {
		c, ok := b.Color(test.v)
		if ok != test.ok {
			t.Errorf("%g: ok = %v, want %v", test.v, ok, test.ok)
			continue
		}
		if ok && c != b.Colors[test.band] {
			t.Errorf("%g: color %v, want band %d", test.v, c, test.band)
		}
	}

	be, err := NewBands(levels, "PRGn", true)
	if err != nil {
		t.Fatal(err)
	}
	if !be.Extended() || len(be.Colors) != 3 {
		t.Fatalf("extended bands: %d colors, extended=%v", len(be.Colors), be.Extended())
	}
	if c, ok := be.Color(-10); !ok || c != be.Under {
		t.Errorf("under: %v, %v", c, ok)
	}
	if c, ok := be.Color(10); !ok || c != be.Over {
		t.Errorf("over: %v, %v", c, ok)
	}

	if _, err := NewBands([]float64{1, 0}, "BuPu", false); err == nil {
		t.Error("decreasing levels should be an error")
	}
	if _, err := NewBands([]float64{1}, "BuPu", false); err == nil {
		t.Error("a single level should be an error")
	}
}

func TestPalette(t *testing.T) {
	for _, name := range []string{"BuPu", "PRGn", "RdBu", "viridis", "SmoothBlueRed",
		"ExtendedBlackBody", "BlackBody", "Kindlmann", "Optimized", "Jet"} {
		c, err := Palette(name, 31)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if len(c) != 31 {
			t.Errorf("%s: %d colors", name, len(c))
		}
	}
	c, err := Palette("viridis", 2)
	if err != nil {
		t.Fatal(err)
	}
	if c[0] != viridis[0] || nrgba(c[1]) != viridis[len(viridis)-1] {
		t.Errorf("viridis end points: %v", c)
	}
	// The diverging map runs from blue to red.
	c, err = Palette("SmoothBlueRed", 3)
	if err != nil {
		t.Fatal(err)
	}
	lo, hi := nrgba(c[0]), nrgba(c[2])
	if !(lo.B > lo.R && hi.R > hi.B) {
		t.Errorf("SmoothBlueRed end points: %v, %v", lo, hi)
	}
	if _, err := Palette("nonexistent", 5); err == nil {
		t.Error("unknown palette should be an error")
	}
}

func TestInterpolate(t *testing.T) {
	c := interpolate([]color.Color{color.NRGBA{0, 0, 0, 255}, color.NRGBA{200, 100, 0, 255}}, 3)
	want := color.NRGBA{100, 50, 0, 255}
	if c[1] != want {
		t.Errorf("midpoint %v, want %v", c[1], want)
	}
}

func TestDegreeLabels(t *testing.T) {
	for have, want := range map[string]string{
		LonLabel(-98):  "98°W",
		LonLabel(10.5): "10.5°E",
		LonLabel(0):    "0°",
		LatLabel(39):   "39°N",
		LatLabel(-15):  "15°S",
	} {
		if have != want {
			t.Errorf("have %s, want %s", have, want)
		}
	}
}

func TestClipLine(t *testing.T) {
	b := &geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 1, Y: 1}}
	l := geom.LineString{{X: -1, Y: 0.5}, {X: 0.5, Y: 0.5}, {X: 2, Y: 0.5}, {X: 2, Y: 2}, {X: 0.5, Y: 0.8}}
	have := clipLine(l, b)
	if len(have) != 2 {
		t.Fatalf("have %d pieces: %v", len(have), have)
	}
	// The horizontal part crosses the box and the last segment enters
	// it through the top edge at (0.75, 1).
	if length, want := have.Length(), 1+math.Hypot(0.25, 0.2); math.Abs(length-want) > 1e-9 {
		t.Errorf("clipped length %g, want %g", length, want)
	}
	const tol = 1e-9
	for _, piece := range have {
		for _, p := range piece {
			if p.X < -tol || p.X > 1+tol || p.Y < -tol || p.Y > 1+tol {
				t.Errorf("point %v is outside of the box", p)
			}
		}
	}
	if p := clipLine(geom.LineString{{X: 2, Y: 2}, {X: 3, Y: 3}}, b); len(p) != 0 {
		t.Errorf("outside line should be dropped, have %v", p)
	}
	inside := geom.LineString{{X: 0.2, Y: 0.2}, {X: 0.8, Y: 0.4}}
	if p := clipLine(inside, b); len(p) != 1 || math.Abs(p.Length()-inside.Length()) > 1e-9 {
		t.Errorf("inside line should be kept, have %v", p)
	}
}

func TestProjectLine(t *testing.T) {
	ct, err := fromLonLat(nil)
	if err != nil {
		t.Fatal(err)
	}
	l, err := projectLine(ct, geom.LineString{{X: -95, Y: 40}, {X: -94, Y: 40}})
	if err != nil {
		t.Fatal(err)
	}
	if n := int(math.Ceil(1 / maxSegment)); len(l) != n+1 {
		t.Errorf("densified line has %d points, want %d", len(l), n+1)
	}
	first, last := l[0], l[len(l)-1]
	if math.Abs(first.X+95) > 1e-9 || math.Abs(last.X+94) > 1e-9 || math.Abs(first.Y-40) > 1e-9 {
		t.Errorf("end points %v, %v", first, last)
	}
}

func TestCorners(t *testing.T) {
	// x increases by one per column.
	c := corners([]float64{0, 1, 0, 1}, 2, 2)
	want := []float64{-0.5, 0.5, 1.5, -0.5, 0.5, 1.5, -0.5, 0.5, 1.5}
	for i, v := range want {
		if c[i] != v {
			t.Errorf("corner %d: %g, want %g", i, c[i], v)
		}
	}
}

func TestInvertedLog(t *testing.T) {
	s := invertedLog{}
	if v := s.Normalize(100, 1000, 100); v != 1 {
		t.Errorf("top = %g", v)
	}
	if v := s.Normalize(100, 1000, 1000); math.Abs(v) > 1e-12 {
		t.Errorf("bottom = %g", v)
	}
	if v := s.Normalize(100, 1000, math.Sqrt(100*1000)); math.Abs(v-0.5) > 1e-12 {
		t.Errorf("middle = %g", v)
	}
}

func checkPNG(t *testing.T, filename string) {
	t.Helper()
	f, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decoding %s: %v", filename, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		t.Errorf("%s is empty", filename)
	}
}

// testGrid returns a 4x5 grid of values centered on 40N, 95W.
func testGrid() GeoField {
	const ny, nx = 4, 5
	f := GeoField{
		Values: sparse.ZerosDense(ny, nx),
		Lat:    sparse.ZerosDense(ny, nx),
		Lon:    sparse.ZerosDense(ny, nx),
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			f.Lat.Set(38.5+float64(j), j, i)
			f.Lon.Set(-97+float64(i), j, i)
			f.Values.Set(float64(i*10+j), j, i)
		}
	}
	f.Values.Set(math.NaN(), 0, 0)
	return f
}

func TestMap(t *testing.T) {
	sr, err := proj.Parse("+proj=lcc +lat_1=30 +lat_2=60 +lat_0=40 +lon_0=-95 +x_0=0 +y_0=0 +a=6370000 +b=6370000 +units=m +no_defs")
	if err != nil {
		t.Fatal(err)
	}
	coast := NewOverlay("coast", geom.LineString{{X: -99, Y: 40}, {X: -90, Y: 41}})
	filename := filepath.Join(t.TempDir(), "map.png")
	cfg := MapConfig{
		Projection:    sr,
		Extent:        [4]float64{-98, -92, 39, 42},
		Levels:        []float64{0, 10, 20, 30},
		Palette:       "BuPu",
		ColorbarLabel: "Wind shear (m/s)",
		Title:         "Control 0-6 km shear",
		XTicks:        []float64{-98, -96, -94, -92},
		YTicks:        []float64{39, 41},
		Overlays:      []*Overlay{coast},
		Width:         4 * 72,
		Height:        3 * 72,
		DPI:           72,
		Filename:      filename,
	}
	if err := (PNG{}).Map(cfg, testGrid()); err != nil {
		t.Fatal(err)
	}
	checkPNG(t, filename)

	cfg.Extend = true
	cfg.Projection = nil
	if err := Map(cfg, testGrid()); err != nil {
		t.Fatal(err)
	}
	checkPNG(t, filename)

	cfg.Extent = [4]float64{-92, -98, 39, 42}
	if err := Map(cfg, testGrid()); err == nil {
		t.Error("inverted extent should be an error")
	}
}

func TestMap_badShape(t *testing.T) {
	f := testGrid()
	f.Lat = sparse.ZerosDense(2, 2)
	if err := Map(MapConfig{Extent: [4]float64{-98, -92, 39, 42}, Levels: []float64{0, 1}, Palette: "BuPu"}, f); err == nil {
		t.Error("mismatched coordinates should be an error")
	}
}

func TestTimeHeight(t *testing.T) {
	const nt, nz = 6, 5
	f := TimeHeightField{
		Values:   sparse.ZerosDense(nt, nz),
		Pressure: []float64{950, 850, 700, 500, 250},
	}
	start := time.Date(2016, 7, 12, 0, 0, 0, 0, time.UTC)
	for i := 0; i < nt; i++ {
		f.Times = append(f.Times, start.Add(time.Duration(i)*time.Hour))
		for k := 0; k < nz; k++ {
			f.Values.Set(float64(i-k)/4, i, k)
		}
	}
	filename := filepath.Join(t.TempDir(), "section.png")
	cfg := TimeHeightConfig{
		Levels:        []float64{-1, -0.5, 0, 0.5, 1},
		Extend:        true,
		Palette:       "RdBu",
		ColorbarLabel: "Temperature difference (°C)",
		Title:         "Area-averaged temperature difference",
		XLabel:        "Time",
		YLabel:        "Pressure (hPa)",
		Width:         4 * 72,
		Height:        3 * 72,
		DPI:           72,
		Filename:      filename,
	}
	if err := (PNG{}).TimeHeight(cfg, f); err != nil {
		t.Fatal(err)
	}
	checkPNG(t, filename)

	f.Pressure = f.Pressure[1:]
	if err := TimeHeight(cfg, f); err == nil {
		t.Error("mismatched pressure levels should be an error")
	}
}

func TestTimeTicks(t *testing.T) {
	var times []time.Time
	start := time.Date(2016, 7, 12, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 24; i++ {
		times = append(times, start.Add(time.Duration(i)*time.Hour))
	}
	ticks := timeTicks(times, SectionTimeFormat).Ticks(0, 1)
	if len(ticks) != len(times) {
		t.Fatalf("%d ticks for %d times", len(ticks), len(times))
	}
	var labels []string
	for _, tk := range ticks {
		if tk.Label != "" {
			labels = append(labels, tk.Label)
		}
	}
	if len(labels) > maxTimeLabels {
		t.Errorf("%d labels, want at most %d", len(labels), maxTimeLabels)
	}
	if labels[0] != "12-Jul-16 00:00" || labels[1] != "12-Jul-16 04:00" {
		t.Errorf("labels %q", labels)
	}
}

func TestLoadShapefile(t *testing.T) {
	type line struct {
		geom.LineString
	}
	dir := t.TempDir()
	filename := filepath.Join(dir, "coast.shp")
	e, err := shp.NewEncoder(filename, line{})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Encode(line{geom.LineString{{X: -99, Y: 40}, {X: -90, Y: 41}}}); err != nil {
		t.Fatal(err)
	}
	e.Close()
	if err := os.WriteFile(filepath.Join(dir, "coast.prj"), []byte(lonLat), 0644); err != nil {
		t.Fatal(err)
	}
	o, err := LoadShapefile(filename)
	if err != nil {
		t.Fatal(err)
	}
	found := o.Tree.SearchIntersect(&geom.Bounds{Min: geom.Point{X: -95, Y: 39}, Max: geom.Point{X: -94, Y: 42}})
	if len(found) != 1 {
		t.Fatalf("found %d features, want 1", len(found))
	}
	if ls := lines(found[0].(geom.Geom)); len(ls) != 1 || len(ls[0]) != 2 {
		t.Errorf("decoded lines %v", ls)
	}
}
