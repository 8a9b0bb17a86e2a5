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

package wrfpost

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/ctessum/geom/proj"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/wrfpost/render"
)

// Renderer draws figures. render.PNG is the production implementation.
type Renderer interface {
	Map(cfg render.MapConfig, f render.GeoField) error
	TimeHeight(cfg render.TimeHeightConfig, f render.TimeHeightField) error
}

// Pipeline runs batch post-processing jobs. Each job loops over its
// dates in order, and the first error aborts the whole job. Artifacts
// written before an error remain on disk.
type Pipeline struct {
	// Loader opens model output.
	Loader Loader

	// MetLoader opens WPS met_em files for modification.
	MetLoader Loader

	// Renderer defaults to render.PNG.
	Renderer Renderer

	// OutputDir is the directory that images are written to.
	OutputDir string

	// Overlays, such as coastlines, are drawn on every map.
	Overlays []*render.Overlay

	Log logrus.FieldLogger
}

// Runs identifies the simulations that are compared.
type Runs struct {
	Control, Perturbed Run
}

// MapStyle holds the settings shared by the map jobs.
type MapStyle struct {
	// Extent is west, east, south, north [degrees].
	Extent [4]float64

	// XTicks and YTicks are graticule longitudes and latitudes.
	XTicks, YTicks []float64

	Palette string
}

func (p *Pipeline) log() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

// output returns the path of artifact name.
func (p *Pipeline) output(name string) (string, error) {
	if p.OutputDir == "" {
		return name, nil
	}
	if err := os.MkdirAll(p.OutputDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("wrfpost: creating output directory: %w", err)
	}
	return filepath.Join(p.OutputDir, name), nil
}

func (p *Pipeline) load(l Loader, run Run, date string) (Dataset, error) {
	if l == nil {
		return nil, fmt.Errorf("wrfpost: no loader configured")
	}
	ds, err := l.Load(run, date)
	if err != nil {
		return nil, err
	}
	p.log().WithFields(logrus.Fields{
		"date": date,
		"run":  run.Dir,
		"file": ds.Name(),
	}).Info("loaded dataset")
	return ds, nil
}

func (p *Pipeline) renderer() Renderer {
	if p.Renderer == nil {
		return render.PNG{}
	}
	return p.Renderer
}

func (p *Pipeline) extract(ds Dataset, name string) (*Field, error) {
	p.log().WithFields(logrus.Fields{"file": ds.Name(), "variable": name}).Debug("extracting")
	return Extract(ds, name, 0)
}

// mapGrid holds the map projection and coordinates of a grid.
type mapGrid struct {
	sr       *proj.SR
	lat, lon *Field
}

func gridOf(ds Dataset) (mapGrid, error) {
	sr, err := Projection(ds)
	if err != nil {
		return mapGrid{}, err
	}
	lat, lon, err := LatLon(ds)
	if err != nil {
		return mapGrid{}, err
	}
	return mapGrid{sr: sr, lat: lat, lon: lon}, nil
}

// drawMap renders f on grid g to the file name in the output directory.
func (p *Pipeline) drawMap(style MapStyle, g mapGrid, f *Field, levels []float64, extend bool,
	label, title, name string) (string, error) {
	filename, err := p.output(name)
	if err != nil {
		return "", err
	}
	cfg := render.MapConfig{
		Projection:    g.sr,
		Extent:        style.Extent,
		Levels:        levels,
		Extend:        extend,
		Palette:       style.Palette,
		ColorbarLabel: label,
		Title:         title,
		XTicks:        style.XTicks,
		YTicks:        style.YTicks,
		Overlays:      p.Overlays,
		DPI:           render.DefaultDPI,
		Filename:      filename,
	}
	gf := render.GeoField{Values: f.DenseArray, Lat: g.lat.DenseArray, Lon: g.lon.DenseArray}
	if err := p.renderer().Map(cfg, gf); err != nil {
		return "", fmt.Errorf("wrfpost: drawing %s: %w", name, err)
	}
	p.log().WithField("file", filename).Info("wrote map")
	return filename, nil
}

// ShearConfig holds the settings of the Shear job.
type ShearConfig struct {
	Runs
	MapStyle

	Dates []string

	// Offset is the height of the upper shear level above terrain [m].
	Offset float64

	// Levels are the contour levels of the shear maps of each run and
	// DiffLevels the levels of the difference map [m s-1].
	Levels, DiffLevels []float64
}

// Shear maps the magnitude of the vector difference between the wind
// at cfg.Offset above terrain and the 10 m wind, for each date and
// run, and the difference between the runs. It returns the paths of
// the maps written.
func (p *Pipeline) Shear(cfg ShearConfig) ([]string, error) {
	var out []string
	layer := fmt.Sprintf("0-%gkm", cfg.Offset/1000)
	label := layer + " Wind Shear (m/s)"
	for _, date := range cfg.Dates {
		cont, g, err := p.shear(cfg.Control, date, cfg.Offset)
		if err != nil {
			return out, err
		}
		pert, _, err := p.shear(cfg.Perturbed, date, cfg.Offset)
		if err != nil {
			return out, err
		}
		diff, err := Diff(pert, cont)
		if err != nil {
			return out, err
		}
		for _, fig := range []struct {
			f      *Field
			levels []float64
			title  string
			name   string
		}{
			{cont, cfg.Levels, fmt.Sprintf("%s UTC %s Simulation %s Shear", date, cfg.Control.Title, layer),
				fmt.Sprintf("%s_shear_%s.png", cfg.Control.Label, date)},
			{pert, cfg.Levels, fmt.Sprintf("%s UTC %s Simulation %s Shear", date, cfg.Perturbed.Title, layer),
				fmt.Sprintf("%s_shear_%s.png", cfg.Perturbed.Label, date)},
			{diff, cfg.DiffLevels, fmt.Sprintf("%s UTC %s Minus %s Simulation %s Shear",
				date, cfg.Perturbed.Title, cfg.Control.Title, layer),
				fmt.Sprintf("diff_shear_%s.png", date)},
		} {
			path, err := p.drawMap(cfg.MapStyle, g, fig.f, fig.levels, true, label, fig.title, fig.name)
			if err != nil {
				return out, err
			}
			out = append(out, path)
		}
	}
	return out, nil
}

// shear calculates the wind shear between offset meters above terrain
// and 10 m for one run and date.
func (p *Pipeline) shear(run Run, date string, offset float64) (*Field, mapGrid, error) {
	ds, err := p.load(p.Loader, run, date)
	if err != nil {
		return nil, mapGrid{}, err
	}
	defer ds.Close()
	f := make(map[string]*Field)
	for _, v := range []string{"ua", "va", "U10", "V10", "z", "ter"} {
		if f[v], err = p.extract(ds, v); err != nil {
			return nil, mapGrid{}, err
		}
	}
	g, err := gridOf(ds)
	if err != nil {
		return nil, mapGrid{}, err
	}
	shear, err := Shear(f["ua"], f["va"], f["U10"], f["V10"], f["z"], f["ter"], offset)
	if err != nil {
		return nil, mapGrid{}, fmt.Errorf("wrfpost: shear in %s: %w", ds.Name(), err)
	}
	return shear, g, nil
}

// Shear returns the magnitude of the difference between the wind
// (u, v) interpolated to offset above the terrain height ter using the
// height z, and the near-surface wind (u10, v10).
func Shear(u, v, u10, v10, z, ter *Field, offset float64) (*Field, error) {
	target := TerrainLevel(ter, offset)
	uTop, err := InterpLevelField(u, z, target)
	if err != nil {
		return nil, err
	}
	vTop, err := InterpLevelField(v, z, target)
	if err != nil {
		return nil, err
	}
	du, err := Diff(uTop, u10)
	if err != nil {
		return nil, err
	}
	dv, err := Diff(vTop, v10)
	if err != nil {
		return nil, err
	}
	s, err := Magnitude(du, dv)
	if err != nil {
		return nil, err
	}
	s.Name, s.Description = "shear", "wind shear"
	return s, nil
}

// TemperatureConfig holds the settings of the TemperatureDiff job.
type TemperatureConfig struct {
	Runs
	MapStyle

	Dates []string

	// Pressure is the level of the map [hPa].
	Pressure float64

	// Levels are the contour levels [degC].
	Levels []float64
}

// TemperatureDiff maps the perturbed minus control temperature at a
// pressure level for each date. It returns the paths of the maps.
func (p *Pipeline) TemperatureDiff(cfg TemperatureConfig) ([]string, error) {
	var out []string
	for _, date := range cfg.Dates {
		cont, g, err := p.levelTemperature(cfg.Control, date, cfg.Pressure)
		if err != nil {
			return out, err
		}
		pert, _, err := p.levelTemperature(cfg.Perturbed, date, cfg.Pressure)
		if err != nil {
			return out, err
		}
		diff, err := Diff(pert, cont)
		if err != nil {
			return out, err
		}
		title := fmt.Sprintf("Shaded: %s UTC %s minus %s UTC %s Temperature at %ghPa",
			date, cfg.Perturbed.Title, date, cfg.Control.Title, cfg.Pressure)
		name := fmt.Sprintf("T_Diff_%gmb_%s.png", cfg.Pressure, date)
		path, err := p.drawMap(cfg.MapStyle, g, diff, cfg.Levels, false,
			"Temperature Difference (°C)", title, name)
		if err != nil {
			return out, err
		}
		out = append(out, path)
	}
	return out, nil
}

func (p *Pipeline) levelTemperature(run Run, date string, pressure float64) (*Field, mapGrid, error) {
	ds, err := p.load(p.Loader, run, date)
	if err != nil {
		return nil, mapGrid{}, err
	}
	defer ds.Close()
	tc, err := p.extract(ds, "tc")
	if err != nil {
		return nil, mapGrid{}, err
	}
	pres, err := p.extract(ds, "pressure")
	if err != nil {
		return nil, mapGrid{}, err
	}
	g, err := gridOf(ds)
	if err != nil {
		return nil, mapGrid{}, err
	}
	t, err := InterpLevel(tc, pres, pressure)
	if err != nil {
		return nil, mapGrid{}, err
	}
	return t, g, nil
}

// Panel is one time-height section of the CrossSection job.
type Panel struct {
	// Variable is the field that is differenced and averaged.
	Variable string

	// Expr converts the averaged difference, e.g. "x * 86400".
	// Units are the units after conversion.
	Expr, Units string

	Levels        []float64
	ColorbarLabel string

	// Title follows the description of the averaging area.
	Title string

	Filename string
}

// DefaultPanels are the sections of temperature, cumulus potential
// temperature tendency and cumulus water vapor tendency differences.
func DefaultPanels() []Panel {
	return []Panel{
		{
			Variable:      "tc",
			Levels:        Arange(-3, 3.3, 0.3),
			ColorbarLabel: "Temperature Difference",
			Title:         "Temperature Difference (degree C)",
			Filename:      "areaavg_temp_cross_section.png",
		},
		{
			Variable:      "RTHCUTEN",
			Expr:          "x * 86400",
			Units:         "K day-1",
			Levels:        Arange(-6, 6.5, 0.5),
			ColorbarLabel: "Potential Temperature Difference (K/day)",
			Title:         "Potential Temperature Tendency Difference",
			Filename:      "potential_temp_cross_section.png",
		},
		{
			Variable:      "RQVCUTEN",
			Expr:          "x * 86400000",
			Units:         "g kg-1 day-1",
			Levels:        Arange(-10, 10.5, 0.5),
			ColorbarLabel: "Water Vapor Mixing Ratio Difference (g/kg*day)",
			Title:         "Water Vapor Mixing Ratio Tendency Difference",
			Filename:      "q_mixingratio_cross_section.png",
		},
	}
}

// Arange returns start, start+step, ... up to but excluding stop.
func Arange(start, stop, step float64) []float64 {
	if step == 0 || (stop-start)/step <= 0 {
		return nil
	}
	n := int(math.Ceil((stop-start)/step - 1e-9))
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// CrossSectionConfig holds the settings of the CrossSection job.
type CrossSectionConfig struct {
	Runs

	// Dates are concatenated in the order given.
	Dates []string

	// Box is the averaging area as the latitude and longitude of its
	// southwest corner followed by those of its northeast corner.
	Box [4]float64

	Palette string
	Panels  []Panel
}

// CrossSection draws time-height sections of the perturbed minus
// control difference of each panel variable, averaged over cfg.Box.
// The vertical coordinate is the control pressure averaged over time
// and area. It returns the paths of the sections.
func (p *Pipeline) CrossSection(cfg CrossSectionConfig) ([]string, error) {
	if len(cfg.Dates) == 0 {
		return nil, fmt.Errorf("wrfpost: cross section: no dates")
	}
	cont, err := p.loadAll(cfg.Control, cfg.Dates)
	if err != nil {
		return nil, err
	}
	defer closeAll(cont)
	pert, err := p.loadAll(cfg.Perturbed, cfg.Dates)
	if err != nil {
		return nil, err
	}
	defer closeAll(pert)

	lat1, lon1, lat2, lon2 := cfg.Box[0], cfg.Box[1], cfg.Box[2], cfg.Box[3]
	x1, y1, err := LLToXY(cont[0], lat1, lon1)
	if err != nil {
		return nil, err
	}
	x2, y2, err := LLToXY(cont[0], lat2, lon2)
	if err != nil {
		return nil, err
	}
	p.log().WithFields(logrus.Fields{"x1": x1, "y1": y1, "x2": x2, "y2": y2}).Debug("averaging area")
	p.checkGrids(cont[0], pert[0])
	area := func(f *Field) (*Field, error) {
		s, err := Subset(f, SouthNorth, y1, y2)
		if err != nil {
			return nil, err
		}
		return Subset(s, WestEast, x1, x2)
	}

	pres, err := ExtractCat(cont, "pressure")
	if err != nil {
		return nil, err
	}
	if pres, err = area(pres); err != nil {
		return nil, err
	}
	pMean, err := Mean(pres, timeDim, SouthNorth, WestEast)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, panel := range cfg.Panels {
		var sub [2]*Field
		for i, dss := range [][]Dataset{cont, pert} {
			f, err := ExtractCat(dss, panel.Variable)
			if err != nil {
				return out, err
			}
			if sub[i], err = area(f); err != nil {
				return out, err
			}
		}
		diff, err := Diff(sub[1], sub[0])
		if err != nil {
			return out, err
		}
		mean, err := Mean(diff, SouthNorth, WestEast)
		if err != nil {
			return out, err
		}
		if panel.Expr != "" {
			if mean, err = Convert(mean, panel.Expr, panel.Units); err != nil {
				return out, err
			}
		}
		filename, err := p.output(panel.Filename)
		if err != nil {
			return out, err
		}
		rc := render.TimeHeightConfig{
			Levels:        panel.Levels,
			Extend:        true,
			Palette:       cfg.Palette,
			ColorbarLabel: panel.ColorbarLabel,
			Title: fmt.Sprintf("Area-Averaged [(%g, %g) to (%g, %g)] %s",
				lat1, lon1, lat2, lon2, panel.Title),
			XLabel:   "Time (UTC)",
			YLabel:   "Pressure (hPa)",
			DPI:      render.DefaultDPI,
			Filename: filename,
		}
		f := render.TimeHeightField{Values: mean.DenseArray, Times: mean.Times, Pressure: pMean.Elements}
		if err := p.renderer().TimeHeight(rc, f); err != nil {
			return out, fmt.Errorf("wrfpost: drawing %s: %w", panel.Filename, err)
		}
		p.log().WithField("file", filename).Info("wrote time-height section")
		out = append(out, filename)
	}
	return out, nil
}

func (p *Pipeline) loadAll(run Run, dates []string) ([]Dataset, error) {
	var dss []Dataset
	for _, date := range dates {
		ds, err := p.load(p.Loader, run, date)
		if err != nil {
			closeAll(dss)
			return nil, err
		}
		dss = append(dss, ds)
	}
	return dss, nil
}

func closeAll(dss []Dataset) {
	for _, ds := range dss {
		ds.Close()
	}
}

// checkGrids logs a warning if the horizontal or vertical grids of a
// and b differ. Differences between the runs are calculated regardless.
func (p *Pipeline) checkGrids(a, b Dataset) {
	warn := func(reason string) {
		p.log().WithFields(logrus.Fields{
			"control":   a.Name(),
			"perturbed": b.Name(),
		}).Warn("control and perturbed grids differ (" + reason + "); differences assume identical grids")
	}
	latA, lonA, errA := LatLon(a)
	latB, lonB, errB := LatLon(b)
	if errA != nil || errB != nil || !sameShape(latA.Shape, latB.Shape) {
		warn("horizontal shape")
		return
	}
	for i := range latA.Elements {
		if math.Abs(latA.Elements[i]-latB.Elements[i]) > 1e-4 || math.Abs(lonA.Elements[i]-lonB.Elements[i]) > 1e-4 {
			warn("coordinates")
			return
		}
	}
	_, nzA, errA := a.Dims("P")
	_, nzB, errB := b.Dims("P")
	if errA != nil || errB != nil || !sameShape(nzA[1:], nzB[1:]) {
		warn("vertical levels")
	}
}

// VegetationConfig holds the settings of the Vegetation job.
type VegetationConfig struct {
	// Run replaces "[RUN]" in the met_em path template.
	Run Run

	Dates []string

	// LandUse is the land use category, and GreenFrac the green
	// vegetation fraction, set everywhere.
	LandUse, GreenFrac float64
}

// Vegetation overrides the land use and green vegetation fraction of
// the met_em file of each date in place. It returns the paths of the
// modified files.
func (p *Pipeline) Vegetation(cfg VegetationConfig) ([]string, error) {
	var out []string
	for _, date := range cfg.Dates {
		ds, err := p.load(p.MetLoader, cfg.Run, date)
		if err != nil {
			return out, err
		}
		if err := OverrideVegetation(ds, cfg.LandUse, cfg.GreenFrac); err != nil {
			ds.Close()
			return out, fmt.Errorf("wrfpost: overriding vegetation in %s: %w", ds.Name(), err)
		}
		// Closing commits the changes.
		if err := ds.Close(); err != nil {
			return out, fmt.Errorf("wrfpost: closing %s: %w", ds.Name(), err)
		}
		p.log().WithFields(logrus.Fields{
			"file":      ds.Name(),
			"LU_INDEX":  cfg.LandUse,
			"GREENFRAC": cfg.GreenFrac,
		}).Info("overrode vegetation")
		out = append(out, ds.Name())
	}
	return out, nil
}
