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

package wrfpostutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/wrfpost"
	"github.com/spatialmodel/wrfpost/render"
	"github.com/spf13/cast"
)

// Log is the logger used by the commands.
var Log = logrus.New()

func init() {
	Log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
}

// setLogLevel sets the level of Log from the LogLevel option.
func setLogLevel(cfg *viper.Viper) error {
	lvl, err := logrus.ParseLevel(cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("wrfpost: invalid LogLevel: %v", err)
	}
	Log.SetLevel(lvl)
	return nil
}

// Runs returns the control and perturbed runs.
func Runs(cfg *viper.Viper) wrfpost.Runs {
	return wrfpost.Runs{
		Control: wrfpost.Run{
			Dir:   os.ExpandEnv(cfg.GetString("ControlRun")),
			Label: "control",
			Title: "Control",
		},
		Perturbed: wrfpost.Run{
			Dir:   os.ExpandEnv(cfg.GetString("PerturbedRun")),
			Label: "pert",
			Title: "Perturbation",
		},
	}
}

// NewPipeline creates a pipeline from the configuration. If overlays
// is true, the coastline and boundary shapefiles are loaded.
func NewPipeline(cfg *viper.Viper, overlays bool) (*wrfpost.Pipeline, error) {
	p := &wrfpost.Pipeline{
		Loader:    wrfpost.FileLoader{Template: os.ExpandEnv(cfg.GetString("WRFOut"))},
		MetLoader: wrfpost.FileLoader{Template: os.ExpandEnv(cfg.GetString("Vegetation.File")), Writable: true},
		OutputDir: os.ExpandEnv(cfg.GetString("OutputDir")),
		Log:       Log,
	}
	if !overlays {
		return p, nil
	}
	for _, name := range []string{"Coastlines", "Boundaries"} {
		path := os.ExpandEnv(cfg.GetString(name))
		if path == "" {
			continue
		}
		o, err := render.LoadShapefile(path)
		if err != nil {
			return nil, fmt.Errorf("wrfpost: loading %s: %v", name, err)
		}
		o.Name = name
		p.Overlays = append(p.Overlays, o)
		Log.WithField("file", path).Debug("loaded overlay")
	}
	return p, nil
}

// dates returns the dates in option name, which must not be empty.
func dates(cfg *viper.Viper, name string) ([]string, error) {
	d, err := cast.ToStringSliceE(cfg.Get(name))
	if err != nil {
		return nil, fmt.Errorf("wrfpost: invalid %s: %v", name, err)
	}
	var out []string
	for _, s := range d {
		// Flags and environment variables give comma-separated lists.
		for _, ss := range strings.Split(s, ",") {
			if ss = strings.TrimSpace(os.ExpandEnv(ss)); ss != "" {
				out = append(out, ss)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("wrfpost: no dates specified in %s", name)
	}
	return out, nil
}

// ParseLevels parses a list of numbers given either as
// "start:stop:step", where stop is excluded, or as a comma-separated
// list. v may also be a list of numbers, as from a configuration file.
func ParseLevels(v interface{}) ([]float64, error) {
	switch l := v.(type) {
	case string:
		return parseLevelString(l)
	case []float64:
		return l, nil
	}
	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		if out[i], err = cast.ToFloat64E(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseLevelString(s string) ([]float64, error) {
	s = strings.TrimSpace(os.ExpandEnv(s))
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("wrfpost: range %q is not start:stop:step", s)
		}
		var r [3]float64
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("wrfpost: range %q: %v", s, err)
			}
			r[i] = f
		}
		l := wrfpost.Arange(r[0], r[1], r[2])
		if len(l) == 0 {
			return nil, fmt.Errorf("wrfpost: range %q is empty", s)
		}
		return l, nil
	}
	return parseFloats(s)
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("wrfpost: invalid number list %q: %v", s, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// levels parses option name with ParseLevels.
func levels(cfg *viper.Viper, name string) ([]float64, error) {
	l, err := ParseLevels(cfg.Get(name))
	if err != nil {
		return nil, fmt.Errorf("wrfpost: invalid %s: %v", name, err)
	}
	return l, nil
}

// four parses option name as a list of exactly four numbers.
func four(cfg *viper.Viper, name string) ([4]float64, error) {
	var out [4]float64
	l, err := levels(cfg, name)
	if err != nil {
		return out, err
	}
	if len(l) != 4 {
		return out, fmt.Errorf("wrfpost: %s must have 4 values; it has %d", name, len(l))
	}
	copy(out[:], l)
	return out, nil
}

// mapStyle reads the map settings under prefix.
func mapStyle(cfg *viper.Viper, prefix string) (wrfpost.MapStyle, error) {
	var (
		s   wrfpost.MapStyle
		err error
	)
	if s.Extent, err = four(cfg, prefix+".Extent"); err != nil {
		return s, err
	}
	if !(s.Extent[0] < s.Extent[1] && s.Extent[2] < s.Extent[3]) {
		return s, fmt.Errorf("wrfpost: %s.Extent %v is not west,east,south,north", prefix, s.Extent)
	}
	if s.XTicks, err = levels(cfg, prefix+".XTicks"); err != nil {
		return s, err
	}
	if s.YTicks, err = levels(cfg, prefix+".YTicks"); err != nil {
		return s, err
	}
	s.Palette = cfg.GetString(prefix + ".Palette")
	return s, nil
}

// ShearConfig returns the settings of the shear job.
func ShearConfig(cfg *viper.Viper) (wrfpost.ShearConfig, error) {
	var (
		c   = wrfpost.ShearConfig{Runs: Runs(cfg), Offset: cfg.GetFloat64("Shear.Offset")}
		err error
	)
	if c.Dates, err = dates(cfg, "Shear.Dates"); err != nil {
		return c, err
	}
	if c.MapStyle, err = mapStyle(cfg, "Shear"); err != nil {
		return c, err
	}
	if c.Levels, err = levels(cfg, "Shear.Levels"); err != nil {
		return c, err
	}
	if c.DiffLevels, err = levels(cfg, "Shear.DiffLevels"); err != nil {
		return c, err
	}
	return c, nil
}

// TemperatureConfig returns the settings of the temperature difference job.
func TemperatureConfig(cfg *viper.Viper) (wrfpost.TemperatureConfig, error) {
	var (
		c   = wrfpost.TemperatureConfig{Runs: Runs(cfg), Pressure: cfg.GetFloat64("TempDiff.Pressure")}
		err error
	)
	if c.Pressure <= 0 {
		return c, fmt.Errorf("wrfpost: TempDiff.Pressure must be positive; it is %g", c.Pressure)
	}
	if c.Dates, err = dates(cfg, "TempDiff.Dates"); err != nil {
		return c, err
	}
	if c.MapStyle, err = mapStyle(cfg, "TempDiff"); err != nil {
		return c, err
	}
	if c.Levels, err = levels(cfg, "TempDiff.Levels"); err != nil {
		return c, err
	}
	return c, nil
}

// CrossSectionConfig returns the settings of the cross section job.
func CrossSectionConfig(cfg *viper.Viper) (wrfpost.CrossSectionConfig, error) {
	var (
		c = wrfpost.CrossSectionConfig{
			Runs:    Runs(cfg),
			Palette: cfg.GetString("CrossSection.Palette"),
			Panels:  wrfpost.DefaultPanels(),
		}
		err error
	)
	if c.Dates, err = dates(cfg, "CrossSection.Dates"); err != nil {
		return c, err
	}
	if c.Box, err = four(cfg, "CrossSection.Box"); err != nil {
		return c, err
	}
	return c, nil
}

// VegetationConfig returns the settings of the vegetation job.
func VegetationConfig(cfg *viper.Viper) (wrfpost.VegetationConfig, error) {
	var (
		c = wrfpost.VegetationConfig{
			LandUse:   cfg.GetFloat64("Vegetation.LandUse"),
			GreenFrac: cfg.GetFloat64("Vegetation.GreenFrac"),
		}
		err error
	)
	c.Dates, err = dates(cfg, "Vegetation.Dates")
	return c, err
}
