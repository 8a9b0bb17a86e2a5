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

// Package wrfpostutil holds the command-line interface and configuration
// handling for wrfpost.
package wrfpostutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/wrfpost"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to wrfpost.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages that are
              printed: debug, info, warn or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the directory that images are written to.
              It is created if it does not exist.`,
			shorthand:  "o",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags(), tempDiffCmd.Flags(), crossSectionCmd.Flags()},
		},
		{
			name: "WRFOut",
			usage: `
              WRFOut is the path template of WRF output files. "[RUN]" is
              replaced by the run directory and "[DATE]" by the date,
              e.g. "2021-07-14_00:00:00".`,
			defaultVal: "[RUN]/wrfout_d01_[DATE]",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags(), tempDiffCmd.Flags(), crossSectionCmd.Flags()},
		},
		{
			name: "ControlRun",
			usage: `
              ControlRun is the directory of the control simulation.`,
			defaultVal: "control",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags(), tempDiffCmd.Flags(), crossSectionCmd.Flags()},
		},
		{
			name: "PerturbedRun",
			usage: `
              PerturbedRun is the directory of the perturbed simulation.`,
			defaultVal: "perturbed",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags(), tempDiffCmd.Flags(), crossSectionCmd.Flags()},
		},
		{
			name: "Coastlines",
			usage: `
              Coastlines is an optional shapefile of coastlines that is
              drawn on maps. It must have a .prj file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags(), tempDiffCmd.Flags()},
		},
		{
			name: "Boundaries",
			usage: `
              Boundaries is an optional shapefile of political boundaries
              that is drawn on maps. It must have a .prj file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags(), tempDiffCmd.Flags()},
		},
		{
			name: "Shear.Dates",
			usage: `
              Shear.Dates are the dates of the WRF output files to map.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{shearCmd.Flags()},
		},
		{
			name: "Shear.Offset",
			usage: `
              Shear.Offset is the height above terrain [m] of the top of
              the shear layer.`,
			defaultVal: 6000.0,
			flagsets:   []*pflag.FlagSet{shearCmd.Flags()},
		},
		{
			name: "Shear.Levels",
			usage: `
              Shear.Levels are the contour levels [m/s] of the shear maps,
              either as start:stop:step with stop excluded or as a
              comma-separated list.`,
			defaultVal: "0:62:2",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags()},
		},
		{
			name: "Shear.DiffLevels",
			usage: `
              Shear.DiffLevels are the contour levels [m/s] of the map of
              differences between the runs.`,
			defaultVal: "-30:40:2",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags()},
		},
		{
			name: "Shear.Palette",
			usage: `
              Shear.Palette is the name of the color palette.`,
			defaultVal: "BuPu",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags()},
		},
		{
			name: "Shear.Extent",
			usage: `
              Shear.Extent is the map extent as west,east,south,north
              in degrees.`,
			defaultVal: "-98,-89,39,45",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags()},
		},
		{
			name: "Shear.XTicks",
			usage: `
              Shear.XTicks are the longitudes of graticule lines.`,
			defaultVal: "-98:-89:2",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags()},
		},
		{
			name: "Shear.YTicks",
			usage: `
              Shear.YTicks are the latitudes of graticule lines.`,
			defaultVal: "39:45:2",
			flagsets:   []*pflag.FlagSet{shearCmd.Flags()},
		},
		{
			name: "TempDiff.Dates",
			usage: `
              TempDiff.Dates are the dates of the WRF output files to map.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{tempDiffCmd.Flags()},
		},
		{
			name: "TempDiff.Pressure",
			usage: `
              TempDiff.Pressure is the pressure level [hPa] of the map.`,
			defaultVal: 700.0,
			flagsets:   []*pflag.FlagSet{tempDiffCmd.Flags()},
		},
		{
			name: "TempDiff.Levels",
			usage: `
              TempDiff.Levels are the contour levels [°C].`,
			defaultVal: "-5:5:0.25",
			flagsets:   []*pflag.FlagSet{tempDiffCmd.Flags()},
		},
		{
			name: "TempDiff.Palette",
			usage: `
              TempDiff.Palette is the name of the color palette.`,
			defaultVal: "PRGn",
			flagsets:   []*pflag.FlagSet{tempDiffCmd.Flags()},
		},
		{
			name: "TempDiff.Extent",
			usage: `
              TempDiff.Extent is the map extent as west,east,south,north
              in degrees.`,
			defaultVal: "-90,-60,15,45",
			flagsets:   []*pflag.FlagSet{tempDiffCmd.Flags()},
		},
		{
			name: "TempDiff.XTicks",
			usage: `
              TempDiff.XTicks are the longitudes of graticule lines.`,
			defaultVal: "-90:-60:5",
			flagsets:   []*pflag.FlagSet{tempDiffCmd.Flags()},
		},
		{
			name: "TempDiff.YTicks",
			usage: `
              TempDiff.YTicks are the latitudes of graticule lines.`,
			defaultVal: "15:45:5",
			flagsets:   []*pflag.FlagSet{tempDiffCmd.Flags()},
		},
		{
			name: "CrossSection.Dates",
			usage: `
              CrossSection.Dates are the dates of the WRF output files,
              which are joined in the order given.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{crossSectionCmd.Flags()},
		},
		{
			name: "CrossSection.Box",
			usage: `
              CrossSection.Box is the averaging area as lat1,lon1,lat2,lon2
              where (lat1, lon1) is the southwest corner and (lat2, lon2)
              the northeast corner.`,
			defaultVal: "32,-93,36,-87",
			flagsets:   []*pflag.FlagSet{crossSectionCmd.Flags()},
		},
		{
			name: "CrossSection.Palette",
			usage: `
              CrossSection.Palette is the name of the color palette.`,
			defaultVal: "viridis",
			flagsets:   []*pflag.FlagSet{crossSectionCmd.Flags()},
		},
		{
			name: "Vegetation.File",
			usage: `
              Vegetation.File is the path template of the met_em files
              that are modified in place. "[DATE]" is replaced by the date.`,
			defaultVal: "met_em.d01.[DATE].nc",
			flagsets:   []*pflag.FlagSet{vegetationCmd.Flags()},
		},
		{
			name: "Vegetation.Dates",
			usage: `
              Vegetation.Dates are the dates of the met_em files.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{vegetationCmd.Flags()},
		},
		{
			name: "Vegetation.LandUse",
			usage: `
              Vegetation.LandUse is the land use category that LU_INDEX
              is set to everywhere.`,
			defaultVal: 14.0,
			flagsets:   []*pflag.FlagSet{vegetationCmd.Flags()},
		},
		{
			name: "Vegetation.GreenFrac",
			usage: `
              Vegetation.GreenFrac is the green vegetation fraction that
              GREENFRAC is set to everywhere.`,
			defaultVal: 100.0,
			flagsets:   []*pflag.FlagSet{vegetationCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("WRFPOST")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(shearCmd)
	Root.AddCommand(tempDiffCmd)
	Root.AddCommand(crossSectionCmd)
	Root.AddCommand(vegetationCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("wrfpost: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "wrfpost",
	Short: "Post-processing of WRF model output.",
	Long: `wrfpost makes maps and time-height sections from the output of a
control and a perturbed WRF simulation, and prepares WPS met_em files.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'WRFPOST_var' where 'var' is the
name of the variable to be set, with dots replaced by underscores. Many
configuration variables are additionally allowed to contain environment
variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if err := setConfig(); err != nil {
			return err
		}
		return setLogLevel(Cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of wrfpost.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("wrfpost v%s\n", wrfpost.Version)
	},
	DisableAutoGenTag: true,
}

// printPaths prints the paths of the files a job wrote, even when the
// job failed part way through.
func printPaths(cmd *cobra.Command, paths []string) {
	for _, p := range paths {
		cmd.Println(p)
	}
}

var shearCmd = &cobra.Command{
	Use:   "shear",
	Short: "Map wind shear.",
	Long: `shear maps the magnitude of the difference between the wind at
Shear.Offset meters above terrain and the 10 m wind, for the control and
perturbed runs and for their difference, at each of Shear.Dates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := NewPipeline(Cfg, true)
		if err != nil {
			return err
		}
		cfg, err := ShearConfig(Cfg)
		if err != nil {
			return err
		}
		paths, err := p.Shear(cfg)
		printPaths(cmd, paths)
		return err
	},
	DisableAutoGenTag: true,
}

var tempDiffCmd = &cobra.Command{
	Use:   "tempdiff",
	Short: "Map temperature differences at a pressure level.",
	Long: `tempdiff maps the perturbed minus control temperature at
TempDiff.Pressure hPa at each of TempDiff.Dates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := NewPipeline(Cfg, true)
		if err != nil {
			return err
		}
		cfg, err := TemperatureConfig(Cfg)
		if err != nil {
			return err
		}
		paths, err := p.TemperatureDiff(cfg)
		printPaths(cmd, paths)
		return err
	},
	DisableAutoGenTag: true,
}

var crossSectionCmd = &cobra.Command{
	Use:   "crosssection",
	Short: "Draw area-averaged time-height sections.",
	Long: `crosssection draws time-height sections of the perturbed minus
control temperature and cumulus heating and moistening tendencies,
averaged over CrossSection.Box, for the joined CrossSection.Dates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := NewPipeline(Cfg, false)
		if err != nil {
			return err
		}
		cfg, err := CrossSectionConfig(Cfg)
		if err != nil {
			return err
		}
		paths, err := p.CrossSection(cfg)
		printPaths(cmd, paths)
		return err
	},
	DisableAutoGenTag: true,
}

var vegetationCmd = &cobra.Command{
	Use:   "vegetation",
	Short: "Override land use and vegetation fraction in met_em files.",
	Long: `vegetation sets LU_INDEX to Vegetation.LandUse and GREENFRAC to
Vegetation.GreenFrac everywhere in the met_em file of each of
Vegetation.Dates. The files are modified in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := NewPipeline(Cfg, false)
		if err != nil {
			return err
		}
		cfg, err := VegetationConfig(Cfg)
		if err != nil {
			return err
		}
		paths, err := p.Vegetation(cfg)
		printPaths(cmd, paths)
		return err
	},
	DisableAutoGenTag: true,
}
