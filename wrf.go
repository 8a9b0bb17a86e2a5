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
	"strings"
	"time"

	"github.com/ctessum/sparse"
)

// physical constants, as used by WRF.
const (
	g            = 9.81     // m/s2
	p0           = 100000.  // Pa, reference pressure for potential temperature
	kappa        = 0.285714 // R/cp for dry air
	t0           = 300.     // K, base state potential temperature
	kelvinOffset = 273.15
)

// Field is a gridded variable together with its metadata.
type Field struct {
	*sparse.DenseArray

	Name        string
	Description string
	Units       string

	// Dims holds the name of each dimension of the array.
	Dims []string

	// Times holds the valid times when the field has a Time dimension.
	Times []time.Time
}

// Dim returns the index of dimension name, or -1.
func (f *Field) Dim(name string) int {
	for i, d := range f.Dims {
		if d == name {
			return i
		}
	}
	return -1
}

// Copy returns a deep copy of f.
func (f *Field) Copy() *Field {
	o := *f
	o.DenseArray = f.DenseArray.Copy()
	o.Dims = append([]string{}, f.Dims...)
	o.Times = append([]time.Time{}, f.Times...)
	return &o
}

// derive returns a field with data and f's dimensions and times.
func (f *Field) derive(name, units string, data *sparse.DenseArray) *Field {
	return &Field{
		DenseArray: data,
		Name:       name,
		Units:      units,
		Dims:       append([]string{}, f.Dims...),
		Times:      append([]time.Time{}, f.Times...),
	}
}

// Run is a simulation run.
type Run struct {
	// Dir replaces "[RUN]" in path templates.
	Dir string

	// Label prefixes artifact file names, e.g. "control".
	Label string

	// Title names the run in plot titles, e.g. "Control".
	Title string
}

// diagnostic computes a derived field from one record of a dataset.
type diagnostic struct {
	description, units string
	compute            func(ds Dataset, record int) (*sparse.DenseArray, []string, error)
}

// diagnostics are the fields that are computed from raw WRF variables.
var diagnostics map[string]diagnostic

func init() {
	diagnostics = map[string]diagnostic{
		"ua": {"x-wind component at mass points", "m s-1",
			func(ds Dataset, rec int) (*sparse.DenseArray, []string, error) {
				return destaggered(ds, "U", rec)
			}},
		"va": {"y-wind component at mass points", "m s-1",
			func(ds Dataset, rec int) (*sparse.DenseArray, []string, error) {
				return destaggered(ds, "V", rec)
			}},
		"z":        {"geopotential height", "m", geopotentialHeight},
		"ter":      {"terrain height", "m", raw("HGT")},
		"lat":      {"latitude", "degrees_north", raw("XLAT")},
		"lon":      {"longitude", "degrees_east", raw("XLONG")},
		"pressure": {"full model pressure", "hPa", pressureHPa},
		"theta":    {"potential temperature", "K", potentialTemperature},
		"tk":       {"temperature", "K", temperatureK},
		"tc": {"temperature", "degC",
			func(ds Dataset, rec int) (*sparse.DenseArray, []string, error) {
				t, dims, err := temperatureK(ds, rec)
				if err != nil {
					return nil, nil, err
				}
				for i, v := range t.Elements {
					t.Elements[i] = v - kelvinOffset
				}
				return t, dims, nil
			}},
	}
}

// readVar reads one record of variable v and returns it with the
// names of its non-record dimensions.
func readVar(ds Dataset, v string, rec int) (*sparse.DenseArray, []string, error) {
	dims, _, err := ds.Dims(v)
	if err != nil {
		return nil, nil, err
	}
	data, err := ds.Read(v, rec)
	if err != nil {
		return nil, nil, err
	}
	dims = append([]string{}, dims...)
	if len(dims) > 0 && dims[0] == timeDim {
		dims = dims[1:]
	}
	return data, dims, nil
}

func raw(v string) func(Dataset, int) (*sparse.DenseArray, []string, error) {
	return func(ds Dataset, rec int) (*sparse.DenseArray, []string, error) {
		return readVar(ds, v, rec)
	}
}

// sum2 reads variables a and b and returns their sum.
func sum2(ds Dataset, a, b string, rec int) (*sparse.DenseArray, []string, error) {
	x, dims, err := readVar(ds, a, rec)
	if err != nil {
		return nil, nil, err
	}
	y, _, err := readVar(ds, b, rec)
	if err != nil {
		return nil, nil, err
	}
	if !sameShape(x.Shape, y.Shape) {
		return nil, nil, fmt.Errorf("wrfpost: %s has shape %v but %s has shape %v in %s",
			a, x.Shape, b, y.Shape, ds.Name())
	}
	x.AddDense(y)
	return x, dims, nil
}

// destaggered reads variable v and averages it onto mass points
// along its staggered dimension.
func destaggered(ds Dataset, v string, rec int) (*sparse.DenseArray, []string, error) {
	data, dims, err := readVar(ds, v, rec)
	if err != nil {
		return nil, nil, err
	}
	for i, d := range dims {
		if strings.HasSuffix(d, "_stag") {
			data = destagger(data, i)
			dims[i] = strings.TrimSuffix(d, "_stag")
			return data, dims, nil
		}
	}
	return data, dims, nil
}

// destagger averages adjacent values along dimension dim, so that
// the output is one element shorter than the input along dim.
func destagger(in *sparse.DenseArray, dim int) *sparse.DenseArray {
	shape := append([]int{}, in.Shape...)
	shape[dim]--
	out := sparse.ZerosDense(shape...)
	stride := 1
	for _, l := range in.Shape[dim+1:] {
		stride *= l
	}
	for i := range out.Elements {
		idx := out.IndexNd(i)
		lo := in.Index1d(idx...)
		out.Elements[i] = (in.Elements[lo] + in.Elements[lo+stride]) / 2
	}
	return out
}

// geopotentialHeight returns height above sea level at mass points
// calculated from geopotential.
// For more information, refer to
// http://www.openwfm.org/wiki/How_to_interpret_WRF_variables.
func geopotentialHeight(ds Dataset, rec int) (*sparse.DenseArray, []string, error) {
	ph, dims, err := sum2(ds, "PH", "PHB", rec)
	if err != nil {
		return nil, nil, err
	}
	ph.Scale(1 / g)
	k := indexOf(dims, "bottom_top_stag")
	if k < 0 {
		return nil, nil, fmt.Errorf("wrfpost: PH in %s is not vertically staggered", ds.Name())
	}
	dims[k] = "bottom_top"
	return destagger(ph, k), dims, nil
}

// pressureHPa returns full pressure [hPa].
func pressureHPa(ds Dataset, rec int) (*sparse.DenseArray, []string, error) {
	p, dims, err := sum2(ds, "P", "PB", rec)
	if err != nil {
		return nil, nil, err
	}
	p.Scale(0.01)
	return p, dims, nil
}

func potentialTemperature(ds Dataset, rec int) (*sparse.DenseArray, []string, error) {
	theta, dims, err := readVar(ds, "T", rec)
	if err != nil {
		return nil, nil, err
	}
	for i, v := range theta.Elements {
		theta.Elements[i] = v + t0
	}
	return theta, dims, nil
}

func temperatureK(ds Dataset, rec int) (*sparse.DenseArray, []string, error) {
	thetaPerturb, dims, err := readVar(ds, "T", rec)
	if err != nil {
		return nil, nil, err
	}
	p, _, err := sum2(ds, "P", "PB", rec)
	if err != nil {
		return nil, nil, err
	}
	if !sameShape(thetaPerturb.Shape, p.Shape) {
		return nil, nil, fmt.Errorf("wrfpost: T has shape %v but P has shape %v in %s",
			thetaPerturb.Shape, p.Shape, ds.Name())
	}
	T := sparse.ZerosDense(thetaPerturb.Shape...)
	for i, tp := range thetaPerturb.Elements {
		T.Elements[i] = thetaPerturbToTemperature(tp, p.Elements[i])
	}
	return T, dims, nil
}

// thetaPerturbToTemperature converts perturbation potential temperature
// to ambient temperature [K] for the given pressure (p [Pa]).
func thetaPerturbToTemperature(thetaPerturb, p float64) float64 {
	θ := thetaPerturb + t0
	return θ * math.Pow(p/p0, kappa)
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// Extract returns variable name from record rec of ds. The name may
// be a diagnostic ("ua", "va", "z", "ter", "pressure", "tk", "tc",
// "theta", "lat", "lon") or the name of any variable in the file.
// The Time dimension is dropped.
func Extract(ds Dataset, name string, rec int) (*Field, error) {
	var (
		data *sparse.DenseArray
		dims []string
		err  error
	)
	f := &Field{Name: name}
	if d, ok := diagnostics[name]; ok {
		data, dims, err = d.compute(ds, rec)
		f.Description, f.Units = d.description, d.units
	} else {
		data, dims, err = readVar(ds, name, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("wrfpost: extracting %s: %w", name, err)
	}
	f.DenseArray = data
	f.Dims = dims
	if times, err := ds.Times(); err == nil && rec < len(times) {
		f.Times = []time.Time{times[rec]}
	}
	return f, nil
}

// ExtractAll returns variable name from every record of ds, with a
// leading Time dimension.
func ExtractAll(ds Dataset, name string) (*Field, error) {
	return ExtractCat([]Dataset{ds}, name)
}

// ExtractCat returns variable name from every record of every dataset,
// concatenated along a leading Time dimension in the order given.
func ExtractCat(dss []Dataset, name string) (*Field, error) {
	var recs []*Field
	for _, ds := range dss {
		n := ds.NumRecords()
		if n == 0 {
			return nil, fmt.Errorf("wrfpost: extracting %s: no records in %s", name, ds.Name())
		}
		for rec := 0; rec < n; rec++ {
			f, err := Extract(ds, name, rec)
			if err != nil {
				return nil, err
			}
			if len(recs) > 0 && !sameShape(f.Shape, recs[0].Shape) {
				return nil, fmt.Errorf("wrfpost: extracting %s: shape %v in %s does not match %v",
					name, f.Shape, ds.Name(), recs[0].Shape)
			}
			recs = append(recs, f)
		}
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("wrfpost: extracting %s: no datasets", name)
	}
	first := recs[0]
	shape := append([]int{len(recs)}, first.Shape...)
	out := &Field{
		DenseArray:  sparse.ZerosDense(shape...),
		Name:        first.Name,
		Description: first.Description,
		Units:       first.Units,
		Dims:        append([]string{timeDim}, first.Dims...),
	}
	n := len(first.Elements)
	for i, f := range recs {
		copy(out.Elements[i*n:(i+1)*n], f.Elements)
		out.Times = append(out.Times, f.Times...)
	}
	if len(out.Times) != len(recs) {
		out.Times = nil
	}
	return out, nil
}

// LatLon returns the latitude and longitude of the mass points of ds.
func LatLon(ds Dataset) (lat, lon *Field, err error) {
	if lat, err = Extract(ds, "lat", 0); err != nil {
		return nil, nil, err
	}
	if lon, err = Extract(ds, "lon", 0); err != nil {
		return nil, nil, err
	}
	if len(lat.Shape) != 2 || !sameShape(lat.Shape, lon.Shape) {
		return nil, nil, fmt.Errorf("wrfpost: latitude shape %v and longitude shape %v in %s are not matching 2-D grids",
			lat.Shape, lon.Shape, ds.Name())
	}
	return lat, lon, nil
}
