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
	"reflect"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/sparse"
)

// nc4Dataset is a read-only NetCDF-4 (HDF5) file.
type nc4Dataset struct {
	path string
	nc   api.Group
	nrec int
}

func openNC4(path string) (*nc4Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}
	d := &nc4Dataset{path: path, nc: nc}
	if times, err := d.Times(); err == nil {
		d.nrec = len(times)
	}
	return d, nil
}

func (d *nc4Dataset) Name() string        { return d.path }
func (d *nc4Dataset) Variables() []string { return d.nc.ListVariables() }
func (d *nc4Dataset) NumRecords() int     { return d.nrec }

func (d *nc4Dataset) getter(v string) (api.VarGetter, error) {
	vg, err := d.nc.GetVarGetter(v)
	if err != nil {
		return nil, fmt.Errorf("wrfpost: variable %s not in %s: %w", v, d.path, err)
	}
	return vg, nil
}

func (d *nc4Dataset) Dims(v string) ([]string, []int, error) {
	vg, err := d.getter(v)
	if err != nil {
		return nil, nil, err
	}
	names := vg.Dimensions()
	if lengths, ok := d.dimLengths(names, vg.Len()); ok {
		return names, lengths, nil
	}
	// Fall back to the shape of the data when the file does not
	// describe its dimensions.
	vals, err := vg.Values()
	if err != nil {
		return nil, nil, fmt.Errorf("wrfpost: reading %s from %s: %w", v, d.path, err)
	}
	lengths := nestedShape(reflect.ValueOf(vals))
	switch {
	case len(names) > len(lengths):
		// Character arrays are returned as strings.
		names = names[:len(lengths)]
	case len(names) < len(lengths):
		names = make([]string, len(lengths))
		for i := range names {
			names[i] = fmt.Sprintf("dim%d", i)
		}
	}
	return names, lengths, nil
}

// dimLengths looks up the lengths of the named dimensions. ok is false
// if a dimension is unknown or the outermost length is not n, the
// length the variable reports.
func (d *nc4Dataset) dimLengths(names []string, n int64) (lengths []int, ok bool) {
	if len(names) == 0 {
		return nil, false
	}
	lengths = make([]int, len(names))
	for i, name := range names {
		l, found := d.nc.GetDimension(name)
		if !found {
			return nil, false
		}
		lengths[i] = int(l)
	}
	return lengths, int64(lengths[0]) == n
}

// nestedShape returns the lengths of the nested slices in v. A scalar
// has no dimensions.
func nestedShape(v reflect.Value) []int {
	var shape []int
	for {
		switch v.Kind() {
		case reflect.Interface:
			v = v.Elem()
			continue
		case reflect.Slice, reflect.Array:
			shape = append(shape, v.Len())
			if v.Len() == 0 {
				return shape
			}
			v = v.Index(0)
			continue
		}
		return shape
	}
}

func (d *nc4Dataset) Read(v string, record int) (*sparse.DenseArray, error) {
	vg, err := d.getter(v)
	if err != nil {
		return nil, err
	}
	dims, lengths, err := d.Dims(v)
	if err != nil {
		return nil, err
	}
	var vals interface{}
	shape := lengths
	if len(dims) > 0 && dims[0] == timeDim {
		if record < 0 || record >= lengths[0] {
			return nil, fmt.Errorf("wrfpost: record %d of %s out of range [0, %d) in %s",
				record, v, lengths[0], d.path)
		}
		vals, err = vg.GetSlice(int64(record), int64(record+1))
		shape = lengths[1:]
	} else {
		vals, err = vg.Values()
	}
	if err != nil {
		return nil, fmt.Errorf("wrfpost: reading %s from %s: %w", v, d.path, err)
	}
	data := sparse.ZerosDense(shape...)
	flat := flatten(reflect.ValueOf(vals), data.Elements[:0])
	if len(flat) != len(data.Elements) {
		return nil, fmt.Errorf("wrfpost: reading %s from %s: got %d values for shape %v",
			v, d.path, len(flat), shape)
	}
	return data, nil
}

// flatten appends the numeric values in the nested slice v to dst
// in row-major order.
func flatten(v reflect.Value, dst []float64) []float64 {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			dst = flatten(v.Index(i), dst)
		}
	case reflect.Float32, reflect.Float64:
		dst = append(dst, v.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst = append(dst, float64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst = append(dst, float64(v.Uint()))
	case reflect.Interface:
		dst = flatten(v.Elem(), dst)
	}
	return dst
}

func (d *nc4Dataset) Attr(name string) (interface{}, bool) {
	return d.nc.Attributes().Get(name)
}

func (d *nc4Dataset) Times() ([]time.Time, error) {
	vg, err := d.getter("Times")
	if err != nil {
		return nil, err
	}
	vals, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("wrfpost: reading Times from %s: %w", d.path, err)
	}
	var strs []string
	switch t := vals.(type) {
	case []string:
		strs = t
	case string:
		strs = []string{t}
	default:
		return nil, fmt.Errorf("wrfpost: Times in %s has type %T", d.path, vals)
	}
	times := make([]time.Time, len(strs))
	for i, s := range strs {
		if times[i], err = parseWRFTime(s); err != nil {
			return nil, fmt.Errorf("wrfpost: reading Times from %s: %w", d.path, err)
		}
	}
	return times, nil
}

func (d *nc4Dataset) Close() error {
	d.nc.Close()
	return nil
}
