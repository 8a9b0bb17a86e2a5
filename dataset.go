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
	"io"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spf13/cast"
)

// wrfTimeFormat is the layout of WRF "Times" strings and of the
// timestamp keys used in file names.
const wrfTimeFormat = "2006-01-02_15:04:05"

// timeDim is the name of the WRF record dimension.
const timeDim = "Time"

// Dataset is an open gridded model output file.
type Dataset interface {
	// Name identifies the dataset in messages, usually its path.
	Name() string

	// Variables lists the variables in the dataset.
	Variables() []string

	// Dims returns the dimension names and lengths of variable v.
	// The length of the record dimension is the number of records.
	Dims(v string) (names []string, lengths []int, err error)

	// NumRecords is the number of time records in the dataset.
	NumRecords() int

	// Read returns one record of variable v. If v does not have
	// a record dimension the whole variable is returned and record
	// is ignored.
	Read(v string, record int) (*sparse.DenseArray, error)

	// Attr returns global attribute name.
	Attr(name string) (interface{}, bool)

	// Times returns the valid time of each record.
	Times() ([]time.Time, error)

	// Close releases the dataset. For writable datasets
	// it commits any changes.
	Close() error
}

// Writer is implemented by datasets that have been opened for writing.
type Writer interface {
	// Write overwrites record of variable v with data. The shape of data
	// must match the shape of one record of v.
	Write(v string, record int, data *sparse.DenseArray) error
}

// Loader opens the dataset for a simulation run at a timestamp.
type Loader interface {
	Load(run Run, date string) (Dataset, error)
}

// FileLoader is a Loader that finds files using a path template.
type FileLoader struct {
	// Template is the path template. "[RUN]" is replaced by the
	// run directory and "[DATE]" by the timestamp key.
	Template string

	// Writable specifies that files should be opened for modification.
	Writable bool
}

// Path returns the path of the file for run at date.
func (l FileLoader) Path(run Run, date string) string {
	p := strings.Replace(l.Template, "[RUN]", run.Dir, -1)
	return strings.Replace(p, "[DATE]", date, -1)
}

// Load implements Loader.
func (l FileLoader) Load(run Run, date string) (Dataset, error) {
	if l.Writable {
		return OpenWritable(l.Path(run, date))
	}
	return Open(l.Path(run, date))
}

// Open opens the NetCDF file at path for reading. Files in the
// classic format are read directly. Other files, such as NetCDF-4
// output, are read with a native HDF5 reader.
func Open(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wrfpost: opening %s: %w", path, err)
	}
	ff, err := cdf.Open(f)
	if err != nil {
		f.Close()
		d, err4 := openNC4(path)
		if err4 != nil {
			return nil, fmt.Errorf("wrfpost: opening %s: %v (netcdf-4: %v)", path, err, err4)
		}
		return d, nil
	}
	return newNCF(path, f, ff, false)
}

// OpenWritable opens the classic-format NetCDF file at path for
// in-place modification. Changes are committed when the dataset
// is closed.
func OpenWritable(path string) (Dataset, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("wrfpost: opening %s: %w", path, err)
	}
	ff, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wrfpost: opening %s: %w", path, err)
	}
	return newNCF(path, f, ff, true)
}

// ncfDataset is a classic-format NetCDF file.
type ncfDataset struct {
	path     string
	f        *os.File
	ff       *cdf.File
	nrec     int
	writable bool
}

func newNCF(path string, f *os.File, ff *cdf.File, writable bool) (*ncfDataset, error) {
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wrfpost: opening %s: %w", path, err)
	}
	return &ncfDataset{
		path:     path,
		f:        f,
		ff:       ff,
		nrec:     int(ff.Header.NumRecs(fi.Size())),
		writable: writable,
	}, nil
}

func (d *ncfDataset) Name() string        { return d.path }
func (d *ncfDataset) Variables() []string { return d.ff.Header.Variables() }
func (d *ncfDataset) NumRecords() int     { return d.nrec }

func (d *ncfDataset) Dims(v string) ([]string, []int, error) {
	if len(d.ff.Header.Lengths(v)) == 0 {
		return nil, nil, d.missing(v)
	}
	lengths := append([]int{}, d.ff.Header.Lengths(v)...)
	if d.ff.Header.IsRecordVariable(v) {
		lengths[0] = d.nrec
	}
	return d.ff.Header.Dimensions(v), lengths, nil
}

func (d *ncfDataset) missing(v string) error {
	return fmt.Errorf("wrfpost: variable %s not in %s", v, d.path)
}

// bounds returns the inclusive corners of one record of v along with
// the shape of the record.
func (d *ncfDataset) bounds(v string, record int) (begin, end, shape []int, err error) {
	_, lengths, err := d.Dims(v)
	if err != nil {
		return nil, nil, nil, err
	}
	begin, end = make([]int, len(lengths)), make([]int, len(lengths))
	shape = lengths
	start := 0
	if d.ff.Header.IsRecordVariable(v) {
		if record < 0 || record >= d.nrec {
			return nil, nil, nil, fmt.Errorf("wrfpost: record %d of %s out of range [0, %d) in %s",
				record, v, d.nrec, d.path)
		}
		begin[0], end[0] = record, record
		shape = lengths[1:]
		start = 1
	}
	for i := start; i < len(lengths); i++ {
		end[i] = lengths[i] - 1
	}
	return begin, end, shape, nil
}

func (d *ncfDataset) Read(v string, record int) (*sparse.DenseArray, error) {
	begin, end, shape, err := d.bounds(v, record)
	if err != nil {
		return nil, err
	}
	nread := 1
	for _, l := range shape {
		nread *= l
	}
	r := d.ff.Reader(v, begin, end)
	buf := r.Zero(nread)
	if _, ok := buf.(string); ok {
		// CHAR variables are read as bytes.
		buf = make([]uint8, nread)
	}
	if _, err = r.Read(buf); err != nil {
		return nil, fmt.Errorf("wrfpost: reading %s from %s: %w", v, d.path, err)
	}
	data := sparse.ZerosDense(shape...)
	switch b := buf.(type) {
	case []float32:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []float64:
		copy(data.Elements, b)
	case []int32:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []int16:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []uint8:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("wrfpost: reading %s from %s: unsupported type %T", v, d.path, buf)
	}
	return data, nil
}

// Write implements Writer.
func (d *ncfDataset) Write(v string, record int, data *sparse.DenseArray) error {
	if !d.writable {
		return fmt.Errorf("wrfpost: %s is not open for writing", d.path)
	}
	begin, end, shape, err := d.bounds(v, record)
	if err != nil {
		return err
	}
	if !sameShape(shape, data.Shape) {
		return fmt.Errorf("wrfpost: writing %s to %s: shape %v does not match %v",
			v, d.path, data.Shape, shape)
	}
	// The reader gives a buffer of the variable's own type.
	buf := d.ff.Reader(v, begin, end).Zero(len(data.Elements))
	if _, ok := buf.(string); ok {
		buf = make([]uint8, len(data.Elements))
	}
	switch b := buf.(type) {
	case []float32:
		for i, val := range data.Elements {
			b[i] = float32(val)
		}
	case []float64:
		copy(b, data.Elements)
	case []int32:
		for i, val := range data.Elements {
			b[i] = int32(val)
		}
	case []int16:
		for i, val := range data.Elements {
			b[i] = int16(val)
		}
	case []uint8:
		for i, val := range data.Elements {
			b[i] = uint8(val)
		}
	default:
		return fmt.Errorf("wrfpost: writing %s to %s: unsupported type %T", v, d.path, buf)
	}
	// The writer reports io.EOF when the last element of its range
	// has been written.
	if _, err := d.ff.Writer(v, begin, end).Write(buf); err != nil && err != io.EOF {
		return fmt.Errorf("wrfpost: writing %s to %s: %w", v, d.path, err)
	}
	return nil
}

func (d *ncfDataset) Attr(name string) (interface{}, bool) {
	v := d.ff.Header.GetAttribute("", name)
	return v, v != nil
}

func (d *ncfDataset) Times() ([]time.Time, error) {
	_, lengths, err := d.Dims("Times")
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, d.nrec)
	for rec := range times {
		begin, end, _, err := d.bounds("Times", rec)
		if err != nil {
			return nil, err
		}
		b := make([]uint8, lengths[len(lengths)-1])
		if _, err := d.ff.Reader("Times", begin, end).Read(b); err != nil {
			return nil, fmt.Errorf("wrfpost: reading Times from %s: %w", d.path, err)
		}
		if times[rec], err = parseWRFTime(string(b)); err != nil {
			return nil, fmt.Errorf("wrfpost: reading Times from %s: %w", d.path, err)
		}
	}
	return times, nil
}

func (d *ncfDataset) Close() error {
	if d.writable {
		if err := d.f.Sync(); err != nil {
			d.f.Close()
			return fmt.Errorf("wrfpost: committing %s: %w", d.path, err)
		}
	}
	return d.f.Close()
}

// parseWRFTime parses a WRF timestamp such as "2021-07-14_01:00:00".
// Trailing NUL padding is ignored.
func parseWRFTime(s string) (time.Time, error) {
	return time.Parse(wrfTimeFormat, strings.TrimRight(s, "\x00 "))
}

// AttrFloat returns numeric global attribute name of ds as a float64.
func AttrFloat(ds Dataset, name string) (float64, error) {
	v, ok := ds.Attr(name)
	if !ok {
		return 0, fmt.Errorf("wrfpost: attribute %s not in %s", name, ds.Name())
	}
	switch a := v.(type) {
	case []float32:
		if len(a) > 0 {
			return float64(a[0]), nil
		}
	case []float64:
		if len(a) > 0 {
			return a[0], nil
		}
	case []int32:
		if len(a) > 0 {
			return float64(a[0]), nil
		}
	case []int16:
		if len(a) > 0 {
			return float64(a[0]), nil
		}
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, fmt.Errorf("wrfpost: attribute %s in %s: %w", name, ds.Name(), err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("wrfpost: attribute %s in %s is empty", name, ds.Name())
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MemDataset is a Dataset held in memory. It is used to inject
// synthetic grids into a Pipeline.
type MemDataset struct {
	name  string
	vars  map[string]memVar
	order []string
	attrs map[string]interface{}
	times []time.Time
}

type memVar struct {
	dims []string
	data *sparse.DenseArray
}

// NewMemDataset creates an empty in-memory dataset with one record
// for each of the given times.
func NewMemDataset(name string, times ...time.Time) *MemDataset {
	return &MemDataset{
		name:  name,
		vars:  make(map[string]memVar),
		attrs: make(map[string]interface{}),
		times: times,
	}
}

// AddVariable adds variable v. If the first dimension is "Time" its
// length must equal the number of records.
func (m *MemDataset) AddVariable(v string, dims []string, data *sparse.DenseArray) error {
	if len(dims) != len(data.Shape) {
		return fmt.Errorf("wrfpost: variable %s has %d dimensions but shape %v", v, len(dims), data.Shape)
	}
	if len(dims) > 0 && dims[0] == timeDim && data.Shape[0] != len(m.times) {
		return fmt.Errorf("wrfpost: variable %s has %d records; dataset has %d", v, data.Shape[0], len(m.times))
	}
	if _, ok := m.vars[v]; !ok {
		m.order = append(m.order, v)
	}
	m.vars[v] = memVar{dims: dims, data: data}
	return nil
}

// SetAttr sets global attribute name.
func (m *MemDataset) SetAttr(name string, val interface{}) { m.attrs[name] = val }

func (m *MemDataset) Name() string        { return m.name }
func (m *MemDataset) Variables() []string { return append([]string{}, m.order...) }
func (m *MemDataset) NumRecords() int     { return len(m.times) }

func (m *MemDataset) Dims(v string) ([]string, []int, error) {
	mv, ok := m.vars[v]
	if !ok {
		return nil, nil, fmt.Errorf("wrfpost: variable %s not in %s", v, m.name)
	}
	return append([]string{}, mv.dims...), append([]int{}, mv.data.Shape...), nil
}

// record returns the offset and shape of one record of v.
func (m *MemDataset) record(v string, record int) (memVar, int, []int, error) {
	mv, ok := m.vars[v]
	if !ok {
		return mv, 0, nil, fmt.Errorf("wrfpost: variable %s not in %s", v, m.name)
	}
	if len(mv.dims) == 0 || mv.dims[0] != timeDim {
		return mv, 0, mv.data.Shape, nil
	}
	if record < 0 || record >= mv.data.Shape[0] {
		return mv, 0, nil, fmt.Errorf("wrfpost: record %d of %s out of range [0, %d) in %s",
			record, v, mv.data.Shape[0], m.name)
	}
	shape := mv.data.Shape[1:]
	n := 1
	for _, l := range shape {
		n *= l
	}
	return mv, record * n, shape, nil
}

func (m *MemDataset) Read(v string, record int) (*sparse.DenseArray, error) {
	mv, offset, shape, err := m.record(v, record)
	if err != nil {
		return nil, err
	}
	out := sparse.ZerosDense(shape...)
	copy(out.Elements, mv.data.Elements[offset:offset+len(out.Elements)])
	return out, nil
}

// Write implements Writer.
func (m *MemDataset) Write(v string, record int, data *sparse.DenseArray) error {
	mv, offset, shape, err := m.record(v, record)
	if err != nil {
		return err
	}
	if !sameShape(shape, data.Shape) {
		return fmt.Errorf("wrfpost: writing %s to %s: shape %v does not match %v",
			v, m.name, data.Shape, shape)
	}
	copy(mv.data.Elements[offset:], data.Elements)
	return nil
}

func (m *MemDataset) Attr(name string) (interface{}, bool) {
	v, ok := m.attrs[name]
	return v, ok
}

func (m *MemDataset) Times() ([]time.Time, error) {
	if len(m.times) == 0 {
		return nil, fmt.Errorf("wrfpost: no times in %s", m.name)
	}
	return append([]time.Time{}, m.times...), nil
}

func (m *MemDataset) Close() error { return nil }

// MemLoader is a Loader for in-memory datasets. Datasets are keyed
// by run directory and timestamp key joined with "/".
type MemLoader map[string]*MemDataset

// Load implements Loader.
func (l MemLoader) Load(run Run, date string) (Dataset, error) {
	d, ok := l[run.Dir+"/"+date]
	if !ok {
		return nil, fmt.Errorf("wrfpost: opening %s/%s: %w", run.Dir, date, os.ErrNotExist)
	}
	return d, nil
}
