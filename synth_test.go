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
	"io"
	"os"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// testProj is the projection of synthetic grids.
const testProj = "+proj=lcc +lat_1=30 +lat_2=60 +lat_0=40 +lon_0=-95 +x_0=0 +y_0=0 +a=6370000 +b=6370000 +units=m +no_defs"

const testDX = 12000.

// synthGrid is the size of a synthetic WRF domain.
type synthGrid struct {
	nz, ny, nx int
}

// testTimes returns n hourly times starting at 2021-07-14 00 UTC.
func testTimes(n int) []time.Time {
	t := make([]time.Time, n)
	for i := range t {
		t[i] = time.Date(2021, 7, 14, i, 0, 0, 0, time.UTC)
	}
	return t
}

func mustAdd(t *testing.T, m *MemDataset, v string, dims []string, data *sparse.DenseArray) {
	t.Helper()
	if err := m.AddVariable(v, dims, data); err != nil {
		t.Fatal(err)
	}
}

// synthWRF returns a WRF output dataset on a Lambert conformal grid
// centered on 40N, 95W. Geopotential height at staggered level k is
// k*5000 m above flat terrain at sea level, full pressure at mass
// level k is 1000-200k hPa, potential temperature is 300 K, and all
// winds and tendencies are zero.
func synthWRF(t *testing.T, name string, sg synthGrid, times ...time.Time) *MemDataset {
	t.Helper()
	m := NewMemDataset(name, times...)
	nt := len(times)
	m.SetAttr("MAP_PROJ", []int32{1})
	m.SetAttr("TRUELAT1", []float32{30})
	m.SetAttr("TRUELAT2", []float32{60})
	m.SetAttr("MOAD_CEN_LAT", []float32{40})
	m.SetAttr("STAND_LON", []float32{-95})
	m.SetAttr("DX", []float32{testDX})
	m.SetAttr("DY", []float32{testDX})

	src, err := proj.Parse(testProj)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := proj.Parse(LongLat)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := src.NewTransform(dst)
	if err != nil {
		t.Fatal(err)
	}
	lat := sparse.ZerosDense(nt, sg.ny, sg.nx)
	lon := sparse.ZerosDense(nt, sg.ny, sg.nx)
	for r := 0; r < nt; r++ {
		for j := 0; j < sg.ny; j++ {
			for i := 0; i < sg.nx; i++ {
				x := (float64(i) - float64(sg.nx-1)/2) * testDX
				y := (float64(j) - float64(sg.ny-1)/2) * testDX
				lo, la, err := ct(x, y)
				if err != nil {
					t.Fatal(err)
				}
				lat.Set(la, r, j, i)
				lon.Set(lo, r, j, i)
			}
		}
	}
	mass := []string{timeDim, "bottom_top", SouthNorth, WestEast}
	surf := []string{timeDim, SouthNorth, WestEast}
	mustAdd(t, m, "XLAT", surf, lat)
	mustAdd(t, m, "XLONG", surf, lon)
	mustAdd(t, m, "HGT", surf, sparse.ZerosDense(nt, sg.ny, sg.nx))
	mustAdd(t, m, "U10", surf, sparse.ZerosDense(nt, sg.ny, sg.nx))
	mustAdd(t, m, "V10", surf, sparse.ZerosDense(nt, sg.ny, sg.nx))
	mustAdd(t, m, "U", []string{timeDim, "bottom_top", SouthNorth, "west_east_stag"},
		sparse.ZerosDense(nt, sg.nz, sg.ny, sg.nx+1))
	mustAdd(t, m, "V", []string{timeDim, "bottom_top", "south_north_stag", WestEast},
		sparse.ZerosDense(nt, sg.nz, sg.ny+1, sg.nx))

	phb := sparse.ZerosDense(nt, sg.nz+1, sg.ny, sg.nx)
	for i := range phb.Elements {
		k := phb.IndexNd(i)[1]
		phb.Elements[i] = float64(k) * 5000 * g
	}
	mustAdd(t, m, "PHB", []string{timeDim, "bottom_top_stag", SouthNorth, WestEast}, phb)
	mustAdd(t, m, "PH", []string{timeDim, "bottom_top_stag", SouthNorth, WestEast},
		sparse.ZerosDense(nt, sg.nz+1, sg.ny, sg.nx))

	pb := sparse.ZerosDense(nt, sg.nz, sg.ny, sg.nx)
	for i := range pb.Elements {
		k := pb.IndexNd(i)[1]
		pb.Elements[i] = 100000 - float64(k)*20000
	}
	mustAdd(t, m, "PB", mass, pb)
	for _, v := range []string{"P", "T", "RTHCUTEN", "RQVCUTEN"} {
		mustAdd(t, m, v, mass, sparse.ZerosDense(nt, sg.nz, sg.ny, sg.nx))
	}
	return m
}

// setWind sets the wind at mass points in every record and level of m
// to u and v, which are indexed [south_north][west_east].
func setWind(t *testing.T, m *MemDataset, u, v [][]float64) {
	t.Helper()
	U, V := m.vars["U"].data, m.vars["V"].data
	nt, nz, ny, nx := V.Shape[0], V.Shape[1], U.Shape[2], V.Shape[3]
	for r := 0; r < nt; r++ {
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				// Staggered values average to the mass point values.
				U.Set(u[j][0], r, k, j, 0)
				for i := 0; i < nx; i++ {
					U.Set(2*u[j][i]-U.Get(r, k, j, i), r, k, j, i+1)
				}
			}
			for i := 0; i < nx; i++ {
				V.Set(v[0][i], r, k, 0, i)
				for j := 0; j < ny; j++ {
					V.Set(2*v[j][i]-V.Get(r, k, j, i), r, k, j+1, i)
				}
			}
		}
	}
}

// saveClassic writes m to a classic-format NetCDF file at path.
// Global attributes of m must be typed slices.
func saveClassic(t *testing.T, m *MemDataset, path string) {
	t.Helper()
	dims := []string{timeDim, "DateStrLen"}
	lengths := []int{0, len(wrfTimeFormat)}
	index := map[string]int{timeDim: 0, "DateStrLen": 1}
	for _, v := range m.order {
		mv := m.vars[v]
		for i, d := range mv.dims {
			if d == timeDim {
				continue
			}
			if j, ok := index[d]; ok {
				if lengths[j] != mv.data.Shape[i] {
					t.Fatalf("dimension %s has lengths %d and %d", d, lengths[j], mv.data.Shape[i])
				}
				continue
			}
			index[d] = len(dims)
			dims = append(dims, d)
			lengths = append(lengths, mv.data.Shape[i])
		}
	}
	h := cdf.NewHeader(dims, lengths)
	for name, a := range m.attrs {
		h.AddAttribute("", name, a)
	}
	h.AddVariable("Times", []string{timeDim, "DateStrLen"}, "")
	for _, v := range m.order {
		h.AddVariable(v, m.vars[v].dims, []float32{0})
	}
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ff, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	for rec, tt := range m.times {
		w := ff.Writer("Times", []int{rec, 0}, []int{rec, len(wrfTimeFormat) - 1})
		if _, err := w.Write(tt.Format(wrfTimeFormat)); err != nil && err != io.EOF {
			t.Fatal(err)
		}
	}
	for _, v := range m.order {
		data := m.vars[v].data
		data32 := make([]float32, len(data.Elements))
		for i, e := range data.Elements {
			data32[i] = float32(e)
		}
		if _, err := ff.Writer(v, nil, nil).Write(data32); err != nil && err != io.EOF {
			t.Fatalf("writing %s: %v", v, err)
		}
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		t.Fatal(err)
	}
}
