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
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

func TestDestagger(t *testing.T) {
	in := sparse.ZerosDense(2, 3)
	copy(in.Elements, []float64{0, 2, 4, 10, 20, 30})
	have := destagger(in, 1)
	want := []float64{1, 3, 15, 25}
	if !sameShape(have.Shape, []int{2, 2}) {
		t.Fatalf("shape: have %v", have.Shape)
	}
	for i, v := range want {
		if have.Elements[i] != v {
			t.Errorf("element %d: have %g, want %g", i, have.Elements[i], v)
		}
	}
	have = destagger(in, 0)
	for i, v := range []float64{5, 11, 17} {
		if have.Elements[i] != v {
			t.Errorf("element %d: have %g, want %g", i, have.Elements[i], v)
		}
	}
}

func TestExtractShapes(t *testing.T) {
	const nz, ny, nx = 3, 4, 5
	ds := synthWRF(t, "mem", synthGrid{nz: nz, ny: ny, nx: nx}, testTimes(2)...)
	mass := []string{"bottom_top", SouthNorth, WestEast}
	surf := []string{SouthNorth, WestEast}
	for _, test := range []struct {
		name  string
		dims  []string
		shape []int
	}{
		{"ua", mass, []int{nz, ny, nx}},
		{"va", mass, []int{nz, ny, nx}},
		{"z", mass, []int{nz, ny, nx}},
		{"pressure", mass, []int{nz, ny, nx}},
		{"tc", mass, []int{nz, ny, nx}},
		{"tk", mass, []int{nz, ny, nx}},
		{"theta", mass, []int{nz, ny, nx}},
		{"ter", surf, []int{ny, nx}},
		{"lat", surf, []int{ny, nx}},
		{"U", []string{"bottom_top", SouthNorth, "west_east_stag"}, []int{nz, ny, nx + 1}},
		{"RTHCUTEN", mass, []int{nz, ny, nx}},
	} {
		t.Run(test.name, func(t *testing.T) {
			f, err := Extract(ds, test.name, 1)
			if err != nil {
				t.Fatal(err)
			}
			if !sameShape(f.Shape, test.shape) {
				t.Errorf("shape: have %v, want %v", f.Shape, test.shape)
			}
			if len(f.Dims) != len(test.dims) {
				t.Fatalf("dimensions: have %v, want %v", f.Dims, test.dims)
			}
			for i, d := range test.dims {
				if f.Dims[i] != d {
					t.Errorf("dimensions: have %v, want %v", f.Dims, test.dims)
					break
				}
			}
			if len(f.Times) != 1 || !f.Times[0].Equal(testTimes(2)[1]) {
				t.Errorf("times: have %v", f.Times)
			}
		})
	}
	if _, err := Extract(ds, "NOPE", 0); err == nil {
		t.Error("expected an error for an unknown variable")
	}
}

func TestDiagnostics(t *testing.T) {
	ds := synthWRF(t, "mem", synthGrid{nz: 3, ny: 2, nx: 2}, testTimes(1)...)
	z, err := Extract(ds, "z", 0)
	if err != nil {
		t.Fatal(err)
	}
	p, err := Extract(ds, "pressure", 0)
	if err != nil {
		t.Fatal(err)
	}
	tk, err := Extract(ds, "tk", 0)
	if err != nil {
		t.Fatal(err)
	}
	tc, err := Extract(ds, "tc", 0)
	if err != nil {
		t.Fatal(err)
	}
	for k := 0; k < 3; k++ {
		if v, want := z.Get(k, 1, 1), (float64(k)+0.5)*5000; math.Abs(v-want) > 1e-6 {
			t.Errorf("z level %d: have %g, want %g", k, v, want)
		}
		pk := 1000 - 200*float64(k)
		if v := p.Get(k, 0, 1); math.Abs(v-pk) > 1e-9 {
			t.Errorf("pressure level %d: have %g, want %g", k, v, pk)
		}
		want := 300 * math.Pow(pk/1000, kappa)
		if v := tk.Get(k, 1, 0); math.Abs(v-want) > 1e-9 {
			t.Errorf("tk level %d: have %g, want %g", k, v, want)
		}
		if v := tc.Get(k, 1, 0); math.Abs(v-(want-kelvinOffset)) > 1e-9 {
			t.Errorf("tc level %d: have %g, want %g", k, v, want-kelvinOffset)
		}
	}
	if tc.Units != "degC" || z.Units != "m" {
		t.Errorf("units: %s, %s", tc.Units, z.Units)
	}
}

func TestDestaggeredWind(t *testing.T) {
	ds := synthWRF(t, "mem", synthGrid{nz: 2, ny: 2, nx: 3}, testTimes(1)...)
	u := [][]float64{{1, 2, 3}, {4, 5, 6}}
	v := [][]float64{{-1, 0, 1}, {2, 2, 2}}
	setWind(t, ds, u, v)
	ua, err := Extract(ds, "ua", 0)
	if err != nil {
		t.Fatal(err)
	}
	va, err := Extract(ds, "va", 0)
	if err != nil {
		t.Fatal(err)
	}
	for k := 0; k < 2; k++ {
		for j := range u {
			for i := range u[j] {
				if have := ua.Get(k, j, i); math.Abs(have-u[j][i]) > 1e-9 {
					t.Errorf("ua[%d,%d,%d]: have %g, want %g", k, j, i, have, u[j][i])
				}
				if have := va.Get(k, j, i); math.Abs(have-v[j][i]) > 1e-9 {
					t.Errorf("va[%d,%d,%d]: have %g, want %g", k, j, i, have, v[j][i])
				}
			}
		}
	}
}

func TestExtractCat(t *testing.T) {
	times := testTimes(3)
	a := synthWRF(t, "a", synthGrid{nz: 2, ny: 2, nx: 2}, times[:2]...)
	b := synthWRF(t, "b", synthGrid{nz: 2, ny: 2, nx: 2}, times[2:]...)
	b.vars["PB"].data.Elements[0] = 50000
	f, err := ExtractCat([]Dataset{a, b}, "pressure")
	if err != nil {
		t.Fatal(err)
	}
	if !sameShape(f.Shape, []int{3, 2, 2, 2}) {
		t.Fatalf("shape: have %v", f.Shape)
	}
	if f.Dims[0] != timeDim {
		t.Errorf("first dimension: %s", f.Dims[0])
	}
	if len(f.Times) != 3 || !f.Times[2].Equal(times[2]) {
		t.Errorf("times: %v", f.Times)
	}
	if v := f.Get(2, 0, 0, 0); v != 500 {
		t.Errorf("have %g, want 500", v)
	}
	if v := f.Get(1, 0, 0, 0); v != 1000 {
		t.Errorf("have %g, want 1000", v)
	}

	c := synthWRF(t, "c", synthGrid{nz: 2, ny: 3, nx: 2}, times[:1]...)
	if _, err := ExtractCat([]Dataset{a, c}, "pressure"); err == nil {
		t.Error("expected a shape mismatch error")
	}
	if _, err := ExtractCat(nil, "pressure"); err == nil {
		t.Error("expected an error without datasets")
	}
}

func TestLatLon(t *testing.T) {
	ds := synthWRF(t, "mem", synthGrid{nz: 1, ny: 3, nx: 4}, testTimes(1)...)
	lat, lon, err := LatLon(ds)
	if err != nil {
		t.Fatal(err)
	}
	if !sameShape(lat.Shape, []int{3, 4}) || !sameShape(lon.Shape, []int{3, 4}) {
		t.Errorf("shapes: %v, %v", lat.Shape, lon.Shape)
	}
	if !(lat.Get(2, 0) > lat.Get(0, 0)) {
		t.Error("latitude should increase to the north")
	}
	if !(lon.Get(0, 3) > lon.Get(0, 0)) {
		t.Error("longitude should increase to the east")
	}
}
