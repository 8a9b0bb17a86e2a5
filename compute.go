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
	"time"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// verticalDim is the name of the unstaggered vertical dimension.
const verticalDim = "bottom_top"

// Horizontal dimension names.
const (
	SouthNorth = "south_north"
	WestEast   = "west_east"
)

// InterpLevel linearly interpolates f to the level where the vertical
// coordinate vert equals level. Columns where level is outside of the
// range of vert are NaN.
func InterpLevel(f, vert *Field, level float64) (*Field, error) {
	k := f.Dim(verticalDim)
	if k < 0 {
		return nil, fmt.Errorf("wrfpost: interpolating %s: no %s dimension", f.Name, verticalDim)
	}
	shape := removeDim(f.Shape, k)
	target := sparse.ZerosDense(shape...)
	floats.AddConst(level, target.Elements)
	return interp(f, vert, target, k)
}

// InterpLevelField is like InterpLevel but the target level is given
// separately for each column. target must have the shape of f without
// its vertical dimension.
func InterpLevelField(f, vert, target *Field) (*Field, error) {
	k := f.Dim(verticalDim)
	if k < 0 {
		return nil, fmt.Errorf("wrfpost: interpolating %s: no %s dimension", f.Name, verticalDim)
	}
	if want := removeDim(f.Shape, k); !sameShape(want, target.Shape) {
		return nil, fmt.Errorf("wrfpost: interpolating %s: target shape %v does not match %v",
			f.Name, target.Shape, want)
	}
	return interp(f, vert, target.DenseArray, k)
}

func interp(f, vert *Field, target *sparse.DenseArray, k int) (*Field, error) {
	if !sameShape(f.Shape, vert.Shape) {
		return nil, fmt.Errorf("wrfpost: interpolating %s: vertical coordinate %s has shape %v; want %v",
			f.Name, vert.Name, vert.Shape, f.Shape)
	}
	nz := f.Shape[k]
	inner := 1
	for _, l := range f.Shape[k+1:] {
		inner *= l
	}
	outer := len(f.Elements) / (nz * inner)
	out := sparse.ZerosDense(target.Shape...)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			t := target.Elements[o*inner+i]
			at := func(a *sparse.DenseArray, kk int) float64 {
				return a.Elements[(o*nz+kk)*inner+i]
			}
			v := math.NaN()
			for kk := 0; kk < nz-1; kk++ {
				z0, z1 := at(vert.DenseArray, kk), at(vert.DenseArray, kk+1)
				if (t < z0 || t > z1) && (t > z0 || t < z1) {
					continue
				}
				if z1 == z0 {
					v = at(f.DenseArray, kk)
				} else {
					w := (t - z0) / (z1 - z0)
					v = at(f.DenseArray, kk)*(1-w) + at(f.DenseArray, kk+1)*w
				}
				break
			}
			out.Elements[o*inner+i] = v
		}
	}
	return &Field{
		DenseArray:  out,
		Name:        f.Name,
		Description: f.Description,
		Units:       f.Units,
		Dims:        removeDimName(f.Dims, k),
		Times:       append([]time.Time{}, f.Times...),
	}, nil
}

func removeDim(shape []int, k int) []int {
	out := make([]int, 0, len(shape)-1)
	out = append(out, shape[:k]...)
	return append(out, shape[k+1:]...)
}

func removeDimName(dims []string, k int) []string {
	out := make([]string, 0, len(dims)-1)
	out = append(out, dims[:k]...)
	return append(out, dims[k+1:]...)
}

// TerrainLevel returns a height target offset meters above terrain.
func TerrainLevel(ter *Field, offset float64) *Field {
	out := ter.derive("ter_offset", ter.Units, ter.DenseArray.Copy())
	floats.AddConst(offset, out.Elements)
	return out
}

// Magnitude returns the magnitude of the vector with components u and v.
func Magnitude(u, v *Field) (*Field, error) {
	if len(u.Elements) != len(v.Elements) {
		return nil, fmt.Errorf("wrfpost: magnitude of %s and %s: %d elements vs. %d",
			u.Name, v.Name, len(u.Elements), len(v.Elements))
	}
	out := u.derive(u.Name+"_mag", u.Units, sparse.ZerosDense(u.Shape...))
	for i, uu := range u.Elements {
		out.Elements[i] = math.Hypot(uu, v.Elements[i])
	}
	return out, nil
}

// Diff returns pert - cont. Only the number of elements is checked;
// the coordinates of the two grids are assumed to be identical.
func Diff(pert, cont *Field) (*Field, error) {
	if len(pert.Elements) != len(cont.Elements) {
		return nil, fmt.Errorf("wrfpost: difference of %s: %d elements vs. %d",
			pert.Name, len(pert.Elements), len(cont.Elements))
	}
	out := pert.derive(pert.Name, pert.Units, sparse.ZerosDense(pert.Shape...))
	out.Description = pert.Description
	floats.SubTo(out.Elements, pert.Elements, cont.Elements)
	return out, nil
}

// Subset returns the part of f where the index along dimension dim is
// between lo and hi, inclusive.
func Subset(f *Field, dim string, lo, hi int) (*Field, error) {
	d := f.Dim(dim)
	if d < 0 {
		return nil, fmt.Errorf("wrfpost: subsetting %s: no dimension %s", f.Name, dim)
	}
	if lo > hi || lo < 0 || hi >= f.Shape[d] {
		return nil, fmt.Errorf("wrfpost: subsetting %s: index range [%d, %d] invalid for %s of length %d",
			f.Name, lo, hi, dim, f.Shape[d])
	}
	shape := append([]int{}, f.Shape...)
	shape[d] = hi - lo + 1
	out := sparse.ZerosDense(shape...)
	for i := range out.Elements {
		idx := out.IndexNd(i)
		idx[d] += lo
		out.Elements[i] = f.Get(idx...)
	}
	o := f.derive(f.Name, f.Units, out)
	o.Description = f.Description
	if dim == timeDim && len(f.Times) == f.Shape[d] {
		o.Times = append([]time.Time{}, f.Times[lo:hi+1]...)
	}
	return o, nil
}

// Mean returns the arithmetic mean of f over the named dimensions.
// NaN values are ignored.
func Mean(f *Field, dims ...string) (*Field, error) {
	drop := make(map[int]bool)
	for _, dim := range dims {
		d := f.Dim(dim)
		if d < 0 {
			return nil, fmt.Errorf("wrfpost: averaging %s: no dimension %s", f.Name, dim)
		}
		drop[d] = true
	}
	var (
		shape   []int
		outDims []string
	)
	for i, l := range f.Shape {
		if !drop[i] {
			shape = append(shape, l)
			outDims = append(outDims, f.Dims[i])
		}
	}
	sum := sparse.ZerosDense(shape...)
	n := sparse.ZerosDense(shape...)
	oidx := make([]int, len(shape))
	for i, v := range f.Elements {
		if math.IsNaN(v) {
			continue
		}
		idx := f.IndexNd(i)
		oidx = oidx[:0]
		for d, x := range idx {
			if !drop[d] {
				oidx = append(oidx, x)
			}
		}
		j := 0
		if len(oidx) > 0 {
			j = sum.Index1d(oidx...)
		}
		sum.Elements[j] += v
		n.Elements[j]++
	}
	for i, c := range n.Elements {
		if c == 0 {
			sum.Elements[i] = math.NaN()
		} else {
			sum.Elements[i] /= c
		}
	}
	out := &Field{
		DenseArray:  sum,
		Name:        f.Name,
		Description: f.Description,
		Units:       f.Units,
		Dims:        outDims,
	}
	if !drop[f.Dim(timeDim)] {
		out.Times = append([]time.Time{}, f.Times...)
	}
	return out, nil
}

// Scale returns f multiplied by k.
func Scale(f *Field, k float64) *Field {
	out := f.derive(f.Name, f.Units, f.DenseArray.Copy())
	out.Description = f.Description
	floats.Scale(k, out.Elements)
	return out
}

// conversionFuncs are the functions available to Convert expressions.
var conversionFuncs = map[string]govaluate.ExpressionFunction{
	"exp":  unaryFunc("exp", math.Exp),
	"log":  unaryFunc("log", math.Log),
	"sqrt": unaryFunc("sqrt", math.Sqrt),
	"abs":  unaryFunc("abs", math.Abs),
}

func unaryFunc(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("wrfpost: got %d arguments for function '%s', but needs 1", len(arg), name)
		}
		x, ok := arg[0].(float64)
		if !ok {
			return nil, fmt.Errorf("wrfpost: argument to '%s' is %T, not a number", name, arg[0])
		}
		return f(x), nil
	}
}

// Convert applies the expression expr to every element of f. The
// expression refers to the element value as "x", e.g. "x * 86400".
// The result has the given units.
func Convert(f *Field, expr, units string) (*Field, error) {
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, conversionFuncs)
	if err != nil {
		return nil, fmt.Errorf("wrfpost: unit conversion %q: %w", expr, err)
	}
	for _, v := range e.Vars() {
		if v != "x" {
			return nil, fmt.Errorf("wrfpost: unit conversion %q: unknown variable %s", expr, v)
		}
	}
	out := f.derive(f.Name, units, sparse.ZerosDense(f.Shape...))
	out.Description = f.Description
	params := map[string]interface{}{"x": 0.}
	for i, x := range f.Elements {
		params["x"] = x
		r, err := e.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("wrfpost: unit conversion %q: %w", expr, err)
		}
		v, ok := r.(float64)
		if !ok {
			return nil, fmt.Errorf("wrfpost: unit conversion %q returned %T, not a number", expr, r)
		}
		out.Elements[i] = v
	}
	return out, nil
}
