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

	"github.com/ctessum/geom/proj"
)

// earthRadius is the radius of the spherical earth assumed by WRF [m].
const earthRadius = 6370000.

// LongLat is the geographic coordinate system of WRF grids.
const LongLat = "+proj=longlat +a=6370000 +b=6370000 +no_defs"

// WRF MAP_PROJ codes.
const (
	mapProjLambert  = 1
	mapProjPolar    = 2
	mapProjMercator = 3
	mapProjLatLon   = 6
)

// ProjString returns the proj4 definition of the map projection of ds,
// based on its global attributes.
func ProjString(ds Dataset) (string, error) {
	code, err := AttrFloat(ds, "MAP_PROJ")
	if err != nil {
		return "", err
	}
	attr := func(names ...string) ([]float64, error) {
		v := make([]float64, len(names))
		for i, n := range names {
			if v[i], err = AttrFloat(ds, n); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
	switch int(code) {
	case mapProjLambert:
		a, err := attr("TRUELAT1", "TRUELAT2", "MOAD_CEN_LAT", "STAND_LON")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("+proj=lcc +lat_1=%g +lat_2=%g +lat_0=%g +lon_0=%g +x_0=0 +y_0=0 +a=%.f +b=%.f +units=m +no_defs",
			a[0], a[1], a[2], a[3], earthRadius, earthRadius), nil
	case mapProjMercator:
		a, err := attr("TRUELAT1", "STAND_LON")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("+proj=merc +lat_ts=%g +lon_0=%g +x_0=0 +y_0=0 +a=%.f +b=%.f +units=m +no_defs",
			a[0], a[1], earthRadius, earthRadius), nil
	case mapProjLatLon:
		return LongLat, nil
	case mapProjPolar:
		return "", fmt.Errorf("wrfpost: polar stereographic grid in %s is not supported", ds.Name())
	default:
		return "", fmt.Errorf("wrfpost: unknown MAP_PROJ %g in %s", code, ds.Name())
	}
}

// Projection returns the spatial reference of the grid of ds.
func Projection(ds Dataset) (*proj.SR, error) {
	s, err := ProjString(ds)
	if err != nil {
		return nil, err
	}
	sr, err := proj.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("wrfpost: parsing projection of %s: %w", ds.Name(), err)
	}
	return sr, nil
}

// LLToXY returns the zero-based west_east (x) and south_north (y)
// grid indices of the point (lat, lon). Projected grids are indexed
// from their grid spacing; other grids use the nearest mass point.
// The indices may fall outside of the grid.
func LLToXY(ds Dataset, lat, lon float64) (x, y int, err error) {
	latF, lonF, err := LatLon(ds)
	if err != nil {
		return 0, 0, err
	}
	if x, y, ok := projectedXY(ds, latF, lonF, lat, lon); ok {
		return x, y, nil
	}
	return nearestXY(latF, lonF, lat, lon)
}

// projectedXY calculates grid indices using the map projection of ds.
// ok is false if the grid has no usable projection.
func projectedXY(ds Dataset, latF, lonF *Field, lat, lon float64) (x, y int, ok bool) {
	s, err := ProjString(ds)
	if err != nil || s == LongLat {
		return 0, 0, false
	}
	dx, errX := AttrFloat(ds, "DX")
	dy, errY := AttrFloat(ds, "DY")
	if errX != nil || errY != nil || dx <= 0 || dy <= 0 {
		return 0, 0, false
	}
	src, err := proj.Parse(LongLat)
	if err != nil {
		return 0, 0, false
	}
	dst, err := proj.Parse(s)
	if err != nil {
		return 0, 0, false
	}
	ct, err := src.NewTransform(dst)
	if err != nil {
		return 0, 0, false
	}
	x0, y0, err := ct(lonF.Get(0, 0), latF.Get(0, 0))
	if err != nil {
		return 0, 0, false
	}
	px, py, err := ct(lon, lat)
	if err != nil {
		return 0, 0, false
	}
	return int(math.Floor((px-x0)/dx + 0.5)), int(math.Floor((py-y0)/dy + 0.5)), true
}

// nearestXY returns the indices of the mass point closest to (lat, lon).
func nearestXY(latF, lonF *Field, lat, lon float64) (x, y int, err error) {
	ny, nx := latF.Shape[0], latF.Shape[1]
	best := math.Inf(1)
	coslat := math.Cos(lat * math.Pi / 180)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			dlat := latF.Get(j, i) - lat
			dlon := (lonF.Get(j, i) - lon) * coslat
			if d := dlat*dlat + dlon*dlon; d < best {
				best, x, y = d, i, j
			}
		}
	}
	if math.IsInf(best, 1) {
		return 0, 0, fmt.Errorf("wrfpost: no grid point near %g, %g", lat, lon)
	}
	return x, y, nil
}
