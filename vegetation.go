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
)

// Names of the WPS met_em vegetation variables.
const (
	LandUseVar   = "LU_INDEX"
	GreenFracVar = "GREENFRAC"
)

// OverrideVegetation sets every value of the land use category and the
// green vegetation fraction in ds to landUse and greenFrac, in every
// record. ds must have been opened for writing; the changes are
// committed when it is closed.
func OverrideVegetation(ds Dataset, landUse, greenFrac float64) error {
	w, ok := ds.(Writer)
	if !ok {
		return fmt.Errorf("wrfpost: %s is not writable", ds.Name())
	}
	for _, v := range []struct {
		name string
		val  float64
	}{
		{LandUseVar, landUse},
		{GreenFracVar, greenFrac},
	} {
		if err := fill(ds, w, v.name, v.val); err != nil {
			return err
		}
	}
	return nil
}

// fill sets every element of variable v to val.
func fill(ds Dataset, w Writer, v string, val float64) error {
	dims, _, err := ds.Dims(v)
	if err != nil {
		return err
	}
	nrec := 1
	if len(dims) > 0 && dims[0] == timeDim {
		nrec = ds.NumRecords()
	}
	for rec := 0; rec < nrec; rec++ {
		data, err := ds.Read(v, rec)
		if err != nil {
			return err
		}
		for i := range data.Elements {
			data.Elements[i] = val
		}
		if err := w.Write(v, rec, data); err != nil {
			return err
		}
	}
	return nil
}
