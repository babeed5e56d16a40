package calibration

import (
	"context"

	"fitsstore-go/internal/model"
)

// Michelle 规则。
type Michelle struct {
	*base
}

func newMichelle(b *base) *Michelle {
	c := &Michelle{base: b}
	d := c.d
	if d.ObservationType == "OBJECT" && d.ObservationClass == "science" {
		if d.Spectroscopy {
			c.add(Flat)
		} else {
			c.add(Dark)
		}
	}
	return c
}

func (c *Michelle) Dark(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("DARK", "DARK", processed),
		eq(c.ext("read_mode"), c.d.DetectorReadModeSetting),
		within("header.exposure_time", c.d.ExposureTime, 0.01),
		eq("header.coadds", c.d.Coadds),
	}
	return c.find(ctx, rule{scopes: scopes, window: day, limit: pick(howmany, processed, 10, 1)})
}

func (c *Michelle) Flat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("FLAT", "FLAT", processed),
		eq(c.ext("read_mode"), c.d.DetectorReadModeSetting),
		eq("header.filter_name", c.d.FilterName),
	}
	if c.d.Spectroscopy {
		scopes = append(scopes,
			eq("header.disperser", c.d.Disperser),
			eq("header.focal_plane_mask", c.d.FocalPlaneMask),
			within("header.central_wavelength", c.d.CentralWavelength, 0.001))
	}
	return c.find(ctx, rule{scopes: scopes, window: day, limit: pick(howmany, processed, 10, 1)})
}
