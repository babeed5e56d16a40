package calibration

import (
	"context"
	"strings"

	"fitsstore-go/internal/model"
)

// F2 规则。
type F2 struct {
	*base
}

func newF2(b *base) *F2 {
	c := &F2{base: b}
	d := c.d
	switch d.ObservationType {
	case "OBJECT":
		if d.Spectroscopy {
			c.add(Dark, Processed(Dark), Flat, Processed(Flat), Arc, Processed(Arc))
		} else if !strings.HasPrefix(d.ObservationClass, "acq") {
			c.add(Dark, Processed(Dark), Flat, Processed(Flat))
		}
	case "FLAT":
		c.add(Dark, Processed(Dark))
	case "ARC":
		c.add(Dark, Processed(Dark), Flat, Processed(Flat))
	}
	return c
}

func (c *F2) Dark(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("DARK", "DARK", processed),
		eq(c.ext("read_mode"), c.d.DetectorReadModeSetting),
		within("header.exposure_time", c.d.ExposureTime, 0.01),
	}
	return c.find(ctx, rule{scopes: scopes, window: 90 * day, limit: pick(howmany, processed, 1, 1)})
}

func (c *F2) Flat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("FLAT", "FLAT", processed),
		eq("header.disperser", c.d.Disperser),
		eq("header.focal_plane_mask", c.d.FocalPlaneMask),
		eq("header.filter_name", c.d.FilterName),
		eq(c.ext("lyot_stop"), c.d.LyotStop),
		eq(c.ext("read_mode"), c.d.DetectorReadModeSetting),
	}
	if c.d.Spectroscopy {
		scopes = append(scopes, within("header.central_wavelength", c.d.CentralWavelength, 0.001))
	}
	return c.find(ctx, rule{scopes: scopes, window: 90 * day, limit: pick(howmany, processed, 1, 1)})
}

func (c *F2) Arc(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("ARC", "ARC", processed),
		eq("header.disperser", c.d.Disperser),
		within("header.central_wavelength", c.d.CentralWavelength, 0.001),
		eq("header.focal_plane_mask", c.d.FocalPlaneMask),
		eq("header.filter_name", c.d.FilterName),
		eq(c.ext("lyot_stop"), c.d.LyotStop),
	}
	return c.find(ctx, rule{scopes: scopes, window: 90 * day, limit: pick(howmany, processed, 1, 1)})
}
