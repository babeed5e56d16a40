package calibration

import (
	"context"

	"fitsstore-go/internal/model"
)

// GNIRS 规则。
type GNIRS struct {
	*base
}

func newGNIRS(b *base) *GNIRS {
	c := &GNIRS{base: b}
	d := c.d
	if d.ObservationType != "OBJECT" {
		return c
	}
	if !d.Spectroscopy && d.ObservationClass == "science" {
		c.add(Dark, Processed(Dark))
	}
	if d.Spectroscopy {
		c.add(Flat, Processed(Flat), Arc, PinholeMask, QHFlat)
	}
	return c
}

func (c *GNIRS) Dark(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("DARK", "DARK", processed),
		eq(c.ext("read_mode"), c.d.DetectorReadModeSetting),
		eq(c.ext("well_depth_setting"), c.d.DetectorWellDepthSetting),
		within("header.exposure_time", c.d.ExposureTime, 0.01),
		eq("header.coadds", c.d.Coadds),
	}
	return c.find(ctx, rule{scopes: scopes, window: 90 * day, limit: pick(howmany, processed, 1, 1)})
}

func (c *GNIRS) flatScopes(processed bool) []Scope {
	return []Scope{
		kind("FLAT", "FLAT", processed),
		eq("header.disperser", c.d.Disperser),
		within("header.central_wavelength", c.d.CentralWavelength, 0.001),
		eq("header.focal_plane_mask", c.d.FocalPlaneMask),
		eq("header.camera", c.d.Camera),
		eq("header.filter_name", c.d.FilterName),
		eq(c.ext("well_depth_setting"), c.d.DetectorWellDepthSetting),
	}
}

func (c *GNIRS) Flat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	return c.find(ctx, rule{scopes: c.flatScopes(processed), window: 90 * day, limit: pick(howmany, processed, 1, 1)})
}

// QHFlat 是石英卤素灯的平场，短波段光谱的交叉色散定序需要它。
func (c *GNIRS) QHFlat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := append(c.flatScopes(processed), eq("header.gcal_lamp", "QH"))
	return c.find(ctx, rule{scopes: scopes, window: 90 * day, limit: pick(howmany, processed, 1, 1)})
}

func (c *GNIRS) Arc(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("ARC", "ARC", processed),
		eq("header.disperser", c.d.Disperser),
		within("header.central_wavelength", c.d.CentralWavelength, 0.001),
		eq("header.focal_plane_mask", c.d.FocalPlaneMask),
		eq("header.filter_name", c.d.FilterName),
		eq("header.camera", c.d.Camera),
	}
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 1, 1)})
}

func (c *GNIRS) PinholeMask(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("PINHOLE", "UNKNOWN", processed),
		eq("header.disperser", c.d.Disperser),
		within("header.central_wavelength", c.d.CentralWavelength, 0.001),
		eq("header.camera", c.d.Camera),
	}
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 1, 1)})
}
