package calibration

import (
	"context"

	"fitsstore-go/internal/model"
)

// NIFS 规则。
type NIFS struct {
	*base
}

func newNIFS(b *base) *NIFS {
	c := &NIFS{base: b}
	d := c.d
	programCal := d.ObservationClass == "partnerCal" || d.ObservationClass == "progCal"
	if d.ObservationType == "OBJECT" && !d.Spectroscopy && d.ObservationClass == "science" {
		c.add(Dark, Processed(Dark))
	}
	if d.ObservationType == "OBJECT" && d.Spectroscopy && !programCal {
		c.add(Flat, Processed(Flat), Arc, RonchiMask, TelluricStandard, Processed(TelluricStandard))
	}
	if d.ObservationType == "FLAT" && d.GcalLamp != "" && d.GcalLamp != "Off" {
		c.add(LampoffFlat)
	}
	return c
}

func (c *NIFS) Dark(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("DARK", "DARK", processed),
		eq(c.ext("read_mode"), c.d.DetectorReadModeSetting),
		within("header.exposure_time", c.d.ExposureTime, 0.01),
		eq("header.coadds", c.d.Coadds),
		eq("header.disperser", c.d.Disperser),
	}
	return c.find(ctx, rule{scopes: scopes, window: 90 * day, limit: pick(howmany, processed, 10, 1)})
}

func (c *NIFS) configuration() []Scope {
	return []Scope{
		eq("header.disperser", c.d.Disperser),
		within("header.central_wavelength", c.d.CentralWavelength, 0.001),
		eq("header.focal_plane_mask", c.d.FocalPlaneMask),
		eq("header.filter_name", c.d.FilterName),
	}
}

func (c *NIFS) Flat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := append([]Scope{kind("FLAT", "FLAT", processed)}, c.configuration()...)
	if !processed {
		scopes = append(scopes, in("header.gcal_lamp", "IRhigh", "QH"))
	}
	return c.find(ctx, rule{scopes: scopes, window: 10 * day, limit: pick(howmany, processed, 10, 1)})
}

func (c *NIFS) LampoffFlat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := append([]Scope{kind("FLAT", "FLAT", processed)}, c.configuration()...)
	scopes = append(scopes, eq("header.gcal_lamp", "Off"))
	return c.find(ctx, rule{scopes: scopes, window: hour, limit: pick(howmany, processed, 10, 1)})
}

func (c *NIFS) Arc(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := append([]Scope{kind("ARC", "ARC", processed)}, c.configuration()...)
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 1, 1)})
}

func (c *NIFS) RonchiMask(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("RONCHI", "UNKNOWN", processed),
		eq("header.disperser", c.d.Disperser),
		within("header.central_wavelength", c.d.CentralWavelength, 0.001),
	}
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 1, 1)})
}

func (c *NIFS) TelluricStandard(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := append([]Scope{kind("OBJECT", "TELLURIC", processed)}, c.configuration()...)
	if !processed {
		scopes = append(scopes, eq("header.observation_class", "partnerCal"))
	}
	return c.find(ctx, rule{scopes: scopes, window: day, limit: pick(howmany, processed, 12, 1)})
}
