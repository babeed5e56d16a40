package calibration

import (
	"context"

	"fitsstore-go/internal/model"
)

// GSAOI 规则：圆顶平场（开灯与关灯）以及同一滤光片的测光标准星。
type GSAOI struct {
	*base
}

func newGSAOI(b *base) *GSAOI {
	c := &GSAOI{base: b}
	d := c.d
	if d.ObservationType == "OBJECT" && d.ObservationClass == "science" {
		c.add(DomeFlat, Processed(DomeFlat), LampoffFlat, PhotometricStandard)
	}
	return c
}

func (c *GSAOI) domeFlat(processed bool, object string) []Scope {
	scopes := []Scope{
		kind("FLAT", "FLAT", processed),
		eq("header.filter_name", c.d.FilterName),
		eq(c.ext("read_mode"), c.d.DetectorReadModeSetting),
	}
	if !processed {
		scopes = append(scopes, eq("header.object", object))
	}
	return scopes
}

func (c *GSAOI) DomeFlat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	return c.find(ctx, rule{scopes: c.domeFlat(processed, "Domeflat"), window: 30 * day, limit: pick(howmany, processed, 20, 1)})
}

func (c *GSAOI) LampoffFlat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	return c.find(ctx, rule{scopes: c.domeFlat(processed, "Domeflat OFF"), window: 30 * day, limit: pick(howmany, processed, 20, 1)})
}

func (c *GSAOI) PhotometricStandard(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("OBJECT", "UNKNOWN", processed),
		eq("header.phot_standard", true),
		eq("header.filter_name", c.d.FilterName),
	}
	return c.find(ctx, rule{scopes: scopes, window: day, limit: pick(howmany, processed, 4, 1)})
}
