package calibration

import (
	"context"

	"fitsstore-go/internal/model"
)

// GPI 规则。Wollaston 棱镜表示偏振模式，否则为积分视场光谱模式。
type GPI struct {
	*base
}

func newGPI(b *base) *GPI {
	c := &GPI{base: b}
	d := c.d
	if d.ObservationType != "OBJECT" || d.ObservationClass != "science" || !d.Spectroscopy {
		return c
	}
	c.add(Dark, Processed(Dark), AstrometricStandard, Processed(AstrometricStandard))
	if d.Wollaston {
		c.add(PolarizationStandard, Processed(PolarizationStandard), PolarizationFlat, Processed(PolarizationFlat))
	} else {
		c.add(Arc, Processed(Arc), TelluricStandard, Processed(TelluricStandard))
	}
	return c
}

func (c *GPI) Dark(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("DARK", "DARK", processed),
		within("header.exposure_time", c.d.ExposureTime, 10),
	}
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 1, 1)})
}

func (c *GPI) Arc(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("ARC", "ARC", processed),
		eq("header.disperser", c.d.Disperser),
		eq("header.filter_name", c.d.FilterName),
	}
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 1, 1)})
}

// standard 是标准星类规则的公共部分：raw 要求科学类别、定标项目与光谱模式。
func (c *GPI) standard(processed bool, processedAs string) []Scope {
	scopes := []Scope{kind("OBJECT", processedAs, processed)}
	if !processed {
		scopes = append(scopes,
			eq("header.observation_class", "science"),
			eq("header.calibration_program", true),
			eq("header.spectroscopy", true))
	}
	return scopes
}

func (c *GPI) TelluricStandard(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := append(c.standard(processed, "TELLURIC"),
		eq("header.disperser", c.d.Disperser),
		eq("header.filter_name", c.d.FilterName))
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 8, 1)})
}

func (c *GPI) PolarizationStandard(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := append(c.standard(processed, "UNKNOWN"),
		eq(c.ext("wollaston"), true),
		eq("header.filter_name", c.d.FilterName))
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 8, 1)})
}

func (c *GPI) PolarizationFlat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("FLAT", "FLAT", processed),
		eq(c.ext("wollaston"), true),
		eq("header.filter_name", c.d.FilterName),
	}
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 8, 1)})
}

func (c *GPI) AstrometricStandard(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("OBJECT", "UNKNOWN", processed),
		eq(c.ext("astrometric_standard"), true),
	}
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 8, 1)})
}
