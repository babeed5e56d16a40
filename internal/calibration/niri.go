package calibration

import (
	"context"
	"strings"

	"fitsstore-go/internal/model"
)

// niriNoFlatFilters 是不需要平场的热红外滤光片前缀（L'、M'、Br-alpha 及其连续谱）。
var niriNoFlatFilters = []string{"Lprime", "Mprime", "Bra"}

// NIRI 规则。
type NIRI struct {
	*base
}

func newNIRI(b *base) *NIRI {
	c := &NIRI{base: b}
	d := c.d
	if d.ObservationType == "OBJECT" && !d.Spectroscopy && d.ObservationClass == "science" {
		c.add(Dark, Processed(Dark))
		if !hasAnyPrefix(d.FilterName, niriNoFlatFilters) {
			c.add(Flat, Processed(Flat))
		}
	}
	return c
}

func (c *NIRI) Dark(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("DARK", "DARK", processed),
		eq(c.ext("data_section"), c.d.DataSection),
		eq(c.ext("read_mode"), c.d.DetectorReadModeSetting),
		eq(c.ext("well_depth_setting"), c.d.DetectorWellDepthSetting),
		within("header.exposure_time", c.d.ExposureTime, 0.01),
		eq("header.coadds", c.d.Coadds),
	}
	return c.find(ctx, rule{scopes: scopes, window: 180 * day, limit: pick(howmany, processed, 1, 1)})
}

func (c *NIRI) Flat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("FLAT", "FLAT", processed),
		eq(c.ext("data_section"), c.d.DataSection),
		eq(c.ext("well_depth_setting"), c.d.DetectorWellDepthSetting),
		eq("header.filter_name", c.d.FilterName),
		eq("header.camera", c.d.Camera),
	}
	return c.find(ctx, rule{scopes: scopes, window: 180 * day, limit: pick(howmany, processed, 1, 1)})
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
