package calibration

import (
	"context"
	"strings"

	"fitsstore-go/internal/model"
)

// GMOS 规则适用于 GMOS-N 与 GMOS-S。
type GMOS struct {
	*base
}

func newGMOS(b *base) *GMOS {
	c := &GMOS{base: b}
	d := c.d
	object := d.ObservationType == "OBJECT"
	twilight := d.Object == "Twilight"

	customAcq := d.DetectorROISetting == "Custom" && strings.HasPrefix(d.ObservationClass, "acq")
	if d.ObservationType != "BIAS" && d.DetectorROISetting != "Central Stamp" && !customAcq {
		c.add(Bias, Processed(Bias))
	}
	if object && d.NodAndShuffle {
		c.add(Dark, Processed(Dark))
	}
	if d.Spectroscopy && object && !twilight {
		c.add(Arc, Processed(Arc), Flat, Processed(Flat), SpecTwilight, SpecPhot)
	}
	if !d.Spectroscopy && d.FocalPlaneMask == "Imaging" && object && !twilight {
		c.add(Flat, Processed(Flat), Processed(Fringe))
	}
	return c
}

func (c *GMOS) binning() []Scope {
	return []Scope{
		eq(c.ext("detector_x_bin"), c.d.DetectorXBin),
		eq(c.ext("detector_y_bin"), c.d.DetectorYBin),
	}
}

func (c *GMOS) readout() []Scope {
	return []Scope{
		eq(c.ext("read_speed_setting"), c.d.DetectorReadSpeedSetting),
		eq(c.ext("gain_setting"), c.d.DetectorGainSetting),
	}
}

// focalPlaneMask 对 5 角秒长缝放宽为任意宽度的长缝。
func (c *GMOS) focalPlaneMask() Scope {
	if c.d.FocalPlaneMask == "5.0arcsec" {
		return like("header.focal_plane_mask", "%arcsec")
	}
	return eq("header.focal_plane_mask", c.d.FocalPlaneMask)
}

func (c *GMOS) Bias(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{kind("BIAS", "BIAS", processed)}
	scopes = append(scopes, c.binning()...)
	scopes = append(scopes, c.readout()...)
	scopes = append(scopes, c.ampReadArea())
	if processed {
		trimmed, subtracted := true, true
		if c.d.Prepared {
			trimmed, subtracted = c.d.OverscanTrimmed, c.d.OverscanSubtracted
		}
		scopes = append(scopes,
			eq(c.ext("overscan_trimmed"), trimmed),
			eq(c.ext("overscan_subtracted"), subtracted))
	}
	return c.find(ctx, rule{scopes: scopes, window: 90 * day, limit: pick(howmany, processed, 50, 1)})
}

func (c *GMOS) Dark(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{kind("DARK", "DARK", processed)}
	scopes = append(scopes, c.binning()...)
	scopes = append(scopes, c.readout()...)
	scopes = append(scopes,
		within("header.exposure_time", c.d.ExposureTime, 50),
		eq(c.ext("nodandshuffle"), c.d.NodAndShuffle),
		c.ampReadArea())
	if c.d.NodAndShuffle {
		scopes = append(scopes,
			eq(c.ext("nod_count"), c.d.NodCount),
			eq(c.ext("nod_pixels"), c.d.NodPixels))
	}
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 15, 1)})
}

func (c *GMOS) Arc(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("ARC", "ARC", processed),
		eq("header.disperser", c.d.Disperser),
		eq("header.filter_name", c.d.FilterName),
		within("header.central_wavelength", c.d.CentralWavelength, 0.001),
		c.focalPlaneMask(),
	}
	scopes = append(scopes, c.binning()...)
	scopes = append(scopes, c.ampReadArea())
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 1, 1)})
}

// Flat 对光谱观测返回光谱平场，对成像观测返回暮光平场。
func (c *GMOS) Flat(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	d := c.d
	var scopes []Scope
	if d.Spectroscopy {
		scopes = []Scope{
			kind("FLAT", "FLAT", processed),
			eq("header.filter_name", d.FilterName),
			eq("header.focal_plane_mask", d.FocalPlaneMask),
			eq("header.disperser", d.Disperser),
			within("header.central_wavelength", d.CentralWavelength, 0.001),
		}
		scopes = append(scopes, c.binning()...)
		scopes = append(scopes, c.readout()...)
		scopes = append(scopes, c.ampReadArea())
		scopes = append(scopes, c.flexure()...)
		return c.find(ctx, rule{scopes: scopes, window: 180 * day, limit: pick(howmany, processed, 2, 1)})
	}

	if processed {
		scopes = []Scope{kind("", "FLAT", true)}
	} else {
		scopes = []Scope{
			eq("header.observation_type", "OBJECT"),
			eq("header.observation_class", "dayCal"),
			eq("header.object", "Twilight"),
		}
	}
	scopes = append(scopes,
		eq("header.filter_name", d.FilterName),
		eq("header.focal_plane_mask", d.FocalPlaneMask))
	scopes = append(scopes, c.binning()...)
	scopes = append(scopes, c.readout()...)
	scopes = append(scopes, c.ampReadArea())
	return c.find(ctx, rule{scopes: scopes, window: 180 * day, limit: pick(howmany, processed, 20, 1)})
}

// Fringe 只有 processed 变体。
func (c *GMOS) Fringe(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("", "FRINGE", true),
		eq("header.filter_name", c.d.FilterName),
	}
	scopes = append(scopes, c.binning()...)
	scopes = append(scopes, c.ampReadArea())
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, true, 1, 1)})
}

func (c *GMOS) SpecTwilight(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("OBJECT", "UNKNOWN", processed),
		eq("header.spectroscopy", true),
		eq("header.observation_class", "dayCal"),
		eq("header.object", "Twilight"),
		eq("header.filter_name", c.d.FilterName),
		eq("header.disperser", c.d.Disperser),
		eq("header.focal_plane_mask", c.d.FocalPlaneMask),
		within("header.central_wavelength", c.d.CentralWavelength, 0.002),
	}
	scopes = append(scopes, c.binning()...)
	scopes = append(scopes, c.ampReadArea())
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 2, 1)})
}

func (c *GMOS) SpecPhot(ctx context.Context, processed bool, howmany int) ([]model.Header, error) {
	scopes := []Scope{
		kind("OBJECT", "UNKNOWN", processed),
		eq("header.spectroscopy", true),
		in("header.observation_class", "partnerCal", "progCal"),
		eq("header.disperser", c.d.Disperser),
		eq("header.filter_name", c.d.FilterName),
		within("header.central_wavelength", c.d.CentralWavelength, 0.05),
		c.focalPlaneMask(),
	}
	return c.find(ctx, rule{scopes: scopes, window: 365 * day, limit: pick(howmany, processed, 4, 1)})
}
