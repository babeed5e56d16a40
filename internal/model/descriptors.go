package model

import (
	"fitsstore-go/pkg/fits"
)

// NewHeader 把提取出的描述符转换为 Header 行。
func NewHeader(d *fits.Descriptors, diskFileID uint) *Header {
	h := &Header{
		DiskFileID:               diskFileID,
		ProgramID:                d.ProgramID,
		ObservationID:            d.ObservationID,
		DataLabel:                d.DataLabel,
		Telescope:                d.Telescope,
		Instrument:               d.Instrument,
		LocalTime:                d.LocalTime,
		ObservationType:          d.ObservationType,
		ObservationClass:         d.ObservationClass,
		Object:                   d.Object,
		RA:                       d.RA,
		Dec:                      d.Dec,
		Azimuth:                  d.Azimuth,
		Elevation:                d.Elevation,
		CassRotatorPA:            d.CassRotatorPA,
		Airmass:                  d.Airmass,
		ExposureTime:             d.ExposureTime,
		FilterName:               d.FilterName,
		Disperser:                d.Disperser,
		Camera:                   d.Camera,
		CentralWavelength:        d.CentralWavelength,
		WavelengthBand:           d.WavelengthBand,
		FocalPlaneMask:           d.FocalPlaneMask,
		DetectorBinning:          d.DetectorBinning,
		DetectorConfig:           d.DetectorConfig,
		DetectorROISetting:       d.DetectorROISetting,
		DetectorGainSetting:      d.DetectorGainSetting,
		DetectorReadSpeedSetting: d.DetectorReadSpeedSetting,
		DetectorWellDepthSetting: d.DetectorWellDepthSetting,
		DetectorReadModeSetting:  d.DetectorReadModeSetting,
		Coadds:                   d.Coadds,
		Spectroscopy:             d.Spectroscopy,
		Mode:                     d.Mode,
		AdaptiveOptics:           d.AdaptiveOptics,
		LaserGuideStar:           d.LaserGuideStar,
		GcalLamp:                 d.GcalLamp,
		Types:                    d.TypesString(),
		CalibrationProgram:       d.CalibrationProgram,
		RawIQ:                    d.RawIQ,
		RawCC:                    d.RawCC,
		RawWV:                    d.RawWV,
		RawBG:                    d.RawBG,
		RequestedIQ:              d.RequestedIQ,
		RequestedCC:              d.RequestedCC,
		RequestedWV:              d.RequestedWV,
		RequestedBG:              d.RequestedBG,
		QAState:                  d.QAState,
		Release:                  d.Release,
		Reduction:                d.Reduction,
		Engineering:              d.Engineering,
		ScienceVerification:      d.ScienceVerification,
		PhotStandard:             d.PhotStandard,
	}
	if h.QAState == "" {
		h.QAState = "Undefined"
	}
	if h.Reduction == "" {
		h.Reduction = "RAW"
	}
	h.SetUTDateTime(d.UTDateTime)
	return h
}

// NewInstrumentRow 按仪器名构造扩展行；没有扩展表的仪器返回 nil。
func NewInstrumentRow(d *fits.Descriptors) InstrumentRow {
	switch InstrumentTable(d.Instrument) {
	case "gmos":
		return &Gmos{
			Disperser: d.Disperser, FilterName: d.FilterName,
			DetectorXBin: d.DetectorXBin, DetectorYBin: d.DetectorYBin,
			AmpReadArea: d.AmpReadArea, ReadSpeedSetting: d.DetectorReadSpeedSetting,
			GainSetting: d.DetectorGainSetting, FocalPlaneMask: d.FocalPlaneMask,
			NodAndShuffle: d.NodAndShuffle, NodCount: d.NodCount, NodPixels: d.NodPixels,
			Prepared: d.Prepared, OverscanTrimmed: d.OverscanTrimmed, OverscanSubtracted: d.OverscanSubtracted,
		}
	case "niri":
		return &Niri{
			Disperser: d.Disperser, FilterName: d.FilterName, ReadMode: d.DetectorReadModeSetting,
			WellDepthSetting: d.DetectorWellDepthSetting, DataSection: d.DataSection,
			Camera: d.Camera, FocalPlaneMask: d.FocalPlaneMask,
		}
	case "gnirs":
		return &Gnirs{
			Disperser: d.Disperser, FilterName: d.FilterName, ReadMode: d.DetectorReadModeSetting,
			WellDepthSetting: d.DetectorWellDepthSetting, Camera: d.Camera, FocalPlaneMask: d.FocalPlaneMask,
		}
	case "nifs":
		return &Nifs{
			Disperser: d.Disperser, FilterName: d.FilterName, ReadMode: d.DetectorReadModeSetting,
			FocalPlaneMask: d.FocalPlaneMask,
		}
	case "f2":
		return &F2{
			Disperser: d.Disperser, FilterName: d.FilterName, LyotStop: d.LyotStop,
			ReadMode: d.DetectorReadModeSetting, FocalPlaneMask: d.FocalPlaneMask,
		}
	case "michelle":
		return &Michelle{
			Disperser: d.Disperser, FilterName: d.FilterName, ReadMode: d.DetectorReadModeSetting,
			FocalPlaneMask: d.FocalPlaneMask,
		}
	case "gsaoi":
		return &Gsaoi{FilterName: d.FilterName, ReadMode: d.DetectorReadModeSetting}
	case "gpi":
		return &Gpi{
			Disperser: d.Disperser, FilterName: d.FilterName, FocalPlaneMask: d.FocalPlaneMask,
			PupilMask: d.PupilMask, Apodizer: d.Apodizer, Lyot: d.Lyot, Wollaston: d.Wollaston,
			Prism: d.Prism, AstrometricStandard: d.AstrometricStandard,
		}
	}
	return nil
}

// NewInstrumentRowFor 返回给定仪器的空扩展行，供查询时作为扫描目标。
func NewInstrumentRowFor(instrument string) InstrumentRow {
	return NewInstrumentRow(&fits.Descriptors{Instrument: instrument})
}

// Descriptors 把 Header 行（以及可选的扩展行）还原为描述符。
func (h *Header) Descriptors(inst InstrumentRow) *fits.Descriptors {
	d := &fits.Descriptors{
		Telescope:                h.Telescope,
		Instrument:               h.Instrument,
		ProgramID:                h.ProgramID,
		ObservationID:            h.ObservationID,
		DataLabel:                h.DataLabel,
		UTDateTime:               h.UTDateTime,
		LocalTime:                h.LocalTime,
		ObservationType:          h.ObservationType,
		ObservationClass:         h.ObservationClass,
		Object:                   h.Object,
		RA:                       h.RA,
		Dec:                      h.Dec,
		Azimuth:                  h.Azimuth,
		Elevation:                h.Elevation,
		CassRotatorPA:            h.CassRotatorPA,
		Airmass:                  h.Airmass,
		ExposureTime:             h.ExposureTime,
		FilterName:               h.FilterName,
		Disperser:                h.Disperser,
		Camera:                   h.Camera,
		CentralWavelength:        h.CentralWavelength,
		WavelengthBand:           h.WavelengthBand,
		FocalPlaneMask:           h.FocalPlaneMask,
		DetectorBinning:          h.DetectorBinning,
		DetectorConfig:           h.DetectorConfig,
		DetectorROISetting:       h.DetectorROISetting,
		DetectorGainSetting:      h.DetectorGainSetting,
		DetectorReadSpeedSetting: h.DetectorReadSpeedSetting,
		DetectorWellDepthSetting: h.DetectorWellDepthSetting,
		DetectorReadModeSetting:  h.DetectorReadModeSetting,
		Coadds:                   h.Coadds,
		Spectroscopy:             h.Spectroscopy,
		Mode:                     h.Mode,
		AdaptiveOptics:           h.AdaptiveOptics,
		LaserGuideStar:           h.LaserGuideStar,
		GcalLamp:                 h.GcalLamp,
		Types:                    fits.SplitTypes(h.Types),
		CalibrationProgram:       h.CalibrationProgram,
		RawIQ:                    h.RawIQ,
		RawCC:                    h.RawCC,
		RawWV:                    h.RawWV,
		RawBG:                    h.RawBG,
		RequestedIQ:              h.RequestedIQ,
		RequestedCC:              h.RequestedCC,
		RequestedWV:              h.RequestedWV,
		RequestedBG:              h.RequestedBG,
		QAState:                  h.QAState,
		Release:                  h.Release,
		Reduction:                h.Reduction,
		Engineering:              h.Engineering,
		ScienceVerification:      h.ScienceVerification,
		PhotStandard:             h.PhotStandard,
	}
	switch r := inst.(type) {
	case *Gmos:
		d.DetectorXBin, d.DetectorYBin = r.DetectorXBin, r.DetectorYBin
		d.AmpReadArea = r.AmpReadArea
		d.DetectorReadSpeedSetting, d.DetectorGainSetting = r.ReadSpeedSetting, r.GainSetting
		d.NodAndShuffle, d.NodCount, d.NodPixels = r.NodAndShuffle, r.NodCount, r.NodPixels
		d.Prepared, d.OverscanTrimmed, d.OverscanSubtracted = r.Prepared, r.OverscanTrimmed, r.OverscanSubtracted
	case *Niri:
		d.DetectorReadModeSetting, d.DetectorWellDepthSetting = r.ReadMode, r.WellDepthSetting
		d.DataSection = r.DataSection
	case *Gnirs:
		d.DetectorReadModeSetting, d.DetectorWellDepthSetting = r.ReadMode, r.WellDepthSetting
	case *Nifs:
		d.DetectorReadModeSetting = r.ReadMode
	case *F2:
		d.DetectorReadModeSetting, d.LyotStop = r.ReadMode, r.LyotStop
	case *Michelle:
		d.DetectorReadModeSetting = r.ReadMode
	case *Gsaoi:
		d.DetectorReadModeSetting = r.ReadMode
	case *Gpi:
		d.PupilMask, d.Apodizer, d.Lyot, d.Prism = r.PupilMask, r.Apodizer, r.Lyot, r.Prism
		d.Wollaston, d.AstrometricStandard = r.Wollaston, r.AstrometricStandard
	}
	return d
}
