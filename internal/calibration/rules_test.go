package calibration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsstore-go/internal/model"
	"fitsstore-go/pkg/fits"
)

func intp(i int) *int { return &i }

// ruleCase 描述一条定标规则：candidate 在时间窗内且满足全部谓词，
// 每个 spoil 破坏其中一个谓词，另有一个相同的候选落在时间窗外。
type ruleCase struct {
	name      string
	sci       func() *fits.Descriptors
	caltype   string
	window    time.Duration
	candidate func() (model.Header, model.InstrumentRow)
	spoil     []func(h *model.Header, row model.InstrumentRow)
}

const sciTime = "2020-05-01T06:00:00"

func gmosSpectrum() *fits.Descriptors {
	d := gmosScience()
	d.Spectroscopy, d.Mode = true, "LS"
	d.FilterName, d.FocalPlaneMask = "open1-6&open2-8", "1.0arcsec"
	d.Disperser, d.CentralWavelength = "B600+_G5307", ptr(0.52)
	return d
}

func gmosImaging() *fits.Descriptors {
	d := gmosScience()
	d.FilterName = "r_G0303"
	return d
}

func gnirsSpectrum() *fits.Descriptors {
	return &fits.Descriptors{
		Instrument: "GNIRS", ObservationType: "OBJECT", ObservationClass: "science",
		Spectroscopy: true, Mode: "LS", Disperser: "32/mmSB_G5533&SXD_G5536",
		CentralWavelength: ptr(1.65), FocalPlaneMask: "0.30arcsec", Camera: "ShortBlue_G5540",
		FilterName: "XD_G0526", DetectorWellDepthSetting: "Shallow", UTDateTime: at(sciTime),
	}
}

func gnirsConfig(obstype string) model.Header {
	return model.Header{
		Instrument: "GNIRS", ObservationType: obstype, Disperser: "32/mmSB_G5533&SXD_G5536",
		CentralWavelength: ptr(1.6505), FocalPlaneMask: "0.30arcsec", Camera: "ShortBlue_G5540",
		FilterName: "XD_G0526",
	}
}

func nifsSpectrum() *fits.Descriptors {
	return &fits.Descriptors{
		Instrument: "NIFS", ObservationType: "OBJECT", ObservationClass: "science",
		Spectroscopy: true, Mode: "IFS", Disperser: "K_G5605", CentralWavelength: ptr(2.2),
		FocalPlaneMask: "3.0_Mask_G5610", FilterName: "HK_G0603", UTDateTime: at(sciTime),
	}
}

func nifsConfig(obstype string) model.Header {
	return model.Header{
		Instrument: "NIFS", ObservationType: obstype, Disperser: "K_G5605", CentralWavelength: ptr(2.2),
		FocalPlaneMask: "3.0_Mask_G5610", FilterName: "HK_G0603",
	}
}

func f2Science(spectroscopy bool) func() *fits.Descriptors {
	return func() *fits.Descriptors {
		d := &fits.Descriptors{
			Instrument: "F2", ObservationType: "OBJECT", ObservationClass: "science",
			FilterName: "J_G0802", FocalPlaneMask: "Open", LyotStop: "f/16_G5830",
			DetectorReadModeSetting: "Bright Objects", ExposureTime: ptr(60), UTDateTime: at(sciTime),
		}
		if spectroscopy {
			d.Spectroscopy, d.Mode = true, "LS"
			d.Disperser, d.FocalPlaneMask, d.FilterName = "JH_G5801", "4pix-slit", "JH_G0809"
			d.CentralWavelength = ptr(1.39)
		}
		return d
	}
}

func f2Row() model.InstrumentRow {
	return &model.F2{LyotStop: "f/16_G5830", ReadMode: "Bright Objects"}
}

func gpiScience(wollaston bool) func() *fits.Descriptors {
	return func() *fits.Descriptors {
		return &fits.Descriptors{
			Instrument: "GPI", ObservationType: "OBJECT", ObservationClass: "science",
			Spectroscopy: true, Mode: "IFS", FilterName: "H", Disperser: "DISP_PRISM_G6262",
			ExposureTime: ptr(60), Wollaston: wollaston, UTDateTime: at(sciTime),
		}
	}
}

func gpiStandard() model.Header {
	return model.Header{
		Instrument: "GPI", ObservationType: "OBJECT", ObservationClass: "science",
		CalibrationProgram: true, Spectroscopy: true, FilterName: "H", Disperser: "DISP_PRISM_G6262",
	}
}

func gsaoiScience() *fits.Descriptors {
	return &fits.Descriptors{
		Instrument: "GSAOI", ObservationType: "OBJECT", ObservationClass: "science",
		FilterName: "Kshort_G1105", DetectorReadModeSetting: "FOWLER", UTDateTime: at(sciTime),
	}
}

func gsaoiFlat(object string) func() (model.Header, model.InstrumentRow) {
	return func() (model.Header, model.InstrumentRow) {
		return model.Header{Instrument: "GSAOI", ObservationType: "FLAT", Object: object, FilterName: "Kshort_G1105"},
			&model.Gsaoi{ReadMode: "FOWLER"}
	}
}

func michelleScience(spectroscopy bool) func() *fits.Descriptors {
	return func() *fits.Descriptors {
		d := &fits.Descriptors{
			Instrument: "michelle", ObservationType: "OBJECT", ObservationClass: "science",
			DetectorReadModeSetting: "chop-nod", ExposureTime: ptr(10), Coadds: intp(1),
			FilterName: "N'", UTDateTime: at(sciTime),
		}
		if spectroscopy {
			d.Spectroscopy, d.Mode = true, "LS"
			d.Disperser, d.FocalPlaneMask, d.CentralWavelength = "LowN", "2_pixels", ptr(10.5)
		}
		return d
	}
}

var ruleCases = []ruleCase{
	{
		name: "gmos imaging twilight flat", sci: gmosImaging, caltype: Flat, window: 180 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{
				Instrument: "GMOS-N", ObservationType: "OBJECT", ObservationClass: "dayCal",
				Object: "Twilight", FilterName: "r_G0303", FocalPlaneMask: "Imaging",
			}, gmosRow()
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.FilterName = "g_G0301" },
			func(h *model.Header, _ model.InstrumentRow) { h.Object = "NGC 1068" },
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.Gmos).GainSetting = "high" },
		},
	},
	{
		name: "gmos processed fringe", sci: gmosImaging, caltype: Processed(Fringe), window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{
				Instrument: "GMOS-N", ObservationType: "OBJECT", Reduction: "PROCESSED_FRINGE", FilterName: "r_G0303",
			}, gmosRow()
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.Gmos).DetectorXBin = 1 },
			func(h *model.Header, _ model.InstrumentRow) { h.Reduction = "PROCESSED_FLAT" },
		},
	},
	{
		name: "gmos spectwilight", sci: gmosSpectrum, caltype: SpecTwilight, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{
				Instrument: "GMOS-N", ObservationType: "OBJECT", ObservationClass: "dayCal", Object: "Twilight",
				Spectroscopy: true, FilterName: "open1-6&open2-8", Disperser: "B600+_G5307",
				FocalPlaneMask: "1.0arcsec", CentralWavelength: ptr(0.5215),
			}, gmosRow()
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.CentralWavelength = ptr(0.53) },
			func(h *model.Header, _ model.InstrumentRow) { h.ObservationClass = "partnerCal" },
		},
	},
	{
		name: "gmos specphot", sci: gmosSpectrum, caltype: SpecPhot, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{
				Instrument: "GMOS-N", ObservationType: "OBJECT", ObservationClass: "partnerCal",
				Spectroscopy: true, FilterName: "open1-6&open2-8", Disperser: "B600+_G5307",
				FocalPlaneMask: "1.0arcsec", CentralWavelength: ptr(0.56),
			}, gmosRow()
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.ObservationClass = "science" },
			func(h *model.Header, _ model.InstrumentRow) { h.CentralWavelength = ptr(0.6) },
		},
	},
	{
		name: "niri flat",
		sci: func() *fits.Descriptors {
			return &fits.Descriptors{
				Instrument: "NIRI", ObservationType: "OBJECT", ObservationClass: "science",
				FilterName: "J_G0202", Camera: "f6", DataSection: "[1:1024,1:1024]",
				DetectorWellDepthSetting: "Shallow", UTDateTime: at(sciTime),
			}
		},
		caltype: Flat, window: 180 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "NIRI", ObservationType: "FLAT", FilterName: "J_G0202", Camera: "f6"},
				&model.Niri{DataSection: "[1:1024,1:1024]", WellDepthSetting: "Shallow"}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.Camera = "f32" },
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.Niri).WellDepthSetting = "Deep" },
		},
	},
	{
		name: "gnirs dark",
		sci: func() *fits.Descriptors {
			return &fits.Descriptors{
				Instrument: "GNIRS", ObservationType: "OBJECT", ObservationClass: "science",
				DetectorReadModeSetting: "Bright Objects", DetectorWellDepthSetting: "Shallow",
				ExposureTime: ptr(5), Coadds: intp(3), UTDateTime: at(sciTime),
			}
		},
		caltype: Dark, window: 90 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "GNIRS", ObservationType: "DARK", ExposureTime: ptr(5.005), Coadds: intp(3)},
				&model.Gnirs{ReadMode: "Bright Objects", WellDepthSetting: "Shallow"}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.Coadds = intp(1) },
			func(h *model.Header, _ model.InstrumentRow) { h.ExposureTime = ptr(5.1) },
		},
	},
	{
		name: "gnirs flat", sci: gnirsSpectrum, caltype: Flat, window: 90 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return gnirsConfig("FLAT"), &model.Gnirs{WellDepthSetting: "Shallow"}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.Gnirs).WellDepthSetting = "Deep" },
			func(h *model.Header, _ model.InstrumentRow) { h.Camera = "LongBlue_G5542" },
		},
	},
	{
		name: "gnirs qh flat", sci: gnirsSpectrum, caltype: QHFlat, window: 90 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			h := gnirsConfig("FLAT")
			h.GcalLamp = "QH"
			return h, &model.Gnirs{WellDepthSetting: "Shallow"}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.GcalLamp = "IRhigh" },
		},
	},
	{
		name: "gnirs arc", sci: gnirsSpectrum, caltype: Arc, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return gnirsConfig("ARC"), &model.Gnirs{}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.FocalPlaneMask = "1.0arcsec" },
			func(h *model.Header, _ model.InstrumentRow) { h.CentralWavelength = ptr(1.7) },
		},
	},
	{
		name: "gnirs pinhole", sci: gnirsSpectrum, caltype: PinholeMask, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			h := gnirsConfig("PINHOLE")
			h.FocalPlaneMask = "LgPinholes_G5530"
			return h, &model.Gnirs{}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.Disperser = "111/mm_G5534&SXD_G5536" },
			func(h *model.Header, _ model.InstrumentRow) { h.ObservationType = "FLAT" },
		},
	},
	{
		name: "nifs flat", sci: nifsSpectrum, caltype: Flat, window: 10 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			h := nifsConfig("FLAT")
			h.GcalLamp = "IRhigh"
			return h, &model.Nifs{}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.GcalLamp = "Off" },
			func(h *model.Header, _ model.InstrumentRow) { h.FilterName = "JH_G0602" },
		},
	},
	{
		name: "nifs arc", sci: nifsSpectrum, caltype: Arc, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return nifsConfig("ARC"), &model.Nifs{}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.FocalPlaneMask = "Blocked_G5621" },
		},
	},
	{
		name: "nifs ronchi", sci: nifsSpectrum, caltype: RonchiMask, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			h := nifsConfig("RONCHI")
			h.FocalPlaneMask = "Ronchi_Screen_G5615"
			return h, &model.Nifs{}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.CentralWavelength = ptr(2.3) },
		},
	},
	{
		name: "nifs telluric", sci: nifsSpectrum, caltype: TelluricStandard, window: day,
		candidate: func() (model.Header, model.InstrumentRow) {
			h := nifsConfig("OBJECT")
			h.ObservationClass = "partnerCal"
			return h, &model.Nifs{}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.ObservationClass = "science" },
			func(h *model.Header, _ model.InstrumentRow) { h.Disperser = "J_G5603" },
		},
	},
	{
		name: "michelle dark", sci: michelleScience(false), caltype: Dark, window: day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "michelle", ObservationType: "DARK", ExposureTime: ptr(10), Coadds: intp(1)},
				&model.Michelle{ReadMode: "chop-nod"}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.Michelle).ReadMode = "stare" },
		},
	},
	{
		name: "michelle spectroscopy flat", sci: michelleScience(true), caltype: Flat, window: day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{
				Instrument: "michelle", ObservationType: "FLAT", FilterName: "N'", Disperser: "LowN",
				FocalPlaneMask: "2_pixels", CentralWavelength: ptr(10.5),
			}, &model.Michelle{ReadMode: "chop-nod"}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.Disperser = "MedN1" },
			func(h *model.Header, _ model.InstrumentRow) { h.FocalPlaneMask = "4_pixels" },
		},
	},
	{
		name: "f2 dark", sci: f2Science(false), caltype: Dark, window: 90 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "F2", ObservationType: "DARK", ExposureTime: ptr(60)}, f2Row()
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.F2).ReadMode = "Faint Objects" },
		},
	},
	{
		name: "f2 imaging flat", sci: f2Science(false), caltype: Flat, window: 90 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "F2", ObservationType: "FLAT", FilterName: "J_G0802", FocalPlaneMask: "Open"}, f2Row()
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.F2).LyotStop = "GEMS_under_G5835" },
			func(h *model.Header, _ model.InstrumentRow) { h.FilterName = "H_G0803" },
		},
	},
	{
		name: "f2 spectroscopy flat", sci: f2Science(true), caltype: Flat, window: 90 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{
				Instrument: "F2", ObservationType: "FLAT", FilterName: "JH_G0809", Disperser: "JH_G5801",
				FocalPlaneMask: "4pix-slit", CentralWavelength: ptr(1.3905),
			}, f2Row()
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.CentralWavelength = ptr(1.5) },
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.F2).LyotStop = "GEMS_under_G5835" },
		},
	},
	{
		name: "f2 arc", sci: f2Science(true), caltype: Arc, window: 90 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{
				Instrument: "F2", ObservationType: "ARC", FilterName: "JH_G0809", Disperser: "JH_G5801",
				FocalPlaneMask: "4pix-slit", CentralWavelength: ptr(1.39),
			}, f2Row()
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.FocalPlaneMask = "2pix-slit" },
		},
	},
	{
		name: "gpi dark exposure tolerance", sci: gpiScience(false), caltype: Dark, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "GPI", ObservationType: "DARK", ExposureTime: ptr(69)}, &model.Gpi{}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.ExposureTime = ptr(71) },
			func(h *model.Header, _ model.InstrumentRow) { h.ExposureTime = ptr(49) },
		},
	},
	{
		name: "gpi arc", sci: gpiScience(false), caltype: Arc, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "GPI", ObservationType: "ARC", FilterName: "H", Disperser: "DISP_PRISM_G6262"}, &model.Gpi{}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.FilterName = "J" },
		},
	},
	{
		name: "gpi telluric", sci: gpiScience(false), caltype: TelluricStandard, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return gpiStandard(), &model.Gpi{}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.CalibrationProgram = false },
			func(h *model.Header, _ model.InstrumentRow) { h.ObservationClass = "partnerCal" },
			func(h *model.Header, _ model.InstrumentRow) { h.Spectroscopy = false },
		},
	},
	{
		name: "gpi polarization standard", sci: gpiScience(true), caltype: PolarizationStandard, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return gpiStandard(), &model.Gpi{Wollaston: true}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.Gpi).Wollaston = false },
			func(h *model.Header, _ model.InstrumentRow) { h.CalibrationProgram = false },
		},
	},
	{
		name: "gpi polarization flat", sci: gpiScience(true), caltype: PolarizationFlat, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "GPI", ObservationType: "FLAT", FilterName: "H"}, &model.Gpi{Wollaston: true}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.FilterName = "K1" },
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.Gpi).Wollaston = false },
		},
	},
	{
		name: "gpi astrometric standard", sci: gpiScience(false), caltype: AstrometricStandard, window: 365 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "GPI", ObservationType: "OBJECT"}, &model.Gpi{AstrometricStandard: true}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.Gpi).AstrometricStandard = false },
		},
	},
	{
		name: "gsaoi domeflat", sci: gsaoiScience, caltype: DomeFlat, window: 30 * day,
		candidate: gsaoiFlat("Domeflat"),
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.Object = "Domeflat OFF" },
			func(_ *model.Header, r model.InstrumentRow) { r.(*model.Gsaoi).ReadMode = "BRIGHT" },
		},
	},
	{
		name: "gsaoi lampoff flat", sci: gsaoiScience, caltype: LampoffFlat, window: 30 * day,
		candidate: gsaoiFlat("Domeflat OFF"),
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.Object = "Domeflat" },
			func(h *model.Header, _ model.InstrumentRow) { h.FilterName = "J_G1102" },
		},
	},
	{
		name: "gsaoi processed domeflat", sci: gsaoiScience, caltype: Processed(DomeFlat), window: 30 * day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "GSAOI", ObservationType: "FLAT", Reduction: "PROCESSED_FLAT", FilterName: "Kshort_G1105"},
				&model.Gsaoi{ReadMode: "FOWLER"}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.Reduction = "RAW" },
		},
	},
	{
		name: "gsaoi photometric standard", sci: gsaoiScience, caltype: PhotometricStandard, window: day,
		candidate: func() (model.Header, model.InstrumentRow) {
			return model.Header{Instrument: "GSAOI", ObservationType: "OBJECT", PhotStandard: true, FilterName: "Kshort_G1105"},
				&model.Gsaoi{}
		},
		spoil: []func(*model.Header, model.InstrumentRow){
			func(h *model.Header, _ model.InstrumentRow) { h.PhotStandard = false },
			func(h *model.Header, _ model.InstrumentRow) { h.FilterName = "H_G1103" },
		},
	},
}

func TestRulesMatchOnlyWithinWindowAndPredicates(t *testing.T) {
	for _, tc := range ruleCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			sci := tc.sci()
			ut := *sci.UTDateTime

			h, row := tc.candidate()
			inside := ut.Add(10 * time.Minute)
			match := f.add(h, &inside, row, true)

			outside := ut.Add(tc.window + time.Hour)
			h, row = tc.candidate()
			f.add(h, &outside, row, true)

			for _, spoil := range tc.spoil {
				h, row = tc.candidate()
				spoil(&h, row)
				near := ut.Add(5 * time.Minute)
				f.add(h, &near, row, true)
			}

			c := New(f.db, sci)
			assert.Contains(t, c.Applicable(), tc.caltype)
			got, err := Lookup(context.Background(), c, tc.caltype, 0)
			require.NoError(t, err)
			assert.Equal(t, []uint{match.ID}, ids(got))
		})
	}
}
