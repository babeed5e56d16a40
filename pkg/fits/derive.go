package fits

import (
	"sort"
	"strings"
	"time"
)

// Derive 从主 HDU 与扩展 HDU 的卡片推导描述符。primary 为 nil 时返回全部缺失的描述符。
func Derive(primary *Keywords, exts []*Keywords) *Descriptors {
	d := &Descriptors{QAState: "Undefined", Reduction: "RAW"}
	if primary == nil {
		return d
	}
	k := primary

	d.Instrument = normalizeInstrument(k.String("INSTRUME"))
	d.Telescope = normalizeTelescope(k.String("TELESCOP"))
	d.ProgramID = k.String("GEMPRGID")
	d.ObservationID = k.String("OBSID")
	d.DataLabel = k.String("DATALAB")
	d.UTDateTime = utDateTime(k)
	d.LocalTime = k.String("LT")

	d.ObservationType = strings.ToUpper(k.String("OBSTYPE"))
	d.ObservationClass = k.String("OBSCLASS")
	d.Object = k.String("OBJECT")

	d.RA = k.Angle("RA", true)
	d.Dec = k.Angle("DEC", false)
	d.Azimuth = k.FloatPtr("AZIMUTH")
	d.Elevation = k.FloatPtr("ELEVATIO")
	d.CassRotatorPA = k.FloatPtr("CRPA")
	d.Airmass = k.FloatPtr("AIRMASS")
	d.ExposureTime = k.FloatPtr("EXPTIME")
	if c, ok := k.Int("COADDS"); ok {
		d.Coadds = &c
	}

	d.FilterName = filterName(k)
	d.Camera = k.String("CAMERA")
	d.AdaptiveOptics = strings.EqualFold(k.String("AOFOLD"), "IN")
	d.LaserGuideStar = strings.EqualFold(k.String("LGUSTAGE"), "IN") || strings.EqualFold(k.String("LGSLOOP"), "CLOSED")
	d.GcalLamp = gcalLamp(k)

	d.RawIQ, d.RawCC = percentile(k.String("RAWIQ")), percentile(k.String("RAWCC"))
	d.RawWV, d.RawBG = percentile(k.String("RAWWV")), percentile(k.String("RAWBG"))
	d.RequestedIQ, d.RequestedCC = percentile(k.String("REQIQ")), percentile(k.String("REQCC"))
	d.RequestedWV, d.RequestedBG = percentile(k.String("REQWV")), percentile(k.String("REQBG"))
	d.QAState = qaState(k.String("RAWGEMQA"), k.String("RAWPIREQ"))
	if t, err := time.Parse("2006-01-02", k.String("RELEASE")); err == nil {
		d.Release = &t
	}
	d.Reduction, d.Prepared = reduction(k)

	pid := strings.ToUpper(d.ProgramID)
	d.Engineering = strings.Contains(pid, "-ENG")
	d.ScienceVerification = strings.Contains(pid, "-SV-")
	d.CalibrationProgram = strings.Contains(pid, "-CAL")

	switch {
	case d.IsGMOS():
		deriveGMOS(d, k, exts)
	case d.Instrument == "NIRI":
		deriveNIRI(d, k)
	case d.Instrument == "GNIRS":
		deriveGNIRS(d, k)
	case d.Instrument == "NIFS":
		deriveNIFS(d, k)
	case d.Instrument == "F2":
		deriveF2(d, k)
	case d.Instrument == "michelle":
		deriveMichelle(d, k)
	case d.Instrument == "GSAOI":
		deriveGSAOI(d, k)
	case d.Instrument == "GPI":
		deriveGPI(d, k)
	default:
		d.Disperser = firstOf(k, "DISPERSR", "GRATING", "GRISM")
		d.FocalPlaneMask = firstOf(k, "FPMASK", "MASKNAME", "SLIT")
	}

	if d.Mode == "" {
		d.Mode = "imaging"
		if d.Spectroscopy {
			d.Mode = "spectroscopy"
		}
	}
	d.WavelengthBand = wavelengthBand(d.FilterName, d.CentralWavelength)
	d.DetectorConfig = joinNonEmpty(d.DetectorGainSetting, d.DetectorReadSpeedSetting,
		d.DetectorWellDepthSetting, d.DetectorReadModeSetting, nsFlag(d.NodAndShuffle))
	d.Types = types(d)
	return d
}

func normalizeInstrument(s string) string {
	u := strings.ToUpper(s)
	switch {
	case u == "GMOS-N", u == "GMOS-S":
		return u
	case strings.HasPrefix(u, "FLAMINGOS"), u == "F2":
		return "F2"
	case u == "MICHELLE":
		return "michelle"
	case u == "":
		return ""
	}
	return u
}

func normalizeTelescope(s string) string {
	switch strings.ToLower(s) {
	case "gemini-north":
		return "North"
	case "gemini-south":
		return "South"
	}
	return s
}

// utDateTime 由 DATE-OBS 与 TIME-OBS（或 UT）组合出不带时区的 UTC 时间。
func utDateTime(k *Keywords) *time.Time {
	date := k.String("DATE-OBS")
	if date == "" {
		date = k.String("DATE")
	}
	if date == "" {
		return nil
	}
	if strings.Contains(date, "T") {
		if t, ok := parseUT(date); ok {
			return &t
		}
		date = date[:strings.Index(date, "T")]
	}
	tm := k.String("TIME-OBS")
	if tm == "" {
		tm = k.String("UT")
	}
	if tm == "" {
		tm = "00:00:00"
	}
	if t, ok := parseUT(date + "T" + tm); ok {
		return &t
	}
	return nil
}

func parseUT(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstOf(k *Keywords, keys ...string) string {
	for _, key := range keys {
		if v := k.String(key); v != "" {
			return v
		}
	}
	return ""
}

// filterName 合并多个滤光片轮，忽略 open/pupil 位置。
func filterName(k *Keywords) string {
	if f := k.String("FILTER"); f != "" {
		return f
	}
	var parts []string
	for _, key := range []string{"FILTER1", "FILTER2", "FILTER3"} {
		v := k.String(key)
		lv := strings.ToLower(v)
		if v == "" || strings.HasPrefix(lv, "open") || strings.HasPrefix(lv, "pupil") || lv == "empty" {
			continue
		}
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		if k.Has("FILTER1") || k.Has("FILTER2") {
			return "open"
		}
		return ""
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

func gcalLamp(k *Keywords) string {
	lamp := k.String("GCALLAMP")
	if lamp == "" {
		return ""
	}
	if strings.EqualFold(k.String("GCALSHUT"), "CLOSED") {
		return "Off"
	}
	return lamp
}

// percentile 把 "70-percentile" 之类的取值规范为 "70"，"Any" 规范为 "100"。
func percentile(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "UNKNOWN") {
		return ""
	}
	if strings.EqualFold(s, "Any") {
		return "100"
	}
	return strings.TrimSuffix(s, "-percentile")
}

// qaState 根据 RAWGEMQA 与 RAWPIREQ 推导 qa_state。
func qaState(gemqa, pireq string) string {
	gemqa, pireq = strings.ToUpper(gemqa), strings.ToUpper(pireq)
	switch {
	case gemqa == "BAD":
		return "Fail"
	case gemqa == "CHECK" || pireq == "CHECK":
		return "CHECK"
	case gemqa == "USABLE" && pireq == "YES":
		return "Pass"
	case gemqa == "USABLE" && pireq == "NO":
		return "Usable"
	}
	return "Undefined"
}

var processedKeywords = []struct{ key, reduction string }{
	{"PROCBIAS", "PROCESSED_BIAS"},
	{"PROCFLAT", "PROCESSED_FLAT"},
	{"PROCDARK", "PROCESSED_DARK"},
	{"PROCFRNG", "PROCESSED_FRINGE"},
	{"PROCARC", "PROCESSED_ARC"},
	{"PROCTELL", "PROCESSED_TELLURIC"},
	{"PROCSTND", "PROCESSED_STANDARD"},
}

func reduction(k *Keywords) (string, bool) {
	prepared := k.Has("GPREPARE") || k.Has("PREPARE")
	for _, p := range processedKeywords {
		if k.Has(p.key) {
			return p.reduction, prepared
		}
	}
	if k.Has("PROCSCI") || k.Has("PROCMODE") {
		return "PROCESSED_UNKNOWN", prepared
	}
	if prepared {
		return "PREPARED", true
	}
	return "RAW", false
}

var bandByWavelength = []struct {
	max  float64
	band string
}{
	{0.40, "u"}, {0.50, "g"}, {0.62, "r"}, {0.75, "i"}, {0.95, "z"},
	{1.10, "Y"}, {1.40, "J"}, {1.90, "H"}, {2.50, "K"}, {4.20, "L"},
	{5.50, "M"}, {14.0, "N"}, {30.0, "Q"},
}

// wavelengthBand 优先取滤光片名首字母，否则按中心波长（µm）落入的区间。
func wavelengthBand(filter string, cwl *float64) string {
	f := filter
	if i := strings.IndexAny(f, "_&"); i > 0 {
		f = f[:i]
	}
	switch f {
	case "u", "g", "r", "i", "z", "Y", "J", "H", "K", "L", "M", "N", "Q":
		return f
	case "Ks", "Kshort", "Kprime", "Kcntshrt", "Klong":
		return "K"
	case "Lprime", "Lp":
		return "L"
	case "Mprime", "Mp":
		return "M"
	}
	if cwl == nil || *cwl <= 0 {
		return ""
	}
	for _, b := range bandByWavelength {
		if *cwl < b.max {
			return b.band
		}
	}
	return ""
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func nsFlag(ns bool) string {
	if ns {
		return "NodAndShuffle"
	}
	return ""
}

// types 生成 header.types 中的标签。
func types(d *Descriptors) []string {
	var t []string
	if d.IsGMOS() {
		t = append(t, "GMOS")
	}
	if d.Instrument != "" {
		t = append(t, strings.ToUpper(d.Instrument))
	}
	if d.Spectroscopy {
		t = append(t, "SPECT")
		switch d.Mode {
		case "LS", "MOS":
			t = append(t, d.Mode)
		case "IFS":
			t = append(t, "IFU")
		}
	} else {
		t = append(t, "IMAGE")
	}
	if d.Wollaston {
		t = append(t, "POL")
	}
	if d.ObservationType != "" {
		t = append(t, d.ObservationType)
	}
	if d.AdaptiveOptics {
		t = append(t, "AO")
	}
	switch {
	case strings.HasPrefix(d.Reduction, "PROCESSED"):
		t = append(t, "PROCESSED")
	case d.Prepared:
		t = append(t, "PREPARED")
	default:
		t = append(t, "RAW")
	}
	return t
}

// spectroscopicMode 根据焦面掩模名区分 LS/MOS/IFS。
func spectroscopicMode(fpm string, maskType int) string {
	switch {
	case strings.HasPrefix(strings.ToUpper(fpm), "IFU"):
		return "IFS"
	case strings.Contains(fpm, "arcsec"):
		return "LS"
	case maskType == 1 && fpm != "" && !strings.EqualFold(fpm, "None"):
		return "MOS"
	}
	return "LS"
}
