package fits

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

func deriveGMOS(d *Descriptors, k *Keywords, exts []*Keywords) {
	d.Disperser = k.String("GRATING")
	d.FocalPlaneMask = k.String("MASKNAME")
	d.Spectroscopy = d.Disperser != "" && !strings.EqualFold(d.Disperser, "MIRROR")
	if d.Spectroscopy {
		maskType, _ := k.Int("MASKTYP")
		d.Mode = spectroscopicMode(d.FocalPlaneMask, maskType)
		if nm, ok := k.Float("CENTWAVE"); ok {
			um := nm / 1000
			d.CentralWavelength = &um
		}
	} else if d.FocalPlaneMask == "" || strings.EqualFold(d.FocalPlaneMask, "None") {
		// 成像观测的 MASKNAME 为 "None" 或缺失
		d.FocalPlaneMask = "Imaging"
	}

	ccdsum := k.String("CCDSUM")
	if ccdsum == "" {
		for _, e := range exts {
			if ccdsum = e.String("CCDSUM"); ccdsum != "" {
				break
			}
		}
	}
	if f := strings.Fields(ccdsum); len(f) == 2 {
		d.DetectorXBin, _ = strconv.Atoi(f[0])
		d.DetectorYBin, _ = strconv.Atoi(f[1])
		d.DetectorBinning = fmt.Sprintf("%dx%d", d.DetectorXBin, d.DetectorYBin)
	}

	if integ, ok := k.Float("AMPINTEG"); ok {
		if integ > 3000 {
			d.DetectorReadSpeedSetting = "slow"
		} else {
			d.DetectorReadSpeedSetting = "fast"
		}
	}
	gainKeys := k
	if len(exts) > 0 {
		gainKeys = exts[0]
	}
	if g, ok := gainKeys.Float("GAIN"); ok {
		if g > 3 {
			d.DetectorGainSetting = "high"
		} else {
			d.DetectorGainSetting = "low"
		}
	}

	d.DetectorROISetting = gmosROI(k)
	d.AmpReadArea = ampReadArea(exts)

	if pix, ok := k.Int("NODPIX"); ok && pix > 0 {
		d.NodAndShuffle = true
		d.NodPixels = pix
		if c, ok := k.Int("NODCOUNT"); ok {
			d.NodCount = c
		} else if c, ok := k.Int("ANODCNT"); ok {
			d.NodCount = c
		}
	}
	d.OverscanSubtracted = k.Has("OVERSUB")
	d.OverscanTrimmed = k.Has("TRIMMED")
}

// gmosROI 依据第一个 ROI 的起点与尺寸（未合并像素）给出命名的 ROI。
func gmosROI(k *Keywords) string {
	if roi := k.String("DETROI"); roi != "" {
		return roi
	}
	n, ok := k.Int("DETNROI")
	if !ok || n == 0 {
		return ""
	}
	if n > 1 {
		return "Custom"
	}
	x, _ := k.Int("DETRO1X")
	xs, _ := k.Int("DETRO1XS")
	y, _ := k.Int("DETRO1Y")
	ys, _ := k.Int("DETRO1YS")
	switch {
	case x <= 1 && y <= 1 && ys >= 4096:
		return "Full Frame"
	case xs <= 300 && ys <= 300:
		return "Central Stamp"
	case xs >= 6144 && ys >= 1000 && ys <= 1100:
		return "Central Spectrum"
	}
	return "Custom"
}

// ampReadArea 由各扩展的 AMPNAME 与 DETSEC 组成，按字典序以 "+" 连接。
func ampReadArea(exts []*Keywords) string {
	var areas []string
	for _, e := range exts {
		amp, sec := e.String("AMPNAME"), e.String("DETSEC")
		if amp == "" || sec == "" {
			continue
		}
		areas = append(areas, fmt.Sprintf("'%s':%s", amp, sec))
	}
	sort.Strings(areas)
	return strings.Join(areas, "+")
}

// irReadMode 依据 LNRS/NDAVGS 组合查表。
func irReadMode(k *Keywords, table map[[2]int]string) string {
	lnrs, ok1 := k.Int("LNRS")
	ndavgs, ok2 := k.Int("NDAVGS")
	if !ok1 {
		return ""
	}
	if !ok2 {
		ndavgs = 0
	}
	if m, ok := table[[2]int{lnrs, ndavgs}]; ok {
		return m
	}
	if m, ok := table[[2]int{lnrs, 0}]; ok {
		return m
	}
	return "Invalid"
}

var niriReadModes = map[[2]int]string{
	{16, 16}: "Low Background",
	{1, 16}:  "Medium Background",
	{1, 1}:   "High Background",
}

func deriveNIRI(d *Descriptors, k *Keywords) {
	for _, key := range []string{"FILTER1", "FILTER2", "FILTER3"} {
		if v := k.String(key); strings.Contains(strings.ToLower(v), "grism") {
			d.Disperser = v
			d.Spectroscopy = true
		}
	}
	if d.Disperser == "" {
		d.Disperser = "MIRROR"
	}
	d.FocalPlaneMask = k.String("FPMASK")
	if d.Spectroscopy {
		d.Mode = "LS"
	}
	d.DetectorReadModeSetting = irReadMode(k, niriReadModes)
	if vdduc, ok := k.Float("A_VDDUC"); ok {
		if vdet, ok := k.Float("A_VDET"); ok {
			if math.Abs(vdduc-vdet) < 0.7 {
				d.DetectorWellDepthSetting = "Shallow"
			} else {
				d.DetectorWellDepthSetting = "Deep"
			}
		}
	}
	lr, ok1 := k.Int("LOWROW")
	hr, ok2 := k.Int("HIROW")
	lc, ok3 := k.Int("LOWCOL")
	hc, ok4 := k.Int("HICOL")
	if ok1 && ok2 && ok3 && ok4 {
		d.DataSection = fmt.Sprintf("[%d:%d,%d:%d]", lc+1, hc+1, lr+1, hr+1)
	} else {
		d.DataSection = k.String("DATASEC")
	}
}

var gnirsReadModes = map[[2]int]string{
	{32, 16}: "Very Faint Objects",
	{16, 16}: "Faint Objects",
	{1, 16}:  "Bright Objects",
	{1, 1}:   "Very Bright Objects",
}

func deriveGNIRS(d *Descriptors, k *Keywords) {
	d.Disperser = k.String("GRATING")
	if p := k.String("PRISM"); p != "" && !strings.HasPrefix(strings.ToUpper(p), "MIR") {
		d.Disperser += "&" + p
	}
	d.FocalPlaneMask = firstOf(k, "SLIT", "DECKER")
	d.Spectroscopy = strings.EqualFold(k.String("ACQMIR"), "Out")
	if d.Spectroscopy {
		d.CentralWavelength = k.FloatPtr("GRATWAVE")
		if strings.Contains(strings.ToUpper(d.FocalPlaneMask), "IFU") {
			d.Mode = "IFS"
		} else {
			d.Mode = "LS"
		}
	}
	d.DetectorReadModeSetting = irReadMode(k, gnirsReadModes)
	if bias, ok := k.Float("DETBIAS"); ok {
		if math.Abs(bias) < 0.45 {
			d.DetectorWellDepthSetting = "Shallow"
		} else {
			d.DetectorWellDepthSetting = "Deep"
		}
	}
}

var nifsReadModes = map[[2]int]string{
	{1, 0}:  "Bright Object",
	{4, 0}:  "Medium Object",
	{16, 0}: "Faint Object",
}

func deriveNIFS(d *Descriptors, k *Keywords) {
	d.Disperser = k.String("GRATING")
	d.FocalPlaneMask = k.String("APERTURE")
	d.Spectroscopy = !strings.EqualFold(k.String("FLIP"), "In")
	if d.Spectroscopy {
		d.Mode = "IFS"
		d.CentralWavelength = k.FloatPtr("GRATWAVE")
	}
	d.DetectorReadModeSetting = irReadMode(k, nifsReadModes)
}

func deriveF2(d *Descriptors, k *Keywords) {
	d.Disperser = k.String("GRISM")
	d.FocalPlaneMask = firstOf(k, "MASKNAME", "MOSPOS")
	d.LyotStop = k.String("LYOT")
	d.Spectroscopy = d.Disperser != "" && !strings.EqualFold(d.Disperser, "Open")
	if d.Spectroscopy {
		maskType, _ := k.Int("MASKTYPE")
		d.Mode = spectroscopicMode(d.FocalPlaneMask, maskType)
		d.CentralWavelength = k.FloatPtr("GRWLEN")
	}
	if lnrs, ok := k.Int("LNRS"); ok {
		d.DetectorReadModeSetting = strconv.Itoa(lnrs)
	}
}

func deriveMichelle(d *Descriptors, k *Keywords) {
	d.Disperser = k.String("GRATING")
	d.FocalPlaneMask = k.String("SLIT")
	d.Spectroscopy = strings.EqualFold(k.String("CAMERA"), "spectroscopy")
	if d.FilterName == "" {
		d.FilterName = filterName(&Keywords{values: map[string]interface{}{
			"FILTER1": k.String("FILTERA"), "FILTER2": k.String("FILTERB"),
		}})
	}
	if d.Spectroscopy {
		d.Mode = "LS"
		d.CentralWavelength = k.FloatPtr("CENTWAVE")
	}
	d.DetectorReadModeSetting = k.String("MODE")
}

var gsaoiReadModes = map[[2]int]string{
	{2, 0}:  "Bright Objects",
	{8, 0}:  "Faint Objects",
	{16, 0}: "Very Faint Objects",
}

func deriveGSAOI(d *Descriptors, k *Keywords) {
	d.Disperser = "MIRROR"
	d.DetectorReadModeSetting = irReadMode(k, gsaoiReadModes)
}

func deriveGPI(d *Descriptors, k *Keywords) {
	d.Disperser = k.String("DISPERSR")
	d.Wollaston = strings.Contains(strings.ToUpper(d.Disperser), "WOLLASTON")
	d.Prism = d.Disperser
	if f := k.String("IFSFILT"); f != "" {
		parts := strings.Split(f, "_")
		if len(parts) >= 2 {
			d.FilterName = parts[1]
		} else {
			d.FilterName = f
		}
	}
	d.FocalPlaneMask = k.String("OCCULTER")
	d.PupilMask = k.String("PUPILMSK")
	d.Apodizer = k.String("APODIZER")
	d.Lyot = k.String("LYOTMASK")
	d.AstrometricStandard = k.Bool("ASTROMTC")
	d.Spectroscopy = true
	d.Mode = "IFS"
}
