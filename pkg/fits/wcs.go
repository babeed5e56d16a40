package fits

import (
	"fmt"
	"math"
	"strings"
)

// WCS 是一个图像扩展的线性 + 切平面投影参数。
type WCS struct {
	Extension string
	NAxis1    int
	NAxis2    int
	CType1    string
	CType2    string
	CRVal1    float64
	CRVal2    float64
	CRPix1    float64
	CRPix2    float64
	CD        [2][2]float64
}

// Point 是天球坐标（度）。
type Point struct {
	RA  float64
	Dec float64
}

// Footprint 是一个扩展四个像素角点对应的天球多边形。
type Footprint struct {
	Extension string
	Corners   [4]Point
}

// Area 以 "ra dec,ra dec,..." 的形式输出多边形，写入 footprint.area。
func (f Footprint) Area() string {
	parts := make([]string, len(f.Corners))
	for i, c := range f.Corners {
		parts[i] = fmt.Sprintf("%.7f %.7f", c.RA, c.Dec)
	}
	return strings.Join(parts, ",")
}

// WCSFromKeywords 从扩展卡片读取 WCS；缺少必要关键字时返回 false。
func WCSFromKeywords(name string, k *Keywords) (WCS, bool) {
	w := WCS{Extension: name, CType1: k.String("CTYPE1"), CType2: k.String("CTYPE2")}
	var ok bool
	if w.NAxis1, ok = k.Int("NAXIS1"); !ok {
		return w, false
	}
	if w.NAxis2, ok = k.Int("NAXIS2"); !ok {
		return w, false
	}
	for _, f := range []struct {
		key string
		dst *float64
	}{{"CRVAL1", &w.CRVal1}, {"CRVAL2", &w.CRVal2}, {"CRPIX1", &w.CRPix1}, {"CRPIX2", &w.CRPix2}} {
		if *f.dst, ok = k.Float(f.key); !ok {
			return w, false
		}
	}
	if k.Has("CD1_1") || k.Has("CD2_2") {
		w.CD[0][0], _ = k.Float("CD1_1")
		w.CD[0][1], _ = k.Float("CD1_2")
		w.CD[1][0], _ = k.Float("CD2_1")
		w.CD[1][1], _ = k.Float("CD2_2")
		return w, true
	}
	cdelt1, ok1 := k.Float("CDELT1")
	cdelt2, ok2 := k.Float("CDELT2")
	if !ok1 || !ok2 {
		return w, false
	}
	rot, _ := k.Float("CROTA2")
	s, c := math.Sincos(rot * math.Pi / 180)
	w.CD = [2][2]float64{{cdelt1 * c, -cdelt2 * s}, {cdelt1 * s, cdelt2 * c}}
	return w, true
}

// IsTAN 判断两轴是否均为切平面投影。
func (w WCS) IsTAN() bool {
	return strings.HasSuffix(w.CType1, "-TAN") && strings.HasSuffix(w.CType2, "-TAN")
}

// PixelToSky 按 gnomonic 逆投影把 1 起始的像素坐标转换为天球坐标。
func (w WCS) PixelToSky(px, py float64) Point {
	const deg = math.Pi / 180
	dx, dy := px-w.CRPix1, py-w.CRPix2
	xi := (w.CD[0][0]*dx + w.CD[0][1]*dy) * deg
	eta := (w.CD[1][0]*dx + w.CD[1][1]*dy) * deg
	ra0, dec0 := w.CRVal1*deg, w.CRVal2*deg

	sinDec0, cosDec0 := math.Sincos(dec0)
	den := cosDec0 - eta*sinDec0
	ra := ra0 + math.Atan2(xi, den)
	dec := math.Atan2(sinDec0+eta*cosDec0, math.Hypot(xi, den))

	raDeg := math.Mod(ra/deg, 360)
	if raDeg < 0 {
		raDeg += 360
	}
	return Point{RA: raDeg, Dec: dec / deg}
}

// Footprints 为每个 TAN 投影且 CD 矩阵可逆的扩展计算覆盖区域；其余扩展被跳过。
func Footprints(wcs []WCS) []Footprint {
	var out []Footprint
	for _, w := range wcs {
		if !w.IsTAN() {
			continue
		}
		det := w.CD[0][0]*w.CD[1][1] - w.CD[0][1]*w.CD[1][0]
		if det == 0 || math.IsNaN(det) {
			continue
		}
		nx, ny := float64(w.NAxis1), float64(w.NAxis2)
		out = append(out, Footprint{
			Extension: w.Extension,
			Corners: [4]Point{
				w.PixelToSky(1, 1),
				w.PixelToSky(nx, 1),
				w.PixelToSky(nx, ny),
				w.PixelToSky(1, ny),
			},
		})
	}
	return out
}

// Contains 判断点是否落在多边形内（射线法，RA 跨 0 度时先展开）。
func (f Footprint) Contains(p Point) bool {
	ref := f.Corners[0].RA
	unwrap := func(ra float64) float64 {
		switch {
		case ra-ref > 180:
			return ra - 360
		case ref-ra > 180:
			return ra + 360
		}
		return ra
	}
	x, y := unwrap(p.RA), p.Dec
	inside := false
	n := len(f.Corners)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := unwrap(f.Corners[i].RA), f.Corners[i].Dec
		xj, yj := unwrap(f.Corners[j].RA), f.Corners[j].Dec
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// Bounds 返回多边形的 RA/Dec 外接框。RA 跨 0 度时 minRA > maxRA。
func (f Footprint) Bounds() (minRA, maxRA, minDec, maxDec float64) {
	minRA, maxRA = f.Corners[0].RA, f.Corners[0].RA
	minDec, maxDec = f.Corners[0].Dec, f.Corners[0].Dec
	wraps := false
	for _, c := range f.Corners[1:] {
		if math.Abs(c.RA-f.Corners[0].RA) > 180 {
			wraps = true
		}
		minRA, maxRA = math.Min(minRA, c.RA), math.Max(maxRA, c.RA)
		minDec, maxDec = math.Min(minDec, c.Dec), math.Max(maxDec, c.Dec)
	}
	if wraps {
		minRA, maxRA = 360, 0
		for _, c := range f.Corners {
			if c.RA > 180 {
				minRA = math.Min(minRA, c.RA)
			} else {
				maxRA = math.Max(maxRA, c.RA)
			}
		}
	}
	return
}
