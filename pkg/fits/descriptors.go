// Package fits 从 FITS 文件中提取归档所需的描述符、全文头信息、WCS 覆盖区域以及预览图。
package fits

import (
	"strings"
	"time"
)

// Descriptors 是一个观测的描述符集合。
// 可选数值用指针表示，字符串为空即表示缺失；提取器从不因关键字缺失而报错。
type Descriptors struct {
	Telescope     string
	Instrument    string
	ProgramID     string
	ObservationID string
	DataLabel     string

	UTDateTime *time.Time
	LocalTime  string

	ObservationType  string
	ObservationClass string
	Object           string

	RA            *float64
	Dec           *float64
	Azimuth       *float64
	Elevation     *float64
	CassRotatorPA *float64
	Airmass       *float64
	ExposureTime  *float64

	FilterName        string
	Disperser         string
	Camera            string
	CentralWavelength *float64
	WavelengthBand    string
	FocalPlaneMask    string

	DetectorBinning          string
	DetectorConfig           string
	DetectorROISetting       string
	DetectorGainSetting      string
	DetectorReadSpeedSetting string
	DetectorWellDepthSetting string
	DetectorReadModeSetting  string
	Coadds                   *int

	Spectroscopy       bool
	Mode               string
	AdaptiveOptics     bool
	LaserGuideStar     bool
	GcalLamp           string
	Types              []string
	CalibrationProgram bool

	RawIQ, RawCC, RawWV, RawBG                         string
	RequestedIQ, RequestedCC, RequestedWV, RequestedBG string

	QAState             string
	Release             *time.Time
	Reduction           string
	Engineering         bool
	ScienceVerification bool
	PhotStandard        bool

	// 仪器扩展字段
	DetectorXBin        int
	DetectorYBin        int
	AmpReadArea         string
	NodAndShuffle       bool
	NodCount            int
	NodPixels           int
	Prepared            bool
	OverscanTrimmed     bool
	OverscanSubtracted  bool
	DataSection         string
	LyotStop            string
	PupilMask           string
	Apodizer            string
	Lyot                string
	Prism               string
	Wollaston           bool
	AstrometricStandard bool
}

// HasType 判断类型标签集合中是否包含 tag。
func (d *Descriptors) HasType(tag string) bool {
	for _, t := range d.Types {
		if t == tag {
			return true
		}
	}
	return false
}

// TypesString 把标签集合拼成空格分隔的字符串存入 header.types。
func (d *Descriptors) TypesString() string {
	return strings.Join(d.Types, " ")
}

// SplitTypes 是 TypesString 的逆操作。
func SplitTypes(s string) []string {
	return strings.Fields(s)
}

// IsGMOS 判断是否为 GMOS-N 或 GMOS-S。
func (d *Descriptors) IsGMOS() bool {
	return d.Instrument == "GMOS-N" || d.Instrument == "GMOS-S"
}
