package model

import (
	"time"
)

// Epoch2000 是 ut_datetime_secs 的零点。
var Epoch2000 = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// UTSecs 返回 t 相对 Epoch2000 的整数秒（向下取整）。
func UTSecs(t time.Time) int64 {
	d := t.Sub(Epoch2000)
	secs := int64(d / time.Second)
	if d < 0 && d%time.Second != 0 {
		secs--
	}
	return secs
}

// Header 是一个 DiskFile 提取出的元数据。
type Header struct {
	ID         uint `gorm:"primaryKey;autoIncrement" json:"id"`
	DiskFileID uint `gorm:"column:diskfile_id;not null;index" json:"diskfile_id"`

	ProgramID     string `gorm:"column:program_id;type:varchar(64);index" json:"program_id"`
	ObservationID string `gorm:"column:observation_id;type:varchar(64);index" json:"observation_id"`
	DataLabel     string `gorm:"column:data_label;type:varchar(64);index" json:"data_label"`
	Telescope     string `gorm:"type:varchar(16)" json:"telescope"`
	Instrument    string `gorm:"type:varchar(16);index" json:"instrument"`

	UTDateTime     *time.Time `gorm:"column:ut_datetime;index" json:"ut_datetime"`
	UTDateTimeSecs *int64     `gorm:"column:ut_datetime_secs;index" json:"-"`
	LocalTime      string     `gorm:"column:local_time;type:varchar(16)" json:"local_time"`

	ObservationType  string `gorm:"column:observation_type;type:varchar(16);index" json:"observation_type"`
	ObservationClass string `gorm:"column:observation_class;type:varchar(16);index" json:"observation_class"`
	Object           string `gorm:"type:varchar(80)" json:"object"`

	RA        *float64 `gorm:"column:ra" json:"ra"`
	Dec       *float64 `gorm:"column:dec" json:"dec"`
	Azimuth   *float64 `json:"azimuth"`
	Elevation *float64 `json:"elevation"`
	// CassRotatorPA 即 crpa。
	CassRotatorPA *float64 `gorm:"column:cass_rotator_pa" json:"cass_rotator_pa"`
	Airmass       *float64 `json:"airmass"`
	ExposureTime  *float64 `gorm:"column:exposure_time" json:"exposure_time"`

	FilterName        string   `gorm:"column:filter_name;type:varchar(64)" json:"filter_name"`
	Disperser         string   `gorm:"type:varchar(64)" json:"disperser"`
	Camera            string   `gorm:"type:varchar(32)" json:"camera"`
	CentralWavelength *float64 `gorm:"column:central_wavelength" json:"central_wavelength"`
	WavelengthBand    string   `gorm:"column:wavelength_band;type:varchar(8)" json:"wavelength_band"`
	FocalPlaneMask    string   `gorm:"column:focal_plane_mask;type:varchar(64)" json:"focal_plane_mask"`

	DetectorBinning    string `gorm:"column:detector_binning;type:varchar(16)" json:"detector_binning"`
	DetectorConfig     string `gorm:"column:detector_config;type:varchar(128)" json:"detector_config"`
	DetectorROISetting string `gorm:"column:detector_roi_setting;type:varchar(32)" json:"detector_roi_setting"`
	// 以下检测器设置与仪器扩展行中的同名字段一致，在此冗余保存用于摘要展示。
	DetectorGainSetting      string `gorm:"column:detector_gain_setting;type:varchar(16)" json:"detector_gain_setting"`
	DetectorReadSpeedSetting string `gorm:"column:detector_readspeed_setting;type:varchar(16)" json:"detector_readspeed_setting"`
	DetectorWellDepthSetting string `gorm:"column:detector_welldepth_setting;type:varchar(32)" json:"detector_welldepth_setting"`
	DetectorReadModeSetting  string `gorm:"column:detector_readmode_setting;type:varchar(32)" json:"detector_readmode_setting"`
	Coadds                   *int   `json:"coadds"`

	Spectroscopy       bool   `gorm:"not null;default:false" json:"spectroscopy"`
	Mode               string `gorm:"type:varchar(16)" json:"mode"`
	AdaptiveOptics     bool   `gorm:"column:adaptive_optics;not null;default:false" json:"adaptive_optics"`
	LaserGuideStar     bool   `gorm:"column:laser_guide_star;not null;default:false" json:"laser_guide_star"`
	GcalLamp           string `gorm:"column:gcal_lamp;type:varchar(32)" json:"gcal_lamp"`
	Types              string `gorm:"type:varchar(255)" json:"types"`
	CalibrationProgram bool   `gorm:"column:calibration_program;not null;default:false" json:"calibration_program"`

	RawIQ       string `gorm:"column:raw_iq;type:varchar(8)" json:"raw_iq"`
	RawCC       string `gorm:"column:raw_cc;type:varchar(8)" json:"raw_cc"`
	RawWV       string `gorm:"column:raw_wv;type:varchar(8)" json:"raw_wv"`
	RawBG       string `gorm:"column:raw_bg;type:varchar(8)" json:"raw_bg"`
	RequestedIQ string `gorm:"column:requested_iq;type:varchar(8)" json:"requested_iq"`
	RequestedCC string `gorm:"column:requested_cc;type:varchar(8)" json:"requested_cc"`
	RequestedWV string `gorm:"column:requested_wv;type:varchar(8)" json:"requested_wv"`
	RequestedBG string `gorm:"column:requested_bg;type:varchar(8)" json:"requested_bg"`

	QAState             string     `gorm:"column:qa_state;type:varchar(16);not null;default:'Undefined'" json:"qa_state"`
	Release             *time.Time `gorm:"column:release" json:"release"`
	Reduction           string     `gorm:"type:varchar(32);not null;default:'RAW'" json:"reduction"`
	Engineering         bool       `gorm:"not null;default:false" json:"engineering"`
	ScienceVerification bool       `gorm:"column:science_verification;not null;default:false" json:"science_verification"`
	PhotStandard        bool       `gorm:"column:phot_standard;not null;default:false" json:"phot_standard"`

	DiskFile *DiskFile `gorm:"foreignKey:DiskFileID" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Header) TableName() string {
	return "header"
}

// SetUTDateTime 同步设置 ut_datetime 及其整数秒镜像。
func (h *Header) SetUTDateTime(t *time.Time) {
	if t == nil {
		h.UTDateTime = nil
		h.UTDateTimeSecs = nil
		return
	}
	ut := t.UTC()
	secs := UTSecs(ut)
	h.UTDateTime = &ut
	h.UTDateTimeSecs = &secs
}

// 观测类别中属于定标的部分，访问控制对这些类别直接放行。
var CalibrationClasses = []string{"dayCal", "partnerCal", "acqCal", "progCal"}

// IsCalibrationClass 判断观测类别是否为定标类别。
func IsCalibrationClass(class string) bool {
	for _, c := range CalibrationClasses {
		if c == class {
			return true
		}
	}
	return false
}
