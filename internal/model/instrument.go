package model

// 以下是与 Header 一一对应的仪器扩展行，按 header_id 关联。
// 每个仪器只保存其定标规则在共享 Header 之外需要的字段。

// Gmos 对应 GMOS-N 与 GMOS-S。
type Gmos struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	HeaderID           uint   `gorm:"not null;uniqueIndex"`
	Disperser          string `gorm:"type:varchar(64);index"`
	FilterName         string `gorm:"column:filter_name;type:varchar(64);index"`
	DetectorXBin       int    `gorm:"column:detector_x_bin"`
	DetectorYBin       int    `gorm:"column:detector_y_bin"`
	AmpReadArea        string `gorm:"column:amp_read_area;type:varchar(255)"`
	ReadSpeedSetting   string `gorm:"column:read_speed_setting;type:varchar(16)"`
	GainSetting        string `gorm:"column:gain_setting;type:varchar(16)"`
	FocalPlaneMask     string `gorm:"column:focal_plane_mask;type:varchar(64)"`
	NodAndShuffle      bool   `gorm:"column:nodandshuffle;not null;default:false"`
	NodCount           int    `gorm:"column:nod_count"`
	NodPixels          int    `gorm:"column:nod_pixels"`
	Prepared           bool   `gorm:"not null;default:false"`
	OverscanTrimmed    bool   `gorm:"column:overscan_trimmed;not null;default:false"`
	OverscanSubtracted bool   `gorm:"column:overscan_subtracted;not null;default:false"`
}

func (Gmos) TableName() string { return "gmos" }

// Niri 扩展行。
type Niri struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	HeaderID         uint   `gorm:"not null;uniqueIndex"`
	Disperser        string `gorm:"type:varchar(64)"`
	FilterName       string `gorm:"column:filter_name;type:varchar(64)"`
	ReadMode         string `gorm:"column:read_mode;type:varchar(32)"`
	WellDepthSetting string `gorm:"column:well_depth_setting;type:varchar(32)"`
	DataSection      string `gorm:"column:data_section;type:varchar(64)"`
	Camera           string `gorm:"type:varchar(32)"`
	FocalPlaneMask   string `gorm:"column:focal_plane_mask;type:varchar(64)"`
}

func (Niri) TableName() string { return "niri" }

// Gnirs 扩展行。
type Gnirs struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	HeaderID         uint   `gorm:"not null;uniqueIndex"`
	Disperser        string `gorm:"type:varchar(64)"`
	FilterName       string `gorm:"column:filter_name;type:varchar(64)"`
	ReadMode         string `gorm:"column:read_mode;type:varchar(32)"`
	WellDepthSetting string `gorm:"column:well_depth_setting;type:varchar(32)"`
	Camera           string `gorm:"type:varchar(32)"`
	FocalPlaneMask   string `gorm:"column:focal_plane_mask;type:varchar(64)"`
}

func (Gnirs) TableName() string { return "gnirs" }

// Nifs 扩展行。
type Nifs struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	HeaderID       uint   `gorm:"not null;uniqueIndex"`
	Disperser      string `gorm:"type:varchar(64)"`
	FilterName     string `gorm:"column:filter_name;type:varchar(64)"`
	ReadMode       string `gorm:"column:read_mode;type:varchar(32)"`
	FocalPlaneMask string `gorm:"column:focal_plane_mask;type:varchar(64)"`
}

func (Nifs) TableName() string { return "nifs" }

// F2 扩展行。
type F2 struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	HeaderID       uint   `gorm:"not null;uniqueIndex"`
	Disperser      string `gorm:"type:varchar(64)"`
	FilterName     string `gorm:"column:filter_name;type:varchar(64)"`
	LyotStop       string `gorm:"column:lyot_stop;type:varchar(32)"`
	ReadMode       string `gorm:"column:read_mode;type:varchar(32)"`
	FocalPlaneMask string `gorm:"column:focal_plane_mask;type:varchar(64)"`
}

func (F2) TableName() string { return "f2" }

// Michelle 扩展行。
type Michelle struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	HeaderID       uint   `gorm:"not null;uniqueIndex"`
	Disperser      string `gorm:"type:varchar(64)"`
	FilterName     string `gorm:"column:filter_name;type:varchar(64)"`
	ReadMode       string `gorm:"column:read_mode;type:varchar(32)"`
	FocalPlaneMask string `gorm:"column:focal_plane_mask;type:varchar(64)"`
}

func (Michelle) TableName() string { return "michelle" }

// Gsaoi 扩展行。
type Gsaoi struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	HeaderID   uint   `gorm:"not null;uniqueIndex"`
	FilterName string `gorm:"column:filter_name;type:varchar(64)"`
	ReadMode   string `gorm:"column:read_mode;type:varchar(32)"`
}

func (Gsaoi) TableName() string { return "gsaoi" }

// Gpi 扩展行。
type Gpi struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement"`
	HeaderID            uint   `gorm:"not null;uniqueIndex"`
	Disperser           string `gorm:"type:varchar(64)"`
	FilterName          string `gorm:"column:filter_name;type:varchar(64)"`
	FocalPlaneMask      string `gorm:"column:focal_plane_mask;type:varchar(64)"`
	PupilMask           string `gorm:"column:pupil_mask;type:varchar(64)"`
	Apodizer            string `gorm:"type:varchar(64)"`
	Lyot                string `gorm:"type:varchar(64)"`
	Wollaston           bool   `gorm:"not null;default:false"`
	Prism               string `gorm:"type:varchar(32)"`
	AstrometricStandard bool   `gorm:"column:astrometric_standard;not null;default:false"`
}

func (Gpi) TableName() string { return "gpi" }

// InstrumentRow 是所有仪器扩展行的公共接口。
type InstrumentRow interface {
	TableName() string
	SetHeaderID(id uint)
}

func (g *Gmos) SetHeaderID(id uint)     { g.HeaderID = id }
func (n *Niri) SetHeaderID(id uint)     { n.HeaderID = id }
func (g *Gnirs) SetHeaderID(id uint)    { g.HeaderID = id }
func (n *Nifs) SetHeaderID(id uint)     { n.HeaderID = id }
func (f *F2) SetHeaderID(id uint)       { f.HeaderID = id }
func (m *Michelle) SetHeaderID(id uint) { m.HeaderID = id }
func (g *Gsaoi) SetHeaderID(id uint)    { g.HeaderID = id }
func (g *Gpi) SetHeaderID(id uint)      { g.HeaderID = id }

// InstrumentTable 返回仪器名对应的扩展表名；没有扩展行的仪器返回空串。
func InstrumentTable(instrument string) string {
	switch instrument {
	case "GMOS-N", "GMOS-S":
		return "gmos"
	case "NIRI":
		return "niri"
	case "GNIRS":
		return "gnirs"
	case "NIFS":
		return "nifs"
	case "F2":
		return "f2"
	case "michelle", "MICHELLE":
		return "michelle"
	case "GSAOI":
		return "gsaoi"
	case "GPI":
		return "gpi"
	}
	return ""
}
