package model

// Footprint 是某个图像扩展在天球上的四边形覆盖区域，顶点按像素角点顺序保存。
type Footprint struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	HeaderID  uint   `gorm:"not null;index" json:"header_id"`
	Extension string `gorm:"type:varchar(32)" json:"extension"`
	// Area 形如 "ra1 dec1,ra2 dec2,ra3 dec3,ra4 dec4"（度）。
	Area string `gorm:"type:text" json:"area"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Footprint) TableName() string {
	return "footprint"
}

// PhotStandard 是测光标准星表中的一颗星。
type PhotStandard struct {
	ID    uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name  string   `gorm:"type:varchar(64);not null" json:"name"`
	Field string   `gorm:"type:varchar(64)" json:"field"`
	RA    float64  `gorm:"column:ra;not null;index" json:"ra"`
	Dec   float64  `gorm:"column:dec;not null;index" json:"dec"`
	UMag  *float64 `gorm:"column:u_mag" json:"u_mag,omitempty"`
	VMag  *float64 `gorm:"column:v_mag" json:"v_mag,omitempty"`
	GMag  *float64 `gorm:"column:g_mag" json:"g_mag,omitempty"`
	RMag  *float64 `gorm:"column:r_mag" json:"r_mag,omitempty"`
	IMag  *float64 `gorm:"column:i_mag" json:"i_mag,omitempty"`
	ZMag  *float64 `gorm:"column:z_mag" json:"z_mag,omitempty"`
	JMag  *float64 `gorm:"column:j_mag" json:"j_mag,omitempty"`
	HMag  *float64 `gorm:"column:h_mag" json:"h_mag,omitempty"`
	KMag  *float64 `gorm:"column:k_mag" json:"k_mag,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (PhotStandard) TableName() string {
	return "photstandard"
}

// PhotStandardObs 记录某颗标准星落在某个 footprint 内。
type PhotStandardObs struct {
	ID             uint `gorm:"primaryKey;autoIncrement" json:"id"`
	PhotStandardID uint `gorm:"column:photstandard_id;not null;index" json:"photstandard_id"`
	FootprintID    uint `gorm:"column:footprint_id;not null;index" json:"footprint_id"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (PhotStandardObs) TableName() string {
	return "photstandardobs"
}
