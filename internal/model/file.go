// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// File 是逻辑文件名的稳定身份（不含压缩后缀），创建后不可变。
type File struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (File) TableName() string {
	return "file"
}

// DiskFile 是某个 File 在存储后端上的一个字节版本。
// 除了将 present/canonical 翻转为 false 之外，创建后不再修改。
type DiskFile struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID   uint   `gorm:"not null;index:idx_diskfile_file_present,priority:1;index:idx_diskfile_file_canonical,priority:1" json:"file_id"`
	Filename string `gorm:"type:varchar(255);not null;index" json:"filename"` // 可能带 .gz
	Path     string `gorm:"type:varchar(255);not null;default:''" json:"path"`
	// Present 表示字节当前存在于存储中。
	Present bool `gorm:"not null;default:false;index:idx_diskfile_file_present,priority:2" json:"present"`
	// Canonical 表示这是该 File 最新的 present 版本。
	Canonical bool      `gorm:"not null;default:false;index:idx_diskfile_file_canonical,priority:2" json:"canonical"`
	Gzipped   bool      `gorm:"not null;default:false" json:"compressed"`
	FileMD5   string    `gorm:"column:file_md5;type:varchar(32);not null" json:"file_md5"`
	FileSize  int64     `gorm:"not null" json:"file_size"`
	DataMD5   string    `gorm:"column:data_md5;type:varchar(32);not null" json:"data_md5"`
	DataSize  int64     `gorm:"not null" json:"data_size"`
	LastMod   time.Time `gorm:"column:lastmod;not null" json:"lastmod"`
	EntryTime time.Time `gorm:"column:entrytime;not null" json:"entrytime"`
	// FVErrors 是 fitsverify 报告的错误数，nil 表示未执行。
	FVErrors *int `gorm:"column:fverrors" json:"fverrors,omitempty"`
	// MDReady 表示元数据校验器判定头信息完整。
	MDReady *bool `gorm:"column:mdready" json:"mdready,omitempty"`

	File *File `gorm:"foreignKey:FileID" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DiskFile) TableName() string {
	return "diskfile"
}

// FullPath 返回 blob store 中的对象名（path 为空时只有文件名）。
func (d *DiskFile) FullPath() string {
	if d.Path == "" {
		return d.Filename
	}
	return d.Path + "/" + d.Filename
}

// DiskFileReport 保存外部校验程序的输出。
type DiskFileReport struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	DiskFileID uint   `gorm:"column:diskfile_id;not null;uniqueIndex"`
	FVReport   string `gorm:"column:fvreport;type:text"`
	MDReport   string `gorm:"column:mdreport;type:text"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DiskFileReport) TableName() string {
	return "diskfilereport"
}

// FullTextHeader 逐字保存 DiskFile 的原始 FITS 卡片文本，供运维查看。
type FullTextHeader struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	DiskFileID uint   `gorm:"column:diskfile_id;not null;uniqueIndex"`
	FullText   string `gorm:"column:fulltext;type:text"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FullTextHeader) TableName() string {
	return "fulltextheader"
}

// Preview 记录 preview worker 生成的 jpeg。
type Preview struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DiskFileID uint   `gorm:"column:diskfile_id;not null;uniqueIndex" json:"diskfile_id"`
	Filename   string `gorm:"type:varchar(255);not null" json:"filename"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Preview) TableName() string {
	return "preview"
}
