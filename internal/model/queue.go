package model

import "time"

// QueueFields 是四个队列表共享的列。
type QueueFields struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	InProgress bool       `gorm:"column:inprogress;not null;default:false;index" json:"inprogress"`
	Failed     bool       `gorm:"not null;default:false" json:"failed"`
	Added      time.Time  `gorm:"not null" json:"added"`
	After      time.Time  `gorm:"not null;index" json:"after"`
	SortKey    string     `gorm:"column:sortkey;type:varchar(255);not null;index" json:"sortkey"`
	LastFailed *time.Time `gorm:"column:lastfailed" json:"lastfailed,omitempty"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`
}

// QueueID 返回队列行主键。
func (q *QueueFields) QueueID() uint { return q.ID }

// Base 返回共享列，供通用队列实现读写。
func (q *QueueFields) Base() *QueueFields { return q }

// IngestQueue 是入库队列的一行。
type IngestQueue struct {
	QueueFields
	Filename string `gorm:"type:varchar(255);not null;index" json:"filename"`
	Path     string `gorm:"type:varchar(255);not null;default:''" json:"path"`
	Force    bool   `gorm:"not null;default:false" json:"force"`
	ForceMD5 bool   `gorm:"column:force_md5;not null;default:false" json:"force_md5"`
}

func (IngestQueue) TableName() string { return "ingestqueue" }

// DedupValue 返回用于兄弟行去重的键值。
func (q *IngestQueue) DedupValue() interface{} { return q.Filename }

// ExportQueue 是导出（向对端复制）队列的一行。
type ExportQueue struct {
	QueueFields
	Filename    string `gorm:"type:varchar(255);not null;index" json:"filename"`
	Path        string `gorm:"type:varchar(255);not null;default:''" json:"path"`
	Destination string `gorm:"type:varchar(255);not null" json:"destination"`
}

func (ExportQueue) TableName() string { return "exportqueue" }

func (q *ExportQueue) DedupValue() interface{} { return q.Filename }

// PreviewQueue 是预览图生成队列的一行。
type PreviewQueue struct {
	QueueFields
	DiskFileID uint `gorm:"column:diskfile_id;not null;index" json:"diskfile_id"`
	Force      bool `gorm:"not null;default:false" json:"force"`
}

func (PreviewQueue) TableName() string { return "previewqueue" }

func (q *PreviewQueue) DedupValue() interface{} { return q.DiskFileID }

// CalCacheQueue 是定标缓存重算队列的一行。
type CalCacheQueue struct {
	QueueFields
	ObsHID uint `gorm:"column:obs_hid;not null;index" json:"obs_hid"`
}

func (CalCacheQueue) TableName() string { return "calcachequeue" }

func (q *CalCacheQueue) DedupValue() interface{} { return q.ObsHID }

// CalCache 是 (obs_hid, cal_hid, caltype, rank) 物化行，rank 0 为最佳。
type CalCache struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ObsHID  uint   `gorm:"column:obs_hid;not null;index:idx_calcache_obs_type,priority:1" json:"obs_hid"`
	CalHID  uint   `gorm:"column:cal_hid;not null;index" json:"cal_hid"`
	CalType string `gorm:"column:caltype;type:varchar(32);not null;index:idx_calcache_obs_type,priority:2" json:"caltype"`
	Rank    int    `gorm:"not null" json:"rank"`
}

func (CalCache) TableName() string { return "calcache" }
