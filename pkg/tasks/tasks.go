// Package tasks 定义了通过 Kafka 传递的消息结构。
package tasks

import "time"

// IngestNotification 是山顶写入端在文件落盘后发送的通知，消费端据此入队 ingest。
type IngestNotification struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Force    bool   `json:"force,omitempty"`
	ForceMD5 bool   `json:"force_md5,omitempty"`
}

// 归档事件类型。
const (
	EventDiskFileAdded      = "diskfile_added"
	EventDiskFileSuperseded = "diskfile_superseded"
	EventExportDone         = "export_done"
)

// ArchiveEvent 是归档对外发布的状态变化。
type ArchiveEvent struct {
	Type        string    `json:"type"`
	Filename    string    `json:"filename"`
	DiskFileID  uint      `json:"diskfile_id,omitempty"`
	DataMD5     string    `json:"data_md5,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Time        time.Time `json:"time"`
}
