// Package storage 提供归档字节的 blob store 抽象：本地目录树或 S3 兼容的对象存储。
package storage

import (
	"context"
	"io"
	"iter"
	"strings"
	"time"
)

// ObjectInfo 是 Stat 与 List 返回的对象元信息。
type ObjectInfo struct {
	Name    string
	Size    int64
	LastMod time.Time
	// ETagMD5 仅远端后端提供；分片上传的 ETag 不是 md5，此时为空。
	ETagMD5 string
}

// Store 是两个后端共享的能力集合。对象名为相对路径（path/filename）。
//
// 错误分类：对象不存在返回 errkind.NotFound，传输错误返回 errkind.Transient（已在内部重试）。
type Store interface {
	Stat(ctx context.Context, name string) (ObjectInfo, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	Delete(ctx context.Context, name string) error
	// List 惰性列出 prefix 下的对象；序列有限且只能遍历一次。
	List(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error]
	// FetchToLocal 返回一个可 seek 的本地路径。远端后端会把对象下载到 dir 下，
	// 调用方负责删除；本地后端直接返回原文件路径。
	FetchToLocal(ctx context.Context, name, dir string) (string, error)
	Remote() bool
}

// IsGzipped 判断文件名是否表示 gzip 压缩的内容。
func IsGzipped(name string) bool {
	return strings.HasSuffix(name, ".gz")
}

// CanonicalName 去掉压缩后缀，得到逻辑文件名。
func CanonicalName(name string) string {
	return strings.TrimSuffix(name, ".gz")
}

// Join 拼接 path 与 filename 成为对象名。
func Join(path, filename string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return filename
	}
	return path + "/" + filename
}
