// Package errkind 定义了整个归档系统共享的错误分类。
//
// 组件边界负责把底层错误（数据库、对象存储、HTTP）包装成下列某一类，
// 调用方通过 Class.Has 判断分类，而不是比较具体的错误值。
package errkind

import (
	"net/http"

	"github.com/zeebo/errs"
)

var (
	// NotFound 查询的文件或记录不存在。
	NotFound = errs.Class("not found")
	// Changed 文件内容与记录的哈希不一致。
	Changed = errs.Class("changed")
	// Corrupt FITS 或 gzip 解析失败，永不自动重试。
	Corrupt = errs.Class("corrupt")
	// Transient 网络、临时锁、对象存储 socket 错误，按上限重试。
	Transient = errs.Class("transient")
	// PermissionDenied 访问控制判定为 false。
	PermissionDenied = errs.Class("permission denied")
	// Conflict 同一 File 存在多个 present DiskFile，需要人工介入。
	Conflict = errs.Class("conflict")
	// Validation 非法的选择条件或用户输入。
	Validation = errs.Class("validation")
	// QueueStuck 队列行 inprogress 超过重试窗口。
	QueueStuck = errs.Class("queue stuck")
)

// HTTPStatus 将错误分类映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case NotFound.Has(err):
		return http.StatusNotFound
	case PermissionDenied.Has(err):
		return http.StatusForbidden
	case Validation.Has(err):
		return http.StatusBadRequest
	case Conflict.Has(err):
		return http.StatusConflict
	case Transient.Has(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
