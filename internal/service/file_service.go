package service

import (
	"context"
	"time"

	"fitsstore-go/internal/model"
	"fitsstore-go/internal/repository"
	"fitsstore-go/internal/selection"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/storage"
)

// FileEntry 是 jsonfilelist 的一项。对端导出前的存在性检查只依赖 filename 与 data_md5。
type FileEntry struct {
	Name       string          `json:"name"`
	Filename   string          `json:"filename"`
	Path       string          `json:"path"`
	Compressed bool            `json:"compressed"`
	FileMD5    string          `json:"file_md5"`
	FileSize   int64           `json:"file_size"`
	DataMD5    string          `json:"data_md5"`
	DataSize   int64           `json:"data_size"`
	LastMod    model.LocalTime `json:"lastmod"`
	Present    bool            `json:"present"`
	Canonical  bool            `json:"canonical"`
	MDReady    *bool           `json:"mdready"`
	// Size 与 MD5 是旧客户端使用的别名。
	Size int64  `json:"size"`
	MD5  string `json:"md5"`
}

// SummaryEntry 是 jsonsummary 的一项：header 字段加上所属文件的信息。
// ut_datetime 以不带时区的格式输出，覆盖 Header 中的同名字段。
type SummaryEntry struct {
	model.Header
	FileEntry
	UTDateTime *model.LocalTime `json:"ut_datetime"`
}

func newFileEntry(df *model.DiskFile) FileEntry {
	return FileEntry{
		Name:       storage.CanonicalName(df.Filename),
		Filename:   df.Filename,
		Path:       df.Path,
		Compressed: df.Gzipped,
		FileMD5:    df.FileMD5,
		FileSize:   df.FileSize,
		DataMD5:    df.DataMD5,
		DataSize:   df.DataSize,
		LastMod:    model.LocalTime(df.LastMod),
		Present:    df.Present,
		Canonical:  df.Canonical,
		MDReady:    df.MDReady,
		Size:       df.FileSize,
		MD5:        df.FileMD5,
	}
}

// FileService 负责把选择路径解析为 header 集合，并生成文件列表与摘要。
type FileService struct {
	headers     repository.HeaderRepository
	openLimit   int
	closedLimit int
	now         func() time.Time
}

// NewFileService 创建 FileService。openLimit/closedLimit 分别用于开放与受约束的选择。
func NewFileService(headers repository.HeaderRepository, openLimit, closedLimit int) *FileService {
	return &FileService{
		headers:     headers,
		openLimit:   openLimit,
		closedLimit: closedLimit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Parse 以当前 UT 日期解析选择路径。
func (s *FileService) Parse(path string) (*selection.Selection, error) {
	return selection.Parse(path, s.now())
}

// Headers 返回选择对应的 header（附带 DiskFile），按 ut_datetime 排序并截断到适用的上限。
func (s *FileService) Headers(ctx context.Context, sel *selection.Selection) ([]model.Header, error) {
	limit := sel.Limit(s.openLimit, s.closedLimit)
	hs, err := s.headers.Search(ctx, limit, sel.Scopes()...)
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	if len(hs) == limit {
		log.Infof("[FileService] 选择 %q 的结果被截断到 %d 条", sel.String(), limit)
	}
	return hs, nil
}

// Count 返回选择匹配的 header 总数，不受上限影响。
func (s *FileService) Count(ctx context.Context, sel *selection.Selection) (int64, error) {
	n, err := s.headers.SearchCount(ctx, sel.Scopes()...)
	if err != nil {
		return 0, errkind.Transient.Wrap(err)
	}
	return n, nil
}

// FileList 生成 jsonfilelist。
func (s *FileService) FileList(ctx context.Context, sel *selection.Selection) ([]FileEntry, error) {
	hs, err := s.Headers(ctx, sel)
	if err != nil {
		return nil, err
	}
	out := make([]FileEntry, 0, len(hs))
	for i := range hs {
		if hs[i].DiskFile == nil {
			continue
		}
		out = append(out, newFileEntry(hs[i].DiskFile))
	}
	return out, nil
}

// Summary 生成 jsonsummary。
func (s *FileService) Summary(ctx context.Context, sel *selection.Selection) ([]SummaryEntry, error) {
	hs, err := s.Headers(ctx, sel)
	if err != nil {
		return nil, err
	}
	out := make([]SummaryEntry, 0, len(hs))
	for _, h := range hs {
		if h.DiskFile == nil {
			continue
		}
		out = append(out, SummaryEntry{
			Header:     h,
			FileEntry:  newFileEntry(h.DiskFile),
			UTDateTime: model.NullableTime(h.UTDateTime),
		})
	}
	return out, nil
}
