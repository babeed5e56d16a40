package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"fitsstore-go/internal/repository"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/es"
	"fitsstore-go/pkg/log"
)

// HeaderSearcher 是全文头信息索引的检索接口，由 es.Client 实现。
type HeaderSearcher interface {
	Search(ctx context.Context, q string, size int) ([]es.Hit, error)
}

// SearchService 提供全文头信息检索与单个文件的完整头信息查看。
// 两者都受访问控制约束。
type SearchService struct {
	searcher HeaderSearcher
	files    repository.FileRepository
	headers  repository.HeaderRepository
	access   *AccessController
}

// NewSearchService 创建 SearchService。searcher 为 nil 表示未配置 Elasticsearch。
func NewSearchService(searcher HeaderSearcher, files repository.FileRepository, headers repository.HeaderRepository, access *AccessController) *SearchService {
	return &SearchService{searcher: searcher, files: files, headers: headers, access: access}
}

// Search 检索全文头信息，去掉请求者无权访问的结果。
func (s *SearchService) Search(ctx context.Context, q string, size int, req Requester) ([]es.Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, errkind.Validation.New("empty query")
	}
	if s.searcher == nil {
		return nil, errkind.NotFound.New("full-text header search is not configured")
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	hits, err := s.searcher.Search(ctx, q, size)
	if err != nil {
		log.Errorf("[SearchService] 检索 %q 失败: %v", q, err)
		return nil, errkind.Transient.Wrap(err)
	}

	decider := s.access.For(req)
	out := make([]es.Hit, 0, len(hits))
	for _, hit := range hits {
		h, err := s.headers.FindByDiskFileID(ctx, hit.DiskFileID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, errkind.Transient.Wrap(err)
		}
		ok, _, err := decider.CanHave(ctx, h)
		if err != nil {
			return nil, errkind.Transient.Wrap(err)
		}
		if ok {
			out = append(out, hit)
		}
	}
	log.Infof("[SearchService] 检索 %q: %d 条结果, 可见 %d 条", q, len(hits), len(out))
	return out, nil
}

// FullHeader 返回 DiskFile 的原始 FITS 头卡片文本。
func (s *SearchService) FullHeader(ctx context.Context, diskFileID uint, req Requester) (string, error) {
	h, err := s.headers.FindByDiskFileID(ctx, diskFileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errkind.NotFound.New("diskfile %d", diskFileID)
	}
	if err != nil {
		return "", errkind.Transient.Wrap(err)
	}
	ok, reason, err := s.access.For(req).CanHave(ctx, h)
	if err != nil {
		return "", errkind.Transient.Wrap(err)
	}
	if !ok {
		return "", errkind.PermissionDenied.New("diskfile %d: %s", diskFileID, reason)
	}
	fth, err := s.files.FindFullText(ctx, diskFileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errkind.NotFound.New("no header text for diskfile %d", diskFileID)
	}
	if err != nil {
		return "", errkind.Transient.Wrap(err)
	}
	return fth.FullText, nil
}
