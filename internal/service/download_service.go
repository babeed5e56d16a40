package service

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"fitsstore-go/internal/model"
	"fitsstore-go/internal/repository"
	"fitsstore-go/internal/selection"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/storage"
)

// DownloadPlan 是一次下载的内容：允许打包的 header，以及被拒绝或找不到的文件名。
type DownloadPlan struct {
	Description []string
	Allowed     []model.Header
	Denied      []string
	Missing     []string
	Created     time.Time
	// Included 是 Write 实际写入 tar 的文件数。
	Included int
}

// DownloadService 实现 tar 下载协议。
type DownloadService struct {
	files     *FileService
	fileRepo  repository.FileRepository
	headers   repository.HeaderRepository
	access    *AccessController
	store     storage.Store
	openLimit int
	now       func() time.Time
}

// NewDownloadService 创建 DownloadService。
func NewDownloadService(files *FileService, fileRepo repository.FileRepository, headers repository.HeaderRepository,
	access *AccessController, store storage.Store, openLimit int) *DownloadService {
	return &DownloadService{
		files:     files,
		fileRepo:  fileRepo,
		headers:   headers,
		access:    access,
		store:     store,
		openLimit: openLimit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PlanSelection 为选择路径生成下载计划。开放选择且匹配数达到上限时返回 Validation 错误。
func (s *DownloadService) PlanSelection(ctx context.Context, sel *selection.Selection, req Requester) (*DownloadPlan, error) {
	if sel.Open() {
		n, err := s.files.Count(ctx, sel)
		if err != nil {
			return nil, err
		}
		if n >= int64(s.openLimit) {
			return nil, errkind.Validation.New(
				"selection %q matches %d files; open selections are limited to fewer than %d, add a date or program constraint",
				sel.String(), n, s.openLimit)
		}
	}
	hs, err := s.files.Headers(ctx, sel)
	if err != nil {
		return nil, err
	}
	desc := append([]string{"selection: " + sel.String()}, sel.Describe()...)
	return s.plan(ctx, desc, hs, nil, req)
}

// PlanFiles 为显式文件名列表生成下载计划。未找到 present 版本的文件名记入 Missing。
func (s *DownloadService) PlanFiles(ctx context.Context, names []string, req Requester) (*DownloadPlan, error) {
	if len(names) == 0 {
		return nil, errkind.Validation.New("no files requested")
	}
	for _, n := range names {
		if err := ValidateFilename(n); err != nil {
			return nil, err
		}
	}
	dfs, err := s.fileRepo.FindPresentByFilenames(ctx, names)
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	found := make(map[string]struct{}, len(dfs))
	var hs []model.Header
	for i := range dfs {
		df := dfs[i]
		h, err := s.headers.FindByDiskFileID(ctx, df.ID)
		if err != nil {
			log.Warnf("[DownloadService] diskfile_id=%d 没有 header: %v", df.ID, err)
			continue
		}
		h.DiskFile = &df
		hs = append(hs, *h)
		found[df.Filename] = struct{}{}
		found[storage.CanonicalName(df.Filename)] = struct{}{}
	}
	var missing []string
	for _, n := range names {
		if _, ok := found[n]; !ok {
			if _, ok := found[storage.CanonicalName(n)]; !ok {
				missing = append(missing, n)
			}
		}
	}
	desc := []string{fmt.Sprintf("explicit list of %d file(s)", len(names))}
	return s.plan(ctx, desc, hs, missing, req)
}

func (s *DownloadService) plan(ctx context.Context, desc []string, hs []model.Header, missing []string, req Requester) (*DownloadPlan, error) {
	p := &DownloadPlan{Description: desc, Missing: missing, Created: s.now()}
	decider := s.access.For(req)
	for i := range hs {
		ok, _, err := decider.CanHave(ctx, &hs[i])
		if err != nil {
			return nil, errkind.Transient.Wrap(err)
		}
		if ok {
			p.Allowed = append(p.Allowed, hs[i])
		} else {
			p.Denied = append(p.Denied, hs[i].DiskFile.Filename)
		}
	}
	return p, nil
}

// Write 把计划写成 tar 流：每个允许的文件一项，随后是 md5sums.txt 与 README.txt。
// 存储中已消失的文件被跳过并记入 README。
func (s *DownloadService) Write(ctx context.Context, w io.Writer, p *DownloadPlan) error {
	tw := tar.NewWriter(w)
	var sums strings.Builder
	var written int64
	for i := range p.Allowed {
		df := p.Allowed[i].DiskFile
		n, err := s.writeFile(ctx, tw, df)
		if errkind.NotFound.Has(err) {
			log.Warnf("[DownloadService] %s 已不在存储中，跳过", df.FullPath())
			p.Missing = append(p.Missing, df.Filename)
			continue
		}
		if err != nil {
			return err
		}
		written += n
		p.Included++
		fmt.Fprintf(&sums, "%s  %s\n", df.FileMD5, df.Filename)
	}
	if err := writeText(tw, "md5sums.txt", sums.String(), p.Created); err != nil {
		return err
	}
	if err := writeText(tw, "README.txt", p.readme(), p.Created); err != nil {
		return err
	}
	log.Infof("[DownloadService] 打包完成: %d 个文件, %d 字节, 拒绝 %d 个", p.Included, written, len(p.Denied))
	return tw.Close()
}

func (s *DownloadService) writeFile(ctx context.Context, tw *tar.Writer, df *model.DiskFile) (int64, error) {
	rc, err := s.store.Open(ctx, df.FullPath())
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     df.Filename,
		Mode:     0o644,
		Size:     df.FileSize,
		ModTime:  df.LastMod,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, err
	}
	n, err := io.Copy(tw, rc)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", df.Filename, err)
	}
	return n, nil
}

func writeText(tw *tar.Writer, name, body string, mtime time.Time) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(body)),
		ModTime:  mtime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.WriteString(tw, body)
	return err
}

func (p *DownloadPlan) readme() string {
	var b strings.Builder
	b.WriteString("Gemini Observatory Archive download\n\n")
	for _, d := range p.Description {
		b.WriteString(d)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\ncreated: %s UTC\n", p.Created.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "files included: %d\n", p.Included)
	if len(p.Denied) > 0 {
		b.WriteString("\nThe following files matched but are proprietary and were not included:\n")
		for _, n := range p.Denied {
			b.WriteString(n)
			b.WriteString("\n")
		}
	}
	if len(p.Missing) > 0 {
		b.WriteString("\nThe following files could not be found:\n")
		for _, n := range p.Missing {
			b.WriteString(n)
			b.WriteString("\n")
		}
	}
	return b.String()
}
