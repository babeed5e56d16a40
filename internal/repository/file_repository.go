// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fitsstore-go/internal/model"
	"fitsstore-go/pkg/storage"
)

// FileRepository 接口定义了 file/diskfile 及其附属表的持久化操作。
type FileRepository interface {
	// WithTx 返回在给定事务上执行的副本。
	WithTx(tx *gorm.DB) FileRepository

	FindOrCreateFile(ctx context.Context, name string) (*model.File, error)
	FindFileByName(ctx context.Context, name string) (*model.File, error)

	CreateDiskFile(ctx context.Context, df *model.DiskFile) error
	FindDiskFileByID(ctx context.Context, id uint) (*model.DiskFile, error)
	PresentDiskFiles(ctx context.Context, fileID uint) ([]model.DiskFile, error)
	// FindPresentByFilename 按逻辑文件名或带 .gz 的文件名查找当前 present 的 DiskFile。
	FindPresentByFilename(ctx context.Context, filename string) (*model.DiskFile, error)
	FindPresentByFilenames(ctx context.Context, filenames []string) ([]model.DiskFile, error)
	// MarkNotPresent 把给定 DiskFile 置为 present=false, canonical=false。
	MarkNotPresent(ctx context.Context, ids ...uint) error
	// ClearCanonical 清除该 File 下所有 canonical 标记。
	ClearCanonical(ctx context.Context, fileID uint) error

	SaveReport(ctx context.Context, report *model.DiskFileReport) error
	SaveFullText(ctx context.Context, fth *model.FullTextHeader) error
	FindFullText(ctx context.Context, diskFileID uint) (*model.FullTextHeader, error)
	SavePreview(ctx context.Context, p *model.Preview) error
	FindPreview(ctx context.Context, diskFileID uint) (*model.Preview, error)
}

// fileRepository 是 FileRepository 接口的 GORM 实现。
type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) WithTx(tx *gorm.DB) FileRepository {
	return &fileRepository{db: tx}
}

// FindOrCreateFile 按名字查找 File，不存在则创建。名字唯一，并发创建时以已存在的行为准。
func (r *fileRepository) FindOrCreateFile(ctx context.Context, name string) (*model.File, error) {
	f, err := r.FindFileByName(ctx, name)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	f = &model.File{Name: name}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f).Error; err != nil {
		return nil, err
	}
	if f.ID == 0 {
		return r.FindFileByName(ctx, name)
	}
	return f, nil
}

// FindFileByName 根据逻辑文件名查找 File。
func (r *fileRepository) FindFileByName(ctx context.Context, name string) (*model.File, error) {
	var f model.File
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateDiskFile 插入新的 DiskFile。
func (r *fileRepository) CreateDiskFile(ctx context.Context, df *model.DiskFile) error {
	return r.db.WithContext(ctx).Create(df).Error
}

// FindDiskFileByID 根据 ID 查找 DiskFile（含 File）。
func (r *fileRepository) FindDiskFileByID(ctx context.Context, id uint) (*model.DiskFile, error) {
	var df model.DiskFile
	if err := r.db.WithContext(ctx).Preload("File").First(&df, id).Error; err != nil {
		return nil, err
	}
	return &df, nil
}

// PresentDiskFiles 返回该 File 下所有 present 的 DiskFile，正常情况下至多一个。
func (r *fileRepository) PresentDiskFiles(ctx context.Context, fileID uint) ([]model.DiskFile, error) {
	var dfs []model.DiskFile
	err := r.db.WithContext(ctx).Where("file_id = ? AND present = ?", fileID, true).Order("id").Find(&dfs).Error
	return dfs, err
}

func (r *fileRepository) FindPresentByFilename(ctx context.Context, filename string) (*model.DiskFile, error) {
	var df model.DiskFile
	err := r.db.WithContext(ctx).Preload("File").
		Joins("JOIN file ON file.id = diskfile.file_id").
		Where("diskfile.present = ?", true).
		Where("file.name = ? OR diskfile.filename = ?", storage.CanonicalName(filename), filename).
		Order("diskfile.id DESC").
		First(&df).Error
	if err != nil {
		return nil, err
	}
	return &df, nil
}

func (r *fileRepository) FindPresentByFilenames(ctx context.Context, filenames []string) ([]model.DiskFile, error) {
	var dfs []model.DiskFile
	if len(filenames) == 0 {
		return dfs, nil
	}
	names := make([]string, 0, len(filenames))
	for _, f := range filenames {
		names = append(names, storage.CanonicalName(f))
	}
	err := r.db.WithContext(ctx).Preload("File").
		Joins("JOIN file ON file.id = diskfile.file_id").
		Where("diskfile.present = ? AND file.name IN ?", true, names).
		Order("diskfile.filename").
		Find(&dfs).Error
	return dfs, err
}

func (r *fileRepository) MarkNotPresent(ctx context.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.DiskFile{}).Where("id IN ?", ids).
		Updates(map[string]interface{}{"present": false, "canonical": false}).Error
}

func (r *fileRepository) ClearCanonical(ctx context.Context, fileID uint) error {
	return r.db.WithContext(ctx).Model(&model.DiskFile{}).
		Where("file_id = ? AND canonical = ?", fileID, true).
		Update("canonical", false).Error
}

// SaveReport 插入或更新外部校验报告。
func (r *fileRepository) SaveReport(ctx context.Context, report *model.DiskFileReport) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "diskfile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fvreport", "mdreport"}),
	}).Create(report).Error
}

func (r *fileRepository) SaveFullText(ctx context.Context, fth *model.FullTextHeader) error {
	return r.db.WithContext(ctx).Create(fth).Error
}

func (r *fileRepository) FindFullText(ctx context.Context, diskFileID uint) (*model.FullTextHeader, error) {
	var fth model.FullTextHeader
	if err := r.db.WithContext(ctx).Where("diskfile_id = ?", diskFileID).First(&fth).Error; err != nil {
		return nil, err
	}
	return &fth, nil
}

// SavePreview 插入或替换某个 DiskFile 的预览记录。
func (r *fileRepository) SavePreview(ctx context.Context, p *model.Preview) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "diskfile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"filename"}),
	}).Create(p).Error
}

func (r *fileRepository) FindPreview(ctx context.Context, diskFileID uint) (*model.Preview, error) {
	var p model.Preview
	if err := r.db.WithContext(ctx).Where("diskfile_id = ?", diskFileID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
