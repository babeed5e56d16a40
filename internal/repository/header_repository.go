package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"fitsstore-go/internal/model"
)

// Scope 是可组合的查询条件。
type Scope = func(*gorm.DB) *gorm.DB

// HeaderRepository 接口定义了 header 与仪器扩展行的持久化操作。
type HeaderRepository interface {
	WithTx(tx *gorm.DB) HeaderRepository

	// Create 插入 Header，并在 inst 非空时插入对应的仪器扩展行。
	Create(ctx context.Context, h *model.Header, inst model.InstrumentRow) error
	FindByID(ctx context.Context, id uint) (*model.Header, error)
	FindByDiskFileID(ctx context.Context, diskFileID uint) (*model.Header, error)
	// FindByIDs 按给定 id 顺序返回 Header，缺失的 id 被跳过。
	FindByIDs(ctx context.Context, ids []uint) ([]model.Header, error)
	// InstrumentRow 读取 Header 的仪器扩展行；没有扩展表或缺行时返回 nil。
	InstrumentRow(ctx context.Context, h *model.Header) (model.InstrumentRow, error)
	// Select 返回满足条件的 present Header（连同 DiskFile），按 ut_datetime 排序。
	Select(ctx context.Context, limit int, scopes ...Scope) ([]model.Header, error)
	Count(ctx context.Context, scopes ...Scope) (int64, error)
	// Search 与 Select 相同，但不限定 present，由 scopes 自行约束 diskfile 列。
	Search(ctx context.Context, limit int, scopes ...Scope) ([]model.Header, error)
	SearchCount(ctx context.Context, scopes ...Scope) (int64, error)
	SetPhotStandard(ctx context.Context, id uint, flag bool) error
}

type headerRepository struct {
	db *gorm.DB
}

// NewHeaderRepository 创建一个新的 HeaderRepository 实例。
func NewHeaderRepository(db *gorm.DB) HeaderRepository {
	return &headerRepository{db: db}
}

func (r *headerRepository) WithTx(tx *gorm.DB) HeaderRepository {
	return &headerRepository{db: tx}
}

func (r *headerRepository) Create(ctx context.Context, h *model.Header, inst model.InstrumentRow) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(h).Error; err != nil {
		return err
	}
	if inst == nil {
		return nil
	}
	inst.SetHeaderID(h.ID)
	return db.Create(inst).Error
}

func (r *headerRepository) FindByID(ctx context.Context, id uint) (*model.Header, error) {
	var h model.Header
	if err := r.db.WithContext(ctx).Preload("DiskFile").First(&h, id).Error; err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *headerRepository) FindByDiskFileID(ctx context.Context, diskFileID uint) (*model.Header, error) {
	var h model.Header
	err := r.db.WithContext(ctx).Preload("DiskFile").Where("diskfile_id = ?", diskFileID).
		Order("id DESC").First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *headerRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Header, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []model.Header
	if err := r.db.WithContext(ctx).Preload("DiskFile").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]model.Header, len(rows))
	for _, h := range rows {
		byID[h.ID] = h
	}
	out := make([]model.Header, 0, len(ids))
	for _, id := range ids {
		if h, ok := byID[id]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *headerRepository) InstrumentRow(ctx context.Context, h *model.Header) (model.InstrumentRow, error) {
	row := model.NewInstrumentRowFor(h.Instrument)
	if row == nil {
		return nil, nil
	}
	err := r.db.WithContext(ctx).Where("header_id = ?", h.ID).First(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *headerRepository) joined(ctx context.Context, scopes []Scope) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Header{}).
		Joins("JOIN diskfile ON diskfile.id = header.diskfile_id").
		Scopes(scopes...)
}

func (r *headerRepository) presentQuery(ctx context.Context, scopes []Scope) *gorm.DB {
	return r.joined(ctx, scopes).Where("diskfile.present = ?", true)
}

func (r *headerRepository) find(q *gorm.DB, limit int) ([]model.Header, error) {
	var hs []model.Header
	q = q.Preload("DiskFile").Order("header.ut_datetime, header.id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&hs).Error
	return hs, err
}

func (r *headerRepository) Select(ctx context.Context, limit int, scopes ...Scope) ([]model.Header, error) {
	return r.find(r.presentQuery(ctx, scopes), limit)
}

func (r *headerRepository) Count(ctx context.Context, scopes ...Scope) (int64, error) {
	var n int64
	err := r.presentQuery(ctx, scopes).Count(&n).Error
	return n, err
}

func (r *headerRepository) Search(ctx context.Context, limit int, scopes ...Scope) ([]model.Header, error) {
	return r.find(r.joined(ctx, scopes), limit)
}

func (r *headerRepository) SearchCount(ctx context.Context, scopes ...Scope) (int64, error) {
	var n int64
	err := r.joined(ctx, scopes).Count(&n).Error
	return n, err
}

func (r *headerRepository) SetPhotStandard(ctx context.Context, id uint, flag bool) error {
	return r.db.WithContext(ctx).Model(&model.Header{}).Where("id = ?", id).Update("phot_standard", flag).Error
}
