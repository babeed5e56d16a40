package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fitsstore-go/internal/model"
)

// CalCacheRepository 管理定标缓存物化行。
type CalCacheRepository interface {
	// Replace 在一个事务中替换 obsHID 下各 caltype 的缓存行，rank 按切片顺序从 0 开始。
	Replace(ctx context.Context, obsHID uint, byType map[string][]uint) error
	// Associated 返回去重后的 cal_hid，按 caltype、rank 排序。
	Associated(ctx context.Context, obsHID uint) ([]uint, error)
	// Rows 返回 obsHID 的全部缓存行，按 caltype、rank 排序。
	Rows(ctx context.Context, obsHID uint) ([]model.CalCache, error)
	ByCalType(ctx context.Context, obsHID uint, calType string) ([]model.CalCache, error)
	Has(ctx context.Context, obsHID uint) (bool, error)
}

type calCacheRepository struct {
	db *gorm.DB
}

// NewCalCacheRepository 创建一个新的 CalCacheRepository 实例。
func NewCalCacheRepository(db *gorm.DB) CalCacheRepository {
	return &calCacheRepository{db: db}
}

func (r *calCacheRepository) Replace(ctx context.Context, obsHID uint, byType map[string][]uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for calType, ids := range byType {
			if err := tx.Where("obs_hid = ? AND caltype = ?", obsHID, calType).Delete(&model.CalCache{}).Error; err != nil {
				return err
			}
			if len(ids) == 0 {
				continue
			}
			rows := make([]model.CalCache, 0, len(ids))
			for rank, id := range ids {
				rows = append(rows, model.CalCache{ObsHID: obsHID, CalHID: id, CalType: calType, Rank: rank})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *calCacheRepository) Rows(ctx context.Context, obsHID uint) ([]model.CalCache, error) {
	var rows []model.CalCache
	err := r.db.WithContext(ctx).Where("obs_hid = ?", obsHID).
		Order(orderBy("caltype")).Order(orderBy("rank")).Order(orderBy("id")).Find(&rows).Error
	return rows, err
}

func (r *calCacheRepository) Associated(ctx context.Context, obsHID uint) ([]uint, error) {
	rows, err := r.Rows(ctx, obsHID)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]struct{}, len(rows))
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.CalHID]; ok {
			continue
		}
		seen[row.CalHID] = struct{}{}
		ids = append(ids, row.CalHID)
	}
	return ids, nil
}

func (r *calCacheRepository) ByCalType(ctx context.Context, obsHID uint, calType string) ([]model.CalCache, error) {
	var rows []model.CalCache
	err := r.db.WithContext(ctx).Where("obs_hid = ? AND caltype = ?", obsHID, calType).
		Order(orderBy("rank")).Find(&rows).Error
	return rows, err
}

func (r *calCacheRepository) Has(ctx context.Context, obsHID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.CalCache{}).Where("obs_hid = ?", obsHID).Count(&n).Error
	return n > 0, err
}

// orderBy 生成带引号的升序列，rank 在 MySQL 8 中是保留字。
func orderBy(col string) clause.OrderByColumn {
	return clause.OrderByColumn{Column: clause.Column{Name: col}}
}
