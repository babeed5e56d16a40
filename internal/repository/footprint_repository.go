package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fitsstore-go/internal/model"
)

// FootprintRepository 管理 footprint 与测光标准星观测。
type FootprintRepository interface {
	WithTx(tx *gorm.DB) FootprintRepository
	CreateFootprint(ctx context.Context, fp *model.Footprint) error
	// PhotStandardsInBox 返回落在给定 RA/Dec 矩形内的标准星；raMin > raMax 表示跨越 0 度。
	PhotStandardsInBox(ctx context.Context, raMin, raMax, decMin, decMax float64) ([]model.PhotStandard, error)
	CreatePhotStandardObs(ctx context.Context, obs *model.PhotStandardObs) error
	CreatePhotStandard(ctx context.Context, ps *model.PhotStandard) error
	FootprintsForHeader(ctx context.Context, headerID uint) ([]model.Footprint, error)
}

type footprintRepository struct {
	db *gorm.DB
}

// NewFootprintRepository 创建一个新的 FootprintRepository 实例。
func NewFootprintRepository(db *gorm.DB) FootprintRepository {
	return &footprintRepository{db: db}
}

func (r *footprintRepository) WithTx(tx *gorm.DB) FootprintRepository {
	return &footprintRepository{db: tx}
}

func (r *footprintRepository) CreateFootprint(ctx context.Context, fp *model.Footprint) error {
	return r.db.WithContext(ctx).Create(fp).Error
}

func (r *footprintRepository) PhotStandardsInBox(ctx context.Context, raMin, raMax, decMin, decMax float64) ([]model.PhotStandard, error) {
	var out []model.PhotStandard
	dec := clause.Column{Name: "dec"}
	ra := clause.Column{Name: "ra"}
	// dec 在 MySQL 中是保留字，列名统一经 clause 加引号。
	q := r.db.WithContext(ctx).Where(clause.Gte{Column: dec, Value: decMin}).Where(clause.Lte{Column: dec, Value: decMax})
	if raMin <= raMax {
		q = q.Where(clause.Gte{Column: ra, Value: raMin}).Where(clause.Lte{Column: ra, Value: raMax})
	} else {
		q = q.Where(clause.Or(clause.Gte{Column: ra, Value: raMin}, clause.Lte{Column: ra, Value: raMax}))
	}
	err := q.Order("id").Find(&out).Error
	return out, err
}

func (r *footprintRepository) CreatePhotStandardObs(ctx context.Context, obs *model.PhotStandardObs) error {
	return r.db.WithContext(ctx).Create(obs).Error
}

func (r *footprintRepository) CreatePhotStandard(ctx context.Context, ps *model.PhotStandard) error {
	return r.db.WithContext(ctx).Create(ps).Error
}

func (r *footprintRepository) FootprintsForHeader(ctx context.Context, headerID uint) ([]model.Footprint, error) {
	var out []model.Footprint
	err := r.db.WithContext(ctx).Where("header_id = ?", headerID).Order("id").Find(&out).Error
	return out, err
}
