// Package calibration 实现定标关联引擎：给定科学观测的描述符，按仪器规则找出
// 每种适用定标类型的最佳候选，按与科学观测的时间差排序。
package calibration

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"fitsstore-go/internal/model"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/fits"
)

// 定标类型标签。processed_ 前缀的标签对应同一方法的 processed 变体。
const (
	Bias                 = "bias"
	Dark                 = "dark"
	Flat                 = "flat"
	Arc                  = "arc"
	Fringe               = "fringe"
	PinholeMask          = "pinhole_mask"
	RonchiMask           = "ronchi_mask"
	SpecTwilight         = "spectwilight"
	SpecPhot             = "specphot"
	PhotometricStandard  = "photometric_standard"
	TelluricStandard     = "telluric_standard"
	PolarizationFlat     = "polarization_flat"
	PolarizationStandard = "polarization_standard"
	AstrometricStandard  = "astrometric_standard"
	LampoffFlat          = "lampoff_flat"
	QHFlat               = "qh_flat"
	DomeFlat             = "domeflat"

	processedPrefix = "processed_"
)

// Processed 返回 caltype 的 processed 变体标签。
func Processed(caltype string) string { return processedPrefix + caltype }

// Calibration 是单个科学观测的仪器定标规则集合。
// 每个方法返回按 |Δt| 排序的候选，howmany <= 0 时使用规则默认数量。
// 不适用的类型返回空结果。
type Calibration interface {
	Descriptors() *fits.Descriptors
	// Applicable 返回按构造时规则求得的适用定标类型，顺序稳定。
	Applicable() []string

	Bias(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	Dark(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	Flat(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	Arc(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	Fringe(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	PinholeMask(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	RonchiMask(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	SpecTwilight(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	SpecPhot(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	PhotometricStandard(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	TelluricStandard(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	PolarizationFlat(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	PolarizationStandard(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	AstrometricStandard(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	LampoffFlat(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	QHFlat(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
	DomeFlat(ctx context.Context, processed bool, howmany int) ([]model.Header, error)
}

// New 按仪器构造规则集合。没有专属规则的仪器得到一个没有适用类型的集合。
func New(db *gorm.DB, d *fits.Descriptors) Calibration {
	b := newBase(db, d)
	switch {
	case d.IsGMOS():
		return newGMOS(b)
	case d.Instrument == "NIRI":
		return newNIRI(b)
	case d.Instrument == "GNIRS":
		return newGNIRS(b)
	case d.Instrument == "NIFS":
		return newNIFS(b)
	case strings.EqualFold(d.Instrument, "michelle"):
		return newMichelle(b)
	case d.Instrument == "F2":
		return newF2(b)
	case d.Instrument == "GPI":
		return newGPI(b)
	case d.Instrument == "GSAOI":
		return newGSAOI(b)
	}
	return b
}

// FromHeader 从数据库中的 Header（连同仪器扩展行）构造规则集合。
func FromHeader(ctx context.Context, db *gorm.DB, h *model.Header) (Calibration, error) {
	row := model.NewInstrumentRowFor(h.Instrument)
	if row != nil {
		err := db.WithContext(ctx).Where("header_id = ?", h.ID).First(row).Error
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = nil
		default:
			return nil, errkind.Transient.Wrap(err)
		}
	}
	return New(db, h.Descriptors(row)), nil
}

// Lookup 调用 caltype 对应的方法；processed_ 前缀选择 processed 变体。
func Lookup(ctx context.Context, c Calibration, caltype string, howmany int) ([]model.Header, error) {
	processed := strings.HasPrefix(caltype, processedPrefix)
	name := strings.TrimPrefix(caltype, processedPrefix)
	var fn func(context.Context, bool, int) ([]model.Header, error)
	switch name {
	case Bias:
		fn = c.Bias
	case Dark:
		fn = c.Dark
	case Flat:
		fn = c.Flat
	case Arc:
		fn = c.Arc
	case Fringe:
		fn = c.Fringe
	case PinholeMask:
		fn = c.PinholeMask
	case RonchiMask:
		fn = c.RonchiMask
	case SpecTwilight:
		fn = c.SpecTwilight
	case SpecPhot:
		fn = c.SpecPhot
	case PhotometricStandard:
		fn = c.PhotometricStandard
	case TelluricStandard:
		fn = c.TelluricStandard
	case PolarizationFlat:
		fn = c.PolarizationFlat
	case PolarizationStandard:
		fn = c.PolarizationStandard
	case AstrometricStandard:
		fn = c.AstrometricStandard
	case LampoffFlat:
		fn = c.LampoffFlat
	case QHFlat:
		fn = c.QHFlat
	case DomeFlat:
		fn = c.DomeFlat
	default:
		return nil, errkind.Validation.New("unknown calibration type %q", caltype)
	}
	return fn(ctx, processed, howmany)
}

// base 持有所有仪器共享的状态，并为每种定标类型提供空结果的默认实现。
type base struct {
	db         *gorm.DB
	d          *fits.Descriptors
	secs       *int64
	applicable []string
}

func newBase(db *gorm.DB, d *fits.Descriptors) *base {
	b := &base{db: db, d: d}
	if d.UTDateTime != nil {
		s := model.UTSecs(*d.UTDateTime)
		b.secs = &s
	}
	return b
}

func (b *base) Descriptors() *fits.Descriptors { return b.d }

func (b *base) Applicable() []string {
	out := make([]string, len(b.applicable))
	copy(out, b.applicable)
	return out
}

func (b *base) add(caltypes ...string) {
	for _, t := range caltypes {
		dup := false
		for _, have := range b.applicable {
			if have == t {
				dup = true
				break
			}
		}
		if !dup {
			b.applicable = append(b.applicable, t)
		}
	}
}

func (b *base) isApplicable(caltype string) bool {
	for _, t := range b.applicable {
		if t == caltype {
			return true
		}
	}
	return false
}

func (*base) Bias(context.Context, bool, int) ([]model.Header, error)         { return nil, nil }
func (*base) Dark(context.Context, bool, int) ([]model.Header, error)         { return nil, nil }
func (*base) Flat(context.Context, bool, int) ([]model.Header, error)         { return nil, nil }
func (*base) Arc(context.Context, bool, int) ([]model.Header, error)          { return nil, nil }
func (*base) Fringe(context.Context, bool, int) ([]model.Header, error)       { return nil, nil }
func (*base) PinholeMask(context.Context, bool, int) ([]model.Header, error)  { return nil, nil }
func (*base) RonchiMask(context.Context, bool, int) ([]model.Header, error)   { return nil, nil }
func (*base) SpecTwilight(context.Context, bool, int) ([]model.Header, error) { return nil, nil }
func (*base) SpecPhot(context.Context, bool, int) ([]model.Header, error)     { return nil, nil }
func (*base) PhotometricStandard(context.Context, bool, int) ([]model.Header, error) {
	return nil, nil
}
func (*base) TelluricStandard(context.Context, bool, int) ([]model.Header, error) { return nil, nil }
func (*base) PolarizationFlat(context.Context, bool, int) ([]model.Header, error) { return nil, nil }
func (*base) PolarizationStandard(context.Context, bool, int) ([]model.Header, error) {
	return nil, nil
}
func (*base) AstrometricStandard(context.Context, bool, int) ([]model.Header, error) {
	return nil, nil
}
func (*base) LampoffFlat(context.Context, bool, int) ([]model.Header, error) { return nil, nil }
func (*base) QHFlat(context.Context, bool, int) ([]model.Header, error)      { return nil, nil }
func (*base) DomeFlat(context.Context, bool, int) ([]model.Header, error)    { return nil, nil }

// 常用时间窗。
const (
	hour = time.Hour
	day  = 24 * time.Hour
)

// pick 在 howmany 未指定时按 raw/processed 选择默认数量。
func pick(howmany int, processed bool, raw, proc int) int {
	if howmany > 0 {
		return howmany
	}
	if processed {
		return proc
	}
	return raw
}
