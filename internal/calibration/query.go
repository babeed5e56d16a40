package calibration

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fitsstore-go/internal/model"
	"fitsstore-go/pkg/errkind"
)

// Scope 是追加到候选查询上的一个谓词。
type Scope = func(*gorm.DB) *gorm.DB

// rule 描述一次定标查询：类型过滤、匹配谓词、时间窗与数量。
type rule struct {
	scopes []Scope
	window time.Duration
	limit  int
}

// find 执行公共骨架：仪器相同、canonical、qa_state 非 Fail，加上规则谓词，
// 在时间窗内按 |Δ ut_datetime_secs| 升序，其次按 header.id。
func (b *base) find(ctx context.Context, r rule) ([]model.Header, error) {
	q := b.db.WithContext(ctx).Model(&model.Header{}).
		Joins("JOIN diskfile ON diskfile.id = header.diskfile_id").
		Where("diskfile.canonical = ?", true).
		Where("header.qa_state <> ?", "Fail").
		Where("header.instrument = ?", b.d.Instrument)
	if t := model.InstrumentTable(b.d.Instrument); t != "" {
		q = q.Joins(fmt.Sprintf("JOIN %s ON %s.header_id = header.id", t, t))
	}
	q = q.Scopes(r.scopes...)

	if b.secs != nil {
		if r.window > 0 {
			w := int64(r.window / time.Second)
			q = q.Where("header.ut_datetime_secs BETWEEN ? AND ?", *b.secs-w, *b.secs+w)
		}
		q = q.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  "ABS(header.ut_datetime_secs - ?), header.id",
			Vars: []interface{}{*b.secs},
		}})
	} else {
		q = q.Order("header.id")
	}
	if r.limit > 0 {
		q = q.Limit(r.limit)
	}

	var hs []model.Header
	if err := q.Preload("DiskFile").Find(&hs).Error; err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	return hs, nil
}

// ext 返回仪器扩展表中的列名。
func (b *base) ext(col string) string {
	return model.InstrumentTable(b.d.Instrument) + "." + col
}

// kind 是类型过滤：raw 按 observation_type，processed 按 reduction。
func kind(obstype, processedAs string, processed bool) Scope {
	if processed {
		return eq("header.reduction", "PROCESSED_"+processedAs)
	}
	return eq("header.observation_type", obstype)
}

// eq 生成等值谓词；缺失的可选值匹配 NULL。
func eq(col string, v interface{}) Scope {
	switch x := v.(type) {
	case *float64:
		if x == nil {
			return isNull(col)
		}
		v = *x
	case *int:
		if x == nil {
			return isNull(col)
		}
		v = *x
	}
	return func(db *gorm.DB) *gorm.DB { return db.Where(col+" = ?", v) }
}

func isNull(col string) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where(col + " IS NULL") }
}

func notEq(col string, v interface{}) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where(col+" <> ?", v) }
}

func in(col string, vs ...string) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where(col+" IN ?", vs) }
}

func like(col, pattern string) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where(col+" LIKE ?", pattern) }
}

// contains 生成区分大小写的子串谓词，sub 中的 % 与 _ 按字面匹配。
func contains(col, sub string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if db.Dialector.Name() == "postgres" {
			return db.Where("STRPOS("+col+", ?) > 0", sub)
		}
		return db.Where("INSTR("+col+", ?) > 0", sub)
	}
}

// within 生成 |col - v| <= tol 的谓词；v 缺失时匹配 NULL。
func within(col string, v *float64, tol float64) Scope {
	if v == nil {
		return isNull(col)
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(col+" BETWEEN ? AND ?", *v-tol, *v+tol)
	}
}

// ampReadArea 对整帧和中心光谱 ROI 要求完全相等，其余 ROI 只要求定标的读出区包含科学帧的。
func (b *base) ampReadArea() Scope {
	col := b.ext("amp_read_area")
	switch b.d.DetectorROISetting {
	case "Full Frame", "Central Spectrum":
		return eq(col, b.d.AmpReadArea)
	}
	return contains(col, b.d.AmpReadArea)
}

// flexure 约束光谱平场与科学帧的望远镜指向，控制仪器弯曲的影响。
// IFU 要求仰角差与 crpa 差都在 7.5 度内（crpa 按 1/cos(仰角) 放宽）；
// MOS/LS 仅在中心波长大于 0.55 微米或 R150 光栅时以 15 度约束；仰角高于 85 度不约束。
func (b *base) flexure() []Scope {
	d := b.d
	if d.Elevation == nil || *d.Elevation > 85 {
		return nil
	}
	var tol float64
	switch d.Mode {
	case "IFS":
		tol = 7.5
	case "MOS", "LS":
		red := d.CentralWavelength != nil && *d.CentralWavelength > 0.55
		if !red && !strings.HasPrefix(d.Disperser, "R150") {
			return nil
		}
		tol = 15
	default:
		return nil
	}
	scopes := []Scope{within("header.elevation", d.Elevation, tol)}
	if d.CassRotatorPA != nil {
		crpaTol := tol / math.Cos(*d.Elevation*math.Pi/180)
		scopes = append(scopes, within("header.cass_rotator_pa", d.CassRotatorPA, crpaTol))
	}
	return scopes
}
