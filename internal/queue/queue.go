// Package queue 实现 ingest/export/preview/calcache 四个队列共享的数据库工作表。
//
// Pop 在表级排他锁下选出 sortkey 最大的可执行行，标记 inprogress，删除同键的兄弟行，
// 提交后返回普通值。调用方拿到的值与数据库会话无关，后续读取不会再对队列表加锁。
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fitsstore-go/internal/model"
	"fitsstore-go/pkg/database"
)

// Entry 是队列行需要实现的方法，由 model 中的四个队列模型提供。
type Entry interface {
	Base() *model.QueueFields
	DedupValue() interface{}
	TableName() string
}

// Queue 是类型 T 的队列。PT 必须是 *T。
type Queue[T any, PT interface {
	*T
	Entry
}] struct {
	db          *gorm.DB
	dedupColumn string
	now         func() time.Time
}

// New 创建队列；dedupColumn 是兄弟行去重所用的列。
func New[T any, PT interface {
	*T
	Entry
}](db *gorm.DB, dedupColumn string) *Queue[T, PT] {
	return &Queue[T, PT]{db: db, dedupColumn: dedupColumn, now: func() time.Time { return time.Now().UTC() }}
}

// 四个队列的具体类型。
type (
	Ingest   = Queue[model.IngestQueue, *model.IngestQueue]
	Export   = Queue[model.ExportQueue, *model.ExportQueue]
	Preview  = Queue[model.PreviewQueue, *model.PreviewQueue]
	CalCache = Queue[model.CalCacheQueue, *model.CalCacheQueue]
)

func NewIngest(db *gorm.DB) *Ingest { return New[model.IngestQueue](db, "filename") }
func NewExport(db *gorm.DB) *Export { return New[model.ExportQueue](db, "filename") }
func NewPreview(db *gorm.DB) *Preview {
	return New[model.PreviewQueue](db, "diskfile_id")
}
func NewCalCache(db *gorm.DB) *CalCache {
	return New[model.CalCacheQueue](db, "obs_hid")
}

// SetClock 替换时间源，仅用于测试。
func (q *Queue[T, PT]) SetClock(now func() time.Time) { q.now = now }

// Table 返回队列表名。
func (q *Queue[T, PT]) Table() string {
	return PT(new(T)).TableName()
}

func col(name string) clause.Column { return clause.Column{Name: name} }

func (q *Queue[T, PT]) eligible(tx *gorm.DB, now time.Time) *gorm.DB {
	return tx.Where(clause.Eq{Column: col("inprogress"), Value: false}).
		Where(clause.Lte{Column: col("after"), Value: now})
}

// Enqueue 插入一行并返回 id。不保证幂等，去重由 Pop 完成。
// added/after 为零值时取当前时间；sortkey 为空时取去重键，整数键补零到定宽以保持数值顺序。
func (q *Queue[T, PT]) Enqueue(ctx context.Context, entry PT) (uint, error) {
	b := entry.Base()
	now := q.now()
	if b.Added.IsZero() {
		b.Added = now
	}
	if b.After.IsZero() {
		b.After = now
	}
	if b.SortKey == "" {
		b.SortKey = sortKey(entry.DedupValue())
	}
	b.ID = 0
	b.InProgress = false
	if err := q.db.WithContext(ctx).Create(entry).Error; err != nil {
		return 0, err
	}
	return b.ID, nil
}

func sortKey(v interface{}) string {
	switch x := v.(type) {
	case uint:
		return fmt.Sprintf("%020d", x)
	case uint64:
		return fmt.Sprintf("%020d", x)
	case int:
		return fmt.Sprintf("%020d", x)
	case int64:
		return fmt.Sprintf("%020d", x)
	}
	return fmt.Sprint(v)
}

// lock 获取表级排他锁。Postgres 使用 ACCESS EXCLUSIVE；MySQL 依赖 SELECT ... FOR UPDATE；
// SQLite 的写事务本身是串行的。
func (q *Queue[T, PT]) lock(tx *gorm.DB) (*gorm.DB, error) {
	switch tx.Dialector.Name() {
	case database.DialectPostgres:
		if err := tx.Exec(fmt.Sprintf("LOCK TABLE %s IN ACCESS EXCLUSIVE MODE", q.Table())).Error; err != nil {
			return nil, err
		}
		return tx, nil
	case database.DialectMySQL:
		return tx.Clauses(clause.Locking{Strength: "UPDATE"}), nil
	}
	return tx, nil
}

// Pop 取出一行并标记 inprogress。队列为空时返回 (nil, nil)。
// fastRebuild 为 true 时不删除兄弟行。
func (q *Queue[T, PT]) Pop(ctx context.Context, fastRebuild bool) (*T, error) {
	var popped T
	found := false
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sel, err := q.lock(tx)
		if err != nil {
			return err
		}
		res := q.eligible(sel, q.now()).
			Order(clause.OrderByColumn{Column: col("sortkey"), Desc: true}).
			Order(clause.OrderByColumn{Column: col("id"), Desc: true}).
			Limit(1).Find(&popped)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		found = true
		p := PT(&popped)
		p.Base().InProgress = true
		if err := tx.Model(new(T)).Where(clause.Eq{Column: col("id"), Value: p.Base().ID}).
			Update("inprogress", true).Error; err != nil {
			return err
		}
		if fastRebuild {
			return nil
		}
		return tx.Where(clause.Eq{Column: col(q.dedupColumn), Value: p.DedupValue()}).
			Where(clause.Eq{Column: col("inprogress"), Value: false}).
			Where(clause.Neq{Column: col("id"), Value: p.Base().ID}).
			Delete(new(T)).Error
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &popped, nil
}

// Length 返回当前可执行行数。
func (q *Queue[T, PT]) Length(ctx context.Context) (int64, error) {
	var n int64
	err := q.eligible(q.db.WithContext(ctx).Model(new(T)), q.now()).Count(&n).Error
	return n, err
}

// RetryStuck 把 lastfailed 早于 now-interval 的 inprogress 行重新置为可执行，返回重置行数。
func (q *Queue[T, PT]) RetryStuck(ctx context.Context, interval time.Duration) (int64, error) {
	res := q.db.WithContext(ctx).Model(new(T)).
		Where(clause.Eq{Column: col("inprogress"), Value: true}).
		Where(clause.Lt{Column: col("lastfailed"), Value: q.now().Add(-interval)}).
		Update("inprogress", false)
	return res.RowsAffected, res.Error
}

// Defer 释放一行并推迟到 until 之后再执行。
func (q *Queue[T, PT]) Defer(ctx context.Context, id uint, until time.Time) error {
	return q.update(ctx, id, map[string]interface{}{"inprogress": false, "after": until.UTC()})
}

// Fail 记录失败。行保持 inprogress=true，避免立即重试。
func (q *Queue[T, PT]) Fail(ctx context.Context, id uint, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return q.update(ctx, id, map[string]interface{}{
		"failed":     true,
		"lastfailed": q.now(),
		"error":      msg,
	})
}

// Done 在工作成功提交后删除该行。
func (q *Queue[T, PT]) Done(ctx context.Context, id uint) error {
	return q.db.WithContext(ctx).Where(clause.Eq{Column: col("id"), Value: id}).Delete(new(T)).Error
}

// Get 按 id 读取一行。
func (q *Queue[T, PT]) Get(ctx context.Context, id uint) (*T, error) {
	var row T
	err := q.db.WithContext(ctx).Where(clause.Eq{Column: col("id"), Value: id}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &row, err
}

// List 返回按 sortkey 降序排列的前 limit 行，包括 inprogress 与失败的行。
func (q *Queue[T, PT]) List(ctx context.Context, limit int) ([]T, error) {
	var rows []T
	err := q.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: col("sortkey"), Desc: true}).
		Order(clause.OrderByColumn{Column: col("id"), Desc: true}).
		Limit(limit).Find(&rows).Error
	return rows, err
}

func (q *Queue[T, PT]) update(ctx context.Context, id uint, values map[string]interface{}) error {
	res := q.db.WithContext(ctx).Model(new(T)).Where(clause.Eq{Column: col("id"), Value: id}).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
