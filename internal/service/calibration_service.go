package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"fitsstore-go/internal/calibration"
	"fitsstore-go/internal/model"
	"fitsstore-go/internal/repository"
	"fitsstore-go/internal/selection"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
)

// 定标响应来源。
const (
	SourceCache = "cache"
	SourceLive  = "live"
)

const (
	calRespPrefix = "calcache:resp:"
	calRespAll    = "*"
	calRespTTL    = time.Hour
)

// CalibrationMatch 是一个关联到科学观测的定标文件。
type CalibrationMatch struct {
	CalType    string     `json:"caltype"`
	Rank       int        `json:"rank"`
	HeaderID   uint       `json:"header_id"`
	Filename   string     `json:"filename"`
	DataLabel  string     `json:"data_label"`
	UTDateTime *time.Time `json:"ut_datetime"`
	DataMD5    string     `json:"data_md5"`
}

// Associations 是某个观测的定标查询结果。
type Associations struct {
	ObsHID       uint               `json:"obs_hid"`
	Source       string             `json:"source"`
	Calibrations []CalibrationMatch `json:"calibrations"`
}

// CalibrationService 提供定标查询：优先读 calcache 表，缓存为空时实时运行关联引擎。
// 响应另外缓存在 Redis 中，由 calcache worker 在重算后清除。
type CalibrationService struct {
	db      *gorm.DB
	headers repository.HeaderRepository
	cache   repository.CalCacheRepository
	files   *FileService
	rdb     *redis.Client
	depth   int
}

// NewCalibrationService 创建 CalibrationService。rdb 可以为 nil，此时不缓存响应。
func NewCalibrationService(db *gorm.DB, files *FileService, rdb *redis.Client, depth int) *CalibrationService {
	return &CalibrationService{
		db:      db,
		headers: repository.NewHeaderRepository(db),
		cache:   repository.NewCalCacheRepository(db),
		files:   files,
		rdb:     rdb,
		depth:   depth,
	}
}

func calRespKey(obsHID uint) string {
	return calRespPrefix + strconv.FormatUint(uint64(obsHID), 10)
}

// Associated 返回观测 obsHID 的定标。caltype 为空表示所有适用类型，
// 此时同一个定标文件只出现一次（按 caltype、rank 的第一次出现）。
func (s *CalibrationService) Associated(ctx context.Context, obsHID uint, caltype string) (*Associations, error) {
	field := caltype
	if field == "" {
		field = calRespAll
	}
	if a := s.cached(ctx, obsHID, field); a != nil {
		return a, nil
	}

	h, err := s.headers.FindByID(ctx, obsHID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errkind.NotFound.New("header %d", obsHID)
	}
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}

	a, err := s.fromCache(ctx, obsHID, caltype)
	if err != nil {
		return nil, err
	}
	if a == nil {
		if a, err = s.live(ctx, h, caltype); err != nil {
			return nil, err
		}
	}
	s.store(ctx, obsHID, field, a)
	return a, nil
}

func (s *CalibrationService) fromCache(ctx context.Context, obsHID uint, caltype string) (*Associations, error) {
	var (
		rows []model.CalCache
		err  error
	)
	if caltype == "" {
		rows, err = s.cache.Rows(ctx, obsHID)
	} else {
		rows, err = s.cache.ByCalType(ctx, obsHID, caltype)
	}
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CalHID)
	}
	hs, err := s.headers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	byID := make(map[uint]*model.Header, len(hs))
	for i := range hs {
		byID[hs[i].ID] = &hs[i]
	}
	a := &Associations{ObsHID: obsHID, Source: SourceCache}
	seen := make(map[uint]struct{}, len(rows))
	for _, r := range rows {
		h, ok := byID[r.CalHID]
		if !ok {
			continue
		}
		if _, dup := seen[r.CalHID]; dup {
			continue
		}
		seen[r.CalHID] = struct{}{}
		a.Calibrations = append(a.Calibrations, newMatch(r.CalType, r.Rank, h))
	}
	return a, nil
}

func (s *CalibrationService) live(ctx context.Context, h *model.Header, caltype string) (*Associations, error) {
	c, err := calibration.FromHeader(ctx, s.db, h)
	if err != nil {
		return nil, err
	}
	var results []calibration.Result
	if caltype == "" {
		if results, err = calibration.All(ctx, c); err != nil {
			return nil, err
		}
		sort.SliceStable(results, func(i, j int) bool { return results[i].CalType < results[j].CalType })
	} else {
		hs, err := calibration.Lookup(ctx, c, caltype, 0)
		if err != nil {
			return nil, err
		}
		results = []calibration.Result{{CalType: caltype, Headers: hs}}
	}

	a := &Associations{ObsHID: h.ID, Source: SourceLive}
	seen := map[uint]struct{}{}
	for _, r := range results {
		for rank := range r.Headers {
			ch := &r.Headers[rank]
			if _, dup := seen[ch.ID]; dup {
				continue
			}
			seen[ch.ID] = struct{}{}
			a.Calibrations = append(a.Calibrations, newMatch(r.CalType, rank, ch))
		}
	}
	return a, nil
}

func newMatch(caltype string, rank int, h *model.Header) CalibrationMatch {
	m := CalibrationMatch{
		CalType:    caltype,
		Rank:       rank,
		HeaderID:   h.ID,
		DataLabel:  h.DataLabel,
		UTDateTime: h.UTDateTime,
	}
	if h.DiskFile != nil {
		m.Filename = h.DiskFile.Filename
		m.DataMD5 = h.DiskFile.DataMD5
	}
	return m
}

func (s *CalibrationService) cached(ctx context.Context, obsHID uint, field string) *Associations {
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.HGet(ctx, calRespKey(obsHID), field).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("[CalibrationService] 读取响应缓存失败, obs_hid=%d: %v", obsHID, err)
		}
		return nil
	}
	var a Associations
	if err := json.Unmarshal(raw, &a); err != nil {
		log.Warnf("[CalibrationService] 响应缓存损坏, obs_hid=%d: %v", obsHID, err)
		return nil
	}
	return &a
}

func (s *CalibrationService) store(ctx context.Context, obsHID uint, field string, a *Associations) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	key := calRespKey(obsHID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, field, raw)
		p.Expire(ctx, key, calRespTTL)
		return nil
	})
	if err != nil {
		log.Warnf("[CalibrationService] 写入响应缓存失败, obs_hid=%d: %v", obsHID, err)
	}
}

// Invalidate 丢弃观测 obsHID 的全部缓存响应，供 calcache worker 在重算后调用。
func (s *CalibrationService) Invalidate(ctx context.Context, obsHID uint) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, calRespKey(obsHID)).Err()
}

// AssociateSelection 返回选择中所有观测的定标，并按配置的层数继续求定标的定标。
func (s *CalibrationService) AssociateSelection(ctx context.Context, sel *selection.Selection) ([]FileEntry, error) {
	hs, err := s.files.Headers(ctx, sel)
	if err != nil {
		return nil, err
	}
	cals, err := calibration.AssociateAll(ctx, s.db, hs, s.depth)
	if err != nil {
		return nil, err
	}
	out := make([]FileEntry, 0, len(cals))
	for i := range cals {
		if cals[i].DiskFile == nil {
			continue
		}
		out = append(out, newFileEntry(cals[i].DiskFile))
	}
	log.Infof("[CalibrationService] 选择 %q: %d 个观测, %d 个关联定标", sel.String(), len(hs), len(out))
	return out, nil
}
