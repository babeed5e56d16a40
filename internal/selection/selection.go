// Package selection 解析文件列表、摘要与下载接口使用的 URL 选择路径，
// 例如 "/GMOS-N/20200115/OBJECT/Pass"，并把它翻译成 header 查询条件。
package selection

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"fitsstore-go/internal/repository"
	"fitsstore-go/pkg/errkind"
)

// Selection 是解析后的选择条件。零值字段表示不约束。
type Selection struct {
	// NotPresent 为 true 时只选择已不在存储中的版本，默认只选 present。
	NotPresent bool
	Canonical  bool

	Instrument string
	// Start/End 是 UT 时间的半开区间 [Start, End)。
	Start, End *time.Time

	Filename         string
	ProgramID        string
	ObservationID    string
	DataLabel        string
	ObservationType  string
	ObservationClass string
	QAState          string
	Reduction        string
	Telescope        string
	Spectroscopy     *bool
	AdaptiveOptics   *bool

	tokens []string
}

var (
	dateRE      = regexp.MustCompile(`^\d{8}$`)
	dateRangeRE = regexp.MustCompile(`^(\d{8})-(\d{8})$`)
)

// 各类枚举取值，匹配时不区分大小写，保存时使用这里的写法。
var (
	instruments = []string{
		"GMOS", "GMOS-N", "GMOS-S", "NIRI", "NIFS", "GNIRS", "F2", "GSAOI", "GPI",
		"michelle", "TReCS", "NICI", "GRACES", "Phoenix", "bHROS", "hrwfs", "oscir",
	}
	obsTypes = []string{
		"OBJECT", "BIAS", "DARK", "FLAT", "ARC", "PINHOLE", "RONCHI", "CAL", "FRINGE", "MASK", "BPM",
	}
	obsClasses = []string{"science", "acq", "progCal", "partnerCal", "acqCal", "dayCal"}
	qaStates   = []string{"Pass", "Usable", "Fail", "Undefined", "NotFail"}
	reductions = []string{
		"RAW", "PREPARED", "PROCESSED_BIAS", "PROCESSED_FLAT", "PROCESSED_DARK", "PROCESSED_FRINGE",
		"PROCESSED_ARC", "PROCESSED_TELLURIC", "PROCESSED_STANDARD", "PROCESSED_SCIENCE", "PROCESSED_UNKNOWN",
	}
)

func lookup(values []string, tok string) (string, bool) {
	for _, v := range values {
		if strings.EqualFold(v, tok) {
			return v, true
		}
	}
	return "", false
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, errkind.Validation.New("invalid date %q", s)
	}
	return t, nil
}

// Parse 解析选择路径。now 用于解释 "today"。无法识别的片段返回 Validation 错误。
func Parse(path string, now time.Time) (*Selection, error) {
	s := &Selection{}
	for _, tok := range strings.Split(path, "/") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if err := s.apply(tok, now); err != nil {
			return nil, err
		}
		s.tokens = append(s.tokens, tok)
	}
	return s, nil
}

func (s *Selection) apply(tok string, now time.Time) error {
	if key, value, ok := strings.Cut(tok, "="); ok {
		if value == "" {
			return errkind.Validation.New("empty value in %q", tok)
		}
		switch strings.ToLower(key) {
		case "filename":
			s.Filename = value
		case "progid":
			s.ProgramID = value
		case "obsid":
			s.ObservationID = value
		case "datalabel":
			s.DataLabel = value
		default:
			return errkind.Validation.New("unknown selection key %q", key)
		}
		return nil
	}

	switch strings.ToLower(tok) {
	case "present":
		s.NotPresent = false
		return nil
	case "notpresent":
		s.NotPresent = true
		return nil
	case "canonical":
		s.Canonical = true
		return nil
	case "today":
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return s.setRange(day, day.AddDate(0, 0, 1))
	case "imaging", "spectroscopy":
		v := strings.EqualFold(tok, "spectroscopy")
		s.Spectroscopy = &v
		return nil
	case "ao", "notao":
		v := strings.EqualFold(tok, "ao")
		s.AdaptiveOptics = &v
		return nil
	case "n", "north":
		s.Telescope = "North"
		return nil
	case "s", "south":
		s.Telescope = "South"
		return nil
	}

	if dateRE.MatchString(tok) {
		day, err := parseDate(tok)
		if err != nil {
			return err
		}
		return s.setRange(day, day.AddDate(0, 0, 1))
	}
	if m := dateRangeRE.FindStringSubmatch(tok); m != nil {
		from, err := parseDate(m[1])
		if err != nil {
			return err
		}
		to, err := parseDate(m[2])
		if err != nil {
			return err
		}
		if to.Before(from) {
			return errkind.Validation.New("date range %q ends before it starts", tok)
		}
		return s.setRange(from, to.AddDate(0, 0, 1))
	}

	if v, ok := lookup(instruments, tok); ok {
		s.Instrument = v
		return nil
	}
	if v, ok := lookup(obsTypes, tok); ok {
		s.ObservationType = v
		return nil
	}
	if v, ok := lookup(obsClasses, tok); ok {
		s.ObservationClass = v
		return nil
	}
	if v, ok := lookup(qaStates, tok); ok {
		s.QAState = v
		return nil
	}
	if v, ok := lookup(reductions, tok); ok {
		s.Reduction = v
		return nil
	}
	return errkind.Validation.New("unrecognised selection %q", tok)
}

func (s *Selection) setRange(from, to time.Time) error {
	if s.Start != nil {
		return errkind.Validation.New("more than one date constraint")
	}
	s.Start, s.End = &from, &to
	return nil
}

// Open 报告选择是否没有日期、项目、观测、data label 或文件名约束。
// 开放选择受 fits_open_result_limit 限制。
func (s *Selection) Open() bool {
	return s.Start == nil && s.Filename == "" && s.ProgramID == "" &&
		s.ObservationID == "" && s.DataLabel == ""
}

// Limit 根据选择是否开放返回适用的结果上限。
func (s *Selection) Limit(openLimit, closedLimit int) int {
	if s.Open() {
		return openLimit
	}
	return closedLimit
}

func eq(col string, v interface{}) repository.Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where(col+" = ?", v) }
}

// Scopes 把选择翻译成 header 查询条件（查询需已 JOIN diskfile）。
func (s *Selection) Scopes() []repository.Scope {
	scopes := []repository.Scope{eq("diskfile.present", !s.NotPresent)}
	if s.Canonical {
		scopes = append(scopes, eq("diskfile.canonical", true))
	}
	switch s.Instrument {
	case "":
	case "GMOS":
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Where("header.instrument IN ?", []string{"GMOS-N", "GMOS-S"})
		})
	default:
		scopes = append(scopes, eq("header.instrument", s.Instrument))
	}
	if s.Start != nil {
		start, end := *s.Start, *s.End
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Where("header.ut_datetime >= ? AND header.ut_datetime < ?", start, end)
		})
	}
	if s.Filename != "" {
		name := s.Filename
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Where("diskfile.filename IN ?", []string{name, strings.TrimSuffix(name, ".gz"), strings.TrimSuffix(name, ".gz") + ".gz"})
		})
	}
	for col, v := range map[string]string{
		"header.program_id":        s.ProgramID,
		"header.observation_id":    s.ObservationID,
		"header.data_label":        s.DataLabel,
		"header.observation_type":  s.ObservationType,
		"header.observation_class": s.ObservationClass,
		"header.reduction":         s.Reduction,
		"header.telescope":         s.Telescope,
	} {
		if v != "" {
			scopes = append(scopes, eq(col, v))
		}
	}
	switch s.QAState {
	case "":
	case "NotFail":
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("header.qa_state <> ?", "Fail") })
	default:
		scopes = append(scopes, eq("header.qa_state", s.QAState))
	}
	if s.Spectroscopy != nil {
		scopes = append(scopes, eq("header.spectroscopy", *s.Spectroscopy))
	}
	if s.AdaptiveOptics != nil {
		scopes = append(scopes, eq("header.adaptive_optics", *s.AdaptiveOptics))
	}
	return scopes
}

// String 返回规范化的选择描述，用于 README 与日志。
func (s *Selection) String() string {
	if len(s.tokens) == 0 {
		return "all present files"
	}
	return strings.Join(s.tokens, "/")
}

// Describe 返回逐项的人类可读描述，按字段名排序。
func (s *Selection) Describe() []string {
	var out []string
	add := func(name, v string) {
		if v != "" {
			out = append(out, fmt.Sprintf("%s: %s", name, v))
		}
	}
	add("instrument", s.Instrument)
	add("filename", s.Filename)
	add("program", s.ProgramID)
	add("observation", s.ObservationID)
	add("data label", s.DataLabel)
	add("observation type", s.ObservationType)
	add("observation class", s.ObservationClass)
	add("qa state", s.QAState)
	add("reduction", s.Reduction)
	add("telescope", s.Telescope)
	if s.Start != nil {
		add("ut date", fmt.Sprintf("%s to %s", s.Start.Format("2006-01-02"), s.End.Add(-time.Second).Format("2006-01-02")))
	}
	if s.NotPresent {
		add("presence", "not present")
	}
	sort.Strings(out)
	return out
}
