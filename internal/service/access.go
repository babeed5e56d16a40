package service

import (
	"context"
	"strconv"
	"time"

	"fitsstore-go/internal/model"
	"fitsstore-go/internal/repository"
	"fitsstore-go/pkg/log"
)

// 访问决定的原因，按规则顺序排列。
const (
	ReasonCalibration = "calibration_class"
	ReasonReleased    = "released"
	ReasonStaff       = "gemini_staff"
	ReasonEngineering = "engineering"
	ReasonMagicCookie = "magic_cookie"
	ReasonProgram     = "registered_program"
	ReasonProprietary = "proprietary"
)

// AccessController 判断某个请求者能否取得某个 header 对应的文件。
type AccessController struct {
	users repository.UserRepository
	magic string
	now   func() time.Time
}

// NewAccessController 创建访问控制器。magic 为空表示不接受 magic 下载 cookie。
func NewAccessController(users repository.UserRepository, magic string) *AccessController {
	return &AccessController{users: users, magic: magic, now: func() time.Time { return time.Now().UTC() }}
}

// Requester 描述一次请求的身份。User 为 nil 表示匿名。
type Requester struct {
	User   *model.User
	Cookie string
}

func (r Requester) subject() string {
	if r.User == nil {
		return "anonymous"
	}
	return strconv.FormatUint(uint64(r.User.ID), 10)
}

// Decider 在一次请求内复用用户已注册的项目列表。
type Decider struct {
	ac       *AccessController
	req      Requester
	programs map[string]struct{}
	today    time.Time
}

// For 返回某个请求者的 Decider。
func (a *AccessController) For(req Requester) *Decider {
	now := a.now()
	return &Decider{
		ac:    a,
		req:   req,
		today: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}
}

// CanHave 依次应用七条规则，返回是否允许以及命中的原因。每个决定都会记录日志。
func (d *Decider) CanHave(ctx context.Context, h *model.Header) (bool, string, error) {
	ok, reason, err := d.decide(ctx, h)
	if err != nil {
		return false, "", err
	}
	log.Infow("[Access] 访问决定",
		"subject", d.req.subject(),
		"header_id", h.ID,
		"allowed", ok,
		"reason", reason,
	)
	return ok, reason, nil
}

func (d *Decider) decide(ctx context.Context, h *model.Header) (bool, string, error) {
	if model.IsCalibrationClass(h.ObservationClass) {
		return true, ReasonCalibration, nil
	}
	if h.Release != nil {
		r := h.Release.UTC()
		day := time.Date(r.Year(), r.Month(), r.Day(), 0, 0, 0, 0, time.UTC)
		if !day.After(d.today) {
			return true, ReasonReleased, nil
		}
	}
	user := d.req.User
	if user != nil && user.GeminiStaff {
		return true, ReasonStaff, nil
	}
	if h.Engineering {
		return true, ReasonEngineering, nil
	}
	if d.ac.magic != "" && d.req.Cookie == d.ac.magic {
		return true, ReasonMagicCookie, nil
	}
	if user != nil && h.ProgramID != "" {
		if d.programs == nil {
			ids, err := d.ac.users.Programs(ctx, user.ID)
			if err != nil {
				return false, "", err
			}
			d.programs = make(map[string]struct{}, len(ids))
			for _, id := range ids {
				d.programs[id] = struct{}{}
			}
		}
		if _, ok := d.programs[h.ProgramID]; ok {
			return true, ReasonProgram, nil
		}
	}
	return false, ReasonProprietary, nil
}
