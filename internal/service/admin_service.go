package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"fitsstore-go/internal/repository"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
)

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []UserDetailResponse `json:"content"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	Size          int                  `json:"size"`
	Number        int                  `json:"number"`
}

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	UserID      uint      `json:"userId"`
	Username    string    `json:"username"`
	FullName    string    `json:"fullname"`
	Role        string    `json:"role"`
	GeminiStaff bool      `json:"gemini_staff"`
	Programs    []string  `json:"programs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AdminService 接口定义了工作人员对用户的管理操作。
type AdminService interface {
	// AssignPrograms 用 programIDs 替换用户注册的项目。
	AssignPrograms(ctx context.Context, userID uint, programIDs []string) error
	SetStaff(ctx context.Context, userID uint, staff bool) error
	ListUsers(ctx context.Context, page, size int) (*UserListResponse, error)
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	userRepo repository.UserRepository
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(userRepo repository.UserRepository) AdminService {
	return &adminService{userRepo: userRepo}
}

func (s *adminService) findUser(ctx context.Context, userID uint) error {
	_, err := s.userRepo.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errkind.NotFound.New("user %d", userID)
	}
	return err
}

// AssignPrograms 为指定用户注册一组项目，空白项被忽略。
func (s *adminService) AssignPrograms(ctx context.Context, userID uint, programIDs []string) error {
	if err := s.findUser(ctx, userID); err != nil {
		return err
	}
	cleaned := make([]string, 0, len(programIDs))
	seen := make(map[string]struct{}, len(programIDs))
	for _, p := range programIDs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		cleaned = append(cleaned, p)
	}
	if err := s.userRepo.SetPrograms(ctx, userID, cleaned); err != nil {
		return err
	}
	log.Infof("[AdminService] 用户 %d 的项目更新为 %v", userID, cleaned)
	return nil
}

// SetStaff 设置或取消用户的 gemini_staff 标记。
func (s *adminService) SetStaff(ctx context.Context, userID uint, staff bool) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errkind.NotFound.New("user %d", userID)
	}
	if err != nil {
		return err
	}
	user.GeminiStaff = staff
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	log.Infof("[AdminService] 用户 %s gemini_staff=%v", user.Username, staff)
	return nil
}

// ListUsers 以分页的形式返回用户列表
func (s *adminService) ListUsers(ctx context.Context, page, size int) (*UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	offset := (page - 1) * size
	users, total, err := s.userRepo.FindWithPagination(ctx, offset, size)
	if err != nil {
		return nil, err
	}

	userResponses := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		programs, err := s.userRepo.Programs(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		userResponses = append(userResponses, UserDetailResponse{
			UserID:      u.ID,
			Username:    u.Username,
			FullName:    u.FullName,
			Role:        u.Role(),
			GeminiStaff: u.GeminiStaff,
			Programs:    programs,
			CreatedAt:   u.CreatedAt,
		})
	}

	totalPages := 0
	if total > 0 {
		totalPages = (int(total) + size - 1) / size
	}
	return &UserListResponse{
		Content:       userResponses,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
	}, nil
}
