package model

import "time"

// User 对应 'archiveuser' 表，是归档的下载用户。
// 访问控制只关心 GeminiStaff 与其注册的项目。
type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"type:varchar(64);not null;uniqueIndex" json:"username"`
	// Password 保存 bcrypt 哈希，不参与 JSON 序列化。
	Password    string    `gorm:"type:varchar(255);not null" json:"-"`
	Email       string    `gorm:"type:varchar(255)" json:"email"`
	FullName    string    `gorm:"column:fullname;type:varchar(255)" json:"fullname"`
	GeminiStaff bool      `gorm:"column:gemini_staff;not null;default:false" json:"gemini_staff"`
	Superuser   bool      `gorm:"not null;default:false" json:"superuser"`
	UserAdmin   bool      `gorm:"column:user_admin;not null;default:false" json:"user_admin"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "archiveuser"
}

// 写入 JWT 的角色名。
const (
	RoleAdmin = "ADMIN"
	RoleStaff = "STAFF"
	RoleUser  = "USER"
)

// Role 返回写入 JWT 的角色名。
func (u *User) Role() string {
	switch {
	case u.Superuser || u.UserAdmin:
		return RoleAdmin
	case u.GeminiStaff:
		return RoleStaff
	}
	return RoleUser
}

// UserProgram 记录用户注册的项目，用于专有期数据的访问控制。
type UserProgram struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint   `gorm:"not null;uniqueIndex:idx_user_program,priority:1" json:"user_id"`
	ProgramID string `gorm:"column:program_id;type:varchar(64);not null;uniqueIndex:idx_user_program,priority:2" json:"program_id"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UserProgram) TableName() string {
	return "userprogram"
}
