package model

import (
	"time"
)

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case Student, Teacher, Admin:
		return true
	}
	return false
}

// User 账号与学生成长数据；level/current_xp/total_xp 只由 GamificationService.AwardXP 写入
// swagger:model User
type User struct {
	BaseModel
	Name                  string     `gorm:"size:100;not null" json:"name"`
	Email                 string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password              string     `gorm:"size:100;not null" json:"-"`
	Role                  UserRole   `gorm:"size:20;index;default:student" json:"role"`
	Avatar                string     `gorm:"size:255" json:"avatar"`
	Level                 int        `gorm:"not null;default:1" json:"level"`
	CurrentXP             int        `gorm:"column:current_xp;not null;default:0" json:"currentXP"`
	TotalXP               int        `gorm:"column:total_xp;not null;default:0;index" json:"totalXP"`
	Streak                int        `gorm:"not null;default:0" json:"streak"`
	LastActivityDate      *time.Time `json:"lastActivityDate"`
	TotalLessonsCompleted int        `gorm:"not null;default:0" json:"totalLessonsCompleted"`
	TotalQuizzesCompleted int        `gorm:"not null;default:0" json:"totalQuizzesCompleted"`
	Disabled              bool       `gorm:"default:false" json:"disabled"`
	LastLogin             *time.Time `json:"lastLogin,omitempty"`
	LastSeen              *time.Time `json:"lastSeen,omitempty"`
}

func (User) TableName() string {
	return "users"
}
