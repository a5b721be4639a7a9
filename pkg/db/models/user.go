package models

import (
	"time"

	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	"github.com/google/uuid"
)

// User is the buyer/admin identity. Registration lives outside this service.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Username  string         `gorm:"column:username;type:text;not null;uniqueIndex"`
	Email     string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	Role      enums.UserRole `gorm:"column:role;type:text;not null;default:'user'"`
	IsActive  bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }
