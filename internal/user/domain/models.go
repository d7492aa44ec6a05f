// Package domain contains the user read model consumed by the engine. User
// CRUD lives with the calling platform; the engine only reads categories,
// home locations and service lists.
package domain

import (
	"context"
	"errors"
	"time"

	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("user_not_found")

type User struct {
	ID       snowflake.ID                  `gorm:"primaryKey"`
	Email    string                        `gorm:"type:text;not null"`
	Category membershipdomain.UserCategory `gorm:"type:text;not null;index"`

	// Contractor home point; nil when the contractor never set one, in
	// which case the radius gate is skipped.
	HomeLat *float64 `gorm:""`
	HomeLng *float64 `gorm:""`

	// Services the contractor offers, matched against job services when
	// listing visible jobs.
	Services datatypes.JSONSlice[string] `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// HasHomeLocation reports whether both coordinates are known.
func (u User) HasHomeLocation() bool { return u.HomeLat != nil && u.HomeLng != nil }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
}
