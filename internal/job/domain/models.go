// Package domain contains the job and property read models plus the bid-ref
// write used by the bid saga.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("job_not_found")

type JobType string

const (
	JobTypeRegular    JobType = "regular"
	JobTypeOffMarket  JobType = "off_market"
	JobTypeCommercial JobType = "commercial"
)

type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusClosed     JobStatus = "closed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Property anchors a job geographically.
type Property struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	OwnerID snowflake.ID `gorm:"not null;index"`
	Address string       `gorm:"type:text"`
	Lat     float64      `gorm:"not null"`
	Lng     float64      `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Property) TableName() string { return "properties" }

type Job struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	PropertyID snowflake.ID `gorm:"not null;index"`
	Property   *Property    `gorm:"foreignKey:PropertyID"`

	Service string    `gorm:"type:text;not null;index"`
	Type    JobType   `gorm:"type:text;not null;index"`
	Status  JobStatus `gorm:"type:text;not null;index"`

	// BidRefs mirrors the accepted-bid list the calling platform renders;
	// appended by the bid saga, trimmed on compensation.
	BidRefs  datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	BidCount int                         `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Job) TableName() string { return "jobs" }

type ListRequest struct {
	Service string
	Type    JobType
	Since   *time.Time
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)
	ListOpen(ctx context.Context, db *gorm.DB, req ListRequest) ([]Job, error)
	AppendBidRef(ctx context.Context, db *gorm.DB, jobID, bidID snowflake.ID) error
	RemoveBidRef(ctx context.Context, db *gorm.DB, jobID, bidID snowflake.ID) error
}
