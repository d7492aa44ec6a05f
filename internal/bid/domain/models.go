// Package domain contains the bid model and the bid placement contract. A
// bid only exists together with a consumed lead credit and a job bid ref;
// the saga in the service package keeps the three in step.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	leaddomain "github.com/MnbNwz/aab-platform-sub003/internal/lead/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("bid_not_found")
	ErrBidExists  = errors.New("bid_already_exists")
	ErrJobNotOpen = errors.New("job_not_open")
	ErrInvalidBid = errors.New("invalid_bid")
)

type BidStatus string

const (
	// BidStatusTentative marks a bid whose companion writes have not
	// landed yet. Tentative bids are invisible to job owners.
	BidStatusTentative BidStatus = "tentative"
	BidStatusCommitted BidStatus = "committed"
)

// Bid rows are soft deleted so compensation keeps an audit trail; a partial
// unique index on (contractor_id, job_id) over live rows enforces one bid
// per contractor per job.
type Bid struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	JobID        snowflake.ID `gorm:"not null;index"`
	ContractorID snowflake.ID `gorm:"not null;index"`
	Status       BidStatus    `gorm:"type:text;not null;index"`

	AmountCents int64  `gorm:"not null"`
	Message     string `gorm:"type:text"`

	// LeadRecordID links the bid to the credit it consumed.
	LeadRecordID *snowflake.ID `gorm:"index"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName sets the database table name.
func (Bid) TableName() string { return "bids" }

// SagaError reports a bid placement that failed mid-flight and was rolled
// back. The request is safe to retry.
type SagaError struct {
	Step string
	Err  error
}

func (e *SagaError) Error() string {
	return fmt.Sprintf("bid placement failed at %s and was rolled back, retry the request", e.Step)
}

func (e *SagaError) Unwrap() error { return e.Err }

// IsSagaError reports whether err is a rolled-back placement.
func IsSagaError(err error) bool {
	var target *SagaError
	return errors.As(err, &target)
}

type PlaceBidRequest struct {
	ContractorID snowflake.ID `json:"contractor_id"`
	JobID        snowflake.ID `json:"job_id"`
	AmountCents  int64        `json:"amount_cents"`
	Message      string       `json:"message"`
}

type PlaceBidResponse struct {
	Bid   Bid                     `json:"bid"`
	Limit *leaddomain.LimitResult `json:"limit"`
}

type Service interface {
	// PlaceBid runs the placement saga: preconditions, tentative bid,
	// parallel lead/job/commit writes, compensation on failure.
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*PlaceBidResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, bid *Bid) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status BidStatus, at time.Time) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ExistsActive(ctx context.Context, db *gorm.DB, contractorID, jobID snowflake.ID) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Bid, error)
}
