package domain

import (
	"context"

	"github.com/MnbNwz/aab-platform-sub003/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
)

// HistoryResult is one page of the consumption ledger.
type HistoryResult struct {
	Records  []*LeadAccessRecord  `json:"records"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

type Service interface {
	// CheckLimit reconciles the active window's counter against the
	// ledger when the reset boundary has been crossed, then reports
	// whether another lead may be consumed.
	CheckLimit(ctx context.Context, userID snowflake.ID) (*LimitResult, error)

	// Consume atomically spends one lead credit in the active window
	// and appends the ledger record. Fails with LimitExceededError when
	// the pool is spent.
	Consume(ctx context.Context, contractorID, jobID snowflake.ID) (*LeadAccessRecord, error)

	// Release undoes a Consume: deletes the ledger record and returns
	// the credit. Saga compensation only.
	Release(ctx context.Context, contractorID, recordID snowflake.ID) error

	// History pages the contractor's consumption ledger newest first.
	History(ctx context.Context, userID snowflake.ID, page pagination.Pagination) (*HistoryResult, error)
}
