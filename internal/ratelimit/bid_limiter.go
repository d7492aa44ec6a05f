package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

const (
	keyBidContractor = "bid:rate:contractor:%s"

	// Roughly one bid per second sustained with room for a short burst;
	// generous for humans, a wall for runaway clients.
	bidRate  = 1.0
	bidBurst = 5
)

// BidLimiter throttles bid placement per contractor. Disabled (nil) when
// redis is not configured, in which case every request passes.
type BidLimiter struct {
	bucket *TokenBucket
}

func NewBidLimiter(bucket *TokenBucket) *BidLimiter {
	if bucket == nil {
		return nil
	}
	return &BidLimiter{bucket: bucket}
}

func (l *BidLimiter) Allow(ctx context.Context, contractorID snowflake.ID) (*AllowResult, error) {
	if l == nil || l.bucket == nil {
		return &AllowResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyBidContractor, contractorID), bidRate, bidBurst)
}
