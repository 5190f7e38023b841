// Package domain defines the consultation orchestrator contract: the single
// entry point that prices, fetches, debits and records a multi-type lookup.
package domain

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Request describes one consultation as submitted by a user.
type Request struct {
	UserID     snowflake.ID
	Subject    string
	Types      []string
	ForceFresh bool
}

// TypeResult is the per-type outcome returned to the caller.
type TypeResult struct {
	Code      string          `json:"code"`
	Success   bool            `json:"success"`
	Skipped   bool            `json:"skipped,omitempty"`
	Charged   bool            `json:"charged"`
	CacheHit  bool            `json:"cache_hit,omitempty"`
	CostMinor int64           `json:"cost_minor"`
	Error     string          `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	LatencyMS int64           `json:"latency_ms"`
}

// Result is the caller-facing view of a completed consultation.
type Result struct {
	ID                  snowflake.ID  `json:"id"`
	Subject             string        `json:"subject"`
	Status              Status        `json:"status"`
	TotalCostMinor      int64         `json:"total_cost_minor"`
	BalanceAfterMinor   int64         `json:"balance_after_minor"`
	CreditTransactionID *snowflake.ID `json:"credit_transaction_id,omitempty"`
	CacheUsed           bool          `json:"cache_used"`
	LatencyMS           int64         `json:"latency_ms"`
	Types               []TypeResult  `json:"types"`
}

type Service interface {
	// Run executes the full consultation pipeline: validate, price, fan out
	// to providers, debit once for the attempted total and record the log.
	Run(ctx context.Context, req Request) (*Result, error)
	// History lists the user's past consultations with their detail rows.
	History(ctx context.Context, userID snowflake.ID, limit int) ([]Consultation, map[snowflake.ID][]ConsultationDetail, error)
}

var (
	ErrNoTypesRequested = errors.New("no_types_requested")
	ErrInvalidSubject   = errors.New("invalid_subject")
)
