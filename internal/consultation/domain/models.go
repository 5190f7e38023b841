package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status summarizes a consultation across all requested types.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Consultation is one billed lookup request against a subject.
type Consultation struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID              snowflake.ID  `gorm:"index" json:"user_id"`
	Subject             string        `gorm:"index" json:"subject"`
	Status              Status        `json:"status"`
	TotalCostMinor      int64         `json:"total_cost_minor"`
	LatencyMS           int64         `json:"latency_ms"`
	CacheUsed           bool          `json:"cache_used"`
	CreditTransactionID *snowflake.ID `gorm:"index" json:"credit_transaction_id,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

func (Consultation) TableName() string {
	return "consultations"
}

// ConsultationDetail is the per-type outcome row under a consultation.
type ConsultationDetail struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	ConsultationID     snowflake.ID   `gorm:"index" json:"consultation_id"`
	ConsultationTypeID snowflake.ID   `json:"consultation_type_id"`
	TypeCode           string         `json:"type_code"`
	Success            bool           `json:"success"`
	CostMinor          int64          `json:"cost_minor"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	Payload            datatypes.JSON `json:"payload,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

func (ConsultationDetail) TableName() string {
	return "consultation_details"
}
