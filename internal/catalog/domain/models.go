// Package domain contains the consultation type catalog: the priced,
// provider-routed lookup types sold by the platform.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Provider identifies which upstream adapter serves a consultation type.
type Provider string

const (
	ProviderProtesto Provider = "protesto"
	ProviderRegistry Provider = "registry"
)

// ConsultationType is a catalog entry. Rows are long-lived reference data,
// mutated only administratively and refreshed here by TTL.
type ConsultationType struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"type:text;not null;uniqueIndex:ux_consultation_types_code"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	CostMinor int64        `json:"cost_minor_units" gorm:"column:cost_minor;not null"`
	Provider  Provider     `json:"provider" gorm:"type:text;not null"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ConsultationType) TableName() string { return "consultation_types" }

// Cost is the snapshot view served to pricing callers.
type Cost struct {
	TypeID    snowflake.ID
	Code      string
	CostMinor int64
	Provider  Provider
	Active    bool
}
