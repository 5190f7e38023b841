package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Record writes the consultation and its detail rows in one transaction.
	Record(ctx context.Context, db *gorm.DB, consultation *Consultation, details []ConsultationDetail) error
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]Consultation, error)
	DetailsFor(ctx context.Context, db *gorm.DB, consultationIDs []snowflake.ID) ([]ConsultationDetail, error)
}
