package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	List(ctx context.Context, db *gorm.DB) ([]ConsultationType, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*ConsultationType, error)
}
