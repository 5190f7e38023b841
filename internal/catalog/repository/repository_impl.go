package repository

import (
	"context"

	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]catalogdomain.ConsultationType, error) {
	var items []catalogdomain.ConsultationType
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, cost_minor, provider, active, created_at, updated_at
		 FROM consultation_types ORDER BY code ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*catalogdomain.ConsultationType, error) {
	var item catalogdomain.ConsultationType
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, cost_minor, provider, active, created_at, updated_at
		 FROM consultation_types WHERE code = ?`,
		code,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
