package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	consultationdomain "github.com/consultapj/consultapj/internal/consultation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() consultationdomain.Repository {
	return &repo{}
}

func (r *repo) Record(ctx context.Context, db *gorm.DB, consultation *consultationdomain.Consultation, details []consultationdomain.ConsultationDetail) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if consultation.CreatedAt.IsZero() {
			consultation.CreatedAt = now
		}
		if err := tx.Exec(
			`INSERT INTO consultations (
				id, user_id, subject, status, total_cost_minor, latency_ms,
				cache_used, credit_transaction_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			consultation.ID,
			consultation.UserID,
			consultation.Subject,
			consultation.Status,
			consultation.TotalCostMinor,
			consultation.LatencyMS,
			consultation.CacheUsed,
			consultation.CreditTransactionID,
			consultation.CreatedAt,
		).Error; err != nil {
			return err
		}

		for i := range details {
			detail := &details[i]
			if detail.CreatedAt.IsZero() {
				detail.CreatedAt = now
			}
			if err := tx.Exec(
				`INSERT INTO consultation_details (
					id, consultation_id, consultation_type_id, type_code, success,
					cost_minor, error_message, payload, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				detail.ID,
				detail.ConsultationID,
				detail.ConsultationTypeID,
				detail.TypeCode,
				detail.Success,
				detail.CostMinor,
				detail.ErrorMessage,
				detail.Payload,
				detail.CreatedAt,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]consultationdomain.Consultation, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []consultationdomain.Consultation
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, subject, status, total_cost_minor, latency_ms,
		 cache_used, credit_transaction_id, created_at
		 FROM consultations WHERE user_id = ?
		 ORDER BY id DESC LIMIT ?`,
		userID,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) DetailsFor(ctx context.Context, db *gorm.DB, consultationIDs []snowflake.ID) ([]consultationdomain.ConsultationDetail, error) {
	if len(consultationIDs) == 0 {
		return nil, nil
	}
	var rows []consultationdomain.ConsultationDetail
	err := db.WithContext(ctx).Raw(
		`SELECT id, consultation_id, consultation_type_id, type_code, success,
		 cost_minor, error_message, payload, created_at
		 FROM consultation_details WHERE consultation_id IN ?
		 ORDER BY id ASC`,
		consultationIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
