package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	node *snowflake.Node
}

func Provide(node *snowflake.Node) creditdomain.Repository {
	return &repo{node: node}
}

// Append holds the per-user serialization point: a row-level lock on the
// user record, held across the read-balance/compute/insert/update-cache
// sequence and released at commit. SQLite has no FOR UPDATE but serializes
// writers itself, which gives the same guarantee in tests.
//
// ID and Seq are assigned here, while the lock is held. Seq is what makes
// insertion order observable: snowflake ids generated on different nodes do
// not order within one millisecond, so replay must never depend on them.
func (r *repo) Append(ctx context.Context, db *gorm.DB, row *creditdomain.CreditTransaction) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := tx
		if tx.Dialector.Name() != "sqlite" {
			locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var account creditdomain.UserAccount
		if err := locked.First(&account, "id = ?", row.UserID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return creditdomain.ErrUserNotFound
			}
			return err
		}

		next := account.CreditBalanceMinor + row.AmountMinor
		if next < 0 {
			return creditdomain.ErrInsufficientFunds
		}

		var lastSeq int64
		if err := tx.Raw(
			`SELECT COALESCE(MAX(seq), 0) FROM credit_transactions WHERE user_id = ?`,
			row.UserID,
		).Scan(&lastSeq).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.ID = r.node.Generate()
		row.Seq = lastSeq + 1
		row.BalanceAfterMinor = next

		if err := tx.Exec(
			`INSERT INTO credit_transactions (
				id, user_id, seq, consultation_id, kind, amount_minor, balance_after_minor,
				description, external_ref, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID,
			row.UserID,
			row.Seq,
			row.ConsultationID,
			row.Kind,
			row.AmountMinor,
			row.BalanceAfterMinor,
			row.Description,
			row.ExternalRef,
			row.CreatedAt,
		).Error; err != nil {
			return err
		}

		return tx.Exec(
			`UPDATE users SET credit_balance_minor = ?, updated_at = ? WHERE id = ?`,
			next,
			now,
			row.UserID,
		).Error
	})
}

func (r *repo) CurrentBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	var account creditdomain.UserAccount
	err := db.WithContext(ctx).First(&account, "id = ?", userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, creditdomain.ErrUserNotFound
		}
		return 0, err
	}
	return account.CreditBalanceMinor, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]creditdomain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []creditdomain.CreditTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, seq, consultation_id, kind, amount_minor, balance_after_minor,
		 description, external_ref, created_at
		 FROM credit_transactions WHERE user_id = ?
		 ORDER BY seq DESC LIMIT ?`,
		userID,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ReplayByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]creditdomain.CreditTransaction, error) {
	var rows []creditdomain.CreditTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, seq, consultation_id, kind, amount_minor, balance_after_minor,
		 description, external_ref, created_at
		 FROM credit_transactions WHERE user_id = ?
		 ORDER BY seq ASC`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) RecentUserIDs(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 1000
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT user_id FROM credit_transactions
		 WHERE created_at >= ? LIMIT ?`,
		since,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) LatestByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*creditdomain.CreditTransaction, error) {
	var row creditdomain.CreditTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, seq, consultation_id, kind, amount_minor, balance_after_minor,
		 description, external_ref, created_at
		 FROM credit_transactions WHERE user_id = ?
		 ORDER BY seq DESC LIMIT 1`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}
