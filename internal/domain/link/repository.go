package link

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Store {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, l *Link) error {
	err := r.db.WithContext(ctx).Create(l).Error
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	return err
}

func (r *repository) GetByShortCode(ctx context.Context, code string) (*Link, error) {
	var l Link
	err := r.db.WithContext(ctx).Where("short_code = ?", code).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Link, error) {
	var l Link
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) ExistsShortCode(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Link{}).Where("short_code = ?", code).Count(&n).Error
	return n > 0, err
}

// AtomicIncrementAccess bumps access_count in a single conditional UPDATE.
// The ceiling, status and expiry are re-checked by the database, so
// concurrent callers can never push the count past max_access_count.
func (r *repository) AtomicIncrementAccess(ctx context.Context, code string, now time.Time) (int64, error) {
	var updated Link
	res := r.db.WithContext(ctx).
		Model(&updated).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "access_count"}}}).
		Where("short_code = ?", code).
		Where("status = ?", StatusActive).
		Where("expires_at > ?", now).
		Where("max_access_count IS NULL OR access_count < max_access_count").
		UpdateColumns(map[string]any{
			"access_count": gorm.Expr("access_count + 1"),
			"updated_at":   now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrIncrementRejected
	}
	if updated.AccessCount == 0 {
		// driver ignored RETURNING
		l, err := r.GetByShortCode(ctx, code)
		if err != nil {
			return 0, err
		}
		return l.AccessCount, nil
	}
	return updated.AccessCount, nil
}

// SetStatus moves a link from `from` to `to` only if it is still in `from`.
// An empty `from` means active. Transitions out of terminal states are refused.
func (r *repository) SetStatus(ctx context.Context, code string, to, from Status, now time.Time) error {
	if from == "" {
		from = StatusActive
	}
	if from.Terminal() || !to.Terminal() {
		return ErrInvalidTransition
	}

	updates := map[string]any{"status": to, "updated_at": now}
	if to == StatusRevoked {
		updates["revoked_at"] = now
	}

	res := r.db.WithContext(ctx).
		Model(&Link{}).
		Where("short_code = ? AND status = ?", code, from).
		UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	exists, err := r.ExistsShortCode(ctx, code)
	if err != nil {
		return err
	}
	if !exists {
		return ErrLinkNotFound
	}
	return ErrStatusConflict
}

func (r *repository) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]*Link, error) {
	var links []*Link
	q := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&links).Error
	return links, err
}

// ExpireOverdue moves every active link already past expiry to Expired and
// returns the links this call transitioned. Rows won by a concurrent revoke
// or lazy expiry are skipped.
func (r *repository) ExpireOverdue(ctx context.Context, now time.Time) ([]*Link, error) {
	var candidates []*Link
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", StatusActive, now).
		Order("expires_at ASC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	expired := make([]*Link, 0, len(candidates))
	for _, l := range candidates {
		err := r.SetStatus(ctx, l.ShortCode, StatusExpired, StatusActive, now)
		if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrLinkNotFound) {
			continue
		}
		if err != nil {
			return expired, err
		}
		l.Status = StatusExpired
		l.UpdatedAt = now
		expired = append(expired, l)
	}
	return expired, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
