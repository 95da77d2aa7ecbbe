package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
)

type categoryRow struct {
	ID      int64  `db:"id"`
	Name    string `db:"name"`
	Monthly int64  `db:"monthly"`
	Annual  int64  `db:"annual"`
}

type enrollmentFeeRow struct {
	ID            int64     `db:"id"`
	Amount        int64     `db:"amount"`
	EffectiveFrom time.Time `db:"effective_from"`
}

type pricingRepository struct {
	db *sqlx.DB
}

var _ pricing.Repository = (*pricingRepository)(nil) // interface compliance check

func NewPricingRepository(db *sqlx.DB) pricing.Repository {
	return &pricingRepository{db: db}
}

func (repo pricingRepository) GetCategory(ctx context.Context, id int64) (pricing.Category, error) {
	var row categoryRow
	q := `SELECT id, name, monthly, annual FROM category WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return pricing.Category{}, trapNoRowsErr(err, pricing.ErrCategoryNotFound)
	}
	return pricing.Category(row), nil
}

func (repo pricingRepository) CreateCategory(ctx context.Context, cat pricing.Category) (pricing.Category, error) {
	q := `INSERT INTO category (name, monthly, annual) VALUES ($1, $2, $3) RETURNING id`
	if err := repo.db.QueryRowxContext(ctx, q, cat.Name, cat.Monthly, cat.Annual).Scan(&cat.ID); err != nil {
		return pricing.Category{}, errors.Wrap(err, "inserting category")
	}
	return cat, nil
}

// GetEnrollmentFee returns the latest version effective at `at`.
func (repo pricingRepository) GetEnrollmentFee(ctx context.Context, at time.Time) (pricing.EnrollmentFee, error) {
	var row enrollmentFeeRow
	q := `SELECT id, amount, effective_from FROM enrollment_fee
		WHERE effective_from <= $1
		ORDER BY effective_from DESC, id DESC
		LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, q, at.UTC()); err != nil {
		return pricing.EnrollmentFee{}, trapNoRowsErr(err, pricing.ErrNoEnrollmentFee)
	}
	return pricing.EnrollmentFee{ID: row.ID, Amount: row.Amount, EffectiveFrom: row.EffectiveFrom.UTC()}, nil
}

func (repo pricingRepository) CreateEnrollmentFee(ctx context.Context, fee pricing.EnrollmentFee) (pricing.EnrollmentFee, error) {
	q := `INSERT INTO enrollment_fee (amount, effective_from) VALUES ($1, $2) RETURNING id`
	if err := repo.db.QueryRowxContext(ctx, q, fee.Amount, fee.EffectiveFrom.UTC()).Scan(&fee.ID); err != nil {
		return pricing.EnrollmentFee{}, errors.Wrap(err, "inserting enrollment fee")
	}
	return fee, nil
}
