package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/Brunoball/Cooperadora-sub000/core"
)

var (
	// errors
	ErrCategoryNotFound = errors.New("category not found")
	ErrNoEnrollmentFee  = errors.New("no enrollment fee in effect")
	ErrNegativeAmount   = errors.New("amount must not be negative")
)

type (
	Category struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Monthly int64  `json:"monthly"`
		Annual  int64  `json:"annual"`
	}

	// Price is a category's base prices, before any discount.
	Price struct {
		Monthly      int64  `json:"monthly"`
		Annual       int64  `json:"annual"`
		CategoryName string `json:"categoryName"`
	}

	// EnrollmentFee is one version of the global enrollment fee.
	EnrollmentFee struct {
		ID            int64     `json:"id"`
		Amount        int64     `json:"amount"`
		EffectiveFrom time.Time `json:"effectiveFrom"` // UTC
	}
)

type (
	Repository interface {
		GetCategory(ctx context.Context, id int64) (Category, error)
		CreateCategory(ctx context.Context, cat Category) (Category, error)
		// GetEnrollmentFee returns the latest version effective at `at`, ErrNoEnrollmentFee if none.
		GetEnrollmentFee(ctx context.Context, at time.Time) (EnrollmentFee, error)
		CreateEnrollmentFee(ctx context.Context, fee EnrollmentFee) (EnrollmentFee, error)
	}

	// Catalog resolves category prices and the enrollment fee.
	// Fee updates add a new version, so batches priced earlier can be audited against the fee they used.
	Catalog struct {
		repo       Repository
		defaultFee int64
	}
)

func NewCatalog(repo Repository, conf *core.Config) *Catalog {
	return &Catalog{repo: repo, defaultFee: conf.Pricing.EnrollmentFee}
}

func (cat *Catalog) Category(ctx context.Context, categoryID int64) (Category, error) {
	return cat.repo.GetCategory(ctx, categoryID)
}

func (cat *Catalog) ResolvePrice(ctx context.Context, categoryID int64) (Price, error) {
	c, err := cat.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return Price{}, err
	}
	return Price{Monthly: c.Monthly, Annual: c.Annual, CategoryName: c.Name}, nil
}

func (cat *Catalog) ResolveEnrollmentFee(ctx context.Context) (int64, error) {
	return cat.ResolveEnrollmentFeeAt(ctx, time.Now().UTC())
}

// ResolveEnrollmentFeeAt returns the fee in effect at `at`, falling back to the configured default.
func (cat *Catalog) ResolveEnrollmentFeeAt(ctx context.Context, at time.Time) (int64, error) {
	fee, err := cat.CurrentEnrollmentFee(ctx, at)
	if err != nil {
		return 0, err
	}
	return fee.Amount, nil
}

func (cat *Catalog) CurrentEnrollmentFee(ctx context.Context, at time.Time) (EnrollmentFee, error) {
	fee, err := cat.repo.GetEnrollmentFee(ctx, at.UTC())
	if err != nil {
		if errors.Is(err, ErrNoEnrollmentFee) {
			return EnrollmentFee{Amount: cat.defaultFee}, nil
		}
		return EnrollmentFee{}, err
	}
	return fee, nil
}

// UpdateEnrollmentFee records a new fee version effective immediately.
func (cat *Catalog) UpdateEnrollmentFee(ctx context.Context, amount int64) (EnrollmentFee, error) {
	if amount < 0 {
		return EnrollmentFee{}, core.NewValidationError(ErrNegativeAmount, core.FieldError{Field: "amount", Error: ErrNegativeAmount.Error()})
	}
	return cat.repo.CreateEnrollmentFee(ctx, EnrollmentFee{Amount: amount, EffectiveFrom: time.Now().UTC()})
}
