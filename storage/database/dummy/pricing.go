package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
)

type pricingRepository struct {
	categories *categoryTable
	fees       *enrollmentFeeTable
}

var _ pricing.Repository = (*pricingRepository)(nil) // interface compliance check

func NewPricingRepository(db *DB) pricing.Repository {
	return &pricingRepository{categories: db.category, fees: db.enrollmentFee}
}

func (repo *pricingRepository) GetCategory(_ context.Context, id int64) (pricing.Category, error) {
	repo.categories.RLock()
	defer repo.categories.RUnlock()

	if cat, ok := repo.categories.table[id]; ok {
		return *cat, nil
	}
	return pricing.Category{}, pricing.ErrCategoryNotFound
}

func (repo *pricingRepository) CreateCategory(_ context.Context, cat pricing.Category) (pricing.Category, error) {
	repo.categories.Lock()
	defer repo.categories.Unlock()

	repo.categories.pk++
	cat.ID = repo.categories.pk
	repo.categories.table[cat.ID] = &cat
	return cat, nil
}

func (repo *pricingRepository) GetEnrollmentFee(_ context.Context, at time.Time) (pricing.EnrollmentFee, error) {
	repo.fees.RLock()
	defer repo.fees.RUnlock()

	var (
		found bool
		best  pricing.EnrollmentFee
	)
	for _, fee := range repo.fees.table {
		if fee.EffectiveFrom.After(at) {
			continue
		}
		if !found || fee.EffectiveFrom.After(best.EffectiveFrom) ||
			(fee.EffectiveFrom.Equal(best.EffectiveFrom) && fee.ID > best.ID) {
			best, found = fee, true
		}
	}
	if !found {
		return pricing.EnrollmentFee{}, pricing.ErrNoEnrollmentFee
	}
	return best, nil
}

func (repo *pricingRepository) CreateEnrollmentFee(_ context.Context, fee pricing.EnrollmentFee) (pricing.EnrollmentFee, error) {
	repo.fees.Lock()
	defer repo.fees.Unlock()

	repo.fees.pk++
	fee.ID = repo.fees.pk
	fee.EffectiveFrom = fee.EffectiveFrom.UTC()
	repo.fees.table = append(repo.fees.table, fee)
	sort.SliceStable(repo.fees.table, func(i, j int) bool {
		return repo.fees.table[i].EffectiveFrom.Before(repo.fees.table[j].EffectiveFrom)
	})
	return fee, nil
}
