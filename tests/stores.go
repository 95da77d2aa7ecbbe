package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brunoball/Cooperadora-sub000/core/family"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

// Stores groups the repositories of one storage backend.
type Stores struct {
	Students student.Repository
	Families family.Repository
	Periods  period.Repository
	Pricing  pricing.Repository
}

// RunStoreTests checks the behaviour every storage backend must share.
func RunStoreTests(t *testing.T, s Stores) {
	t.Run("pricing", func(t *testing.T) { testPricingRepository(t, s) })
	t.Run("directory", func(t *testing.T) { testDirectoryRepositories(t, s) })
	t.Run("period records", func(t *testing.T) { testPeriodRepository(t, s) })
	t.Run("concurrent period records", func(t *testing.T) { testConcurrentPeriodRecords(t, s) })
}

func newRecord(studentID int64, year int, p period.Period, batchID string, at time.Time) period.Record {
	return period.Record{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Year:      year,
		Period:    p,
		Status:    period.StatusSettled,
		Amount:    1000,
		BatchID:   batchID,
		CreatedAt: at,
	}
}

func testPricingRepository(t *testing.T, s Stores) {
	ctx := context.Background()

	cat := CreateCategory(t, s.Pricing, "Internal", 50000, 500000)
	got, err := s.Pricing.GetCategory(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, cat, got)

	_, err = s.Pricing.GetCategory(ctx, cat.ID+1000)
	assert.ErrorIs(t, err, pricing.ErrCategoryNotFound)

	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.Pricing.GetEnrollmentFee(ctx, base)
	assert.ErrorIs(t, err, pricing.ErrNoEnrollmentFee)

	for i, amount := range []int64{10000, 12000, 13000} {
		_, err = s.Pricing.CreateEnrollmentFee(ctx, pricing.EnrollmentFee{Amount: amount, EffectiveFrom: base.AddDate(0, i, 0)})
		require.NoError(t, err)
	}
	// same instant: the latest version wins
	_, err = s.Pricing.CreateEnrollmentFee(ctx, pricing.EnrollmentFee{Amount: 12500, EffectiveFrom: base.AddDate(0, 1, 0)})
	require.NoError(t, err)

	tests := []struct {
		name string
		at   time.Time
		want int64
	}{
		{name: "first version", at: base.Add(time.Hour), want: 10000},
		{name: "superseded version", at: base.AddDate(0, 1, 3), want: 12500},
		{name: "current version", at: base.AddDate(1, 0, 0), want: 13000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, err := s.Pricing.GetEnrollmentFee(ctx, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fee.Amount)
			assert.False(t, fee.EffectiveFrom.After(tt.at))
		})
	}
}

func testDirectoryRepositories(t *testing.T, s Stores) {
	ctx := context.Background()
	cat := CreateCategory(t, s.Pricing, "External", 60000, 600000)

	enrolled := time.Date(2023, time.February, 20, 0, 0, 0, 0, time.UTC)
	ana := CreateStudent(t, s.Students, "Ana", "ana@test.ar", cat.ID, enrolled)
	beto := CreateStudent(t, s.Students, "Beto", "", cat.ID)

	got, err := s.Students.GetStudent(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.DisplayName)
	assert.Equal(t, "ana@test.ar", got.Email)
	assert.Equal(t, cat.ID, got.CategoryID)
	assert.True(t, enrolled.Equal(got.EnrollmentDate))
	assert.False(t, got.HasFamily())

	_, err = s.Students.GetStudent(ctx, beto.ID+1000)
	assert.ErrorIs(t, err, student.ErrNotFound)

	fam := CreateFamily(t, s.Families, "Perez", []student.Student{ana, beto}, beto.ID)
	gotFam, err := s.Families.GetFamily(ctx, fam.ID)
	require.NoError(t, err)
	assert.Equal(t, "Perez", gotFam.Name)
	assert.ElementsMatch(t, []family.Member{
		{StudentID: ana.ID, DisplayName: "Ana", Active: true},
		{StudentID: beto.ID, DisplayName: "Beto", Active: false},
	}, gotFam.Members)

	got, err = s.Students.GetStudent(ctx, ana.ID)
	require.NoError(t, err)
	require.True(t, got.HasFamily())
	assert.Equal(t, fam.ID, *got.FamilyID)

	_, err = s.Families.GetFamily(ctx, fam.ID+1000)
	assert.ErrorIs(t, err, family.ErrNotFound)
}

func testPeriodRepository(t *testing.T, s Stores) {
	ctx := context.Background()
	cat := CreateCategory(t, s.Pricing, "Records", 50000, 500000)
	stud := CreateStudent(t, s.Students, "Ana", "", cat.ID)
	at := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	method := int64(3)
	b1 := uuid.New().String()

	first := []period.Record{
		newRecord(stud.ID, 2024, period.AnnualFirstHalf, b1, at),
		newRecord(stud.ID, 2024, period.Month(4), b1, at),
		newRecord(stud.ID, 2024, period.Enrollment, b1, at),
	}
	first[1].PaymentMethodID = &method
	require.NoError(t, s.Periods.CreateRecords(ctx, first))
	require.NoError(t, s.Periods.CreateRecords(ctx, []period.Record{newRecord(stud.ID, 2025, period.Month(4), uuid.New().String(), at)}))

	recs, err := s.Periods.QueryRecords(ctx, stud.ID, 2024)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []period.Period{period.Enrollment, period.Month(4), period.AnnualFirstHalf}, []period.Period{recs[0].Period, recs[1].Period, recs[2].Period})
	assert.Equal(t, first[1].ID, recs[1].ID)
	assert.Equal(t, &method, recs[1].PaymentMethodID)
	assert.Nil(t, recs[0].PaymentMethodID)
	assert.Equal(t, b1, recs[1].BatchID)
	assert.True(t, at.Equal(recs[1].CreatedAt))

	t.Run("taken slots", func(t *testing.T) {
		tests := []struct {
			name      string
			periods   []period.Period
			wantTaken []period.Period
		}{
			{name: "same month", periods: []period.Period{period.Month(5), period.Month(4)}, wantTaken: []period.Period{period.Month(4)}},
			{name: "full year over a half", periods: []period.Period{period.AnnualFull}, wantTaken: []period.Period{period.AnnualFirstHalf}},
			{name: "enrollment", periods: []period.Period{period.Enrollment}, wantTaken: []period.Period{period.Enrollment}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var batch []period.Record
				for _, p := range tt.periods {
					batch = append(batch, newRecord(stud.ID, 2024, p, uuid.New().String(), at.Add(time.Hour)))
				}
				err := s.Periods.CreateRecords(ctx, batch)
				var taken *period.SlotTakenError
				require.ErrorAs(t, err, &taken)
				var got []period.Period
				for _, rec := range taken.Taken {
					got = append(got, rec.Period)
					assert.Equal(t, b1, rec.BatchID)
				}
				assert.Equal(t, tt.wantTaken, got)
			})
		}

		// nothing of a failed batch is written
		recs, err := s.Periods.QueryRecords(ctx, stud.ID, 2024)
		require.NoError(t, err)
		assert.Len(t, recs, 3)
	})

	t.Run("second half is free", func(t *testing.T) {
		require.NoError(t, s.Periods.CreateRecords(ctx, []period.Record{newRecord(stud.ID, 2024, period.AnnualSecondHalf, uuid.New().String(), at)}))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Periods.DeleteRecord(ctx, stud.ID, 2024, period.Month(4)))
		assert.ErrorIs(t, s.Periods.DeleteRecord(ctx, stud.ID, 2024, period.Month(4)), period.ErrNotFound)
		assert.ErrorIs(t, s.Periods.DeleteRecord(ctx, stud.ID, 2024, period.Month(9)), period.ErrNotFound)

		// the slot is free again; the other year is untouched
		require.NoError(t, s.Periods.CreateRecords(ctx, []period.Record{newRecord(stud.ID, 2024, period.Month(4), uuid.New().String(), at)}))
		recs, err := s.Periods.QueryRecords(ctx, stud.ID, 2025)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})
}

func testConcurrentPeriodRecords(t *testing.T, s Stores) {
	ctx := context.Background()
	cat := CreateCategory(t, s.Pricing, "Concurrent", 50000, 500000)
	stud := CreateStudent(t, s.Students, "Ana", "", cat.ID)
	at := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)

	const n = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// every writer competes for the same slots
			err := s.Periods.CreateRecords(ctx, []period.Record{
				newRecord(stud.ID, 2024, period.AnnualFull, uuid.New().String(), at),
				newRecord(stud.ID, 2024, period.Month(1), uuid.New().String(), at),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, oks)
	for _, err := range errs {
		var taken *period.SlotTakenError
		assert.ErrorAs(t, err, &taken)
	}
	recs, err := s.Periods.QueryRecords(ctx, stud.ID, 2024)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
