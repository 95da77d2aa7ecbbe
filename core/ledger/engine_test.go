package ledger

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brunoball/Cooperadora-sub000/core"
	"github.com/Brunoball/Cooperadora-sub000/core/discount"
	"github.com/Brunoball/Cooperadora-sub000/core/family"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
	dummydb "github.com/Brunoball/Cooperadora-sub000/storage/database/dummy"
	testutil "github.com/Brunoball/Cooperadora-sub000/tests"
)

const (
	testYear      = 2024
	enrollmentFee = 15000
	testTables    = `
internal:
  monthly:
    2: 80000
    3: 105000
external:
  monthly:
    2: 90000
    3: 120000
  annual:
    2: 70000
    3: 80000
`
)

// clock hands out strictly increasing instants.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	engine   *Engine
	expander *Expander
	students student.Repository
	families family.Repository
	periods  period.Repository
	internal pricing.Category
	external pricing.Category
}

func setup(t *testing.T) *fixture {
	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := testutil.NewConfig()
	conf.Pricing.EnrollmentFee = enrollmentFee
	logger := testutil.NewLogger()

	tables, err := discount.LoadTables(strings.NewReader(testTables))
	require.NoError(t, err)

	f := &fixture{
		students: dummydb.NewStudentRepository(db),
		families: dummydb.NewFamilyRepository(db),
		periods:  dummydb.NewPeriodRepository(db),
	}
	priceRepo := dummydb.NewPricingRepository(db)
	f.internal = testutil.CreateCategory(t, priceRepo, "internal", 50000, 500000)
	f.external = testutil.CreateCategory(t, priceRepo, "external", 60000, 600000)

	familySvc := family.NewService(f.families, f.students)
	f.engine = NewEngine(EngineDeps{
		Conf:     conf,
		Logger:   logger,
		Students: f.students,
		Periods:  f.periods,
		Catalog:  pricing.NewCatalog(priceRepo, conf),
		Families: familySvc,
		Resolver: discount.NewResolver(tables, logger),
	})
	f.engine.now = (&clock{t: time.Date(testYear, time.March, 1, 9, 0, 0, 0, time.UTC)}).Now
	f.expander = NewExpander(f.engine, familySvc, logger)
	return f
}

// siblings creates n students of cat sharing a family.
func (f *fixture) siblings(t *testing.T, cat pricing.Category, n int) []student.Student {
	studs := make([]student.Student, 0, n)
	for i := 0; i < n; i++ {
		studs = append(studs, testutil.CreateStudent(t, f.students, "Sibling", "", cat.ID))
	}
	fam := testutil.CreateFamily(t, f.families, "Family", studs)
	for i := range studs {
		studs[i].FamilyID = &fam.ID
	}
	return studs
}

func (f *fixture) commit(t *testing.T, req Request) Batch {
	ctx := context.Background()
	batch, err := f.engine.BuildBatch(ctx, req)
	require.NoError(t, err)
	committed, err := f.engine.Commit(ctx, batch)
	require.NoError(t, err)
	return committed
}

func request(studentID int64, periods ...period.Period) Request {
	return Request{StudentID: studentID, Year: testYear, Periods: periods}
}

func assertKind(t *testing.T, err error, kind error, conflicts ...Conflict) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	assert.Equal(t, kind, KindOf(err))
	if conflicts != nil {
		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, conflicts, lerr.Conflicts)
	}
}

func amounts(b Batch) map[period.Period]int64 {
	m := make(map[period.Period]int64, len(b.Lines))
	for _, l := range b.Lines {
		m[l.Period] = l.Amount
	}
	return m
}

func TestEngine_BuildBatchInvalidSelection(t *testing.T) {
	f := setup(t)
	stud := testutil.CreateStudent(t, f.students, "Ana", "", f.internal.ID)
	neg := int64(-1)

	tests := []struct {
		name string
		req  Request
	}{
		{name: "no period", req: request(stud.ID)},
		{name: "month out of range", req: request(stud.ID, period.Month(13))},
		{name: "zero period", req: request(stud.ID, period.Period{})},
		{name: "year too early", req: Request{StudentID: stud.ID, Year: 1999, Periods: []period.Period{period.Month(1)}}},
		{name: "year too late", req: Request{StudentID: stud.ID, Year: 2101, Periods: []period.Period{period.Month(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.BuildBatch(context.Background(), tt.req)
			assertKind(t, err, ErrInvalidPeriodSelection)
		})
	}

	t.Run("negative override", func(t *testing.T) {
		req := request(stud.ID, period.Month(1))
		req.Options.Overrides.Month = &neg
		_, err := f.engine.BuildBatch(context.Background(), req)
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldMap(), "overrides.month")
	})
}

func TestEngine_BuildBatchLookups(t *testing.T) {
	f := setup(t)

	_, err := f.engine.BuildBatch(context.Background(), request(999, period.Month(1)))
	assert.ErrorIs(t, err, student.ErrNotFound)

	orphan := testutil.CreateStudent(t, f.students, "Orphan", "", 999)
	_, err = f.engine.BuildBatch(context.Background(), request(orphan.ID, period.Month(1)))
	assertKind(t, err, ErrCategoryNotFound)
}

func TestEngine_BuildBatchPricing(t *testing.T) {
	f := setup(t)
	solo := testutil.CreateStudent(t, f.students, "Solo", "", f.internal.ID)
	pair := f.siblings(t, f.internal, 2)
	trio := f.siblings(t, f.external, 3)

	tests := []struct {
		name        string
		req         Request
		wantPeriods []period.Period
		wantAmounts map[period.Period]int64
		wantRatio   string
		wantTotal   int64
		wantDisplay int64
	}{
		{
			name:        "single member pays base prices, lines ordered",
			req:         request(solo.ID, period.AnnualFull, period.Month(3), period.Enrollment, period.Month(1), period.Month(3)),
			wantPeriods: []period.Period{period.Enrollment, period.Month(1), period.Month(3), period.AnnualFull},
			wantAmounts: map[period.Period]int64{period.Enrollment: 15000, period.Month(1): 50000, period.Month(3): 50000, period.AnnualFull: 500000},
			wantRatio:   "0.0000",
			wantTotal:   615000,
			wantDisplay: 615000,
		},
		{
			name:        "two internal siblings",
			req:         request(pair[0].ID, period.Month(3)),
			wantPeriods: []period.Period{period.Month(3)},
			wantAmounts: map[period.Period]int64{period.Month(3): 40000},
			wantRatio:   "0.2000",
			wantTotal:   40000,
			wantDisplay: 40000,
		},
		{
			name:        "three external siblings, direct annual table",
			req:         request(trio[0].ID, period.AnnualFull),
			wantPeriods: []period.Period{period.AnnualFull},
			wantAmounts: map[period.Period]int64{period.AnnualFull: 26667},
			wantRatio:   "0.3333",
			wantTotal:   26667,
			wantDisplay: 26700,
		},
		{
			name:        "both halves mean the full year",
			req:         request(solo.ID, period.AnnualFirstHalf, period.AnnualSecondHalf),
			wantPeriods: []period.Period{period.AnnualFull},
			wantAmounts: map[period.Period]int64{period.AnnualFull: 500000},
			wantRatio:   "0.0000",
			wantTotal:   500000,
			wantDisplay: 500000,
		},
		{
			name:        "single half is floor of full",
			req:         request(trio[1].ID, period.AnnualSecondHalf),
			wantPeriods: []period.Period{period.AnnualSecondHalf},
			wantAmounts: map[period.Period]int64{period.AnnualSecondHalf: 13333},
			wantRatio:   "0.3333",
			wantTotal:   13333,
			wantDisplay: 13300,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := f.engine.BuildBatch(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPeriods, batch.Periods())
			assert.Equal(t, tt.wantAmounts, amounts(batch))
			assert.Equal(t, tt.wantRatio, batch.DiscountRatio.StringFixed(4))
			assert.Equal(t, tt.wantTotal, batch.Total)
			assert.Equal(t, tt.wantDisplay, batch.DisplayTotal)
			assert.NotEmpty(t, batch.ID)
			assert.False(t, batch.ValidatedAt.IsZero())
			assert.False(t, batch.IsCommitted())
			for _, l := range batch.Lines {
				assert.Equal(t, period.StatusSettled, l.Status)
			}
		})
	}
}

func TestEngine_TotalEqualsSumOfLines(t *testing.T) {
	f := setup(t)
	trio := f.siblings(t, f.external, 3)

	for m := 1; m <= 12; m++ {
		periods := []period.Period{period.Enrollment, period.AnnualFirstHalf}
		for i := 1; i <= m; i++ {
			periods = append(periods, period.Month(i))
		}
		batch, err := f.engine.BuildBatch(context.Background(), request(trio[0].ID, periods...))
		require.NoError(t, err)

		var sum int64
		for _, l := range batch.Lines {
			sum += l.Amount
		}
		assert.Equal(t, sum, batch.Total)
		assert.Equal(t, discount.RoundDisplay(sum), batch.DisplayTotal)
	}
}

func TestEngine_Waive(t *testing.T) {
	f := setup(t)
	stud := testutil.CreateStudent(t, f.students, "Ana", "", f.internal.ID)

	req := request(stud.ID, period.Month(3), period.Enrollment)
	req.Options.Waive = true
	committed := f.commit(t, req)

	assert.True(t, committed.Waived)
	assert.Equal(t, int64(0), committed.Total)
	for _, l := range committed.Lines {
		assert.Equal(t, int64(0), l.Amount)
		assert.Equal(t, period.StatusWaived, l.Status)
	}

	recs, err := f.periods.QueryRecords(context.Background(), stud.ID, testYear)
	require.NoError(t, err)
	st := period.NewState(stud.ID, testYear, recs)
	status, ok := st.Status(period.Month(3))
	assert.True(t, ok)
	assert.Equal(t, period.StatusWaived, status)
}

func TestEngine_Overrides(t *testing.T) {
	f := setup(t)
	pair := f.siblings(t, f.internal, 2)
	month, annual, enrollment := int64(1000), int64(7777), int64(0)

	req := request(pair[0].ID, period.Month(2), period.Month(5), period.AnnualFirstHalf, period.Enrollment)
	req.Options.Overrides = Overrides{Annual: &annual, Enrollment: &enrollment, Month: &month}
	batch, err := f.engine.BuildBatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[period.Period]int64{
		period.Enrollment:      0,
		period.Month(2):        1000,
		period.Month(5):        1000,
		period.AnnualFirstHalf: 7777,
	}, amounts(batch))
	assert.Equal(t, int64(9777), batch.Total)

	// waive wins over overrides
	req.Options.Waive = true
	batch, err = f.engine.BuildBatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(0), batch.Total)
}

func TestEngine_Duplicates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stud := testutil.CreateStudent(t, f.students, "Ana", "", f.internal.ID)

	waived := request(stud.ID, period.Month(4))
	waived.Options.Waive = true
	f.commit(t, waived)
	f.commit(t, request(stud.ID, period.Month(3), period.Enrollment))

	t.Run("months", func(t *testing.T) {
		_, err := f.engine.BuildBatch(ctx, request(stud.ID, period.Month(5), period.Month(4), period.Month(3)))
		assertKind(t, err, ErrDuplicatePeriod,
			Conflict{Period: period.Month(3), Status: period.StatusSettled},
			Conflict{Period: period.Month(4), Status: period.StatusWaived},
		)
	})

	t.Run("enrollment", func(t *testing.T) {
		_, err := f.engine.BuildBatch(ctx, request(stud.ID, period.Month(6), period.Enrollment))
		assertKind(t, err, ErrDuplicatePeriod, Conflict{Period: period.Enrollment, Status: period.StatusSettled})
	})

	t.Run("months are checked first", func(t *testing.T) {
		_, err := f.engine.BuildBatch(ctx, request(stud.ID, period.Enrollment, period.Month(3)))
		assertKind(t, err, ErrDuplicatePeriod, Conflict{Period: period.Month(3), Status: period.StatusSettled})
	})

	t.Run("other years are free", func(t *testing.T) {
		req := request(stud.ID, period.Month(3), period.Enrollment)
		req.Year = testYear + 1
		_, err := f.engine.BuildBatch(ctx, req)
		assert.NoError(t, err)
	})
}

func TestEngine_AnnualHalves(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	trio := f.siblings(t, f.external, 3)
	stud := trio[0]

	first := f.commit(t, request(stud.ID, period.AnnualFirstHalf))
	assert.Equal(t, map[period.Period]int64{period.AnnualFirstHalf: 13333}, amounts(first))

	// any annual request now targets the remaining half, which absorbs the rounding remainder
	for _, p := range []period.Period{period.AnnualFull, period.AnnualFirstHalf, period.AnnualSecondHalf} {
		batch, err := f.engine.BuildBatch(ctx, request(stud.ID, p))
		require.NoError(t, err, p.String())
		assert.Equal(t, map[period.Period]int64{period.AnnualSecondHalf: 13334}, amounts(batch), p.String())
	}

	second := f.commit(t, request(stud.ID, period.AnnualFull))
	assert.Equal(t, []period.Period{period.AnnualSecondHalf}, second.Periods())
	assert.Equal(t, int64(26667), first.Total+second.Total)

	_, err := f.engine.BuildBatch(ctx, request(stud.ID, period.AnnualSecondHalf))
	assertKind(t, err, ErrDuplicatePeriod, Conflict{Period: period.AnnualSecondHalf, Status: period.StatusSettled})

	_, err = f.engine.BuildBatch(ctx, request(stud.ID, period.AnnualFull))
	assertKind(t, err, ErrAnnualAlreadySettled,
		Conflict{Period: period.AnnualFirstHalf, Status: period.StatusSettled},
		Conflict{Period: period.AnnualSecondHalf, Status: period.StatusSettled},
	)

	// months stay payable
	_, err = f.engine.BuildBatch(ctx, request(stud.ID, period.Month(1)))
	assert.NoError(t, err)
}

func TestEngine_AnnualFullSettled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stud := testutil.CreateStudent(t, f.students, "Ana", "", f.internal.ID)
	f.commit(t, request(stud.ID, period.AnnualFull))

	_, err := f.engine.BuildBatch(ctx, request(stud.ID, period.AnnualFirstHalf))
	assertKind(t, err, ErrAnnualAlreadySettled, Conflict{Period: period.AnnualFull, Status: period.StatusSettled})

	_, err = f.engine.BuildBatch(ctx, request(stud.ID, period.AnnualFull))
	assertKind(t, err, ErrDuplicatePeriod, Conflict{Period: period.AnnualFull, Status: period.StatusSettled})
}

func TestEngine_AnnualExclusivity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stud := testutil.CreateStudent(t, f.students, "Ana", "", f.internal.ID)

	// both built before either commits
	full, err := f.engine.BuildBatch(ctx, request(stud.ID, period.AnnualFull))
	require.NoError(t, err)
	half, err := f.engine.BuildBatch(ctx, request(stud.ID, period.AnnualFirstHalf))
	require.NoError(t, err)

	_, err = f.engine.Commit(ctx, half)
	require.NoError(t, err)
	_, err = f.engine.Commit(ctx, full)
	assertKind(t, err, ErrConcurrentConflict, Conflict{Period: period.AnnualFirstHalf, Status: period.StatusSettled})

	recs, err := f.periods.QueryRecords(ctx, stud.ID, testYear)
	require.NoError(t, err)
	st := period.NewState(stud.ID, testYear, recs)
	_, hasFull := st.Status(period.AnnualFull)
	assert.False(t, hasFull)
}

func TestEngine_Commit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stud := testutil.CreateStudent(t, f.students, "Ana", "", f.internal.ID)
	method := int64(2)

	req := request(stud.ID, period.Month(1), period.Month(2), period.Enrollment)
	req.Options.PaymentMethodID = &method
	batch, err := f.engine.BuildBatch(ctx, req)
	require.NoError(t, err)

	committed, err := f.engine.Commit(ctx, batch)
	require.NoError(t, err)
	assert.True(t, committed.IsCommitted())
	assert.True(t, committed.CommittedAt.After(batch.ValidatedAt))
	assert.Equal(t, batch.Total, committed.Total)

	recs, err := f.periods.QueryRecords(ctx, stud.ID, testYear)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, committed.Lines[i].RecordID, rec.ID)
		assert.Equal(t, committed.Lines[i].Period, rec.Period)
		assert.Equal(t, committed.Lines[i].Amount, rec.Amount)
		assert.Equal(t, batch.ID, rec.BatchID)
		assert.Equal(t, &method, rec.PaymentMethodID)
	}

	t.Run("resubmitted batch", func(t *testing.T) {
		_, err := f.engine.Commit(ctx, batch)
		assertKind(t, err, ErrDuplicatePeriod)
	})

	t.Run("rebuilt request", func(t *testing.T) {
		_, err := f.engine.BuildBatch(ctx, req)
		assertKind(t, err, ErrDuplicatePeriod)
	})
}

func TestEngine_CommitConcurrentConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stud := testutil.CreateStudent(t, f.students, "Ana", "", f.internal.ID)

	b1, err := f.engine.BuildBatch(ctx, request(stud.ID, period.Month(5), period.Month(6)))
	require.NoError(t, err)
	b2, err := f.engine.BuildBatch(ctx, request(stud.ID, period.Month(6), period.Month(7)))
	require.NoError(t, err)

	_, err = f.engine.Commit(ctx, b1)
	require.NoError(t, err)
	_, err = f.engine.Commit(ctx, b2)
	assertKind(t, err, ErrConcurrentConflict, Conflict{Period: period.Month(6), Status: period.StatusSettled})

	// no partial commit: Month7 is still open
	recs, err := f.periods.QueryRecords(ctx, stud.ID, testYear)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	t.Run("resubmitted loser", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := f.engine.Commit(ctx, b2)
			assertKind(t, err, ErrDuplicatePeriod, Conflict{Period: period.Month(6), Status: period.StatusSettled})
		}
	})

	t.Run("other loser still conflicts once", func(t *testing.T) {
		b3, err := f.engine.BuildBatch(ctx, request(stud.ID, period.Month(8)))
		require.NoError(t, err)
		b4, err := f.engine.BuildBatch(ctx, request(stud.ID, period.Month(8)))
		require.NoError(t, err)

		_, err = f.engine.Commit(ctx, b3)
		require.NoError(t, err)
		_, err = f.engine.Commit(ctx, b4)
		assertKind(t, err, ErrConcurrentConflict, Conflict{Period: period.Month(8), Status: period.StatusSettled})
		_, err = f.engine.Commit(ctx, b4)
		assertKind(t, err, ErrDuplicatePeriod, Conflict{Period: period.Month(8), Status: period.StatusSettled})
	})

	t.Run("rebuilt batch", func(t *testing.T) {
		_, err := f.engine.BuildBatch(ctx, request(stud.ID, period.Month(6), period.Month(7)))
		assertKind(t, err, ErrDuplicatePeriod, Conflict{Period: period.Month(6), Status: period.StatusSettled})
	})
}

func TestEngine_CommitRace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stud := testutil.CreateStudent(t, f.students, "Ana", "", f.internal.ID)

	const n = 8
	batches := make([]Batch, 0, n)
	for i := 0; i < n; i++ {
		b, err := f.engine.BuildBatch(ctx, request(stud.ID, period.Month(9)))
		require.NoError(t, err)
		batches = append(batches, b)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, b := range batches {
		wg.Add(1)
		go func(b Batch) {
			defer wg.Done()
			_, err := f.engine.Commit(ctx, b)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(b)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		kind := KindOf(err)
		assert.True(t, kind == ErrConcurrentConflict || kind == ErrDuplicatePeriod, "unexpected error %v", err)
	}
	assert.Equal(t, 1, ok)

	recs, err := f.periods.QueryRecords(ctx, stud.ID, testYear)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestEngine_CommitRejectsTamperedBatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stud := testutil.CreateStudent(t, f.students, "Ana", "", f.internal.ID)

	batch, err := f.engine.BuildBatch(ctx, request(stud.ID, period.Month(1), period.AnnualFirstHalf))
	require.NoError(t, err)

	tests := []struct {
		name   string
		tamper func(b *Batch)
	}{
		{name: "empty", tamper: func(b *Batch) { b.Lines = nil }},
		{name: "year", tamper: func(b *Batch) { b.Year = 1900 }},
		{name: "repeated period", tamper: func(b *Batch) { b.Lines = append(b.Lines, b.Lines[0]) }},
		{name: "two annual periods", tamper: func(b *Batch) {
			b.Lines = append(b.Lines, Line{Period: period.AnnualSecondHalf, Status: period.StatusSettled})
		}},
		{name: "negative amount", tamper: func(b *Batch) { b.Lines[0].Amount = -5 }},
		{name: "bad status", tamper: func(b *Batch) { b.Lines[0].Status = "Paid" }},
		{name: "bad period", tamper: func(b *Batch) { b.Lines[0].Period = period.Month(0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := batch
			b.Lines = append([]Line(nil), batch.Lines...)
			tt.tamper(&b)
			_, err := f.engine.Commit(ctx, b)
			assertKind(t, err, ErrInvalidPeriodSelection)
		})
	}

	recs, err := f.periods.QueryRecords(ctx, stud.ID, testYear)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestEngine_DeletedPeriodIsPayableAgain(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stud := testutil.CreateStudent(t, f.students, "Ana", "", f.internal.ID)
	f.commit(t, request(stud.ID, period.Month(3)))

	require.NoError(t, f.periods.DeleteRecord(ctx, stud.ID, testYear, period.Month(3)))
	assert.ErrorIs(t, f.periods.DeleteRecord(ctx, stud.ID, testYear, period.Month(3)), period.ErrNotFound)

	f.commit(t, request(stud.ID, period.Month(3)))
}

func TestError(t *testing.T) {
	err := NewError(ErrDuplicatePeriod, "", Conflict{Period: period.Month(3), Status: period.StatusSettled})
	assert.Equal(t, "DuplicatePeriod: Month3 (Settled)", err.Error())
	assert.Equal(t, "InvalidPeriodSelection: no period selected", NewError(ErrInvalidPeriodSelection, "no period selected").Error())
	assert.Nil(t, KindOf(assert.AnError))
}
