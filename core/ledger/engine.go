package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	pkgerrors "github.com/pkg/errors"

	"github.com/Brunoball/Cooperadora-sub000/core"
	"github.com/Brunoball/Cooperadora-sub000/core/discount"
	"github.com/Brunoball/Cooperadora-sub000/core/family"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

type (
	EngineDeps struct {
		Conf     *core.Config
		Logger   core.Logger
		Students student.Repository
		Periods  period.Repository
		Catalog  *pricing.Catalog
		Families *family.Service
		Resolver *discount.Resolver
	}

	// Engine validates period selections against recorded state, prices them and commits them.
	Engine struct {
		students student.Repository
		periods  period.Repository
		catalog  *pricing.Catalog
		families *family.Service
		resolver *discount.Resolver
		logger   core.Logger
		minYear  int
		maxYear  int
		now      func() time.Time

		lost sync.Map // {batch id: struct{}} of batches that lost a concurrent commit
	}
)

func NewEngine(deps EngineDeps) *Engine {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Students, "Students"),
		vala.IsNotNil(deps.Periods, "Periods"),
		vala.IsNotNil(deps.Catalog, "Catalog"),
		vala.IsNotNil(deps.Families, "Families"),
		vala.IsNotNil(deps.Resolver, "Resolver"),
	).CheckAndPanic()

	return &Engine{
		students: deps.Students,
		periods:  deps.Periods,
		catalog:  deps.Catalog,
		families: deps.Families,
		resolver: deps.Resolver,
		logger:   deps.Logger,
		minYear:  deps.Conf.Ledger.MinYear,
		maxYear:  deps.Conf.Ledger.MaxYear,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CheckYear fails with InvalidPeriodSelection outside the configured ledger years.
func (e *Engine) CheckYear(year int) error {
	if year < e.minYear || year > e.maxYear {
		return NewError(ErrInvalidPeriodSelection, fmt.Sprintf("year %d outside %d-%d", year, e.minYear, e.maxYear))
	}
	return nil
}

func (e *Engine) checkRequest(req Request) error {
	if err := e.CheckYear(req.Year); err != nil {
		return err
	}
	if len(req.Periods) == 0 {
		return NewError(ErrInvalidPeriodSelection, "no period selected")
	}
	for _, p := range req.Periods {
		if err := p.Validate(); err != nil {
			return NewError(ErrInvalidPeriodSelection, err.Error())
		}
	}

	ovr := req.Options.Overrides
	for fld, amount := range map[string]*int64{"annual": ovr.Annual, "enrollment": ovr.Enrollment, "month": ovr.Month} {
		if amount != nil && *amount < 0 {
			return core.NewValidationError(pricing.ErrNegativeAmount, core.FieldError{Field: "overrides." + fld, Error: pricing.ErrNegativeAmount.Error()})
		}
	}
	return nil
}

// selection splits requested periods into distinct months, annual choices and the enrollment flag.
type selection struct {
	months     []period.Period
	annual     []period.Period
	enrollment bool
}

func split(periods []period.Period) selection {
	var sel selection
	seen := make(map[period.Period]bool, len(periods))
	for _, p := range periods {
		if seen[p] {
			continue
		}
		seen[p] = true
		switch {
		case p.IsMonth():
			sel.months = append(sel.months, p)
		case p.IsAnnual():
			sel.annual = append(sel.annual, p)
		case p == period.Enrollment:
			sel.enrollment = true
		}
	}
	sort.Slice(sel.months, func(i, j int) bool { return sel.months[i].Month < sel.months[j].Month })
	return sel
}

// resolveAnnual picks the single annual period to bill. isRemaining is true when the
// other half is already recorded, so the chosen half absorbs the rounding remainder.
func resolveAnnual(state period.State, requested []period.Period) (target period.Period, isRemaining bool, err error) {
	if state.IsFullyAnnualSettled() {
		var dups, settled []Conflict
		for _, rec := range state.Records() {
			if !rec.Period.IsAnnual() {
				continue
			}
			c := Conflict{Period: rec.Period, Status: rec.Status}
			settled = append(settled, c)
			for _, p := range requested {
				if p == rec.Period {
					dups = append(dups, c)
				}
			}
		}
		if len(dups) > 0 {
			return period.Period{}, false, NewError(ErrDuplicatePeriod, "", dups...)
		}
		return period.Period{}, false, NewError(ErrAnnualAlreadySettled, "", settled...)
	}

	// auto-completion: a year is paid at most once, in at most two halves
	if half, ok := state.ImpliedRemainingHalf(); ok {
		return half, true, nil
	}

	var full, first, second bool
	for _, p := range requested {
		switch p {
		case period.AnnualFull:
			full = true
		case period.AnnualFirstHalf:
			first = true
		case period.AnnualSecondHalf:
			second = true
		}
	}
	switch {
	case !full && first && !second:
		return period.AnnualFirstHalf, false, nil
	case !full && second && !first:
		return period.AnnualSecondHalf, false, nil
	}
	return period.AnnualFull, false, nil
}

// BuildBatch validates and prices a request. It has no side effects.
func (e *Engine) BuildBatch(ctx context.Context, req Request) (Batch, error) {
	if err := e.checkRequest(req); err != nil {
		return Batch{}, err
	}
	validatedAt := e.now()

	stud, err := e.students.GetStudent(ctx, req.StudentID)
	if err != nil {
		return Batch{}, pkgerrors.Wrap(err, "getting student")
	}
	recs, err := e.periods.QueryRecords(ctx, req.StudentID, req.Year)
	if err != nil {
		return Batch{}, pkgerrors.Wrap(err, "querying period records")
	}
	state := period.NewState(req.StudentID, req.Year, recs)
	sel := split(req.Periods)

	// 1. months
	var dups []Conflict
	for _, m := range sel.months {
		if st, ok := state.Status(m); ok {
			dups = append(dups, Conflict{Period: m, Status: st})
		}
	}
	if len(dups) > 0 {
		return Batch{}, NewError(ErrDuplicatePeriod, "", dups...)
	}

	// 2. enrollment
	if sel.enrollment {
		if st, ok := state.Status(period.Enrollment); ok {
			return Batch{}, NewError(ErrDuplicatePeriod, "", Conflict{Period: period.Enrollment, Status: st})
		}
	}

	// 3. annual
	var (
		annual      period.Period
		isRemaining bool
	)
	if len(sel.annual) > 0 {
		if annual, isRemaining, err = resolveAnnual(state, sel.annual); err != nil {
			return Batch{}, err
		}
	}

	cat, err := e.catalog.Category(ctx, stud.CategoryID)
	if err != nil {
		if errors.Is(err, pricing.ErrCategoryNotFound) {
			return Batch{}, NewError(ErrCategoryNotFound, fmt.Sprintf("category %d of student %d", stud.CategoryID, stud.ID))
		}
		return Batch{}, pkgerrors.Wrap(err, "resolving category")
	}
	size, err := e.families.ActiveSize(ctx, stud)
	if err != nil {
		return Batch{}, pkgerrors.Wrap(err, "resolving family size")
	}

	opts := req.Options
	batch := Batch{
		ID:              uuid.New().String(),
		StudentID:       stud.ID,
		Year:            req.Year,
		DiscountRatio:   e.resolver.Ratio(cat, size),
		FamilySize:      size,
		Waived:          opts.Waive,
		PaymentMethodID: opts.PaymentMethodID,
		ValidatedAt:     validatedAt,
	}
	status := period.StatusSettled
	if opts.Waive {
		status = period.StatusWaived
	}
	price := func(compute func() (int64, error), override *int64) (int64, error) {
		switch {
		case opts.Waive:
			return 0, nil
		case override != nil:
			return *override, nil
		}
		return compute()
	}

	if sel.enrollment {
		amount, err := price(func() (int64, error) { return e.catalog.ResolveEnrollmentFeeAt(ctx, validatedAt) }, opts.Overrides.Enrollment)
		if err != nil {
			return Batch{}, pkgerrors.Wrap(err, "resolving enrollment fee")
		}
		batch.Lines = append(batch.Lines, Line{Period: period.Enrollment, Status: status, Amount: amount})
	}

	if len(sel.months) > 0 {
		amount, _ := price(func() (int64, error) { return discount.Apply(cat.Monthly, batch.DiscountRatio), nil }, opts.Overrides.Month)
		for _, m := range sel.months {
			batch.Lines = append(batch.Lines, Line{Period: m, Status: status, Amount: amount})
		}
	}

	if len(sel.annual) > 0 {
		amount, _ := price(func() (int64, error) {
			full := e.resolver.AnnualAmount(cat, size)
			if !annual.IsHalf() {
				return full, nil
			}
			half := full / 2
			if isRemaining {
				return full - half, nil
			}
			return half, nil
		}, opts.Overrides.Annual)
		batch.Lines = append(batch.Lines, Line{Period: annual, Status: status, Amount: amount})
	}

	batch.Total, batch.DisplayTotal = totals(batch.Lines)
	return batch, nil
}

func totals(lines []Line) (total, display int64) {
	for _, l := range lines {
		total += l.Amount
	}
	return total, discount.RoundDisplay(total)
}

// checkBatch guards Commit against batches that were not produced by BuildBatch or were altered since.
func (e *Engine) checkBatch(batch Batch) error {
	if err := e.CheckYear(batch.Year); err != nil {
		return err
	}
	if len(batch.Lines) == 0 {
		return NewError(ErrInvalidPeriodSelection, "empty batch")
	}
	seen := make(map[period.Period]bool, len(batch.Lines))
	var annual []period.Period
	for _, l := range batch.Lines {
		if err := l.Period.Validate(); err != nil {
			return NewError(ErrInvalidPeriodSelection, err.Error())
		}
		if seen[l.Period] {
			return NewError(ErrInvalidPeriodSelection, "period "+l.Period.String()+" listed twice")
		}
		seen[l.Period] = true
		if l.Period.IsAnnual() {
			annual = append(annual, l.Period)
		}
		if !l.Status.Valid() {
			return NewError(ErrInvalidPeriodSelection, "invalid status for "+l.Period.String())
		}
		if l.Amount < 0 {
			return NewError(ErrInvalidPeriodSelection, "negative amount for "+l.Period.String())
		}
	}
	if len(annual) > 1 {
		return NewError(ErrInvalidPeriodSelection, "more than one annual period in batch")
	}
	return nil
}

// Commit persists a batch atomically. Lines colliding with records another batch wrote after this
// one was validated fail it with ConcurrentConflict, reported once per batch. Collisions with its own
// records, with older records or on a resubmitted losing batch fail with DuplicatePeriod.
func (e *Engine) Commit(ctx context.Context, batch Batch) (Batch, error) {
	if err := e.checkBatch(batch); err != nil {
		return Batch{}, err
	}

	now := e.now()
	committed := batch
	committed.Lines = make([]Line, 0, len(batch.Lines))
	records := make([]period.Record, 0, len(batch.Lines))
	for _, l := range batch.Lines {
		rec := period.Record{
			ID:              uuid.New().String(),
			StudentID:       batch.StudentID,
			Year:            batch.Year,
			Period:          l.Period,
			Status:          l.Status,
			Amount:          l.Amount,
			PaymentMethodID: batch.PaymentMethodID,
			BatchID:         batch.ID,
			CreatedAt:       now,
		}
		records = append(records, rec)
		l.RecordID = rec.ID
		committed.Lines = append(committed.Lines, l)
	}

	if err := e.periods.CreateRecords(ctx, records); err != nil {
		var taken *period.SlotTakenError
		if errors.As(err, &taken) {
			kind := ErrDuplicatePeriod
			for _, rec := range taken.Taken {
				resubmitted := batch.ID != "" && rec.BatchID == batch.ID
				if !resubmitted && !batch.ValidatedAt.IsZero() && rec.CreatedAt.After(batch.ValidatedAt) {
					kind = ErrConcurrentConflict
					break
				}
			}
			if kind == ErrConcurrentConflict && batch.ID != "" {
				if _, retried := e.lost.LoadOrStore(batch.ID, struct{}{}); retried {
					kind = ErrDuplicatePeriod
				}
			}
			if kind == ErrConcurrentConflict {
				e.logger.Warn(fmt.Sprintf("student %d, %d: concurrent commit lost", batch.StudentID, batch.Year), taken)
			}
			return Batch{}, NewError(kind, "", conflictsOf(taken.Taken)...)
		}
		return Batch{}, pkgerrors.Wrap(err, "creating period records")
	}

	committed.Total, committed.DisplayTotal = totals(committed.Lines)
	committed.CommittedAt = now
	return committed, nil
}
