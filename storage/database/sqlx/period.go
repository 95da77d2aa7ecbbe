package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/Brunoball/Cooperadora-sub000/core/period"
)

type periodRow struct {
	ID              string      `db:"id"`
	StudentID       int64       `db:"student_id"`
	Year            int         `db:"year"`
	Period          string      `db:"period"`
	Status          string      `db:"status"`
	Amount          int64       `db:"amount"`
	PaymentMethodID null.Int64  `db:"payment_method_id"`
	BatchID         null.String `db:"batch_id"`
	CreatedAt       time.Time   `db:"created_at"`
}

func toPeriodRow(rec period.Record) periodRow {
	return periodRow{
		ID:              rec.ID,
		StudentID:       rec.StudentID,
		Year:            rec.Year,
		Period:          rec.Period.String(),
		Status:          rec.Status.String(),
		Amount:          rec.Amount,
		PaymentMethodID: null.Int64FromPtr(rec.PaymentMethodID),
		BatchID:         null.NewString(rec.BatchID, rec.BatchID != ""),
		CreatedAt:       rec.CreatedAt.UTC(),
	}
}

func (row periodRow) record() (period.Record, error) {
	p, err := period.Parse(row.Period)
	if err != nil {
		return period.Record{}, err
	}
	st, err := period.ParseStatus(row.Status)
	if err != nil {
		return period.Record{}, err
	}
	return period.Record{
		ID:              row.ID,
		StudentID:       row.StudentID,
		Year:            row.Year,
		Period:          p,
		Status:          st,
		Amount:          row.Amount,
		PaymentMethodID: row.PaymentMethodID.Ptr(),
		BatchID:         row.BatchID.String,
		CreatedAt:       row.CreatedAt.UTC(),
	}, nil
}

type periodRepository struct {
	db *sqlx.DB
}

var _ period.Repository = (*periodRepository)(nil) // interface compliance check

func NewPeriodRepository(db *sqlx.DB) period.Repository {
	return &periodRepository{db: db}
}

func (repo periodRepository) queryRecords(ctx context.Context, studentID int64, year int, exec ...sqlx.ExtContext) ([]period.Record, error) {
	var rows []periodRow
	q := `SELECT id, student_id, year, period, status, amount, payment_method_id, batch_id, created_at
		FROM period_record
		WHERE student_id = $1 AND year = $2 AND deleted_at IS NULL`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q, studentID, year); err != nil {
		return nil, errors.Wrap(err, "selecting period records")
	}

	recs := make([]period.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, errors.Wrapf(err, "decoding period record %s", row.ID)
		}
		recs = append(recs, rec)
	}
	period.SortRecords(recs)
	return recs, nil
}

func (repo periodRepository) QueryRecords(ctx context.Context, studentID int64, year int) ([]period.Record, error) {
	return repo.queryRecords(ctx, studentID, year)
}

// CreateRecords serializes writers of the same (student, year) with an advisory lock, re-checks
// collisions and inserts. The unique partial index catches anything the check could miss.
func (repo periodRepository) CreateRecords(ctx context.Context, records []period.Record) error {
	if len(records) == 0 {
		return nil
	}
	studentID, year := records[0].StudentID, records[0].Year
	incoming := make([]period.Period, 0, len(records))
	for _, rec := range records {
		incoming = append(incoming, rec.Period)
	}

	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		lockKey := fmt.Sprintf("period_record:%d:%d", studentID, year)
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
			return errors.Wrap(err, "locking period slots")
		}

		existing, err := repo.queryRecords(ctx, studentID, year, tx)
		if err != nil {
			return err
		}
		if taken := period.Collisions(existing, incoming); len(taken) > 0 {
			return &period.SlotTakenError{Taken: taken}
		}

		q := `INSERT INTO period_record (id, student_id, year, period, status, amount, payment_method_id, batch_id, created_at)
			VALUES (:id, :student_id, :year, :period, :status, :amount, :payment_method_id, :batch_id, :created_at)`
		for _, rec := range records {
			if _, err := tx.NamedExecContext(ctx, q, toPeriodRow(rec)); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	var taken *period.SlotTakenError
	if errors.As(err, &taken) {
		return taken
	}
	if isUniqueViolation(err) {
		existing, qErr := repo.queryRecords(ctx, studentID, year)
		if qErr != nil {
			return qErr
		}
		return &period.SlotTakenError{Taken: period.Collisions(existing, incoming)}
	}
	return errors.Wrap(err, "inserting period records")
}

func (repo periodRepository) DeleteRecord(ctx context.Context, studentID int64, year int, p period.Period) error {
	q := `UPDATE period_record SET deleted_at = now()
		WHERE student_id = $1 AND year = $2 AND period = $3 AND deleted_at IS NULL`
	res, err := repo.db.ExecContext(ctx, q, studentID, year, p.String())
	if err != nil {
		return errors.Wrap(err, "deleting period record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting period record")
	}
	if n == 0 {
		return period.ErrNotFound
	}
	return nil
}
