package dummydb

import (
	"context"

	"github.com/Brunoball/Cooperadora-sub000/core/period"
)

type periodRepository struct {
	db *periodRecordTable
}

var _ period.Repository = (*periodRepository)(nil) // interface compliance check

func NewPeriodRepository(db *DB) period.Repository {
	return &periodRepository{db: db.periodRecord}
}

func (repo *periodRepository) query(studentID int64, year int) []period.Record {
	var recs []period.Record
	for _, row := range repo.db.table {
		if !row.deleted && row.StudentID == studentID && row.Year == year {
			recs = append(recs, row.Record)
		}
	}
	period.SortRecords(recs)
	return recs
}

func (repo *periodRepository) QueryRecords(_ context.Context, studentID int64, year int) ([]period.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(studentID, year), nil
}

// CreateRecords holds the write lock across the collision check and the insert.
func (repo *periodRepository) CreateRecords(_ context.Context, records []period.Record) error {
	if len(records) == 0 {
		return nil
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	incoming := make([]period.Period, 0, len(records))
	for _, rec := range records {
		incoming = append(incoming, rec.Period)
	}
	existing := repo.query(records[0].StudentID, records[0].Year)
	if taken := period.Collisions(existing, incoming); len(taken) > 0 {
		return &period.SlotTakenError{Taken: taken}
	}

	for _, rec := range records {
		rec.CreatedAt = rec.CreatedAt.UTC()
		repo.db.table = append(repo.db.table, periodRow{Record: rec})
	}
	return nil
}

func (repo *periodRepository) DeleteRecord(_ context.Context, studentID int64, year int, p period.Period) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for i, row := range repo.db.table {
		if !row.deleted && row.StudentID == studentID && row.Year == year && row.Period == p {
			repo.db.table[i].deleted = true
			return nil
		}
	}
	return period.ErrNotFound
}

