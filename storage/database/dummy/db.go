// Package dummydb is an in-memory store used in tests & local development.
package dummydb

import (
	"sync"

	"github.com/Brunoball/Cooperadora-sub000/core/family"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

type (
	DB struct {
		category      *categoryTable
		enrollmentFee *enrollmentFeeTable
		student       *studentTable
		family        *familyTable
		periodRecord  *periodRecordTable
	}

	categoryTable struct {
		sync.RWMutex
		pk    int64
		table map[int64]*pricing.Category
	}

	enrollmentFeeTable struct {
		sync.RWMutex
		pk    int64
		table []pricing.EnrollmentFee
	}

	studentTable struct {
		sync.RWMutex
		pk    int64
		table map[int64]*student.Student
	}

	familyTable struct {
		sync.RWMutex
		pk    int64
		table map[int64]*family.Family
	}

	periodRecordTable struct {
		sync.RWMutex
		table []periodRow
	}

	periodRow struct {
		period.Record
		deleted bool
	}
)

func Open() (*DB, error) {
	db := &DB{
		category:      &categoryTable{table: make(map[int64]*pricing.Category)},
		enrollmentFee: &enrollmentFeeTable{},
		student:       &studentTable{table: make(map[int64]*student.Student)},
		family:        &familyTable{table: make(map[int64]*family.Family)},
		periodRecord:  &periodRecordTable{},
	}
	return db, nil
}
