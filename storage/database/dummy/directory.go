package dummydb

import (
	"context"

	"github.com/Brunoball/Cooperadora-sub000/core/family"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

type studentRepository struct {
	db *studentTable
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db.student}
}

func (repo *studentRepository) GetStudent(_ context.Context, id int64) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if stud, ok := repo.db.table[id]; ok {
		return *stud, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) CreateStudent(_ context.Context, stud student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pk++
	stud.ID = repo.db.pk
	repo.db.table[stud.ID] = &stud
	return stud, nil
}

type familyRepository struct {
	db       *familyTable
	students *studentTable
}

var _ family.Repository = (*familyRepository)(nil) // interface compliance check

func NewFamilyRepository(db *DB) family.Repository {
	return &familyRepository{db: db.family, students: db.student}
}

func (repo *familyRepository) GetFamily(_ context.Context, id int64) (family.Family, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	fam, ok := repo.db.table[id]
	if !ok {
		return family.Family{}, family.ErrNotFound
	}
	cp := *fam
	cp.Members = make([]family.Member, len(fam.Members))
	copy(cp.Members, fam.Members)

	// display names live with the students
	repo.students.RLock()
	defer repo.students.RUnlock()
	for i, m := range cp.Members {
		if stud, ok := repo.students.table[m.StudentID]; ok {
			cp.Members[i].DisplayName = stud.DisplayName
		}
	}
	return cp, nil
}

// CreateFamily stores the family and links its members' students to it.
func (repo *familyRepository) CreateFamily(_ context.Context, fam family.Family) (family.Family, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pk++
	fam.ID = repo.db.pk
	members := make([]family.Member, len(fam.Members))
	copy(members, fam.Members)
	fam.Members = members
	repo.db.table[fam.ID] = &fam

	repo.students.Lock()
	defer repo.students.Unlock()
	for _, m := range fam.Members {
		if stud, ok := repo.students.table[m.StudentID]; ok {
			id := fam.ID
			stud.FamilyID = &id
		}
	}
	return fam, nil
}
