package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/Brunoball/Cooperadora-sub000/core/family"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

type studentRow struct {
	ID             int64      `db:"id"`
	DisplayName    string     `db:"display_name"`
	Email          string     `db:"email"`
	CategoryID     int64      `db:"category_id"`
	FamilyID       null.Int64 `db:"family_id"`
	EnrollmentDate null.Time  `db:"enrollment_date"`
	IsActive       bool       `db:"is_active"`
}

func (row studentRow) student() student.Student {
	return student.Student{
		ID:             row.ID,
		DisplayName:    row.DisplayName,
		Email:          row.Email,
		CategoryID:     row.CategoryID,
		FamilyID:       row.FamilyID.Ptr(),
		EnrollmentDate: row.EnrollmentDate.Time.UTC(),
		IsActive:       row.IsActive,
	}
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo studentRepository) GetStudent(ctx context.Context, id int64) (student.Student, error) {
	var row studentRow
	q := `SELECT id, display_name, email, category_id, family_id, enrollment_date, is_active
		FROM student WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound)
	}
	return row.student(), nil
}

func (repo studentRepository) CreateStudent(ctx context.Context, stud student.Student) (student.Student, error) {
	enrolled := null.NewTime(stud.EnrollmentDate, !stud.EnrollmentDate.IsZero())
	if !enrolled.Valid {
		enrolled = null.TimeFrom(time.Now().UTC())
	}
	q := `INSERT INTO student (display_name, email, category_id, family_id, enrollment_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := repo.db.QueryRowxContext(ctx, q,
		stud.DisplayName, stud.Email, stud.CategoryID, null.Int64FromPtr(stud.FamilyID), enrolled, stud.IsActive,
	).Scan(&stud.ID)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	stud.EnrollmentDate = enrolled.Time
	return stud, nil
}

type memberRow struct {
	StudentID   int64  `db:"student_id"`
	DisplayName string `db:"display_name"`
	Active      bool   `db:"active"`
}

type familyRepository struct {
	db *sqlx.DB
}

var _ family.Repository = (*familyRepository)(nil) // interface compliance check

func NewFamilyRepository(db *sqlx.DB) family.Repository {
	return &familyRepository{db: db}
}

func (repo familyRepository) GetFamily(ctx context.Context, id int64) (family.Family, error) {
	fam := family.Family{ID: id}
	if err := repo.db.GetContext(ctx, &fam.Name, `SELECT name FROM family WHERE id = $1`, id); err != nil {
		return family.Family{}, trapNoRowsErr(err, family.ErrNotFound)
	}

	var rows []memberRow
	q := `SELECT fm.student_id, s.display_name, fm.active
		FROM family_member fm
		JOIN student s ON s.id = fm.student_id
		WHERE fm.family_id = $1
		ORDER BY fm.student_id`
	if err := repo.db.SelectContext(ctx, &rows, q, id); err != nil {
		return family.Family{}, errors.Wrap(err, "selecting family members")
	}
	fam.Members = make([]family.Member, 0, len(rows))
	for _, row := range rows {
		fam.Members = append(fam.Members, family.Member(row))
	}
	return fam, nil
}

// CreateFamily stores the family and links its members' students to it.
func (repo familyRepository) CreateFamily(ctx context.Context, fam family.Family) (family.Family, error) {
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `INSERT INTO family (name) VALUES ($1) RETURNING id`, fam.Name).Scan(&fam.ID); err != nil {
			return err
		}
		ids := make([]int64, 0, len(fam.Members))
		for _, m := range fam.Members {
			q := `INSERT INTO family_member (family_id, student_id, active) VALUES ($1, $2, $3)`
			if _, err := tx.ExecContext(ctx, q, fam.ID, m.StudentID, m.Active); err != nil {
				return err
			}
			ids = append(ids, m.StudentID)
		}
		_, err := tx.ExecContext(ctx, `UPDATE student SET family_id = $1 WHERE id = ANY($2)`, fam.ID, pq.Array(ids))
		return err
	})
	if err != nil {
		return family.Family{}, errors.Wrap(err, "inserting family")
	}
	return fam, nil
}
