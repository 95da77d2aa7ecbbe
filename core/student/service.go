package student

import (
	"context"
	"errors"
	"net/mail"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("student not found")
)

// Student is the read model the ledger needs from the student directory.
type Student struct {
	ID             int64     `json:"id"`
	DisplayName    string    `json:"displayName"`
	Email          string    `json:"email"`
	CategoryID     int64     `json:"categoryId"`
	FamilyID       *int64    `json:"familyId"`
	EnrollmentDate time.Time `json:"enrollmentDate"`
	IsActive       bool      `json:"isActive"`
}

func (s Student) HasFamily() bool { return s.FamilyID != nil }

type (
	Repository interface {
		GetStudent(ctx context.Context, id int64) (Student, error)
		CreateStudent(ctx context.Context, s Student) (Student, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) GetByID(ctx context.Context, id int64) (Student, error) {
	if id <= 0 {
		return Student{}, ErrNotFound
	}
	return svc.repo.GetStudent(ctx, id)
}

// MailAddress is the receipt recipient of the student, empty without contact email.
func (s Student) MailAddress() mail.Address {
	return mail.Address{Name: s.DisplayName, Address: s.Email}
}
