package family

import (
	"context"
	"errors"

	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

var (
	// errors
	ErrNotFound = errors.New("family not found")
)

type (
	Member struct {
		StudentID   int64  `json:"studentId"`
		DisplayName string `json:"displayName"`
		Active      bool   `json:"active"`
	}

	Family struct {
		ID      int64    `json:"id"`
		Name    string   `json:"name"`
		Members []Member `json:"members"`
	}

	// Info is what the family-info boundary exposes for one student.
	Info struct {
		HasFamily     bool     `json:"hasFamily"`
		FamilyID      *int64   `json:"familyId"`
		ActiveMembers []Member `json:"activeMembers"`
	}
)

func (f Family) ActiveMembers() []Member {
	active := make([]Member, 0, len(f.Members))
	for _, m := range f.Members {
		if m.Active {
			active = append(active, m)
		}
	}
	return active
}

type (
	Repository interface {
		GetFamily(ctx context.Context, id int64) (Family, error)
		// CreateFamily stores the family and its memberships.
		CreateFamily(ctx context.Context, f Family) (Family, error)
	}

	Service struct {
		repo     Repository
		students student.Repository
	}
)

func NewService(repo Repository, students student.Repository) *Service {
	return &Service{repo: repo, students: students}
}

func (svc *Service) Get(ctx context.Context, id int64) (Family, error) {
	return svc.repo.GetFamily(ctx, id)
}

// Info describes the family of a student. A family without active members counts as no family.
func (svc *Service) Info(ctx context.Context, studentID int64) (Info, error) {
	stud, err := svc.students.GetStudent(ctx, studentID)
	if err != nil {
		return Info{}, err
	}
	return svc.InfoFor(ctx, stud)
}

func (svc *Service) InfoFor(ctx context.Context, stud student.Student) (Info, error) {
	info := Info{ActiveMembers: []Member{}}
	if !stud.HasFamily() {
		return info, nil
	}

	fam, err := svc.repo.GetFamily(ctx, *stud.FamilyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) { // dangling reference
			return info, nil
		}
		return Info{}, err
	}
	active := fam.ActiveMembers()
	if len(active) == 0 {
		return info, nil
	}
	famID := fam.ID
	info.HasFamily = true
	info.FamilyID = &famID
	info.ActiveMembers = active
	return info, nil
}

// ActiveSize is the family size used for discounts: the count of active members, at least 1.
func (svc *Service) ActiveSize(ctx context.Context, stud student.Student) (int, error) {
	info, err := svc.InfoFor(ctx, stud)
	if err != nil {
		return 0, err
	}
	if n := len(info.ActiveMembers); n > 1 {
		return n, nil
	}
	return 1, nil
}
