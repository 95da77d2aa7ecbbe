package period

import (
	"context"
	"errors"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/Brunoball/Cooperadora-sub000/core"
)

var (
	// errors
	ErrNotFound = errors.New("period record not found")

	periodTag  = "period"
	periodText = "{0} must hold valid period codes (Month1-Month12, AnnualFull, AnnualFirstHalf, AnnualSecondHalf, Enrollment)"
)

type (
	Repository interface {
		// QueryRecords returns the non-deleted records of a student for a year.
		QueryRecords(ctx context.Context, studentID int64, year int) ([]Record, error)
		// CreateRecords stores every record or none of them.
		// All records belong to the same student & year. A *SlotTakenError is returned on collision.
		CreateRecords(ctx context.Context, records []Record) error
		// DeleteRecord frees the uniqueness slot of a record. Returns ErrNotFound if nothing is recorded.
		DeleteRecord(ctx context.Context, studentID int64, year int, p Period) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) GetState(ctx context.Context, studentID int64, year int) (State, error) {
	recs, err := svc.repo.QueryRecords(ctx, studentID, year)
	if err != nil {
		return State{}, err
	}
	return NewState(studentID, year, recs), nil
}

func (svc *Service) Delete(ctx context.Context, studentID int64, year int, p Period) error {
	if err := p.Validate(); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "period", Error: err.Error()})
	}
	return svc.repo.DeleteRecord(ctx, studentID, year, p)
}

// InitValidators registers the `period` tag, which validates period codes (string or []string).
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(periodTag, periodValidation)
	core.RegisterCustomTranslation(validate, translator, periodTag, periodText)
}

func periodValidation(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case string:
		_, err := Parse(v)
		return err == nil
	case []string:
		for _, s := range v {
			if _, err := Parse(s); err != nil {
				return false
			}
		}
		return true
	}
	return false
}
