package echoapi

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/Brunoball/Cooperadora-sub000/core/ledger"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
)

const dateLayout = "2006-01-02"

type (
	StudentQuery struct {
		StudentID int64 `query:"studentId" validate:"required,gt=0"`
	}

	StudentYearQuery struct {
		StudentID int64 `query:"studentId" validate:"required,gt=0"`
		Year      int   `query:"year" validate:"required"`
	}

	OverridesRequest struct {
		Annual     *int64 `json:"annual" validate:"omitempty,amount"`
		Enrollment *int64 `json:"enrollment" validate:"omitempty,amount"`
		Month      *int64 `json:"month" validate:"omitempty,amount"`
	}

	// LedgerRequest is the body of both preview & commit.
	LedgerRequest struct {
		StudentID       int64             `json:"studentId" validate:"required,gt=0"`
		Year            int               `json:"year" validate:"required"`
		Periods         []string          `json:"periods"`
		Waive           bool              `json:"waive"`
		Overrides       *OverridesRequest `json:"overrides"`
		ApplyToFamily   bool              `json:"applyToFamily"`
		PaymentMethodID *int64            `json:"paymentMethodId" validate:"omitempty,gt=0"`
		SendReceipt     bool              `json:"sendReceipt"`
	}

	DeletePeriodRequest struct {
		StudentID int64  `json:"studentId" validate:"required,gt=0"`
		Period    string `json:"period" validate:"required,period"`
		Year      int    `json:"year" validate:"required"`
	}

	EnrollmentFeeRequest struct {
		Amount *int64 `json:"amount" validate:"required,amount"`
	}
)

func (q *StudentQuery) Validate(validate *validator.Validate) error     { return validate.Struct(q) }
func (q *StudentYearQuery) Validate(validate *validator.Validate) error { return validate.Struct(q) }
func (r *DeletePeriodRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}
func (r *EnrollmentFeeRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}
func (r *LedgerRequest) Validate(validate *validator.Validate) error { return validate.Struct(r) }

// toRequest parses period codes. Unknown codes fail the selection, like out of range months.
func (r *LedgerRequest) toRequest() (ledger.Request, error) {
	req := ledger.Request{
		StudentID: r.StudentID,
		Year:      r.Year,
		Periods:   make([]period.Period, 0, len(r.Periods)),
		Options: ledger.Options{
			Waive:           r.Waive,
			PaymentMethodID: r.PaymentMethodID,
		},
	}
	for _, code := range r.Periods {
		p, err := period.Parse(code)
		if err != nil {
			return ledger.Request{}, ledger.NewError(ledger.ErrInvalidPeriodSelection, err.Error())
		}
		req.Periods = append(req.Periods, p)
	}
	if r.Overrides != nil {
		req.Options.Overrides = ledger.Overrides{
			Annual:     r.Overrides.Annual,
			Enrollment: r.Overrides.Enrollment,
			Month:      r.Overrides.Month,
		}
	}
	return req, nil
}

type (
	LineResponse struct {
		Period period.Period `json:"period"`
		Amount int64         `json:"amount"`
		Status period.Status `json:"status"`
	}

	FamilyCommitResponse struct {
		StudentID int64             `json:"studentId"`
		Committed []LineResponse    `json:"committed"`
		Total     int64             `json:"total"`
		Error     string            `json:"error,omitempty"`
		Conflicts []ledger.Conflict `json:"conflicts,omitempty"`
	}

	CommitResponse struct {
		Committed    []LineResponse         `json:"committed"`
		Total        int64                  `json:"total"`
		DisplayTotal int64                  `json:"displayTotal"`
		Family       []FamilyCommitResponse `json:"family,omitempty"`
	}

	SettledPeriod struct {
		Period period.Period `json:"period"`
		Status period.Status `json:"status"`
		PaidOn string        `json:"paidOn"`
		Amount int64         `json:"amount"`
	}

	PeriodStateResponse struct {
		SettledPeriods     []SettledPeriod `json:"settledPeriods"`
		EnrollmentDate     string          `json:"enrollmentDate"`
		FullyAnnualSettled bool            `json:"fullyAnnualSettled"`
		RemainingHalf      *period.Period  `json:"remainingHalf"`
	}

	EnrollmentFeeResponse struct {
		Amount        int64  `json:"amount"`
		EffectiveFrom string `json:"effectiveFrom"`
	}
)

func linesOf(batch ledger.Batch) []LineResponse {
	lines := make([]LineResponse, 0, len(batch.Lines))
	for _, l := range batch.Lines {
		lines = append(lines, LineResponse{Period: l.Period, Amount: l.Amount, Status: l.Status})
	}
	return lines
}

func familyResponseOf(o ledger.Outcome) FamilyCommitResponse {
	res := FamilyCommitResponse{StudentID: o.StudentID, Committed: []LineResponse{}}
	if o.OK() {
		res.Committed = linesOf(o.Batch)
		res.Total = o.Batch.Total
		return res
	}
	var lerr *ledger.Error
	if errors.As(o.Err, &lerr) {
		res.Error = lerr.Kind.Error()
		res.Conflicts = lerr.Conflicts
	} else {
		res.Error = http.StatusText(http.StatusInternalServerError)
	}
	return res
}
