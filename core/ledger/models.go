package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Brunoball/Cooperadora-sub000/core/period"
)

type (
	// Overrides replace computed prices for a single batch. They never touch the catalog.
	Overrides struct {
		Annual     *int64 `json:"annual"`     // price of the annual line
		Enrollment *int64 `json:"enrollment"` // enrollment fee
		Month      *int64 `json:"month"`      // flat price of every selected month
	}

	Options struct {
		Waive           bool
		PaymentMethodID *int64
		Overrides       Overrides
	}

	// Request selects the periods to bill. Annual periods express one annual selection:
	// none of the halves or both of them mean the full year, a single half means that half.
	Request struct {
		StudentID int64
		Year      int
		Periods   []period.Period
		Options   Options
	}

	Line struct {
		Period   period.Period `json:"period"`
		Status   period.Status `json:"status"`
		Amount   int64         `json:"amount"`
		RecordID string        `json:"recordId,omitempty"` // set once committed
	}

	// Batch is a priced, conflict-free selection for one student, not yet persisted.
	Batch struct {
		ID              string          `json:"id"`
		StudentID       int64           `json:"studentId"`
		Year            int             `json:"year"`
		Lines           []Line          `json:"lines"`
		Total           int64           `json:"total"`
		DisplayTotal    int64           `json:"displayTotal"`
		DiscountRatio   decimal.Decimal `json:"discountRatio"`
		FamilySize      int             `json:"familySize"`
		Waived          bool            `json:"waived"`
		PaymentMethodID *int64          `json:"paymentMethodId"`
		ValidatedAt     time.Time       `json:"validatedAt"` // UTC
		CommittedAt     time.Time       `json:"committedAt,omitempty"`
	}
)

func (b Batch) Periods() []period.Period {
	periods := make([]period.Period, 0, len(b.Lines))
	for _, l := range b.Lines {
		periods = append(periods, l.Period)
	}
	return periods
}

func (b Batch) IsCommitted() bool { return !b.CommittedAt.IsZero() }

// ForStudent copies the batch for another student, keeping periods & prices.
func (b Batch) ForStudent(studentID int64) Batch {
	cp := b
	cp.ID = uuid.New().String()
	cp.StudentID = studentID
	cp.CommittedAt = time.Time{}
	cp.Lines = make([]Line, len(b.Lines))
	for i, l := range b.Lines {
		l.RecordID = ""
		cp.Lines[i] = l
	}
	return cp
}
