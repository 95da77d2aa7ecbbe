package ledger

import (
	"errors"
	"strings"

	"github.com/Brunoball/Cooperadora-sub000/core/period"
)

// Error kinds. Their text is the kind name reported to clients.
var (
	ErrCategoryNotFound       = errors.New("CategoryNotFound")
	ErrDuplicatePeriod        = errors.New("DuplicatePeriod")
	ErrAnnualAlreadySettled   = errors.New("AnnualAlreadySettled")
	ErrConcurrentConflict     = errors.New("ConcurrentConflict")
	ErrNoActiveFamily         = errors.New("NoActiveFamily")
	ErrInvalidPeriodSelection = errors.New("InvalidPeriodSelection")
)

// Conflict is a period blocking a request, with its recorded status.
type Conflict struct {
	Period period.Period `json:"period"`
	Status period.Status `json:"status"`
}

// Error is a ledger failure with enough detail to re-render state without another read.
type Error struct {
	Kind      error
	Message   string
	Conflicts []Conflict
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(e.Conflicts) > 0 {
		codes := make([]string, 0, len(e.Conflicts))
		for _, c := range e.Conflicts {
			codes = append(codes, c.Period.String()+" ("+c.Status.String()+")")
		}
		msg += ": " + strings.Join(codes, ", ")
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

// NewError builds a ledger error of the given kind.
func NewError(kind error, msg string, conflicts ...Conflict) *Error {
	return &Error{Kind: kind, Message: msg, Conflicts: conflicts}
}

func conflictsOf(recs []period.Record) []Conflict {
	conflicts := make([]Conflict, 0, len(recs))
	for _, rec := range recs {
		conflicts = append(conflicts, Conflict{Period: rec.Period, Status: rec.Status})
	}
	return conflicts
}

// KindOf returns the ledger error kind of err, nil if err is not a ledger error.
func KindOf(err error) error {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return nil
}
