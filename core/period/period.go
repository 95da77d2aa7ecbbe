package period

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Kind tags the variant of a Period.
type Kind uint8

const (
	KindMonth Kind = iota + 1
	KindAnnualFull
	KindAnnualFirstHalf
	KindAnnualSecondHalf
	KindEnrollment
)

const monthPrefix = "Month"

// Period is a billing unit: one of Month(1..12), AnnualFull, AnnualFirstHalf, AnnualSecondHalf or Enrollment.
// The zero value is invalid.
type Period struct {
	Kind  Kind
	Month int // 1..12, only set for KindMonth
}

var (
	AnnualFull       = Period{Kind: KindAnnualFull}
	AnnualFirstHalf  = Period{Kind: KindAnnualFirstHalf}
	AnnualSecondHalf = Period{Kind: KindAnnualSecondHalf}
	Enrollment       = Period{Kind: KindEnrollment}

	ErrInvalidPeriod = errors.New("invalid period")
)

func Month(m int) Period { return Period{Kind: KindMonth, Month: m} }

func (p Period) IsMonth() bool { return p.Kind == KindMonth }

func (p Period) IsAnnual() bool {
	return p.Kind == KindAnnualFull || p.Kind == KindAnnualFirstHalf || p.Kind == KindAnnualSecondHalf
}

func (p Period) IsHalf() bool { return p.Kind == KindAnnualFirstHalf || p.Kind == KindAnnualSecondHalf }

// OtherHalf returns the complementary half of an annual half.
func (p Period) OtherHalf() (Period, bool) {
	switch p.Kind {
	case KindAnnualFirstHalf:
		return AnnualSecondHalf, true
	case KindAnnualSecondHalf:
		return AnnualFirstHalf, true
	}
	return Period{}, false
}

func (p Period) Validate() error {
	switch p.Kind {
	case KindMonth:
		if p.Month < 1 || p.Month > 12 {
			return errors.Wrapf(ErrInvalidPeriod, "month %d out of range 1-12", p.Month)
		}
		return nil
	case KindAnnualFull, KindAnnualFirstHalf, KindAnnualSecondHalf, KindEnrollment:
		return nil
	}
	return ErrInvalidPeriod
}

// Rank orders periods the way they are listed on a batch: enrollment, months, annual.
func (p Period) Rank() int {
	switch p.Kind {
	case KindEnrollment:
		return 0
	case KindMonth:
		return p.Month
	case KindAnnualFull:
		return 13
	case KindAnnualFirstHalf:
		return 14
	case KindAnnualSecondHalf:
		return 15
	}
	return 99
}

func (p Period) String() string {
	switch p.Kind {
	case KindMonth:
		return monthPrefix + strconv.Itoa(p.Month)
	case KindAnnualFull:
		return "AnnualFull"
	case KindAnnualFirstHalf:
		return "AnnualFirstHalf"
	case KindAnnualSecondHalf:
		return "AnnualSecondHalf"
	case KindEnrollment:
		return "Enrollment"
	}
	return ""
}

// Label is the human name used on receipts.
func (p Period) Label() string {
	switch p.Kind {
	case KindMonth:
		if p.Month >= 1 && p.Month <= 12 {
			return time.Month(p.Month).String()
		}
	case KindAnnualFull:
		return "Annual"
	case KindAnnualFirstHalf:
		return "Annual (first half)"
	case KindAnnualSecondHalf:
		return "Annual (second half)"
	case KindEnrollment:
		return "Enrollment"
	}
	return p.String()
}

// Parse reads a period code: Month1..Month12 (also "Month(3)"), AnnualFull, AnnualFirstHalf, AnnualSecondHalf, Enrollment.
func Parse(s string) (Period, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "annualfull":
		return AnnualFull, nil
	case "annualfirsthalf":
		return AnnualFirstHalf, nil
	case "annualsecondhalf":
		return AnnualSecondHalf, nil
	case "enrollment":
		return Enrollment, nil
	}

	if len(s) > len(monthPrefix) && strings.EqualFold(s[:len(monthPrefix)], monthPrefix) {
		num := strings.TrimSuffix(strings.TrimPrefix(s[len(monthPrefix):], "("), ")")
		m, err := strconv.Atoi(num)
		if err != nil {
			return Period{}, errors.Wrapf(ErrInvalidPeriod, "%q", s)
		}
		p := Month(m)
		if err = p.Validate(); err != nil {
			return Period{}, err
		}
		return p, nil
	}
	return Period{}, errors.Wrapf(ErrInvalidPeriod, "%q", s)
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Period {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Period) MarshalText() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Status of a recorded period.
type Status string

const (
	StatusSettled Status = "Settled"
	StatusWaived  Status = "Waived"
)

func (s Status) Valid() bool { return s == StatusSettled || s == StatusWaived }

func (s Status) String() string { return string(s) }

func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.Valid() {
		return "", errors.Errorf("invalid period status %q", s)
	}
	return st, nil
}
