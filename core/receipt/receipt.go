package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"

	"github.com/Brunoball/Cooperadora-sub000/core"
	"github.com/Brunoball/Cooperadora-sub000/core/discount"
	"github.com/Brunoball/Cooperadora-sub000/core/ledger"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

const templateName = "receipt"

var (
	// errors
	ErrNoRecipient = errors.New("receipt has no recipient")
	ErrEmpty       = errors.New("nothing to put on the receipt")
)

type (
	Line struct {
		Period    period.Period `json:"period"`
		Label     string        `json:"label"`
		Amount    int64         `json:"amount"`
		Formatted string        `json:"formatted"`
		Status    period.Status `json:"status"`
	}

	// Receipt is the export payload of committed periods. Rendering is left to consumers.
	Receipt struct {
		StudentID       int64                   `json:"studentId"`
		StudentName     string                  `json:"studentName"`
		Year            int                     `json:"year"`
		Periods         []period.Period         `json:"periods"`
		PerPeriodAmount map[period.Period]int64 `json:"perPeriodAmount"`
		Total           int64                   `json:"total"`
		DisplayTotal    int64                   `json:"displayTotal"`
		FormattedTotal  string                  `json:"formattedTotal"`
		PeriodLabel     string                  `json:"periodLabel"`
		Lines           []Line                  `json:"lines"`
		IssuedAt        time.Time               `json:"issuedAt"`
	}
)

type Service struct {
	mailSvc  core.EmailService
	currency string
}

func NewService(mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{mailSvc: mailSvc, currency: conf.Currency}
}

// Format renders a whole-currency amount, e.g. 40000 ARS -> "$40.000,00".
func (svc *Service) Format(amount int64) string {
	cur := money.New(0, svc.currency).Currency()
	minor := amount
	for i := 0; i < cur.Fraction; i++ {
		minor *= 10
	}
	return money.New(minor, svc.currency).Display()
}

// FromBatch builds the receipt of a committed batch.
func (svc *Service) FromBatch(stud student.Student, batch ledger.Batch) Receipt {
	lines := make([]Line, 0, len(batch.Lines))
	for _, l := range batch.Lines {
		lines = append(lines, Line{Period: l.Period, Amount: l.Amount, Status: l.Status})
	}
	issued := batch.CommittedAt
	if issued.IsZero() {
		issued = time.Now().UTC()
	}
	return svc.build(stud, batch.Year, lines, issued)
}

// FromRecords builds a receipt of recorded periods, e.g. everything paid in a year.
func (svc *Service) FromRecords(stud student.Student, year int, recs []period.Record) Receipt {
	sorted := make([]period.Record, len(recs))
	copy(sorted, recs)
	period.SortRecords(sorted)

	lines := make([]Line, 0, len(sorted))
	var issued time.Time
	for _, rec := range sorted {
		lines = append(lines, Line{Period: rec.Period, Amount: rec.Amount, Status: rec.Status})
		if rec.CreatedAt.After(issued) {
			issued = rec.CreatedAt
		}
	}
	if issued.IsZero() {
		issued = time.Now().UTC()
	}
	return svc.build(stud, year, lines, issued)
}

func (svc *Service) build(stud student.Student, year int, lines []Line, issued time.Time) Receipt {
	r := Receipt{
		StudentID:       stud.ID,
		StudentName:     stud.DisplayName,
		Year:            year,
		Periods:         make([]period.Period, 0, len(lines)),
		PerPeriodAmount: make(map[period.Period]int64, len(lines)),
		Lines:           lines,
		IssuedAt:        issued,
	}
	for i, l := range r.Lines {
		r.Lines[i].Label = l.Period.Label()
		r.Lines[i].Formatted = svc.Format(l.Amount)
		r.Periods = append(r.Periods, l.Period)
		r.PerPeriodAmount[l.Period] = l.Amount
		r.Total += l.Amount
	}
	r.DisplayTotal = discount.RoundDisplay(r.Total)
	r.FormattedTotal = svc.Format(r.Total)
	r.PeriodLabel = Label(r.Periods, year)
	return r
}

// Label names the periods of a receipt, e.g. "Enrollment, March, April 2024".
func Label(periods []period.Period, year int) string {
	if len(periods) == 0 {
		return strconv.Itoa(year)
	}
	labels := make([]string, 0, len(periods))
	for _, p := range periods {
		labels = append(labels, p.Label())
	}
	return strings.Join(labels, ", ") + " " + strconv.Itoa(year)
}

// Send emails the receipt to `to`, attaching its JSON payload.
func (svc *Service) Send(r Receipt, to mail.Address) error {
	if to.Address == "" {
		return ErrNoRecipient
	}
	if len(r.Lines) == 0 {
		return ErrEmpty
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      "Payment receipt - " + r.PeriodLabel,
		TemplateName: templateName,
		TemplateData: r,
	}
	msg.Attach(payload, fmt.Sprintf("receipt-%d-%d.json", r.StudentID, r.Year), "application/json")
	svc.mailSvc.SendMessages(msg)
	return nil
}
