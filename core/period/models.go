package period

import (
	"sort"
	"strings"
	"time"
)

// Record is a persisted settlement (or waiver) of one period for a student & year.
type Record struct {
	ID              string    `json:"id"`
	StudentID       int64     `json:"studentId"`
	Year            int       `json:"year"`
	Period          Period    `json:"period"`
	Status          Status    `json:"status"`
	Amount          int64     `json:"amount"`
	PaymentMethodID *int64    `json:"paymentMethodId"`
	BatchID         string    `json:"batchId"`   // ledger batch that wrote the record
	CreatedAt       time.Time `json:"createdAt"` // UTC
}

// State is the read view of a student's recorded periods for one year.
// A period missing from it is open (payable).
type State struct {
	StudentID int64
	Year      int
	records   map[Period]Record
}

func NewState(studentID int64, year int, records []Record) State {
	st := State{StudentID: studentID, Year: year, records: make(map[Period]Record, len(records))}
	for _, rec := range records {
		st.records[rec.Period] = rec
	}
	return st
}

func (st State) Status(p Period) (Status, bool) {
	rec, ok := st.records[p]
	return rec.Status, ok
}

func (st State) Record(p Period) (Record, bool) {
	rec, ok := st.records[p]
	return rec, ok
}

// Statuses returns a copy of the per-period status map.
func (st State) Statuses() map[Period]Status {
	m := make(map[Period]Status, len(st.records))
	for p, rec := range st.records {
		m[p] = rec.Status
	}
	return m
}

// Records returns the recorded periods in batch order.
func (st State) Records() []Record {
	recs := make([]Record, 0, len(st.records))
	for _, rec := range st.records {
		recs = append(recs, rec)
	}
	SortRecords(recs)
	return recs
}

func (st State) IsEmpty() bool { return len(st.records) == 0 }

// IsFullyAnnualSettled reports whether the year has been paid as a lump sum,
// either in full or as both halves.
func (st State) IsFullyAnnualSettled() bool {
	if _, ok := st.records[AnnualFull]; ok {
		return true
	}
	_, first := st.records[AnnualFirstHalf]
	_, second := st.records[AnnualSecondHalf]
	return first && second
}

// ImpliedRemainingHalf returns the half still owed when exactly one half is recorded and AnnualFull is not.
func (st State) ImpliedRemainingHalf() (Period, bool) {
	if _, ok := st.records[AnnualFull]; ok {
		return Period{}, false
	}
	_, first := st.records[AnnualFirstHalf]
	_, second := st.records[AnnualSecondHalf]
	switch {
	case first && !second:
		return AnnualSecondHalf, true
	case second && !first:
		return AnnualFirstHalf, true
	}
	return Period{}, false
}

// Collisions returns the existing records occupying a slot wanted by one of the incoming periods.
// AnnualFull shares its slot with both halves.
func Collisions(existing []Record, incoming []Period) []Record {
	var hits []Record
	for _, rec := range existing {
		for _, p := range incoming {
			if rec.Period == p ||
				(rec.Period == AnnualFull && p.IsHalf()) ||
				(rec.Period.IsHalf() && p == AnnualFull) {
				hits = append(hits, rec)
				break
			}
		}
	}
	SortRecords(hits)
	return hits
}

func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Period.Rank() < recs[j].Period.Rank() })
}

// SlotTakenError is returned by a Repository when records could not be written
// because their uniqueness slots are already occupied.
type SlotTakenError struct {
	Taken []Record
}

func (e *SlotTakenError) Error() string {
	codes := make([]string, 0, len(e.Taken))
	for _, rec := range e.Taken {
		codes = append(codes, rec.Period.String())
	}
	if len(codes) == 0 {
		return "period slot already taken"
	}
	return "period slot already taken: " + strings.Join(codes, ", ")
}
