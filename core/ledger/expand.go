package ledger

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/Brunoball/Cooperadora-sub000/core"
	"github.com/Brunoball/Cooperadora-sub000/core/family"
)

// Outcome is the result of committing one member's batch.
type Outcome struct {
	StudentID int64
	Batch     Batch // committed batch, zero on failure
	Err       error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Expander replicates a batch across the active members of a family.
type Expander struct {
	engine   *Engine
	families *family.Service
	logger   core.Logger
}

func NewExpander(engine *Engine, families *family.Service, logger core.Logger) *Expander {
	return &Expander{engine: engine, families: families, logger: logger}
}

// Expand returns one batch per active family member, the originating student's batch first.
// Every copy keeps the origin's periods and prices; siblings are not re-priced.
// Without other active members the result is the origin batch alone.
func (x *Expander) Expand(ctx context.Context, batch Batch, familyID int64) ([]Batch, error) {
	fam, err := x.families.Get(ctx, familyID)
	if err != nil {
		if errors.Is(err, family.ErrNotFound) {
			x.logger.Debug(fmt.Sprintf("family %d not found: %v", familyID, ErrNoActiveFamily))
			return []Batch{batch}, nil
		}
		return nil, pkgerrors.Wrap(err, "getting family")
	}

	batches := []Batch{batch}
	for _, m := range fam.ActiveMembers() {
		if m.StudentID == batch.StudentID {
			continue
		}
		batches = append(batches, batch.ForStudent(m.StudentID))
	}
	if len(batches) == 1 {
		x.logger.Debug(fmt.Sprintf("family %d: %v", familyID, ErrNoActiveFamily))
	}
	return batches, nil
}

// CommitAll commits each batch on its own. A failed member does not undo the others;
// every result is reported in input order.
func (x *Expander) CommitAll(ctx context.Context, batches []Batch) []Outcome {
	outcomes := make([]Outcome, 0, len(batches))
	for _, b := range batches {
		committed, err := x.engine.Commit(ctx, b)
		outcomes = append(outcomes, Outcome{StudentID: b.StudentID, Batch: committed, Err: err})
	}
	return outcomes
}
