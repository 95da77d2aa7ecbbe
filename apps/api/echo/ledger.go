package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Brunoball/Cooperadora-sub000/core"
	"github.com/Brunoball/Cooperadora-sub000/core/ledger"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/receipt"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

type ledgerApi struct {
	engine   *ledger.Engine
	expander *ledger.Expander
	students *student.Service
	periods  *period.Service
	receipts *receipt.Service
	logger   core.Logger
	validate *validator.Validate
}

func registerLedgerAPI(g *echo.Group, deps ServerDeps) {
	api := ledgerApi{
		engine:   deps.Engine,
		expander: deps.Expander,
		students: deps.Students,
		periods:  deps.Periods,
		receipts: deps.Receipts,
		logger:   deps.Logger,
		validate: deps.Validate,
	}

	lg := g.Group("/ledger")
	lg.POST("/preview", api.preview)
	lg.POST("/commit", api.commit)
	lg.POST("/delete-period", api.deletePeriod)
}

// Handlers

func (api *ledgerApi) bindRequest(ctx echo.Context) (LedgerRequest, ledger.Request, error) {
	var data LedgerRequest
	if err := ctx.Bind(&data); err != nil {
		return data, ledger.Request{}, errors.Wrap(err, "binding to LedgerRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return data, ledger.Request{}, err
	}
	req, err := data.toRequest()
	return data, req, err
}

func (api *ledgerApi) preview(ctx echo.Context) error {
	_, req, err := api.bindRequest(ctx)
	if err != nil {
		return err
	}
	batch, err := api.engine.BuildBatch(ctx.Request().Context(), req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, batch)
}

func (api *ledgerApi) commit(ctx echo.Context) error {
	data, req, err := api.bindRequest(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()

	stud, err := api.students.GetByID(c, req.StudentID)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	batch, err := api.engine.BuildBatch(c, req)
	if err != nil {
		return err
	}
	committed, err := api.engine.Commit(c, batch)
	if err != nil {
		return err
	}

	res := CommitResponse{
		Committed:    linesOf(committed),
		Total:        committed.Total,
		DisplayTotal: committed.DisplayTotal,
	}

	// the origin is committed; sibling failures are reported, never returned
	if data.ApplyToFamily && stud.HasFamily() {
		batches, err := api.expander.Expand(c, batch, *stud.FamilyID)
		if err != nil {
			return errors.Wrap(err, "expanding batch to family")
		}
		res.Family = []FamilyCommitResponse{}
		for _, o := range api.expander.CommitAll(c, batches[1:]) {
			if !o.OK() && ledger.KindOf(o.Err) == nil {
				api.logger.Error(fmt.Sprintf("committing family batch: %v", o.Err), o.Err)
			}
			res.Family = append(res.Family, familyResponseOf(o))
		}
	}

	if data.SendReceipt {
		api.sendReceipt(stud, committed)
	}
	return ctx.JSON(http.StatusCreated, res)
}

// sendReceipt mails the receipt of a committed batch. Failures are logged: the payment stands.
func (api *ledgerApi) sendReceipt(stud student.Student, batch ledger.Batch) {
	person := core.Person{ID: strconv.FormatInt(stud.ID, 10), Name: stud.DisplayName, Email: stud.Email}
	r := api.receipts.FromBatch(stud, batch)
	if err := api.receipts.Send(r, stud.MailAddress()); err != nil {
		api.logger.Warn(fmt.Sprintf("sending receipt: %v", err), err, person)
	}
}

func (api *ledgerApi) deletePeriod(ctx echo.Context) error {
	var data DeletePeriodRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeletePeriodRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := period.Parse(data.Period)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "period", Error: err.Error()})
	}
	if err = api.periods.Delete(ctx.Request().Context(), data.StudentID, data.Year, p); err != nil {
		return errors.Wrap(err, "deleting period")
	}
	return ctx.NoContent(http.StatusNoContent)
}
