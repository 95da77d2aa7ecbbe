package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Brunoball/Cooperadora-sub000/core/ledger"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/receipt"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

type receiptApi struct {
	engine   *ledger.Engine
	students *student.Service
	periods  *period.Service
	receipts *receipt.Service
	validate *validator.Validate
}

func registerReceiptAPI(g *echo.Group, deps ServerDeps) {
	api := receiptApi{
		engine:   deps.Engine,
		students: deps.Students,
		periods:  deps.Periods,
		receipts: deps.Receipts,
		validate: deps.Validate,
	}
	g.GET("/receipt", api.retrieve)
}

// retrieve exports every period recorded for the student in the year.
func (api *receiptApi) retrieve(ctx echo.Context) error {
	var q StudentYearQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to StudentYearQuery")
	}
	if err := q.Validate(api.validate); err != nil {
		return err
	}
	if err := api.engine.CheckYear(q.Year); err != nil {
		return err
	}
	c := ctx.Request().Context()

	stud, err := api.students.GetByID(c, q.StudentID)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	st, err := api.periods.GetState(c, q.StudentID, q.Year)
	if err != nil {
		return errors.Wrap(err, "getting period state")
	}
	return ctx.JSON(http.StatusOK, api.receipts.FromRecords(stud, q.Year, st.Records()))
}
