package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Brunoball/Cooperadora-sub000/core/ledger"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

type periodApi struct {
	engine   *ledger.Engine
	students *student.Service
	periods  *period.Service
	validate *validator.Validate
}

func registerPeriodAPI(g *echo.Group, deps ServerDeps) {
	api := periodApi{engine: deps.Engine, students: deps.Students, periods: deps.Periods, validate: deps.Validate}
	g.GET("/period-state", api.state)
}

func (api *periodApi) state(ctx echo.Context) error {
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

	res := PeriodStateResponse{
		SettledPeriods:     []SettledPeriod{},
		FullyAnnualSettled: st.IsFullyAnnualSettled(),
	}
	if !stud.EnrollmentDate.IsZero() {
		res.EnrollmentDate = stud.EnrollmentDate.Format(dateLayout)
	}
	for _, rec := range st.Records() {
		res.SettledPeriods = append(res.SettledPeriods, SettledPeriod{
			Period: rec.Period,
			Status: rec.Status,
			PaidOn: rec.CreatedAt.Format(dateLayout),
			Amount: rec.Amount,
		})
	}
	if half, ok := st.ImpliedRemainingHalf(); ok {
		res.RemainingHalf = &half
	}
	return ctx.JSON(http.StatusOK, res)
}
