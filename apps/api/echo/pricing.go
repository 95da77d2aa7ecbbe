package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Brunoball/Cooperadora-sub000/core/ledger"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

type pricingApi struct {
	students *student.Service
	catalog  *pricing.Catalog
	validate *validator.Validate
}

func registerPricingAPI(g *echo.Group, students *student.Service, catalog *pricing.Catalog, validate *validator.Validate) {
	api := pricingApi{students: students, catalog: catalog, validate: validate}

	g.GET("/category-price", api.categoryPrice)
	g.GET("/enrollment-fee", api.enrollmentFee)
	g.POST("/enrollment-fee", api.updateEnrollmentFee)
}

func (api *pricingApi) categoryPrice(ctx echo.Context) error {
	var q StudentQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to StudentQuery")
	}
	if err := q.Validate(api.validate); err != nil {
		return err
	}
	c := ctx.Request().Context()

	stud, err := api.students.GetByID(c, q.StudentID)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	price, err := api.catalog.ResolvePrice(c, stud.CategoryID)
	if err != nil {
		if errors.Is(err, pricing.ErrCategoryNotFound) {
			return ledger.NewError(ledger.ErrCategoryNotFound, fmt.Sprintf("category %d of student %d", stud.CategoryID, stud.ID))
		}
		return errors.Wrap(err, "resolving price")
	}
	return ctx.JSON(http.StatusOK, price)
}

func feeResponse(fee pricing.EnrollmentFee) EnrollmentFeeResponse {
	res := EnrollmentFeeResponse{Amount: fee.Amount}
	if !fee.EffectiveFrom.IsZero() {
		res.EffectiveFrom = fee.EffectiveFrom.Format(dateLayout)
	}
	return res
}

func (api *pricingApi) enrollmentFee(ctx echo.Context) error {
	fee, err := api.catalog.CurrentEnrollmentFee(ctx.Request().Context(), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "getting enrollment fee")
	}
	return ctx.JSON(http.StatusOK, feeResponse(fee))
}

func (api *pricingApi) updateEnrollmentFee(ctx echo.Context) error {
	var data EnrollmentFeeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollmentFeeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	fee, err := api.catalog.UpdateEnrollmentFee(ctx.Request().Context(), *data.Amount)
	if err != nil {
		return errors.Wrap(err, "updating enrollment fee")
	}
	return ctx.JSON(http.StatusOK, feeResponse(fee))
}
