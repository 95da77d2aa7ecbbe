package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Brunoball/Cooperadora-sub000/core/family"
)

type familyApi struct {
	svc      *family.Service
	validate *validator.Validate
}

func registerFamilyAPI(g *echo.Group, svc *family.Service, validate *validator.Validate) {
	api := familyApi{svc: svc, validate: validate}
	g.GET("/family-info", api.info)
}

func (api *familyApi) info(ctx echo.Context) error {
	var q StudentQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to StudentQuery")
	}
	if err := q.Validate(api.validate); err != nil {
		return err
	}

	info, err := api.svc.Info(ctx.Request().Context(), q.StudentID)
	if err != nil {
		return errors.Wrap(err, "getting family info")
	}
	return ctx.JSON(http.StatusOK, info)
}
