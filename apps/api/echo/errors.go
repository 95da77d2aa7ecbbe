package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Brunoball/Cooperadora-sub000/core"
	"github.com/Brunoball/Cooperadora-sub000/core/family"
	"github.com/Brunoball/Cooperadora-sub000/core/ledger"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
)

// LedgerErrorResponse is the body of every ledger failure.
type LedgerErrorResponse struct {
	Error     string            `json:"error"`
	Conflicts []ledger.Conflict `json:"conflicts"`
	Message   string            `json:"message,omitempty"`
}

func newLedgerErrorResponse(err *ledger.Error) LedgerErrorResponse {
	conflicts := err.Conflicts
	if conflicts == nil {
		conflicts = []ledger.Conflict{}
	}
	return LedgerErrorResponse{Error: err.Kind.Error(), Conflicts: conflicts, Message: err.Message}
}

func ledgerErrorStatus(kind error) int {
	switch kind {
	case ledger.ErrDuplicatePeriod, ledger.ErrAnnualAlreadySettled, ledger.ErrConcurrentConflict:
		return http.StatusConflict
	case ledger.ErrCategoryNotFound:
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch cause {
		case student.ErrNotFound, family.ErrNotFound, period.ErrNotFound:
			cause = echo.NewHTTPError(http.StatusNotFound, cause.Error())
		}

		switch origErr := cause.(type) {
		case *ledger.Error:
			code = ledgerErrorStatus(origErr.Kind)
			message = newLedgerErrorResponse(origErr)
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if flds := origErr.FieldMap(); flds != nil {
				message = flds
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg))

			if ctx.Echo().Debug {
				message = err.Error()
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
