package fhir

import (
	"github.com/labstack/echo/v4"
)

// WriteError renders any error as an OperationOutcome with the status its
// kind maps to. Handlers use this single path so component-level failures
// reach clients with their specific kind preserved.
func WriteError(c echo.Context, err error) error {
	return c.JSON(StatusOf(err), OutcomeOf(err))
}
