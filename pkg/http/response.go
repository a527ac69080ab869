package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

const internalServerErrorMessage = "Internal Server Error"

// DataResponse writes data as the JSON body with the given status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, data)
}

// SuccessResponse writes a 200 response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// RawJSONResponse writes an already encoded JSON body.
func RawJSONResponse(c echo.Context, statusCode int, body []byte) error {
	return c.JSONBlob(statusCode, body)
}

// ErrorResponse writes {"detail": detail}.
func ErrorResponse(c echo.Context, statusCode int, detail interface{}) error {
	return c.JSON(statusCode, DetailResponse{Detail: detail})
}

// UnprocessableResponse writes validation errors as a 422.
func UnprocessableResponse(c echo.Context, errs []ValidationError) error {
	return ErrorResponse(c, http.StatusUnprocessableEntity, errs)
}

// InternalServerErrorResponse writes internal server error.
func InternalServerErrorResponse(c echo.Context) error {
	return ErrorResponse(c, http.StatusInternalServerError, internalServerErrorMessage)
}

// AppErrorResponse writes application error response. Errors that are
// not *AppError never leak their text to the client.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError && appErr.Status != http.StatusServiceUnavailable {
			return InternalServerErrorResponse(c)
		}
		return ErrorResponse(c, appErr.Status, appErr.Message)
	}
	return InternalServerErrorResponse(c)
}
