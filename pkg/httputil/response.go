package httputil

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Response is the envelope every API endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data"`
}

// OK writes a 200 success envelope.
func OK(c echo.Context, message string, data interface{}) error {
	return JSON(c, http.StatusOK, message, data)
}

// Created writes a 201 success envelope.
func Created(c echo.Context, message string, data interface{}) error {
	return JSON(c, http.StatusCreated, message, data)
}

// JSON writes a success envelope with an explicit status code.
func JSON(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Response{Success: true, Message: message, Data: data})
}

// Fail writes a failure envelope. Data is always null on failure.
func Fail(c echo.Context, status int, message string) error {
	return c.JSON(status, Response{Success: false, Message: message, Data: nil})
}

// ErrorHandler renders echo errors (routing, middleware, auth) as failure
// envelopes so clients only ever see one response shape.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch m := he.Message.(type) {
		case string:
			message = m
		case error:
			message = m.Error()
		default:
			message = http.StatusText(status)
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = Fail(c, status, message)
}
