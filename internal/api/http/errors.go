package httpapi

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// Error codes returned in the "error" field of every error body.
const (
	codeValidation          = "validation_error"
	codeLocationNotFound    = "location_not_found"
	codeAlertNotFound       = "alert_not_found"
	codeUpstream            = "upstream_error"
	codeUpstreamUnavailable = "upstream_unavailable"
	codeNotFound            = "not_found"
	codeInternal            = "internal_error"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// classify maps an error onto an HTTP status, error code and user-facing message.
func classify(err error) (int, errorResponse) {
	var (
		ve *weather.ValidationError
		ue *weather.UpstreamError
		fe *fiber.Error
	)
	switch {
	case errors.As(err, &ve):
		return fiber.StatusBadRequest, errorResponse{codeValidation, ve.Error()}
	case errors.Is(err, weather.ErrLocationNotFound):
		return fiber.StatusNotFound, errorResponse{codeLocationNotFound, "location not found"}
	case errors.Is(err, weather.ErrAlertNotFound):
		return fiber.StatusNotFound, errorResponse{codeAlertNotFound, "alert not found"}
	case errors.As(err, &ue):
		if ue.Transport {
			return fiber.StatusServiceUnavailable, errorResponse{codeUpstreamUnavailable, "weather provider is unavailable, please try again later"}
		}
		msg := ue.Message
		if msg == "" {
			msg = "weather provider returned an error"
		}
		if ue.StatusCode >= 400 && ue.StatusCode < 500 {
			return ue.StatusCode, errorResponse{codeUpstream, msg}
		}
		return fiber.StatusBadGateway, errorResponse{codeUpstream, msg}
	case errors.As(err, &fe):
		code := codeInternal
		switch {
		case fe.Code == fiber.StatusNotFound:
			code = codeNotFound
		case fe.Code < 500:
			code = codeValidation
		}
		return fe.Code, errorResponse{code, fe.Message}
	default:
		return fiber.StatusInternalServerError, errorResponse{codeInternal, "internal server error"}
	}
}

// ErrorHandler writes every error as {error, message}.
func ErrorHandler(log logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Method(),
				"path":   c.Path(),
				"status": status,
			}).Error("request failed")
		}
		return c.Status(status).JSON(body)
	}
}
