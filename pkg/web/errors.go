package web

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dukex/blockflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// writeProblem renders an RFC 7807 document. The service error code and the rejected
// fields, when present, are added as extension members.
func writeProblem(c fiber.Ctx, status int, problemType, detail, code string, fields []services.FieldError) error {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	if code == "" && len(fields) == 0 {
		return c.Status(status).JSON(problem)
	}

	raw, err := json.Marshal(problem)
	if err != nil {
		return c.Status(status).JSON(problem)
	}

	body := fiber.Map{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return c.Status(status).JSON(problem)
	}

	if code != "" {
		body["code"] = code
	}

	if len(fields) > 0 {
		body["errors"] = fields
	}

	return c.Status(status).JSON(body)
}

func badRequest(c fiber.Ctx, detail string, fields ...services.FieldError) error {
	return writeProblem(c, fiber.StatusBadRequest, "validation_error", detail, "", fields)
}

func unauthorized(c fiber.Ctx) error {
	return writeProblem(c, fiber.StatusUnauthorized, "unauthorized", "caller identity is required", "", nil)
}

// handleServiceError maps the service error taxonomy to problem responses. Dependency
// failures are logged and reported without detail.
func handleServiceError(c fiber.Ctx, logger *slog.Logger, err error) error {
	detail, code := err.Error(), ""

	var serr *services.ServiceError
	if errors.As(err, &serr) {
		code = serr.Code
		if serr.Message != "" {
			detail = serr.Message
		}
	}

	switch {
	case services.IsValidationError(err):
		return writeProblem(c, fiber.StatusBadRequest, "validation_error", detail, code, services.FieldErrors(err))
	case services.IsUnauthenticatedError(err):
		return unauthorized(c)
	case services.IsPermissionError(err):
		return writeProblem(c, fiber.StatusForbidden, "forbidden", detail, code, nil)
	case services.IsNotFoundError(err):
		return writeProblem(c, fiber.StatusNotFound, "not_found", detail, code, nil)
	case services.IsConflictError(err):
		return writeProblem(c, fiber.StatusConflict, "conflict", detail, code, nil)
	default:
		logger.ErrorContext(c.Context(), "request failed",
			"method", c.Method(), "path", c.Path(), "error", err)

		return writeProblem(c, fiber.StatusInternalServerError, "internal_error",
			"an internal error occurred", "internal_error", nil)
	}
}
