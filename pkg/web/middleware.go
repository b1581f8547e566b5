package web

import (
	"errors"
	"time"

	"github.com/dukex/blockflow/pkg/metrics"
	"github.com/gofiber/fiber/v3"
)

// UserIDHeader carries the caller identity set by the upstream gateway.
const UserIDHeader = "X-User-ID"

type localKey int

const userIDLocal localKey = iota

// RequireUser rejects requests without a caller identity and stores it for handlers.
func RequireUser() fiber.Handler {
	return func(c fiber.Ctx) error {
		userID := c.Get(UserIDHeader)
		if userID == "" {
			return unauthorized(c)
		}

		c.Locals(userIDLocal, userID)

		return c.Next()
	}
}

func userID(c fiber.Ctx) string {
	id, _ := c.Locals(userIDLocal).(string)

	return id
}

// RecordMetrics observes every request by method, matched route and status.
func RecordMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError

			var ferr *fiber.Error
			if errors.As(err, &ferr) {
				status = ferr.Code
			}
		}

		m.RecordHTTPRequest(c.Method(), c.Route().Path, status, time.Since(started))

		return err
	}
}
