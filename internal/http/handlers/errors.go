package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/policy-oracle/backend/internal/http/dto"
	"github.com/policy-oracle/backend/internal/middleware"
	"github.com/policy-oracle/backend/internal/services"
	"go.uber.org/zap"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindInvalidArgument:   fiber.StatusBadRequest,
	services.KindNotFound:          fiber.StatusNotFound,
	services.KindInvalidState:      fiber.StatusConflict,
	services.KindDuplicateApproval: fiber.StatusConflict,
	services.KindNoSuchApproval:    fiber.StatusNotFound,
	services.KindInvalidSignature:  fiber.StatusBadRequest,
	services.KindUnauthorized:      fiber.StatusForbidden,
	services.KindRegistrationFault: fiber.StatusBadGateway,
}

// writeError maps engine errors onto HTTP statuses. Errors outside the
// taxonomy are logged and hidden behind a 500.
func writeError(c *fiber.Ctx, err error, log *zap.Logger) error {
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)

	var e *services.Error
	if errors.As(err, &e) {
		status, ok := kindStatus[e.Kind]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		if status >= 500 {
			log.Warn("request failed", zap.String("request_id", reqID), zap.String("kind", string(e.Kind)), zap.Error(err))
		}
		return c.Status(status).JSON(dto.ErrorResponse{
			Error:     err.Error(),
			Kind:      string(e.Kind),
			Details:   e.Details,
			RequestID: reqID,
		})
	}

	if errors.Is(err, services.ErrLockTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error:     "escrow is busy, retry later",
			RequestID: reqID,
		})
	}

	log.Error("internal error", zap.String("request_id", reqID), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error:     "internal server error",
		RequestID: reqID,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
}
