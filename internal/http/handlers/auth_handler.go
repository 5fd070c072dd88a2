package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/policy-oracle/backend/internal/http/dto"
	"github.com/policy-oracle/backend/internal/services"
	"go.uber.org/zap"
)

type Sessions interface {
	IssueChallenge(ctx context.Context, address string) (*services.Challenge, error)
	Login(ctx context.Context, address, nonce, signature string) (*services.Session, error)
}

type AuthHandler struct {
	sessions Sessions
	log      *zap.Logger
}

func NewAuthHandler(sessions Sessions, log *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, log: log}
}

func (h *AuthHandler) Nonce(c *fiber.Ctx) error {
	var req dto.NonceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" {
		return badRequest(c, "address is required")
	}

	challenge, err := h.sessions.IssueChallenge(c.Context(), req.Address)
	if err != nil {
		return writeError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: challenge})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" || req.Nonce == "" || req.Signature == "" {
		return badRequest(c, "address, nonce and signature are required")
	}

	session, err := h.sessions.Login(c.Context(), req.Address, req.Nonce, req.Signature)
	if err != nil {
		h.log.Debug("wallet login failed", zap.String("address", req.Address), zap.Error(err))
		return writeError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: session})
}
