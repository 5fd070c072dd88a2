package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/http/dto"
	"github.com/policy-oracle/backend/internal/middleware"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/policy-oracle/backend/internal/oracle"
	"github.com/policy-oracle/backend/internal/services"
	"go.uber.org/zap"
)

// EscrowApprovals is the part of the coordinator the HTTP layer drives.
type EscrowApprovals interface {
	AddApproval(ctx context.Context, in services.AddApprovalInput) (*models.Escrow, error)
	CancelApproval(ctx context.Context, escrowID, guardianID uuid.UUID) (*models.Escrow, error)
	GetApprovalProgress(ctx context.Context, escrowID uuid.UUID) (*services.Progress, error)
	Evaluate(ctx context.Context, escrowID uuid.UUID) (*oracle.ValidationResult, error)
	RetryRegistration(ctx context.Context, escrowID uuid.UUID, actorID *uuid.UUID, actorType string) (*models.Escrow, error)
	CancelEscrow(ctx context.Context, escrowID uuid.UUID, actorID *uuid.UUID, actorType, reason string) (*models.Escrow, error)
}

type AuditReader interface {
	ListForEscrow(ctx context.Context, escrowID uuid.UUID, actionPrefix string, limit, offset int) ([]models.AuditLog, error)
}

type EscrowHandler struct {
	approvals EscrowApprovals
	audit     AuditReader
	log       *zap.Logger
}

func NewEscrowHandler(approvals EscrowApprovals, audit AuditReader, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{approvals: approvals, audit: audit, log: log}
}

func escrowID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

func (h *EscrowHandler) AddApproval(c *fiber.Ctx) error {
	id, ok := escrowID(c)
	if !ok {
		return badRequest(c, "invalid escrow id")
	}

	var req dto.AddApprovalRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	escrow, err := h.approvals.AddApproval(c.Context(), services.AddApprovalInput{
		EscrowID:        id,
		GuardianID:      middleware.GetGuardianID(c),
		GuardianAddress: middleware.GetAddress(c),
		Signature:       req.Signature,
		MerkleProof:     req.MerkleProof,
	})
	if err != nil {
		return writeError(c, err, h.log)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

// CancelApproval lets a guardian withdraw only their own approval.
func (h *EscrowHandler) CancelApproval(c *fiber.Ctx) error {
	id, ok := escrowID(c)
	if !ok {
		return badRequest(c, "invalid escrow id")
	}
	guardianID, err := uuid.Parse(c.Params("guardianId"))
	if err != nil {
		return badRequest(c, "invalid guardian id")
	}
	if guardianID != middleware.GetGuardianID(c) {
		return writeError(c, services.ErrUnauthorized, h.log)
	}

	escrow, err := h.approvals.CancelApproval(c.Context(), id, guardianID)
	if err != nil {
		return writeError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) GetProgress(c *fiber.Ctx) error {
	id, ok := escrowID(c)
	if !ok {
		return badRequest(c, "invalid escrow id")
	}
	progress, err := h.approvals.GetApprovalProgress(c.Context(), id)
	if err != nil {
		return writeError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: progress})
}

func (h *EscrowHandler) GetEvaluation(c *fiber.Ctx) error {
	id, ok := escrowID(c)
	if !ok {
		return badRequest(c, "invalid escrow id")
	}
	res, err := h.approvals.Evaluate(c.Context(), id)
	if err != nil {
		return writeError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.EvaluationResponse{
		EscrowID: id.String(),
		Valid:    res.Valid,
		Errors:   res.Errors,
		Warnings: res.Warnings,
	}})
}

func (h *EscrowHandler) RetryRegistration(c *fiber.Ctx) error {
	id, ok := escrowID(c)
	if !ok {
		return badRequest(c, "invalid escrow id")
	}
	actorID := middleware.GetGuardianID(c)
	escrow, err := h.approvals.RetryRegistration(c.Context(), id, &actorID, models.ActorOperator)
	if err != nil {
		return writeError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) CancelEscrow(c *fiber.Ctx) error {
	id, ok := escrowID(c)
	if !ok {
		return badRequest(c, "invalid escrow id")
	}
	var req dto.CancelEscrowRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Reason == "" {
		return badRequest(c, "reason is required")
	}

	actorID := middleware.GetGuardianID(c)
	escrow, err := h.approvals.CancelEscrow(c.Context(), id, &actorID, models.ActorOperator, req.Reason)
	if err != nil {
		return writeError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) GetAuditLog(c *fiber.Ctx) error {
	id, ok := escrowID(c)
	if !ok {
		return badRequest(c, "invalid escrow id")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	prefix := ""
	switch c.Query("filter") {
	case "":
	case "status":
		prefix = models.AuditActionStatusPrefix
	default:
		return badRequest(c, "filter must be status or empty")
	}

	logs, err := h.audit.ListForEscrow(c.Context(), id, prefix, limit, offset)
	if err != nil {
		return writeError(c, err, h.log)
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}
