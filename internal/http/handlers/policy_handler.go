package handlers

import (
	"context"
	"errors"
	"math/big"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/evm"
	"github.com/policy-oracle/backend/internal/http/dto"
	"github.com/policy-oracle/backend/internal/merkle"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/policy-oracle/backend/internal/services"
	"go.uber.org/zap"
)

type PolicyAdmin interface {
	Create(ctx context.Context, p *models.Policy) error
	Get(ctx context.Context, id uuid.UUID) (*models.Policy, error)
	SetRolesRoot(ctx context.Context, id uuid.UUID, root string, guardians []string) error
}

type PolicyHandler struct {
	policies PolicyAdmin
	log      *zap.Logger
}

func NewPolicyHandler(policies PolicyAdmin, log *zap.Logger) *PolicyHandler {
	return &PolicyHandler{policies: policies, log: log}
}

// normalizeAddresses checksums every address and rejects the list on the
// first invalid one.
func normalizeAddresses(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, a := range in {
		n, err := evm.NormalizeAddress(a)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (h *PolicyHandler) CreatePolicy(c *fiber.Ctx) error {
	var req dto.CreatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Name == "" {
		return badRequest(c, "name is required")
	}
	if req.Threshold < 1 {
		return badRequest(c, "threshold must be at least 1")
	}
	if req.TimelockSeconds < 0 {
		return badRequest(c, "timelock_seconds must not be negative")
	}

	policy := &models.Policy{
		Name:            req.Name,
		Threshold:       req.Threshold,
		TimelockSeconds: req.TimelockSeconds,
		Active:          req.Active == nil || *req.Active,
	}
	if req.MaxAmount != nil {
		v, ok := new(big.Int).SetString(*req.MaxAmount, 10)
		if !ok || v.Sign() < 0 {
			return badRequest(c, "max_amount must be a non-negative decimal integer")
		}
		policy.MaxAmount = v
	}
	if len(req.Guardians) > 0 {
		guardians, err := normalizeAddresses(req.Guardians)
		if err != nil {
			return badRequest(c, err.Error())
		}
		root, err := merkle.BuildRoot(guardians)
		if err != nil {
			return badRequest(c, err.Error())
		}
		policy.Guardians = guardians
		policy.RolesRoot = root
	}

	if err := h.policies.Create(c.Context(), policy); err != nil {
		return writeError(c, err, h.log)
	}
	h.log.Info("policy created",
		zap.String("policy_id", policy.ID.String()),
		zap.Int("threshold", policy.Threshold),
		zap.Int("guardians", len(policy.Guardians)),
	)
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: policy})
}

func (h *PolicyHandler) GetPolicy(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid policy id")
	}
	policy, err := h.policies.Get(c.Context(), id)
	if err != nil {
		return writeError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: policy})
}

func (h *PolicyHandler) BuildRoot(c *fiber.Ctx) error {
	var req dto.BuildRootRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	addresses, err := normalizeAddresses(req.Addresses)
	if err != nil {
		return badRequest(c, err.Error())
	}
	root, err := merkle.BuildRoot(addresses)
	if errors.Is(err, merkle.ErrEmptySet) {
		return badRequest(c, "addresses must not be empty")
	}
	if err != nil {
		return writeError(c, err, h.log)
	}

	if req.PolicyID != nil {
		policyID, err := uuid.Parse(*req.PolicyID)
		if err != nil {
			return badRequest(c, "invalid policy_id")
		}
		if err := h.policies.SetRolesRoot(c.Context(), policyID, root, addresses); err != nil {
			return writeError(c, err, h.log)
		}
		h.log.Info("policy roles root updated", zap.String("policy_id", policyID.String()), zap.String("root", root))
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.RootResponse{Root: root, Addresses: addresses}})
}

func (h *PolicyHandler) BuildProof(c *fiber.Ctx) error {
	var req dto.BuildProofRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	set := req.Addresses
	if req.PolicyID != nil {
		policyID, err := uuid.Parse(*req.PolicyID)
		if err != nil {
			return badRequest(c, "invalid policy_id")
		}
		policy, err := h.policies.Get(c.Context(), policyID)
		if err != nil {
			return writeError(c, err, h.log)
		}
		set = policy.Guardians
	}

	proof, err := merkle.BuildProof(req.Address, set)
	switch {
	case errors.Is(err, merkle.ErrNotInSet):
		return writeError(c, &services.Error{Kind: services.KindNotFound, Message: "address is not in the guardian set"}, h.log)
	case errors.Is(err, merkle.ErrEmptySet):
		return badRequest(c, "guardian set is empty")
	case err != nil:
		return badRequest(c, err.Error())
	}
	root, err := merkle.BuildRoot(set)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ProofResponse{Address: req.Address, Root: root, Proof: proof}})
}
