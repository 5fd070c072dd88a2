package handlers

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/policy-oracle/backend/internal/http/dto"
	"github.com/policy-oracle/backend/internal/models"
)

type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

type MetaStatus struct {
	ID          string   `json:"id"`
	Terminal    bool     `json:"terminal"`
	Transitions []string `json:"transitions"`
}

// escrowStatuses lists every status in lifecycle order.
var escrowStatuses = []models.EscrowStatus{
	models.EscrowStatusDraft,
	models.EscrowStatusSubmitted,
	models.EscrowStatusApproved,
	models.EscrowStatusOnChain,
	models.EscrowStatusExecuted,
	models.EscrowStatusCompleted,
	models.EscrowStatusCancelled,
	models.EscrowStatusExpired,
}

func (h *MetaHandler) GetEscrowStatuses(c *fiber.Ctx) error {
	out := make([]MetaStatus, 0, len(escrowStatuses))
	for _, s := range escrowStatuses {
		next := make([]string, 0, len(models.ValidEscrowTransitions[s]))
		for _, to := range models.ValidEscrowTransitions[s] {
			next = append(next, string(to))
		}
		sort.Strings(next)
		out = append(out, MetaStatus{ID: string(s), Terminal: s.IsTerminal(), Transitions: next})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}
