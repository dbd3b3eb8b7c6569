package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/service"
	"github.com/vam12375/muying-mall-sub003/internal/web"
)

type OrderTransitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, target domain.OrderStatus, operator, reason string) (*domain.Order, error)
}

type PaymentTransitioner interface {
	Transition(ctx context.Context, paymentID uuid.UUID, target domain.PaymentStatus, operator, reason string) (*domain.Payment, error)
}

type RefundTransitioner interface {
	Transition(ctx context.Context, refundID uuid.UUID, target domain.RefundStatus, operator, reason string) (*domain.Refund, error)
}

// TransitionHandler is the internal state-machine API used by admin/ops
// tooling: request a transition, inspect the table, read the audit trail.
type TransitionHandler struct {
	orders   OrderTransitioner
	payments PaymentTransitioner
	refunds  RefundTransitioner
	reader   service.Reader
	validate *validator.Validate
}

func NewTransitionHandler(orders OrderTransitioner, payments PaymentTransitioner, refunds RefundTransitioner, reader service.Reader) *TransitionHandler {
	return &TransitionHandler{
		orders:   orders,
		payments: payments,
		refunds:  refunds,
		reader:   reader,
		validate: validator.New(),
	}
}

// Transition handles POST /:entity/:id/transition.
func (h *TransitionHandler) Transition(c *fiber.Ctx) error {
	entity := domain.EntityType(c.Params("entity"))
	if !entity.Valid() {
		return web.BadRequestResponse(c, "Unknown entity type", map[string]interface{}{
			"entity": c.Params("entity"),
		})
	}

	entityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return web.BadRequestResponse(c, "Invalid entity ID", map[string]interface{}{
			"id": c.Params("id"),
		})
	}

	var req TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return web.BadRequestResponse(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return web.BadRequestResponse(c, "Validation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	var result interface{}
	switch entity {
	case domain.EntityOrder:
		result, err = h.orders.Transition(c.Context(), entityID, domain.OrderStatus(req.Target), req.Operator, req.Reason)
	case domain.EntityPayment:
		result, err = h.payments.Transition(c.Context(), entityID, domain.PaymentStatus(req.Target), req.Operator, req.Reason)
	case domain.EntityRefund:
		result, err = h.refunds.Transition(c.Context(), entityID, domain.RefundStatus(req.Target), req.Operator, req.Reason)
	}
	if err != nil {
		return respondError(c, err)
	}
	return web.SuccessResponse(c, "Transition applied", result)
}

// NextStates handles GET /:entity/:id/next-states: the entity's current
// state plus every legal next state from the table.
func (h *TransitionHandler) NextStates(c *fiber.Ctx) error {
	entity := domain.EntityType(c.Params("entity"))
	if !entity.Valid() {
		return web.BadRequestResponse(c, "Unknown entity type", nil)
	}

	entityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return web.BadRequestResponse(c, "Invalid entity ID", nil)
	}

	var current string
	var next []string
	switch entity {
	case domain.EntityOrder:
		o, err := h.reader.GetOrder(c.Context(), entityID)
		if err != nil {
			return respondError(c, err)
		}
		current = string(o.Status)
		for _, s := range domain.OrderNextStates(o.Status) {
			next = append(next, string(s))
		}
	case domain.EntityPayment:
		p, err := h.reader.GetPayment(c.Context(), entityID)
		if err != nil {
			return respondError(c, err)
		}
		current = string(p.Status)
		for _, s := range domain.PaymentNextStates(p.Status) {
			next = append(next, string(s))
		}
	case domain.EntityRefund:
		r, err := h.reader.GetRefund(c.Context(), entityID)
		if err != nil {
			return respondError(c, err)
		}
		current = string(r.Status)
		for _, s := range domain.RefundNextStates(r.Status) {
			next = append(next, string(s))
		}
	}

	return web.SuccessResponse(c, "Next states", map[string]interface{}{
		"entity":      string(entity),
		"entity_id":   entityID,
		"current":     current,
		"next_states": next,
	})
}

// CanTransit handles GET /:entity/can-transit?current=&target=: a pure table
// lookup, no entity load.
func (h *TransitionHandler) CanTransit(c *fiber.Ctx) error {
	entity := domain.EntityType(c.Params("entity"))
	if !entity.Valid() {
		return web.BadRequestResponse(c, "Unknown entity type", nil)
	}

	current := c.Query("current")
	target := c.Query("target")
	if current == "" || target == "" {
		return web.BadRequestResponse(c, "current and target query parameters are required", nil)
	}

	var allowed bool
	switch entity {
	case domain.EntityOrder:
		allowed = domain.CanTransitOrder(domain.OrderStatus(current), domain.OrderStatus(target))
	case domain.EntityPayment:
		allowed = domain.CanTransitPayment(domain.PaymentStatus(current), domain.PaymentStatus(target))
	case domain.EntityRefund:
		allowed = domain.CanTransitRefund(domain.RefundStatus(current), domain.RefundStatus(target))
	}

	return web.SuccessResponse(c, "Transition check", map[string]interface{}{
		"entity":  string(entity),
		"current": current,
		"target":  target,
		"allowed": allowed,
	})
}

// History handles GET /:entity/:id/history: the append-only StateLog rows,
// newest first.
func (h *TransitionHandler) History(c *fiber.Ctx) error {
	entity := domain.EntityType(c.Params("entity"))
	if !entity.Valid() {
		return web.BadRequestResponse(c, "Unknown entity type", nil)
	}

	entityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return web.BadRequestResponse(c, "Invalid entity ID", nil)
	}

	logs, err := h.reader.ListStateLogs(c.Context(), entity, entityID)
	if err != nil {
		return respondError(c, err)
	}
	return web.SuccessResponse(c, "State history", toStateLogResponses(logs))
}
