package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/app/repository"
	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
)

// ClientController manages coaching clients behind the entitlement gate.
type ClientController struct {
	clients repository.ClientRepository
	gate    *entitlements.Gate
	timeout time.Duration
}

func NewClientController(clients repository.ClientRepository, gate *entitlements.Gate, timeout time.Duration) *ClientController {
	return &ClientController{clients: clients, gate: gate, timeout: timeout}
}

type createClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// HandleCreate adds a client if the organization's plan allows another one.
func (cc *ClientController) HandleCreate(c *fiber.Ctx) error {
	var req createClientRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "malformed request body")
	}
	client := &models.Client{
		OrganizationID: c.Params("organization_id"),
		Name:           strings.TrimSpace(req.Name),
		Email:          strings.TrimSpace(req.Email),
	}
	if err := validateStruct(client); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, cc.timeout)
	defer cancel()

	err := cc.clients.CreateWithinLimit(ctx, client, func(ctx context.Context, count int64) error {
		return cc.gate.CheckClientCount(ctx, client.OrganizationID, count)
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(client)
}

func (cc *ClientController) HandleList(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	ctx, cancel := requestContext(c, cc.timeout)
	defer cancel()

	clients, err := cc.clients.ListByOrganization(ctx, c.Params("organization_id"), offset, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"clients": clients})
}
