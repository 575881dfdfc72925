package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/app/repository"
	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
	"github.com/ManuelReschke/CoachFox/internal/pkg/usercontext"
)

// OrganizationController onboards tenants.
type OrganizationController struct {
	orgs    repository.OrganizationRepository
	service *billing.Service
	timeout time.Duration
}

func NewOrganizationController(orgs repository.OrganizationRepository, service *billing.Service, timeout time.Duration) *OrganizationController {
	return &OrganizationController{orgs: orgs, service: service, timeout: timeout}
}

type createOrganizationRequest struct {
	Name       string `json:"name"`
	OwnerEmail string `json:"owner_email"`
}

type organizationResponse struct {
	Organization *models.Organization       `json:"organization"`
	Billing      *models.OrganizationBilling `json:"billing"`
}

// HandleCreate creates an organization and starts its trial.
func (oc *OrganizationController) HandleCreate(c *fiber.Ctx) error {
	var req createOrganizationRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "malformed request body")
	}
	org := &models.Organization{
		Name:       strings.TrimSpace(req.Name),
		OwnerEmail: strings.TrimSpace(req.OwnerEmail),
	}
	if err := validateStruct(org); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, oc.timeout)
	defer cancel()

	if err := oc.orgs.Create(ctx, org); err != nil {
		return respondError(c, err)
	}
	rec, err := oc.service.StartTrial(ctx, org.ID, org.OwnerEmail)
	if err != nil {
		if derr := oc.orgs.Delete(ctx, org.ID); derr != nil {
			log.Errorf("[Billing] Failed to roll back organization %s: %v", org.ID, derr)
		}
		return respondError(c, err)
	}
	log.Infof("[Billing] Organization %s created by %s, trial until %v", org.ID, usercontext.GetActorID(c), rec.TrialEndsAt)
	return c.Status(fiber.StatusCreated).JSON(organizationResponse{Organization: org, Billing: rec})
}

func (oc *OrganizationController) HandleGet(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, oc.timeout)
	defer cancel()

	org, err := oc.orgs.GetByID(ctx, c.Params("organization_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(org)
}
