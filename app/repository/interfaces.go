package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
)

// OrganizationRepository defines the interface for organization database operations
type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	Delete(ctx context.Context, id string) error
}

// ClientRepository defines the interface for client database operations
type ClientRepository interface {
	Create(ctx context.Context, client *models.Client) error
	CreateWithinLimit(ctx context.Context, client *models.Client, allow func(ctx context.Context, count int64) error) error
	ListByOrganization(ctx context.Context, organizationID string, offset, limit int) ([]models.Client, error)
	CountClients(ctx context.Context, organizationID string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Organization OrganizationRepository
	Client       ClientRepository
	Billing      billing.Store
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Organization: NewOrganizationRepository(db),
		Client:       NewClientRepository(db),
		Billing:      billing.NewStore(db),
	}
}
