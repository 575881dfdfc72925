package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CoachFox/app/models"
)

type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new client repository instance
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Create(ctx context.Context, client *models.Client) error {
	return r.db.WithContext(ctx).Create(client).Error
}

// CreateWithinLimit inserts client while holding a row lock on its
// organization. allow sees the live client count read in the same
// transaction, so concurrent creates for one organization run one at a time.
func (r *clientRepository) CreateWithinLimit(ctx context.Context, client *models.Client, allow func(ctx context.Context, count int64) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org models.Organization
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", client.OrganizationID).First(&org).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrganizationNotFound
		}
		if err != nil {
			return err
		}

		count, err := models.CountClientsByOrganization(tx, client.OrganizationID)
		if err != nil {
			return err
		}
		if err := allow(ctx, count); err != nil {
			return err
		}
		return tx.Create(client).Error
	})
}

func (r *clientRepository) ListByOrganization(ctx context.Context, organizationID string, offset, limit int) ([]models.Client, error) {
	var clients []models.Client
	err := r.db.WithContext(ctx).Where("organization_id = ?", organizationID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&clients).Error
	return clients, err
}

// CountClients counts the live clients of an organization. It satisfies
// entitlements.ClientCounter.
func (r *clientRepository) CountClients(ctx context.Context, organizationID string) (int64, error) {
	return models.CountClientsByOrganization(r.db.WithContext(ctx), organizationID)
}
