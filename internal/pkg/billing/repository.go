package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CoachFox/app/models"
)

// Store persists billing records and the webhook event log.
//
// Save is a compare-and-swap on Version: it fails with ErrConflict when the
// stored version no longer matches rec.Version and bumps rec.Version on success.
type Store interface {
	Get(ctx context.Context, organizationID string) (*models.OrganizationBilling, error)
	FindByExternalCustomerID(ctx context.Context, customerID string) (*models.OrganizationBilling, error)
	Create(ctx context.Context, rec *models.OrganizationBilling) error
	Save(ctx context.Context, rec *models.OrganizationBilling) error
	RecordWebhookEvent(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, outcome, organizationID, processingError string) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a billing store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (r *gormStore) Get(ctx context.Context, organizationID string) (*models.OrganizationBilling, error) {
	var rec models.OrganizationBilling
	err := r.db.WithContext(ctx).Where("organization_id = ?", organizationID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormStore) FindByExternalCustomerID(ctx context.Context, customerID string) (*models.OrganizationBilling, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	var rec models.OrganizationBilling
	err := r.db.WithContext(ctx).Where("external_customer_id = ?", customerID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new record. An existing record for the organization yields ErrConflict.
func (r *gormStore) Create(ctx context.Context, rec *models.OrganizationBilling) error {
	if rec.Version == 0 {
		rec.Version = 1
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoNothing: true,
	}).Create(rec)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *gormStore) Save(ctx context.Context, rec *models.OrganizationBilling) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	var trialEndsAt interface{}
	if rec.TrialEndsAt != nil {
		trialEndsAt = *rec.TrialEndsAt
	}
	updates := map[string]interface{}{
		"subscription_status":      rec.SubscriptionStatus,
		"subscription_tier":        rec.SubscriptionTier,
		"client_limit":             rec.ClientLimit,
		"external_customer_id":     rec.ExternalCustomerID,
		"external_subscription_id": rec.ExternalSubscriptionID,
		"billing_email":            rec.BillingEmail,
		"trial_ends_at":            trialEndsAt,
		"version":                  rec.Version + 1,
		"updated_at":               rec.UpdatedAt,
	}
	tx := r.db.WithContext(ctx).Model(&models.OrganizationBilling{}).
		Where("organization_id = ? AND version = ?", rec.OrganizationID, rec.Version).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.OrganizationBilling{}).
			Where("organization_id = ?", rec.OrganizationID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	rec.Version++
	return nil
}

func (r *gormStore) RecordWebhookEvent(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormStore) MarkWebhookProcessed(ctx context.Context, id uint, outcome, organizationID, processingError string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"outcome":          outcome,
		"processing_error": processingError,
		"attempts":         gorm.Expr("attempts + 1"),
	}
	if organizationID != "" {
		updates["organization_id"] = organizationID
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
