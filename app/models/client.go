package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Client is a coaching client managed by an organization. Only the fields
// needed for entitlement counting live here.
type Client struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrganizationID string         `gorm:"type:varchar(36);not null;index" json:"organization_id"`
	Name           string         `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=1,max=150"`
	Email          string         `gorm:"type:varchar(200);default:''" json:"email" validate:"omitempty,email"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Client) Validate() error {
	return validator.New().Struct(c)
}

// CountClientsByOrganization counts live (not soft-deleted) clients.
func CountClientsByOrganization(db *gorm.DB, organizationID string) (int64, error) {
	var count int64
	err := db.Model(&Client{}).Where("organization_id = ?", organizationID).Count(&count).Error
	return count, err
}
