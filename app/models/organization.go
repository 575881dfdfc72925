package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization is the tenant and the billable unit.
type Organization struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	OwnerEmail string    `gorm:"type:varchar(200);not null" json:"owner_email" validate:"required,email"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

func (o *Organization) Validate() error {
	return validator.New().Struct(o)
}

func FindOrganizationByID(db *gorm.DB, id string) (*Organization, error) {
	var org Organization
	if err := db.Where("id = ?", id).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}
