package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-payments/pkg/enums"
)

// Customer is either a registered account or a guest created at checkout.
// Guests are unique per email through the (email, type) index.
type Customer struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type         enums.CustomerType `gorm:"column:type;type:customer_type;not null"`
	Name         string             `gorm:"column:name;not null"`
	Email        string             `gorm:"column:email;not null"`
	Mobile       *string            `gorm:"column:mobile"`
	PasswordHash string             `gorm:"column:password_hash;not null"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
