package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultAddressCountry = "Japan"

// Address is a shipping address owned by a single customer.
type Address struct {
	ID           uuid.UUID   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerID   uuid.UUID   `gorm:"column:customer_id;type:uuid;not null" json:"customer_id"`
	RegionID     uuid.UUID   `gorm:"column:region_id;type:uuid;not null" json:"region_id"`
	PrefectureID uuid.UUID   `gorm:"column:prefecture_id;type:uuid;not null" json:"prefecture_id"`
	City         string      `gorm:"column:city;size:60;not null" json:"city"`
	PostalCode   string      `gorm:"column:postal_code;size:10;not null" json:"postal_code"`
	Line1        string      `gorm:"column:line1;not null" json:"line1"`
	Line2        *string     `gorm:"column:line2" json:"line2,omitempty"`
	Country      string      `gorm:"column:country;not null;default:'Japan'" json:"country"`
	Region       *Region     `gorm:"foreignKey:RegionID" json:"region,omitempty"`
	Prefecture   *Prefecture `gorm:"foreignKey:PrefectureID" json:"prefecture,omitempty"`
	CreatedAt    time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
