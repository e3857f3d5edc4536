package identity

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
)

// ResolveInput is the raw checkout identity and shipping address.
type ResolveInput struct {
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	AddressID    *uuid.UUID `json:"address_id,omitempty"`
	Name         string     `json:"name" validate:"required_without=UserID,omitempty,max=120"`
	Email        string     `json:"email" validate:"required_without=UserID,omitempty,email"`
	Mobile       string     `json:"mobile" validate:"required_without=UserID,omitempty,phone"`
	RegionID     uuid.UUID  `json:"region_id" validate:"required"`
	PrefectureID uuid.UUID  `json:"prefecture_id" validate:"required"`
	City         string     `json:"city" validate:"required,max=60"`
	PostalCode   string     `json:"postal_code" validate:"required,max=10"`
	Line1        string     `json:"line1" validate:"required,max=255"`
	Line2        *string    `json:"line2,omitempty" validate:"omitempty,max=255"`

	// DeviceID scopes the guest token. A fresh id is generated when empty.
	DeviceID string `json:"-"`
	// Subject is the customer id of the bearer token, when one was presented.
	Subject *uuid.UUID `json:"-"`
}

// CustomerView is the public projection of the resolved customer.
type CustomerView struct {
	ID     uuid.UUID          `json:"id"`
	Name   string             `json:"name"`
	Email  string             `json:"email"`
	Mobile *string            `json:"mobile,omitempty"`
	Type   enums.CustomerType `json:"type"`
	Token  string             `json:"token,omitempty"`
}

// ResolveResult pairs the shipping address with the customer it belongs to.
type ResolveResult struct {
	Address *models.Address `json:"address"`
	User    CustomerView    `json:"user"`
}

func newCustomerView(c *models.Customer) CustomerView {
	return CustomerView{
		ID:     c.ID,
		Name:   c.Name,
		Email:  c.Email,
		Mobile: c.Mobile,
		Type:   c.Type,
	}
}
