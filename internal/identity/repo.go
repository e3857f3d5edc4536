package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
)

// Repository exposes customer and address persistence for checkout identity.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindCustomer loads a customer of the given type by id.
func (r *Repository) FindCustomer(ctx context.Context, id uuid.UUID, typ enums.CustomerType) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("id = ? AND type = ?", id, typ).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindCustomerByEmail matches emails case-insensitively within one type.
func (r *Repository) FindCustomerByEmail(ctx context.Context, email string, typ enums.CustomerType) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("lower(email) = ? AND type = ?", strings.ToLower(strings.TrimSpace(email)), typ).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCustomer inserts the customer and fills its id.
func (r *Repository) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(customer).Error
}

// UpdateCustomer applies column updates to a customer.
func (r *Repository) UpdateCustomer(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// RegionExists reports whether the region id is known.
func (r *Repository) RegionExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Region{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// FindPrefecture loads a prefecture by id.
func (r *Repository) FindPrefecture(ctx context.Context, id uuid.UUID) (*models.Prefecture, error) {
	var prefecture models.Prefecture
	if err := r.db.WithContext(ctx).First(&prefecture, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &prefecture, nil
}

// FindOwnedAddress loads an address only when customerID owns it.
func (r *Repository) FindOwnedAddress(ctx context.Context, addressID, customerID uuid.UUID) (*models.Address, error) {
	var address models.Address
	err := r.db.WithContext(ctx).
		Where("id = ? AND customer_id = ?", addressID, customerID).
		First(&address).Error
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// CreateAddress inserts the address and fills its id.
func (r *Repository) CreateAddress(ctx context.Context, address *models.Address) error {
	if address.ID == uuid.Nil {
		address.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Region", "Prefecture").Create(address).Error
}

// UpdateAddress rewrites the editable columns of an owned address.
func (r *Repository) UpdateAddress(ctx context.Context, id, customerID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Address{}).
		Where("id = ? AND customer_id = ?", id, customerID).
		Updates(updates).Error
}

// LoadAddress returns the address with its region and prefecture attached.
func (r *Repository) LoadAddress(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	var address models.Address
	err := r.db.WithContext(ctx).
		Preload("Region").
		Preload("Prefecture").
		First(&address, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &address, nil
}
