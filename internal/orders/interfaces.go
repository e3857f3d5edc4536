package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-payments/internal/gateways"
	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	"github.com/angelmondragon/storefront-payments/pkg/outbox"
)

// Repository persists the payment columns of orders and the stock counters
// they reserve.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByGatewayPayment(ctx context.Context, gateway, paymentID string) (*models.Order, error)
	// CompareAndSwap applies updates only while the order still holds the
	// observed status. It reports whether a row changed.
	CompareAndSwap(ctx context.Context, id uuid.UUID, observed enums.PaymentStatus, updates map[string]any) (bool, error)
	RestoreStock(ctx context.Context, stockID uuid.UUID, qty int) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AdapterResolver hands out the adapter registered for a gateway name.
type AdapterResolver interface {
	Resolve(name string) (gateways.Adapter, error)
}
