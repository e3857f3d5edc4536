package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/metrics"
)

var (
	// ErrIllegalTransition marks a target status the table does not allow.
	ErrIllegalTransition = errors.New("orders: illegal payment status transition")
	// ErrStaleStatus marks a compare-and-swap lost to a concurrent writer.
	ErrStaleStatus = errors.New("orders: payment status changed concurrently")
)

// FAILED and REFUNDED have no outgoing edges.
var allowedTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending: {
		enums.PaymentStatusInitiated,
		enums.PaymentStatusCompleted,
		enums.PaymentStatusFailed,
	},
	enums.PaymentStatusInitiated: {
		enums.PaymentStatusPending,
		enums.PaymentStatusCompleted,
		enums.PaymentStatusFailed,
	},
	enums.PaymentStatusCompleted: {
		enums.PaymentStatusRefunded,
		enums.PaymentStatusPartiallyRefunded,
	},
	enums.PaymentStatusPartiallyRefunded: {
		enums.PaymentStatusPartiallyRefunded,
		enums.PaymentStatusRefunded,
	},
}

// CanTransition reports whether an order may move from one payment status to another.
func CanTransition(from, to enums.PaymentStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(status enums.PaymentStatus) bool {
	return len(allowedTransitions[status]) == 0
}

// Transitioner is the single write path for payment status changes. Every
// caller (checkout, status updates, polls, webhooks, refunds) goes through it.
type Transitioner struct {
	repo    Repository
	metrics *metrics.TransitionMetrics
}

// NewTransitioner builds a Transitioner. metrics may be nil.
func NewTransitioner(repo Repository, m *metrics.TransitionMetrics) (*Transitioner, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &Transitioner{repo: repo, metrics: m}, nil
}

// Apply moves order to the target status inside tx using a compare-and-swap
// on the status held by order. Columns that follow from the target status are
// written with it and extra overrides them. A self-transition the table does
// not list is a no-op, unless extra carries columns, which are then written
// under the same compare-and-swap. On a write order is reloaded. Apply does
// not count the transition; see Committed.
func (t *Transitioner) Apply(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.PaymentStatus, extra map[string]any) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for status transition")
	}
	from := order.PaymentStatus
	rewrite := from == to && !CanTransition(from, to)
	if rewrite && len(extra) == 0 {
		return false, nil
	}
	if !rewrite && !CanTransition(from, to) {
		return false, pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrIllegalTransition,
			fmt.Sprintf("payment status cannot move from %s to %s", from, to)).
			WithDetails(map[string]any{"order_id": order.ID.String(), "from": from, "to": to})
	}

	updates := map[string]any{}
	if !rewrite {
		updates = derivedColumns(order, to)
	}
	for column, value := range extra {
		updates[column] = value
	}
	updates["payment_status"] = to

	repo := t.repo.WithTx(tx)
	swapped, err := repo.CompareAndSwap(ctx, order.ID, from, updates)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment status")
	}
	if !swapped {
		return false, pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrStaleStatus, "order payment status changed concurrently").
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}

	// Only the writer that won the swap gives the stock back.
	if to == enums.PaymentStatusFailed && from != to {
		for _, item := range order.Items {
			if err := repo.RestoreStock(ctx, item.StockID, item.UnitQuantity); err != nil {
				return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
			}
		}
	}

	fresh, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	*order = *fresh
	return true, nil
}

// Committed counts an applied transition. Call it once the transaction that
// ran Apply has committed; rewrites of the current status are not counted.
func (t *Transitioner) Committed(from, to enums.PaymentStatus) {
	if from == to && !CanTransition(from, to) {
		return
	}
	t.metrics.IncTransition(from.String(), to.String())
}

func derivedColumns(order *models.Order, to enums.PaymentStatus) map[string]any {
	updates := map[string]any{}
	switch to {
	case enums.PaymentStatusCompleted:
		updates["paid_amount"] = order.DuePaymentAmount
		updates["due_payment_amount"] = decimal.Zero
	case enums.PaymentStatusFailed:
		updates["paid_amount"] = decimal.Zero
		updates["due_payment_amount"] = order.Total
	}
	return updates
}
