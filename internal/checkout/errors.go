package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	dbpkg "github.com/angelmondragon/scentmarket-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
)

// ErrEmptyCart is returned when the user's cart has no lines.
var ErrEmptyCart = errors.New("cart is empty")

// InsufficientStockError names the first line whose locked stock could not
// cover the requested quantity.
type InsufficientStockError struct {
	ProductLabel string
	VariantID    uuid.UUID
	Requested    int
	Available    int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductLabel, e.Requested, e.Available)
}

// Persistence failure kinds.
const (
	KindLockTimeout   = "lock_timeout"
	KindSerialization = "serialization"
	KindCanceled      = "canceled"
	KindStorage       = "storage"
)

// PersistenceError wraps any storage failure hit while placing an order.
// It never means "out of stock".
type PersistenceError struct {
	Op   string
	Kind string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkout %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceFailure(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case dbpkg.IsLockTimeout(err):
		return KindLockTimeout
	case dbpkg.IsSerializationFailure(err):
		return KindSerialization
	default:
		return KindStorage
	}
}

// settled keeps the engine's own failures and turns anything else the
// transaction returned (begin, commit, rollback) into a PersistenceError.
func settled(err error) error {
	var stockErr *InsufficientStockError
	var persistErr *PersistenceError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEmptyCart), errors.As(err, &stockErr), errors.As(err, &persistErr), pkgerrors.As(err) != nil:
		return err
	default:
		return persistenceFailure("transaction", err)
	}
}

// toAPIError maps the engine's failure types onto coded errors while keeping
// them reachable through errors.Is / errors.As.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEmptyCart) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cart is empty")
	}
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return pkgerrors.Wrap(pkgerrors.CodeOutOfStock, err, "insufficient stock for "+stockErr.ProductLabel).
			WithDetails(map[string]any{
				"product_label": stockErr.ProductLabel,
				"variant_id":    stockErr.VariantID,
				"requested":     stockErr.Requested,
				"available":     stockErr.Available,
			})
	}
	var persistErr *PersistenceError
	if errors.As(err, &persistErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout could not be completed")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, persistenceFailure("transaction", err), "checkout could not be completed")
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.CheckoutOutcomeSuccess
	}
	var stockErr *InsufficientStockError
	var persistErr *PersistenceError
	switch {
	case errors.Is(err, ErrEmptyCart):
		return metrics.CheckoutOutcomeEmptyCart
	case errors.As(err, &stockErr):
		return metrics.CheckoutOutcomeInsufficientStock
	case errors.As(err, &persistErr):
		return metrics.CheckoutOutcomePersistenceError
	default:
		return metrics.CheckoutOutcomeInvalid
	}
}
