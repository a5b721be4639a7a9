package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	product "github.com/angelmondragon/scentmarket-backend/internal/products"
	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the shopper-facing cart operations.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*View, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*View, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*View, error)
}

type service struct {
	repo     CartRepository
	variants product.VariantRepository
	tx       txRunner
}

// NewService builds a cart service.
func NewService(repo CartRepository, variants product.VariantRepository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if variants == nil {
		return nil, fmt.Errorf("variant repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, variants: variants, tx: tx}, nil
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		v, err := s.loadView(ctx, s.repo.WithTx(tx), userID)
		view = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.VariantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant_id is required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.repo.WithTx(tx)
		variants := s.variants.WithTx(tx)

		cart, err := carts.FindOrCreate(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		variant, err := variants.FindVariant(ctx, input.VariantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}

		existing := 0
		line, err := carts.FindItemByVariant(ctx, cart.ID, variant.ID)
		switch {
		case err == nil:
			existing = line.Quantity
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		if existing+input.Quantity > variant.Stock {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "not enough stock for requested quantity").
				WithDetails(map[string]any{
					"variant_id": variant.ID,
					"requested":  existing + input.Quantity,
					"available":  variant.Stock,
				})
		}

		if _, err := carts.AddItem(ctx, cart.ID, variant.ID, input.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
		}

		view, err = s.loadView(ctx, carts, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*View, error) {
	return s.mutateOwnedItem(ctx, userID, itemID, func(carts CartRepository) error {
		return carts.UpdateQuantity(ctx, itemID, qty)
	})
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*View, error) {
	return s.mutateOwnedItem(ctx, userID, itemID, func(carts CartRepository) error {
		return carts.RemoveItem(ctx, itemID)
	})
}

func (s *service) mutateOwnedItem(ctx context.Context, userID, itemID uuid.UUID, mutate func(CartRepository) error) (*View, error) {
	if userID == uuid.Nil || itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and item id are required")
	}

	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.repo.WithTx(tx)
		if err := ensureOwner(ctx, carts, itemID, userID); err != nil {
			return err
		}
		if err := mutate(carts); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		v, err := s.loadView(ctx, carts, userID)
		view = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func ensureOwner(ctx context.Context, carts CartRepository, itemID, userID uuid.UUID) error {
	if _, err := carts.FindItem(ctx, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	owned, err := carts.IsOwner(ctx, itemID, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check cart item owner")
	}
	if !owned {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cart item belongs to another user")
	}
	return nil
}

func (s *service) loadView(ctx context.Context, carts CartRepository, userID uuid.UUID) (*View, error) {
	cart, err := carts.FindOrCreate(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	items, err := carts.ListContents(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
	}
	return newView(cart.ID, items), nil
}
