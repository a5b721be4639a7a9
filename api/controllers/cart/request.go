package cart

import (
	"github.com/google/uuid"

	cartsvc "github.com/angelmondragon/scentmarket-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
)

type addItemRequest struct {
	VariantID string `json:"variant_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=99"`
}

func (r addItemRequest) toInput() (cartsvc.AddItemInput, error) {
	variantID, err := uuid.Parse(r.VariantID)
	if err != nil {
		return cartsvc.AddItemInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant_id")
	}
	return cartsvc.AddItemInput{VariantID: variantID, Quantity: r.Quantity}, nil
}

// A quantity of zero removes the line.
type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=99"`
}
