package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
)

// ItemView is a cart line joined with the variant and product data needed to
// display and price it.
type ItemView struct {
	ItemID      uuid.UUID       `json:"item_id"`
	VariantID   uuid.UUID       `json:"variant_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Brand       string          `json:"brand"`
	SizeML      int             `json:"size_ml"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Stock       int             `json:"stock"`
	ImageURL    *string         `json:"image_url,omitempty"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Label renders the "<name> (<size>ml)" product label.
func (v ItemView) Label() string {
	return models.VariantLabel(v.ProductName, v.SizeML)
}

// View is the cart as shown to its owner.
type View struct {
	CartID     uuid.UUID       `json:"cart_id"`
	Items      []ItemView      `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TotalItems int             `json:"total_items"`
}

func newView(cartID uuid.UUID, items []ItemView) *View {
	view := &View{CartID: cartID, Items: items, Subtotal: decimal.Zero}
	if view.Items == nil {
		view.Items = []ItemView{}
	}
	for _, item := range view.Items {
		view.Subtotal = view.Subtotal.Add(item.LineTotal)
		view.TotalItems += item.Quantity
	}
	view.Subtotal = view.Subtotal.Round(2)
	return view
}

// AddItemInput is the payload for adding a variant to the cart.
type AddItemInput struct {
	VariantID uuid.UUID
	Quantity  int
}
