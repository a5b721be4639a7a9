package product

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
)

// VariantDTO is the catalog view of a purchasable size.
type VariantDTO struct {
	ID      uuid.UUID       `json:"id"`
	SizeML  int             `json:"size_ml"`
	Label   string          `json:"label"`
	Price   decimal.Decimal `json:"price"`
	Stock   int             `json:"stock"`
	InStock bool            `json:"in_stock"`
}

// ProductDetail is returned by catalog reads.
type ProductDetail struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Brand       string       `json:"brand"`
	Description *string      `json:"description,omitempty"`
	Images      []string     `json:"images"`
	Variants    []VariantDTO `json:"variants"`
}

func newProductDetail(p *models.Product) *ProductDetail {
	detail := &ProductDetail{
		ID:          p.ID,
		Name:        p.Name,
		Brand:       p.Brand,
		Description: p.Description,
		Images:      make([]string, 0, len(p.Images)),
		Variants:    make([]VariantDTO, 0, len(p.Variants)),
	}
	for _, img := range p.Images {
		detail.Images = append(detail.Images, img.URL)
	}
	for _, v := range p.Variants {
		detail.Variants = append(detail.Variants, VariantDTO{
			ID:      v.ID,
			SizeML:  v.SizeML,
			Label:   models.VariantLabel(p.Name, v.SizeML),
			Price:   v.Price,
			Stock:   v.Stock,
			InStock: v.Stock > 0,
		})
	}
	return detail
}
