package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
)

type productLoader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service exposes catalog reads.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductDetail, error)
}

type service struct {
	repo productLoader
}

// NewService builds the catalog service.
func NewService(repo productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDetail, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	p, err := s.repo.FindProduct(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !p.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return newProductDetail(p), nil
}
