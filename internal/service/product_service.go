package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/freshcart/internal/models"
	"example.com/freshcart/internal/repository"
)

// ProductService exposes the thin catalog operations.
type ProductService struct {
	products repository.ProductRepository
}

// NewProductService creates a new product service.
func NewProductService(products repository.ProductRepository) *ProductService {
	return &ProductService{products: products}
}

// ListProducts returns active products matching the filter.
func (s *ProductService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]*models.Product, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.products.List(ctx, filter)
}

// GetProduct returns a single product.
func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

// CreateProduct adds a catalog item (admin only).
func (s *ProductService) CreateProduct(ctx context.Context, actor Actor, product *models.Product) (*models.Product, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrUnauthorized
	}
	product.IsActive = true
	return s.products.Create(ctx, product)
}

// ProductUpdate carries the editable catalog fields. Nil fields are left
// unchanged.
type ProductUpdate struct {
	Name        *string
	Description *string
	Category    *string
	Price       *int64
	IsActive    *bool
}

// UpdateProduct edits a catalog item (admin only). Stock is adjusted through
// SetProductStock, not here.
func (s *ProductService) UpdateProduct(ctx context.Context, actor Actor, id uuid.UUID, update ProductUpdate) (*models.Product, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrUnauthorized
	}

	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	if update.Name != nil {
		product.Name = *update.Name
	}
	if update.Description != nil {
		product.Description = *update.Description
	}
	if update.Category != nil {
		product.Category = *update.Category
	}
	if update.Price != nil {
		product.Price = *update.Price
	}
	if update.IsActive != nil {
		product.IsActive = *update.IsActive
	}

	updated, err := s.products.Update(ctx, product)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return updated, nil
}

// SetProductStock overwrites a product's stock level (admin only). Checkout
// decrements go through the order flow; this is the correction endpoint.
func (s *ProductService) SetProductStock(ctx context.Context, actor Actor, id uuid.UUID, stock int) (*models.Product, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrUnauthorized
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}

	if err := s.products.SetStock(ctx, id, stock); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return s.products.GetByID(ctx, id)
}
