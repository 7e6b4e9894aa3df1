package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/freshcart/internal/models"
	"example.com/freshcart/internal/repository"
)

func TestUpdateProductPartialEdit(t *testing.T) {
	products := new(MockProductRepository)
	s := NewProductService(products)

	id := uuid.New()
	products.On("GetByID", mock.Anything, id).Return(&models.Product{
		ID:       id,
		Name:     "Sukuma wiki",
		Category: "vegetables",
		Price:    4500,
		IsActive: true,
	}, nil)
	products.On("Update", mock.Anything, mock.MatchedBy(func(p *models.Product) bool {
		return p.ID == id && p.Name == "Sukuma wiki" && p.Price == 5000 && p.IsActive
	})).Return(&models.Product{
		ID:       id,
		Name:     "Sukuma wiki",
		Category: "vegetables",
		Price:    5000,
		IsActive: true,
	}, nil)

	price := int64(5000)
	updated, err := s.UpdateProduct(context.Background(), Actor{ID: uuid.New(), Role: models.RoleAdmin}, id, ProductUpdate{Price: &price})

	require.NoError(t, err)
	require.Equal(t, int64(5000), updated.Price)
	require.Equal(t, "Sukuma wiki", updated.Name)
	products.AssertExpectations(t)
}

func TestUpdateProductErrors(t *testing.T) {
	products := new(MockProductRepository)
	s := NewProductService(products)

	name := "Managu"
	_, err := s.UpdateProduct(context.Background(), Actor{ID: uuid.New(), Role: models.RoleCustomer}, uuid.New(), ProductUpdate{Name: &name})
	require.ErrorIs(t, err, ErrUnauthorized)

	missing := uuid.New()
	products.On("GetByID", mock.Anything, missing).Return(nil, repository.ErrNotFound)
	_, err = s.UpdateProduct(context.Background(), Actor{ID: uuid.New(), Role: models.RoleAdmin}, missing, ProductUpdate{Name: &name})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestSetProductStock(t *testing.T) {
	products := new(MockProductRepository)
	s := NewProductService(products)

	id := uuid.New()
	products.On("SetStock", mock.Anything, id, 25).Return(nil)
	products.On("GetByID", mock.Anything, id).Return(&models.Product{ID: id, Stock: 25}, nil)

	updated, err := s.SetProductStock(context.Background(), Actor{ID: uuid.New(), Role: models.RoleAdmin}, id, 25)

	require.NoError(t, err)
	require.Equal(t, 25, updated.Stock)
	products.AssertExpectations(t)
}

func TestSetProductStockErrors(t *testing.T) {
	products := new(MockProductRepository)
	s := NewProductService(products)

	_, err := s.SetProductStock(context.Background(), Actor{ID: uuid.New(), Role: models.RoleDelivery}, uuid.New(), 5)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.SetProductStock(context.Background(), Actor{ID: uuid.New(), Role: models.RoleAdmin}, uuid.New(), -1)
	require.ErrorIs(t, err, ErrInvalidStock)

	missing := uuid.New()
	products.On("SetStock", mock.Anything, missing, 5).Return(repository.ErrNotFound)
	_, err = s.SetProductStock(context.Background(), Actor{ID: uuid.New(), Role: models.RoleAdmin}, missing, 5)
	require.ErrorIs(t, err, ErrProductNotFound)
}
