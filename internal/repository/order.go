package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/freshcart/internal/models"
)

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status  models.OrderStatus
	AgentID *uuid.UUID
	Limit   int
	Offset  int
}

// OrderRepository defines the interface for order persistence.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByOrderNumber(ctx context.Context, number string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*models.Order, error)
	// UpdateAtomic loads the order under a row lock, applies mutate, and
	// persists the order together with the event mutate returns (if any) in a
	// single transaction. If mutate returns an error nothing is written.
	UpdateAtomic(ctx context.Context, id uuid.UUID, mutate func(order *models.Order) (*models.OrderEvent, error)) (*models.Order, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Customer").
		Preload("AssignedAgent").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if isRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByOrderNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_number = ?", number).
		First(&order).Error
	if err != nil {
		if isRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]*models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Items")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.AgentID != nil {
		q = q.Where("assigned_agent_id = ?", *filter.AgentID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var orders []*models.Order
	if err := q.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) UpdateAtomic(ctx context.Context, id uuid.UUID, mutate func(order *models.Order) (*models.OrderEvent, error)) (*models.Order, error) {
	var updated *models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&order).Error
		if err != nil {
			if isRecordNotFoundError(err) {
				return ErrNotFound
			}
			return err
		}

		event, err := mutate(&order)
		if err == ErrUnchanged {
			updated = &order
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Save(&order).Error; err != nil {
			return err
		}
		if event != nil {
			if event.ID == uuid.Nil {
				event.ID = uuid.New()
			}
			event.OrderID = order.ID
			if err := tx.Create(event).Error; err != nil {
				return err
			}
		}
		updated = &order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
