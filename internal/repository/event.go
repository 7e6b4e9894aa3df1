package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/freshcart/internal/models"
)

// EventRepository defines the interface for the order event outbox.
type EventRepository interface {
	FindUnpublished(ctx context.Context, limit int) ([]*models.OrderEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	FindUnindexed(ctx context.Context, limit int) ([]*models.OrderEvent, error)
	MarkIndexed(ctx context.Context, id uuid.UUID) error
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.OrderEvent, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new order event repository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) FindUnpublished(ctx context.Context, limit int) ([]*models.OrderEvent, error) {
	var events []*models.OrderEvent
	q := r.db.WithContext(ctx).
		Where("is_published = ?", false).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderEvent{}).
		Where("id = ?", id).
		Update("is_published", true).Error
}

func (r *eventRepository) FindUnindexed(ctx context.Context, limit int) ([]*models.OrderEvent, error) {
	var events []*models.OrderEvent
	q := r.db.WithContext(ctx).
		Where("is_indexed = ?", false).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) MarkIndexed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderEvent{}).
		Where("id = ?", id).
		Update("is_indexed", true).Error
}

func (r *eventRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.OrderEvent, error) {
	var events []*models.OrderEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
