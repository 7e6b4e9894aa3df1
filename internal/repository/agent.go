package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/freshcart/internal/models"
)

// AgentRepository defines the interface for delivery agent persistence.
type AgentRepository interface {
	Create(ctx context.Context, agent *models.DeliveryAgent) (*models.DeliveryAgent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.DeliveryAgent, error)
	ListActive(ctx context.Context) ([]*models.DeliveryAgent, error)
	SetPushToken(ctx context.Context, id uuid.UUID, token string) error
}

type agentRepository struct {
	db *gorm.DB
}

// NewAgentRepository creates a new delivery agent repository.
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) Create(ctx context.Context, agent *models.DeliveryAgent) (*models.DeliveryAgent, error) {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(agent).Error; err != nil {
		return nil, err
	}
	return agent, nil
}

func (r *agentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DeliveryAgent, error) {
	var agent models.DeliveryAgent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&agent).Error
	if err != nil {
		if isRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) ListActive(ctx context.Context) ([]*models.DeliveryAgent, error) {
	var agents []*models.DeliveryAgent
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&agents).Error
	if err != nil {
		return nil, err
	}
	return agents, nil
}

func (r *agentRepository) SetPushToken(ctx context.Context, id uuid.UUID, token string) error {
	res := r.db.WithContext(ctx).
		Model(&models.DeliveryAgent{}).
		Where("id = ?", id).
		Update("push_token", token)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
