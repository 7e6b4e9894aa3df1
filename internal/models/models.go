package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

// Order lifecycle statuses.
const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPicked         OrderStatus = "picked"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// IsValid reports whether the status is one of the known lifecycle statuses.
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPicked, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

// PaymentType is how a delivered order was settled at the door.
type PaymentType string

// Payment types recorded on the delivered transition.
const (
	PaymentCOD PaymentType = "cod"
	PaymentQR  PaymentType = "qr"
)

// IsValid reports whether the payment type is known.
func (p PaymentType) IsValid() bool {
	return p == PaymentCOD || p == PaymentQR
}

// Role identifies the kind of authenticated caller.
type Role string

// Caller roles.
const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleDelivery Role = "delivery"
)

// IsValid reports whether r is a known caller role.
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleDelivery:
		return true
	}
	return false
}

// User represents a customer or admin account.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Email     string         `gorm:"not null;uniqueIndex" json:"email"`
	Phone     string         `json:"phone"`
	Role      Role           `gorm:"not null;default:'customer'" json:"role"`
	PushToken *string        `json:"-"`
}

// DeliveryAgent represents a courier who can be assigned orders.
type DeliveryAgent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Phone     string         `gorm:"not null" json:"phone"`
	PushToken *string        `json:"-"`
	IsActive  bool           `gorm:"not null;default:true" json:"is_active"`
}

// Product represents a catalog item. Prices are integer minor-currency units.
type Product struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	Category    string         `gorm:"index" json:"category"`
	Price       int64          `gorm:"not null" json:"price"`
	Stock       int            `gorm:"not null;default:0" json:"stock"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
}

// Order represents one customer purchase. Orders are never hard-deleted.
type Order struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	OrderNumber     string         `gorm:"not null;uniqueIndex" json:"order_number"`
	CustomerID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer        *User          `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Status          OrderStatus    `gorm:"not null;default:'pending';index" json:"status"`
	AssignedAgentID *uuid.UUID     `gorm:"type:uuid;index" json:"assigned_agent_id,omitempty"`
	AssignedAgent   *DeliveryAgent `gorm:"foreignKey:AssignedAgentID" json:"assigned_agent,omitempty"`

	// Each stamped exactly once, when the corresponding transition applies.
	PickedAt         *time.Time `json:"picked_at,omitempty"`
	OutForDeliveryAt *time.Time `json:"out_for_delivery_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`

	TotalAmount   int64        `gorm:"not null" json:"total_amount"`
	DeliveryFee   int64        `gorm:"not null;default:0" json:"delivery_fee"`
	PaymentMethod string       `gorm:"not null;default:'cod'" json:"payment_method"`
	PaymentType   *PaymentType `json:"payment_type,omitempty"`
	Address       string       `json:"address"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	ProductID uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`
	Name      string    `gorm:"not null" json:"name"`
	UnitPrice int64     `gorm:"not null" json:"unit_price"`
	Quantity  int       `gorm:"not null" json:"quantity"`
}

// OrderEventKind classifies an order event.
type OrderEventKind string

// Order event kinds.
const (
	EventOrderCreated  OrderEventKind = "order_created"
	EventStatusChanged OrderEventKind = "status_changed"
	EventAgentAssigned OrderEventKind = "agent_assigned"
)

// OrderEvent is an audit/outbox row written in the same transaction as the
// order mutation it describes. The worker publishes and indexes unprocessed
// events after the fact; the API path attempts the same best-effort.
type OrderEvent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	OrderID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"order_id"`
	Kind        OrderEventKind `gorm:"not null" json:"kind"`
	FromStatus  OrderStatus    `json:"from_status"`
	ToStatus    OrderStatus    `json:"to_status"`
	ActorRole   Role           `json:"actor_role"`
	ActorID     uuid.UUID      `gorm:"type:uuid" json:"actor_id"`
	AgentID     *uuid.UUID     `gorm:"type:uuid" json:"agent_id,omitempty"`
	IsPublished bool           `gorm:"not null;default:false;index" json:"is_published"`
	IsIndexed   bool           `gorm:"not null;default:false;index" json:"is_indexed"`
}

// SetupModels configures GORM models and runs migrations.
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&DeliveryAgent{},
		&Product{},
		&Order{},
		&OrderItem{},
		&OrderEvent{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
