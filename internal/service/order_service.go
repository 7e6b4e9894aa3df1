// Package service holds the order lifecycle rules: which status transitions
// are legal, who may trigger them, and what side effects follow a committed
// change. It is the single writer of order rows.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"example.com/freshcart/internal/cache"
	"example.com/freshcart/internal/messaging"
	"example.com/freshcart/internal/metrics"
	"example.com/freshcart/internal/models"
	"example.com/freshcart/internal/notify"
	"example.com/freshcart/internal/repository"
	"example.com/freshcart/internal/search"
)

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

// OrderNotifier dispatches a notification event. *notify.Notifier satisfies it.
type OrderNotifier interface {
	Notify(ctx context.Context, ev notify.Event)
}

type edge struct {
	from models.OrderStatus
	to   models.OrderStatus
}

// legalTransitions is the complete edge list of the order state machine,
// mapped to the roles allowed to trigger each edge.
var legalTransitions = map[edge][]models.Role{
	{models.StatusPending, models.StatusConfirmed}:        {models.RoleAdmin},
	{models.StatusPending, models.StatusCancelled}:        {models.RoleAdmin},
	{models.StatusConfirmed, models.StatusCancelled}:      {models.RoleAdmin},
	{models.StatusConfirmed, models.StatusPicked}:         {models.RoleDelivery},
	{models.StatusConfirmed, models.StatusOutForDelivery}: {models.RoleDelivery},
	{models.StatusPicked, models.StatusOutForDelivery}:    {models.RoleDelivery},
	{models.StatusOutForDelivery, models.StatusDelivered}: {models.RoleDelivery},
}

// OrderService orchestrates order lifecycle, assignment and checkout.
type OrderService struct {
	orders   repository.OrderRepository
	agents   repository.AgentRepository
	products repository.ProductRepository
	users    repository.UserRepository
	events   repository.EventRepository

	cache    *cache.RedisCache
	elastic  *search.ElasticClient
	bus      messaging.Client
	notifier OrderNotifier
	metrics  *metrics.Metrics

	trackingURL   string
	effectTimeout time.Duration
	notifyTimeout time.Duration
	sf            singleflight.Group

	// detach runs side effects after a committed write. Tests replace it to
	// run effects synchronously.
	detach func(fn func())
}

// NewOrderService creates a new order service. cache, elastic, bus, notifier
// and metrics may be nil; missing collaborators degrade to no-ops.
func NewOrderService(
	orders repository.OrderRepository,
	agents repository.AgentRepository,
	products repository.ProductRepository,
	users repository.UserRepository,
	events repository.EventRepository,
	redisCache *cache.RedisCache,
	elastic *search.ElasticClient,
	bus messaging.Client,
	notifier OrderNotifier,
	m *metrics.Metrics,
	trackingURL string,
) *OrderService {
	s := &OrderService{
		orders:        orders,
		agents:        agents,
		products:      products,
		users:         users,
		events:        events,
		cache:         redisCache,
		elastic:       elastic,
		bus:           bus,
		notifier:      notifier,
		metrics:       m,
		trackingURL:   trackingURL,
		effectTimeout: 30 * time.Second,
		// Must exceed the cascade's worst case: every push attempt timing
		// out, both backoffs between them, then one SMS attempt.
		notifyTimeout: 90 * time.Second,
	}
	s.detach = func(fn func()) {
		go fn()
	}
	return s
}

// ApplyTransition validates and applies a status transition. The status, its
// timestamp and the optional payment type are written atomically together
// with an outbox event. Re-submitting an already-applied transition is a
// no-op success so queued client replays cannot corrupt state.
func (s *OrderService) ApplyTransition(ctx context.Context, orderID uuid.UUID, requested models.OrderStatus, actor Actor, paymentType *models.PaymentType) (*models.Order, error) {
	if !requested.IsValid() {
		return nil, ErrInvalidTransition
	}

	var (
		applied bool
		event   *models.OrderEvent
	)
	order, err := s.orders.UpdateAtomic(ctx, orderID, func(order *models.Order) (*models.OrderEvent, error) {
		if order.Status == requested {
			// Idempotent replay of an already-applied transition.
			if actor.Role == models.RoleDelivery && !agentOwnsOrder(order, actor) {
				return nil, ErrUnauthorized
			}
			return nil, repository.ErrUnchanged
		}

		roles, ok := legalTransitions[edge{order.Status, requested}]
		if !ok {
			return nil, ErrInvalidTransition
		}
		if err := s.checkActor(order, actor, roles); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		from := order.Status
		switch requested {
		case models.StatusPicked:
			if order.PickedAt == nil {
				order.PickedAt = &now
			}
		case models.StatusOutForDelivery:
			if order.OutForDeliveryAt == nil {
				order.OutForDeliveryAt = &now
			}
		case models.StatusDelivered:
			if paymentType == nil {
				return nil, ErrMissingPaymentType
			}
			if !paymentType.IsValid() {
				return nil, ErrInvalidPaymentType
			}
			if order.DeliveredAt == nil {
				order.DeliveredAt = &now
			}
			order.PaymentType = paymentType
		}
		order.Status = requested

		applied = true
		event = &models.OrderEvent{
			Kind:       models.EventStatusChanged,
			FromStatus: from,
			ToStatus:   requested,
			ActorRole:  actor.Role,
			ActorID:    actor.ID,
		}
		return event, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if applied {
		s.count("orders.transition." + requested.String())
		s.dispatchEffects(order, event, notify.KindStatusChanged)
	}
	return order, nil
}

// AssignAgent binds an order to a delivery agent. Re-assignment overwrites
// while the order is non-terminal; assignment never changes the status.
func (s *OrderService) AssignAgent(ctx context.Context, orderID, agentID uuid.UUID, actor Actor) (*models.Order, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrUnauthorized
	}

	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}

	var event *models.OrderEvent
	order, err := s.orders.UpdateAtomic(ctx, orderID, func(order *models.Order) (*models.OrderEvent, error) {
		if order.Status.IsTerminal() {
			return nil, ErrOrderAlreadyTerminal
		}
		order.AssignedAgentID = &agent.ID
		event = &models.OrderEvent{
			Kind:       models.EventAgentAssigned,
			FromStatus: order.Status,
			ToStatus:   order.Status,
			ActorRole:  actor.Role,
			ActorID:    actor.ID,
			AgentID:    &agent.ID,
		}
		return event, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	s.count("orders.assigned")
	s.dispatchEffects(order, event, notify.KindOrderAssigned)
	return order, nil
}

// CreateOrderItem is one requested line at checkout.
type CreateOrderItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderRequest is the checkout input.
type CreateOrderRequest struct {
	Items         []CreateOrderItem
	PaymentMethod string
	Address       string
	DeliveryFee   int64
}

// CreateOrder places a new pending order for the customer, pricing items from
// the current catalog and decrementing stock.
func (s *OrderService) CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   newOrderNumber(),
		CustomerID:    actor.ID,
		Status:        models.StatusPending,
		PaymentMethod: req.PaymentMethod,
		DeliveryFee:   req.DeliveryFee,
		Address:       req.Address,
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = "cod"
	}

	var total int64
	for _, item := range req.Items {
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrProductNotFound
			}
			return nil, err
		}
		if item.Quantity <= 0 || product.Stock < item.Quantity {
			return nil, ErrInsufficientStock
		}
		total += product.Price * int64(item.Quantity)
		order.Items = append(order.Items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
		})
	}
	order.TotalAmount = total + order.DeliveryFee

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create order")
	}

	for _, item := range req.Items {
		if err := s.products.UpdateStock(ctx, item.ProductID, -item.Quantity); err != nil {
			log.Warn().Err(err).
				Str("product_id", item.ProductID.String()).
				Msg("Failed to decrement stock")
		}
	}

	s.count("orders.created")
	return created, nil
}

// GetOrder returns an order, serving repeated reads from cache. Concurrent
// cache misses for the same order collapse into one database load. Customers
// read only their own orders; delivery agents only orders assigned to them.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID, actor Actor) (*models.Order, error) {
	var cached models.Order
	if err := s.cache.Get(ctx, cache.OrderCacheKey(id), &cached); err == nil {
		s.count("orders.cache_hit")
		return authorizeOrderRead(&cached, actor)
	}

	v, err, _ := s.sf.Do(id.String(), func() (interface{}, error) {
		order, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, cache.OrderCacheKey(id), order, 5*time.Minute); err != nil {
			log.Debug().Err(err).Msg("Failed to cache order")
		}
		return order, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return authorizeOrderRead(v.(*models.Order), actor)
}

func authorizeOrderRead(order *models.Order, actor Actor) (*models.Order, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return order, nil
	case models.RoleCustomer:
		if order.CustomerID == actor.ID {
			return order, nil
		}
	case models.RoleDelivery:
		if agentOwnsOrder(order, actor) {
			return order, nil
		}
	}
	return nil, ErrUnauthorized
}

// ListOrders returns orders matching the filter (admin listings).
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*models.Order, error) {
	return s.orders.List(ctx, filter)
}

// ListAgentOrders returns orders assigned to the given delivery agent.
func (s *OrderService) ListAgentOrders(ctx context.Context, agentID uuid.UUID) ([]*models.Order, error) {
	return s.orders.List(ctx, repository.OrderFilter{AgentID: &agentID})
}

// RegisterAgentPushToken stores a device registration token for an agent.
func (s *OrderService) RegisterAgentPushToken(ctx context.Context, agentID uuid.UUID, token string) error {
	err := s.agents.SetPushToken(ctx, agentID, token)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAgentNotFound
	}
	return err
}

// SearchOrders runs an admin search against the order index.
func (s *OrderService) SearchOrders(ctx context.Context, term string, status models.OrderStatus) ([]map[string]interface{}, error) {
	if s.elastic == nil {
		return nil, errors.New("search is not configured")
	}

	must := []map[string]interface{}{}
	if term != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"order_number": term},
		})
	}
	if status != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"status": status.String()},
		})
	}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}
	return s.elastic.SearchOrders(ctx, query)
}

// checkActor verifies that the actor's role is allowed for the edge and, for
// delivery agents, that the order is assigned to the caller.
func (s *OrderService) checkActor(order *models.Order, actor Actor, roles []models.Role) error {
	permitted := false
	for _, role := range roles {
		if role == actor.Role {
			permitted = true
			break
		}
	}
	if !permitted {
		return ErrUnauthorized
	}
	if actor.Role == models.RoleDelivery && !agentOwnsOrder(order, actor) {
		return ErrUnauthorized
	}
	return nil
}

func agentOwnsOrder(order *models.Order, actor Actor) bool {
	return order.AssignedAgentID != nil && *order.AssignedAgentID == actor.ID
}

// dispatchEffects runs the post-commit side effects as a detached task with
// its own error boundary: cache invalidation, notification cascade, outbox
// publish and search indexing. Failures are logged, never propagated.
func (s *OrderService) dispatchEffects(order *models.Order, event *models.OrderEvent, kind notify.EventKind) {
	s.detach(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Panic in order side effects")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.effectTimeout)
		defer cancel()

		if err := s.cache.Delete(ctx, cache.OrderCacheKey(order.ID)); err != nil {
			log.Debug().Err(err).Msg("Failed to invalidate order cache")
		}

		if s.notifier != nil {
			// The cascade is bounded by its attempt counts, not by the effect
			// deadline: three timed-out push attempts plus backoff must still
			// leave room for the SMS fallback, so it gets its own budget.
			notifyCtx, cancelNotify := context.WithTimeout(context.Background(), s.notifyTimeout)
			s.notifier.Notify(notifyCtx, s.buildNotifyEvent(notifyCtx, order, event, kind))
			cancelNotify()
		}

		s.publishEvent(ctx, order, event)
		s.indexOrder(ctx, order, event)
	})
}

// buildNotifyEvent resolves the recipient and counterpart contact details for
// the cascade. A failed contact lookup degrades to the generic template
// instead of raising.
func (s *OrderService) buildNotifyEvent(ctx context.Context, order *models.Order, event *models.OrderEvent, kind notify.EventKind) notify.Event {
	ev := notify.Event{
		Kind:        kind,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TrackingURL: fmt.Sprintf("%s/%s", strings.TrimRight(s.trackingURL, "/"), order.OrderNumber),
	}

	switch kind {
	case notify.KindOrderAssigned:
		// Inform the agent; the message carries the customer's contact.
		if agent, err := s.agents.GetByID(ctx, *event.AgentID); err == nil {
			ev.Recipient = notify.Recipient{
				Name:      agent.Name,
				Phone:     agent.Phone,
				PushToken: notify.ResolveToken(agent.PushToken),
			}
		} else {
			log.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("Failed to resolve agent for notification")
		}
		if customer, err := s.users.GetByID(ctx, order.CustomerID); err == nil {
			ev.ContactName = customer.Name
			ev.ContactPhone = customer.Phone
		} else {
			log.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("Failed to resolve customer contact, degrading to generic template")
		}
	default:
		// Inform the customer of the status change.
		if customer, err := s.users.GetByID(ctx, order.CustomerID); err == nil {
			ev.Recipient = notify.Recipient{
				Name:      customer.Name,
				Phone:     customer.Phone,
				PushToken: notify.ResolveToken(customer.PushToken),
			}
		} else {
			log.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("Failed to resolve customer for notification")
		}
	}
	return ev
}

// OrderEventMessage is the bus payload for one order event.
type OrderEventMessage struct {
	EventID     uuid.UUID             `json:"event_id"`
	OrderID     uuid.UUID             `json:"order_id"`
	OrderNumber string                `json:"order_number"`
	Kind        models.OrderEventKind `json:"kind"`
	FromStatus  models.OrderStatus    `json:"from_status"`
	ToStatus    models.OrderStatus    `json:"to_status"`
	OccurredAt  time.Time             `json:"occurred_at"`
}

func (s *OrderService) publishEvent(ctx context.Context, order *models.Order, event *models.OrderEvent) {
	if s.bus == nil || event == nil {
		return
	}

	msg := OrderEventMessage{
		EventID:     event.ID,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Kind:        event.Kind,
		FromStatus:  event.FromStatus,
		ToStatus:    event.ToStatus,
		OccurredAt:  event.CreatedAt,
	}
	err := messaging.RetryWithBackoff(ctx, func() error {
		return s.bus.SendMessage(ctx, msg)
	}, 3)
	if err != nil {
		s.count("events.publish_failed")
		log.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("Failed to publish order event, worker will retry")
		return
	}
	if err := s.events.MarkPublished(ctx, event.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to mark event published")
	}
	s.count("events.published")
}

func (s *OrderService) indexOrder(ctx context.Context, order *models.Order, event *models.OrderEvent) {
	if s.elastic == nil {
		return
	}
	if err := s.elastic.IndexOrder(ctx, order); err != nil {
		s.count("events.index_failed")
		log.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("Failed to index order, worker will retry")
		return
	}
	if event != nil {
		if err := s.events.MarkIndexed(ctx, event.ID); err != nil {
			log.Warn().Err(err).Msg("Failed to mark event indexed")
		}
	}
}

func (s *OrderService) count(name string) {
	if s.metrics != nil {
		s.metrics.IncrementCounter(name)
	}
}

// newOrderNumber generates a human-readable, unique order number.
func newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("FC-%s-%s", time.Now().UTC().Format("20060102"), suffix)
}
