package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/freshcart/config"
	"example.com/freshcart/internal/api/handlers"
	"example.com/freshcart/internal/api/middleware"
	"example.com/freshcart/internal/auth"
	"example.com/freshcart/internal/metrics"
	"example.com/freshcart/internal/models"
	"example.com/freshcart/internal/service"
	"example.com/freshcart/internal/tracing"
)

// Server represents the HTTP server.
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
	orders     *service.OrderService
	products   *service.ProductService
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

// NewServer creates a new HTTP server.
func NewServer(cfg config.Config, orders *service.OrderService, products *service.ProductService, m *metrics.Metrics, tracer tracing.Tracer) *Server {
	server := &Server{
		config:   cfg,
		orders:   orders,
		products: products,
		metrics:  m,
		tracer:   tracer,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: server.router,
	}
	return server
}

// setupRouter configures the HTTP router.
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	if s.config.Server.CorsEnabled {
		router.Use(middleware.CORS(s.config.Server.CorsOrigins))
	}
	if app := s.tracer.Application(); app != nil {
		router.Use(nrgin.Middleware(app))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.metrics.GetSnapshot())
	})

	orderHandler := handlers.NewOrderHandler(s.orders, s.tracer)
	courierHandler := handlers.NewCourierHandler(s.orders, s.tracer)
	productHandler := handlers.NewProductHandler(s.products)

	api := router.Group("/api")

	// Public catalog reads.
	api.GET("/products", productHandler.ListProducts)
	api.GET("/products/:id", productHandler.GetProduct)

	authed := api.Group("", auth.Middleware(s.config.Auth.Secret))
	{
		authed.POST("/orders", auth.RequireRole(models.RoleCustomer, models.RoleAdmin), orderHandler.CreateOrder)
		authed.GET("/orders/:id", orderHandler.GetOrder)
		authed.GET("/orders", auth.RequireRole(models.RoleAdmin), orderHandler.ListOrders)
		authed.POST("/orders/:id/status", auth.RequireRole(models.RoleAdmin, models.RoleDelivery), orderHandler.UpdateStatus)
		authed.POST("/orders/:id/assign", auth.RequireRole(models.RoleAdmin), orderHandler.Assign)

		authed.GET("/courier/orders", auth.RequireRole(models.RoleDelivery), courierHandler.ListOrders)
		authed.POST("/courier/push-token", auth.RequireRole(models.RoleDelivery), courierHandler.RegisterPushToken)

		authed.GET("/admin/orders/search", auth.RequireRole(models.RoleAdmin), orderHandler.SearchOrders)
		authed.POST("/products", auth.RequireRole(models.RoleAdmin), productHandler.CreateProduct)
		authed.PUT("/products/:id", auth.RequireRole(models.RoleAdmin), productHandler.UpdateProduct)
		authed.PUT("/products/:id/stock", auth.RequireRole(models.RoleAdmin), productHandler.UpdateStock)
	}

	return router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}
	return nil
}
