package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/farmcart/api/internal/payments"
	"github.com/farmcart/api/internal/platform/auth"
	"github.com/farmcart/api/internal/platform/config"
	"github.com/farmcart/api/internal/platform/qr"
	"github.com/farmcart/api/internal/repositories"
	"github.com/farmcart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Orders   services.OrderService
	Payments services.PaymentService
	Reports  services.ReportService
	Users    services.UserService
	Invoices services.InvoiceService
	System   services.SystemService
}

// ContainerDeps carries the externally constructed collaborators the container wires together.
// Registry, Gateway, and Sessions are required; the notification and event collaborators are
// optional and degrade to no-ops inside the services when absent.
type ContainerDeps struct {
	Config   config.Config
	Registry repositories.Registry
	Gateway  *payments.Manager
	Sessions *auth.SessionManager
	Store    services.DocumentStore
	Notifier services.Notifier
	Push     services.PushSender
	Events   services.OrderEventPublisher
	Build    services.BuildInfo
	Logger   *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session manager is required")
	}

	svc, err := buildServices(ctx, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, deps ContainerDeps) (Services, error) {
	var svc Services

	reg := deps.Registry
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		Deliveries: reg.Deliveries(),
		Clock:      time.Now,
		Logger:     eventLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	invoices, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Invoices: reg.Invoices(),
		Counters: reg.Counters(),
		Store:    deps.Store,
		Clock:    time.Now,
		Logger:   eventLogger(logger.Named("invoices")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build invoice service: %w", err)
	}
	svc.Invoices = invoices

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          reg.Orders(),
		Users:           reg.Users(),
		Products:        reg.Products(),
		Catalog:         catalog,
		Gateway:         deps.Gateway,
		QR:              qr.NewEncoder(),
		Notifier:        deps.Notifier,
		Push:            deps.Push,
		Events:          deps.Events,
		CallbackBaseURL: cfg.Payments.CallbackBaseURL,
		Currency:        cfg.Payments.Currency,
		Clock:           time.Now,
		Logger:          eventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:   reg.Orders(),
		Users:    reg.Users(),
		Gateway:  deps.Gateway,
		Invoices: invoices,
		Notifier: deps.Notifier,
		Events:   deps.Events,
		Clock:    time.Now,
		Logger:   eventLogger(logger.Named("payments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	reports, err := services.NewReportService(services.ReportServiceDeps{
		Orders: reg.Orders(),
		Clock:  time.Now,
		Logger: eventLogger(logger.Named("reports")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build report service: %w", err)
	}
	svc.Reports = reports

	users, err := services.NewUserService(services.UserServiceDeps{
		Users:         reg.Users(),
		Tokens:        deps.Sessions,
		AdminSetupKey: cfg.Auth.AdminSetupKey,
		Clock:         time.Now,
		Logger:        eventLogger(logger.Named("users")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = users

	if healthRepo := reg.Health(); healthRepo != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}

// eventLogger adapts a zap logger to the structured event callback the services expect.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}
