package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/farmcart/api/internal/platform/auth"
	"github.com/farmcart/api/internal/services"
)

// staticVerifier resolves fixed bearer tokens to identities for middleware tests.
type staticVerifier struct {
	identities map[string]*auth.Identity
}

func (s *staticVerifier) VerifyToken(token string) (*auth.Identity, error) {
	identity, ok := s.identities[token]
	if !ok {
		return nil, auth.ErrTokenInvalid
	}
	clone := *identity
	return &clone, nil
}

func newTestAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(&staticVerifier{identities: map[string]*auth.Identity{
		"customer-token": {UserID: "usr_customer", Name: "Anita", Email: "anita@example.com", Role: auth.RoleCustomer},
		"admin-token":    {UserID: "usr_admin", Name: "Ops", Email: "ops@example.com", Role: auth.RoleAdmin},
	}})
}

func doRequest(t *testing.T, routes RouteRegistrar, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/", func(group chi.Router) {
		routes(group)
	})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func asCustomer(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer customer-token")
	return req
}

func asAdmin(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer admin-token")
	return req
}

type stubCatalogService struct {
	products     map[string]services.Product
	batches      map[string]services.DeliveryBatch
	createErr    error
	lastUpsert   services.UpsertProductCommand
	lastBatchCmd services.CreateDeliveryBatchCommand
}

func (s *stubCatalogService) CreateProduct(_ context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	s.lastUpsert = cmd
	if s.createErr != nil {
		return services.Product{}, s.createErr
	}
	return services.Product{ID: "prd_new", Name: cmd.Name, Price: cmd.Price, Unit: cmd.Unit}, nil
}

func (s *stubCatalogService) UpdateProduct(_ context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	s.lastUpsert = cmd
	if s.createErr != nil {
		return services.Product{}, s.createErr
	}
	return services.Product{ID: cmd.ProductID, Name: cmd.Name, Price: cmd.Price, Unit: cmd.Unit}, nil
}

func (s *stubCatalogService) GetProduct(_ context.Context, productID string) (services.Product, error) {
	product, ok := s.products[productID]
	if !ok {
		return services.Product{}, services.ErrProductNotFound
	}
	return product, nil
}

func (s *stubCatalogService) ListProducts(context.Context, services.ProductListFilter) ([]services.Product, error) {
	items := make([]services.Product, 0, len(s.products))
	for _, product := range s.products {
		items = append(items, product)
	}
	return items, nil
}

func (s *stubCatalogService) CreateDeliveryBatch(_ context.Context, cmd services.CreateDeliveryBatchCommand) (services.DeliveryBatch, error) {
	s.lastBatchCmd = cmd
	if s.createErr != nil {
		return services.DeliveryBatch{}, s.createErr
	}
	return services.DeliveryBatch{ID: "dlv_new", DeliveryDate: cmd.DeliveryDate}, nil
}

func (s *stubCatalogService) UpdateDeliveryBatchStatus(_ context.Context, cmd services.UpdateBatchStatusCommand) (services.DeliveryBatch, error) {
	batch, ok := s.batches[cmd.BatchID]
	if !ok {
		return services.DeliveryBatch{}, services.ErrBatchNotFound
	}
	batch.Status = cmd.Status
	return batch, nil
}

func (s *stubCatalogService) GetDeliveryBatch(_ context.Context, batchID string) (services.DeliveryBatch, error) {
	batch, ok := s.batches[batchID]
	if !ok {
		return services.DeliveryBatch{}, services.ErrBatchNotFound
	}
	return batch, nil
}

func (s *stubCatalogService) ListDeliveryBatches(context.Context, services.DeliveryListFilter) ([]services.DeliveryBatch, error) {
	items := make([]services.DeliveryBatch, 0, len(s.batches))
	for _, batch := range s.batches {
		items = append(items, batch)
	}
	return items, nil
}

func (s *stubCatalogService) Resolve(context.Context, string, string) (services.ResolvedLine, error) {
	return services.ResolvedLine{}, errors.New("not implemented in stub")
}

type stubOrderService struct {
	orders     map[string]services.Order
	createErr  error
	lastCreate services.CreateOrderCommand
	lastList   services.OrderListFilter
	lastStatus services.OrderStatusTransitionCommand
	bulkResult services.BulkUpdateResult
	lastBulk   services.BulkStatusUpdateCommand
}

func (s *stubOrderService) Create(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	s.lastCreate = cmd
	if s.createErr != nil {
		return services.Order{}, s.createErr
	}
	return services.Order{ID: "ord_new", OrderNumber: "FV-1-001", CustomerID: cmd.Actor.ID, Status: "pending"}, nil
}

func (s *stubOrderService) Get(_ context.Context, orderID string, actor services.Actor) (services.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return services.Order{}, services.ErrOrderNotFound
	}
	if !actor.IsAdmin() && order.CustomerID != actor.ID {
		return services.Order{}, services.ErrOrderNotFound
	}
	return order, nil
}

func (s *stubOrderService) List(_ context.Context, filter services.OrderListFilter) ([]services.Order, error) {
	s.lastList = filter
	items := make([]services.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		items = append(items, order)
	}
	return items, nil
}

func (s *stubOrderService) TransitionStatus(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	s.lastStatus = cmd
	order, ok := s.orders[cmd.OrderID]
	if !ok {
		return services.Order{}, services.ErrOrderNotFound
	}
	order.Status = cmd.TargetStatus
	return order, nil
}

func (s *stubOrderService) BulkUpdateStatus(_ context.Context, cmd services.BulkStatusUpdateCommand) (services.BulkUpdateResult, error) {
	s.lastBulk = cmd
	return s.bulkResult, nil
}

type stubPaymentService struct {
	order       services.Order
	callbackErr error
	webhookErr  error
	lastCmd     services.PaymentCallbackCommand
	lastWebhook services.PaymentWebhookCommand
}

func (s *stubPaymentService) ConfirmCallback(_ context.Context, cmd services.PaymentCallbackCommand) (services.Order, error) {
	s.lastCmd = cmd
	if s.callbackErr != nil {
		return services.Order{}, s.callbackErr
	}
	return s.order, nil
}

func (s *stubPaymentService) HandleWebhook(_ context.Context, cmd services.PaymentWebhookCommand) error {
	s.lastWebhook = cmd
	return s.webhookErr
}

type stubUserService struct {
	users       map[string]services.User
	session     services.AuthSession
	registerErr error
	loginErr    error
	lastReg     services.RegisterUserCommand
	tokens      []services.RegisterDeviceTokenCommand
}

func (s *stubUserService) Register(_ context.Context, cmd services.RegisterUserCommand) (services.User, error) {
	s.lastReg = cmd
	if s.registerErr != nil {
		return services.User{}, s.registerErr
	}
	return services.User{ID: "usr_new", Name: cmd.Name, Mobile: cmd.Mobile, Email: cmd.Email, Role: "customer"}, nil
}

func (s *stubUserService) Authenticate(_ context.Context, cmd services.LoginCommand) (services.AuthSession, error) {
	if s.loginErr != nil {
		return services.AuthSession{}, s.loginErr
	}
	return s.session, nil
}

func (s *stubUserService) GetProfile(_ context.Context, userID string) (services.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return services.User{}, services.ErrUserNotFound
	}
	return user, nil
}

func (s *stubUserService) UpdateAddress(_ context.Context, cmd services.UpdateAddressCommand) (services.User, error) {
	user, ok := s.users[cmd.UserID]
	if !ok {
		return services.User{}, services.ErrUserNotFound
	}
	user.Address = cmd.Address
	return user, nil
}

func (s *stubUserService) RegisterDeviceToken(_ context.Context, cmd services.RegisterDeviceTokenCommand) error {
	if cmd.Token == "" {
		return services.ErrUserInvalidInput
	}
	s.tokens = append(s.tokens, cmd)
	return nil
}

type stubReportService struct {
	summaries []services.DeliverySummary
	export    services.ExportResult
	err       error
}

func (s *stubReportService) DeliverySummaries(context.Context, services.OrderListFilter) ([]services.DeliverySummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.summaries, nil
}

func (s *stubReportService) ExportOrders(context.Context, services.OrderListFilter) (services.ExportResult, error) {
	if s.err != nil {
		return services.ExportResult{}, s.err
	}
	return s.export, nil
}

type stubInvoiceService struct {
	invoices map[string]services.Invoice
}

func (s *stubInvoiceService) IssueForOrder(_ context.Context, order services.Order) (services.Invoice, error) {
	return services.Invoice{}, errors.New("not implemented in stub")
}

func (s *stubInvoiceService) GetByOrderID(_ context.Context, orderID string) (services.Invoice, error) {
	invoice, ok := s.invoices[orderID]
	if !ok {
		return services.Invoice{}, services.ErrInvoiceNotFound
	}
	return invoice, nil
}

var (
	_ services.CatalogService = (*stubCatalogService)(nil)
	_ services.OrderService   = (*stubOrderService)(nil)
	_ services.PaymentService = (*stubPaymentService)(nil)
	_ services.UserService    = (*stubUserService)(nil)
	_ services.ReportService  = (*stubReportService)(nil)
	_ services.InvoiceService = (*stubInvoiceService)(nil)
)
