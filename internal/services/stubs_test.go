package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/payments"
	"github.com/farmcart/api/internal/repositories"
)

// stubRepoError implements repositories.RepositoryError for tests.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return e.msg }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundError(msg string) stubRepoError {
	return stubRepoError{msg: msg, notFound: true}
}

func conflictError(msg string) stubRepoError {
	return stubRepoError{msg: msg, conflict: true}
}

type decrementCall struct {
	ProductID string
	Quantity  float64
}

type stubProductRepository struct {
	mu         sync.Mutex
	products   map[string]domain.Product
	decrements []decrementCall
	findErr    error
}

func newStubProductRepository(products ...domain.Product) *stubProductRepository {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &stubProductRepository{products: byID}
}

func (s *stubProductRepository) Insert(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	return nil
}

func (s *stubProductRepository) Update(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[product.ID]; !ok {
		return notFoundError("product " + product.ID)
	}
	s.products[product.ID] = product
	return nil
}

func (s *stubProductRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return domain.Product{}, s.findErr
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, notFoundError("product " + productID)
	}
	return product, nil
}

func (s *stubProductRepository) List(_ context.Context, _ repositories.ProductListFilter) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubProductRepository) DecrementQuantity(_ context.Context, productID string, quantity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decrements = append(s.decrements, decrementCall{ProductID: productID, Quantity: quantity})
	product, ok := s.products[productID]
	if !ok {
		return notFoundError("product " + productID)
	}
	product.Quantity -= quantity
	if product.Quantity < 0 {
		product.Quantity = 0
	}
	s.products[productID] = product
	return nil
}

type stubDeliveryRepository struct {
	mu        sync.Mutex
	batches   map[string]domain.DeliveryBatch
	insertErr error
}

func newStubDeliveryRepository(batches ...domain.DeliveryBatch) *stubDeliveryRepository {
	byID := make(map[string]domain.DeliveryBatch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}
	return &stubDeliveryRepository{batches: byID}
}

func (s *stubDeliveryRepository) Insert(_ context.Context, batch domain.DeliveryBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, existing := range s.batches {
		if existing.DeliveryDate == batch.DeliveryDate && existing.Status == domain.BatchStatusActive {
			return conflictError("batch exists for " + batch.DeliveryDate)
		}
	}
	s.batches[batch.ID] = batch
	return nil
}

func (s *stubDeliveryRepository) Update(_ context.Context, batch domain.DeliveryBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batch.ID]; !ok {
		return notFoundError("batch " + batch.ID)
	}
	s.batches[batch.ID] = batch
	return nil
}

func (s *stubDeliveryRepository) FindByID(_ context.Context, batchID string) (domain.DeliveryBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return domain.DeliveryBatch{}, notFoundError("batch " + batchID)
	}
	return batch, nil
}

func (s *stubDeliveryRepository) FindActiveByDate(_ context.Context, deliveryDate string) (domain.DeliveryBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, batch := range s.batches {
		if batch.DeliveryDate == deliveryDate && batch.Status == domain.BatchStatusActive {
			return batch, nil
		}
	}
	return domain.DeliveryBatch{}, notFoundError("no batch for " + deliveryDate)
}

func (s *stubDeliveryRepository) List(_ context.Context, _ repositories.DeliveryListFilter) ([]domain.DeliveryBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DeliveryBatch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b)
	}
	return out, nil
}

type stubOrderRepository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newStubOrderRepository(orders ...domain.Order) *stubOrderRepository {
	byID := make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return &stubOrderRepository{orders: byID}
}

func (s *stubOrderRepository) Insert(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepository) Update(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; !ok {
		return notFoundError("order " + order.ID)
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundError("order " + orderID)
	}
	return order, nil
}

func (s *stubOrderRepository) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.DeliveryDate != "" && o.DeliveryDate != filter.DeliveryDate {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *stubOrderRepository) ApplyStatusUpdate(_ context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundError("order " + orderID)
	}
	order.Status = update.Status
	if update.PaymentLink != nil {
		order.PaymentLink = *update.PaymentLink
	}
	if update.PaymentQRCode != nil {
		order.PaymentQRCode = *update.PaymentQRCode
	}
	if update.InvoiceURL != nil {
		order.InvoiceURL = *update.InvoiceURL
	}
	if update.DeliveredAt != nil {
		deliveredAt := *update.DeliveredAt
		order.DeliveredAt = &deliveredAt
	}
	if update.PaidAt != nil {
		paidAt := *update.PaidAt
		order.PaidAt = &paidAt
	}
	s.orders[orderID] = order
	return order, nil
}

func (s *stubOrderRepository) MarkPaid(_ context.Context, orderID string, paidAt time.Time) (domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, false, notFoundError("order " + orderID)
	}
	if order.Status == domain.OrderStatusPaid {
		return order, false, nil
	}
	order.Status = domain.OrderStatusPaid
	stamped := paidAt
	order.PaidAt = &stamped
	s.orders[orderID] = order
	return order, true, nil
}

type stubUserRepository struct {
	mu     sync.Mutex
	users  map[string]domain.User
	tokens map[string][]string
}

func newStubUserRepository(users ...domain.User) *stubUserRepository {
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return &stubUserRepository{users: byID, tokens: make(map[string][]string)}
}

func (s *stubUserRepository) Insert(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *stubUserRepository) Update(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return notFoundError("user " + user.ID)
	}
	s.users[user.ID] = user
	return nil
}

func (s *stubUserRepository) FindByID(_ context.Context, userID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, notFoundError("user " + userID)
	}
	return user, nil
}

func (s *stubUserRepository) FindByMobile(_ context.Context, mobile string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Mobile == mobile {
			return user, nil
		}
	}
	return domain.User{}, notFoundError("user with mobile " + mobile)
}

func (s *stubUserRepository) AddDeviceToken(_ context.Context, userID string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return notFoundError("user " + userID)
	}
	s.tokens[userID] = append(s.tokens[userID], token)
	return nil
}

type stubInvoiceRepository struct {
	mu       sync.Mutex
	byOrder  map[string]domain.Invoice
	inserted int
}

func newStubInvoiceRepository() *stubInvoiceRepository {
	return &stubInvoiceRepository{byOrder: make(map[string]domain.Invoice)}
}

func (s *stubInvoiceRepository) Insert(_ context.Context, invoice domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOrder[invoice.OrderID] = invoice
	s.inserted++
	return nil
}

func (s *stubInvoiceRepository) FindByOrderID(_ context.Context, orderID string) (domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.byOrder[orderID]
	if !ok {
		return domain.Invoice{}, notFoundError("invoice for " + orderID)
	}
	return invoice, nil
}

type stubCounterRepository struct {
	mu     sync.Mutex
	values map[string]int64
	calls  []string
}

func newStubCounterRepository() *stubCounterRepository {
	return &stubCounterRepository{values: make(map[string]int64)}
}

func (s *stubCounterRepository) Next(_ context.Context, counterID string, step int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step <= 0 {
		step = 1
	}
	s.values[counterID] += step
	s.calls = append(s.calls, counterID)
	return s.values[counterID], nil
}

func (s *stubCounterRepository) Configure(_ context.Context, _ string, _ repositories.CounterConfig) error {
	return nil
}

type stubGateway struct {
	mu          sync.Mutex
	createFn    func(payments.PaymentLinkRequest) (payments.PaymentLink, error)
	parseFn     func([]byte, string) (payments.WebhookEvent, error)
	verifyErr   error
	createCalls []payments.PaymentLinkRequest
	verifyCalls int
}

func (s *stubGateway) CreatePaymentLink(_ context.Context, _ payments.PaymentContext, req payments.PaymentLinkRequest) (payments.PaymentLink, error) {
	s.mu.Lock()
	s.createCalls = append(s.createCalls, req)
	s.mu.Unlock()
	if s.createFn != nil {
		return s.createFn(req)
	}
	return payments.PaymentLink{ID: "plink_1", URL: "https://pay.example/" + req.ReferenceID, ReferenceID: req.ReferenceID}, nil
}

func (s *stubGateway) ParseWebhook(_ payments.PaymentContext, payload []byte, signatureHeader string) (payments.WebhookEvent, error) {
	if s.parseFn != nil {
		return s.parseFn(payload, signatureHeader)
	}
	return payments.WebhookEvent{}, nil
}

func (s *stubGateway) VerifyCallbackSignature(_ payments.PaymentContext, _, _, _ string) error {
	s.mu.Lock()
	s.verifyCalls++
	s.mu.Unlock()
	return s.verifyErr
}

type stubQREncoder struct {
	err error
}

func (s *stubQREncoder) EncodeDataURL(text string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "data:image/png;base64," + text, nil
}

type stubNotifier struct {
	mu              sync.Mutex
	paymentRequests []PaymentRequestNotification
	invoices        []InvoiceNotification
	paymentErr      error
	invoiceErr      error
}

func (s *stubNotifier) SendPaymentRequest(_ context.Context, msg PaymentRequestNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paymentErr != nil {
		return s.paymentErr
	}
	s.paymentRequests = append(s.paymentRequests, msg)
	return nil
}

func (s *stubNotifier) SendInvoice(_ context.Context, msg InvoiceNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invoiceErr != nil {
		return s.invoiceErr
	}
	s.invoices = append(s.invoices, msg)
	return nil
}

func (s *stubNotifier) invoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invoices)
}

type stubEventPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (s *stubEventPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

type stubDocumentStore struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func newStubDocumentStore() *stubDocumentStore {
	return &stubDocumentStore{saved: make(map[string][]byte)}
}

func (s *stubDocumentStore) Save(_ context.Context, objectName, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.saved[objectName] = data
	return "https://storage.example/" + objectName, nil
}

type stubTokenIssuer struct {
	err error
}

func (s *stubTokenIssuer) Issue(user User, now time.Time) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return fmt.Sprintf("token-%s", user.ID), now.Add(24 * time.Hour), nil
}

// syncAsync runs scheduled side effects inline so tests can assert on them.
func syncAsync(fn func()) { fn() }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%s%02d", prefix, n)
	}
}
