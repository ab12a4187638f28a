package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/platform/auth"
	"github.com/farmcart/api/internal/platform/httpx"
	"github.com/farmcart/api/internal/platform/pagination"
	"github.com/farmcart/api/internal/services"
)

const (
	maxOrderBodySize     = 64 * 1024
	defaultOrderPageSize = 100
	maxOrderPageSize     = 500
)

// DocumentLinkSigner mints short-lived download links for stored invoice
// documents. A nil signer disables signed downloads and the canonical
// document URL is served instead.
type DocumentLinkSigner interface {
	InvoiceDownloadURL(ctx context.Context, invoiceNumber string, issuedAt time.Time, identity *auth.Identity, ownerID string) (string, time.Time, error)
}

// OrderHandlers exposes order placement and lifecycle endpoints.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	invoices services.InvoiceService
	links    DocumentLinkSigner
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, invoices services.InvoiceService, links DocumentLinkSigner) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		orders:   orders,
		invoices: invoices,
		links:    links,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth())
		}
		g.Post("/", h.createOrder)
		g.Get("/", h.listOrders)
		g.Get("/{orderID}", h.getOrder)
		g.Get("/{orderID}/invoice", h.getInvoice)
	})
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(auth.RoleAdmin))
		}
		g.Patch("/{orderID}/status", h.updateStatus)
		g.Post("/bulk-status", h.bulkUpdateStatus)
	})
}

type orderLineRequest struct {
	ProductID string  `json:"productId"`
	Quantity  float64 `json:"quantity"`
}

type createOrderRequest struct {
	Items        []orderLineRequest `json:"items"`
	DeliveryDate string             `json:"deliveryDate"`
	Address      *addressPayload    `json:"address,omitempty"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type bulkStatusUpdateRequest struct {
	OrderIDs []string `json:"orderIds"`
	Status   string   `json:"status"`
}

type orderItemPayload struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
	Total       float64 `json:"total"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	CustomerID      string             `json:"customerId"`
	CustomerName    string             `json:"customerName"`
	CustomerMobile  string             `json:"customerMobile,omitempty"`
	CustomerAddress addressPayload     `json:"customerAddress"`
	Items           []orderItemPayload `json:"items"`
	TotalAmount     float64            `json:"totalAmount"`
	Status          string             `json:"status"`
	DeliveryDate    string             `json:"deliveryDate"`
	PaymentLink     string             `json:"paymentLink,omitempty"`
	PaymentQRCode   string             `json:"paymentQRCode,omitempty"`
	InvoiceURL      string             `json:"invoiceUrl,omitempty"`
	PaidAt          string             `json:"paidAt,omitempty"`
	DeliveredAt     string             `json:"deliveredAt,omitempty"`
	CreatedAt       string             `json:"createdAt"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:   strings.TrimSpace(item.ProductID),
			ProductName: strings.TrimSpace(item.ProductName),
			Quantity:    item.Quantity,
			Unit:        string(item.Unit),
			Price:       item.Price,
			Total:       item.Total,
		})
	}
	return orderPayload{
		ID:              strings.TrimSpace(order.ID),
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		CustomerID:      strings.TrimSpace(order.CustomerID),
		CustomerName:    strings.TrimSpace(order.CustomerName),
		CustomerMobile:  strings.TrimSpace(order.CustomerMobile),
		CustomerAddress: buildAddressPayload(order.CustomerAddress),
		Items:           items,
		TotalAmount:     order.TotalAmount,
		Status:          string(order.Status),
		DeliveryDate:    strings.TrimSpace(order.DeliveryDate),
		PaymentLink:     strings.TrimSpace(order.PaymentLink),
		PaymentQRCode:   strings.TrimSpace(order.PaymentQRCode),
		InvoiceURL:      strings.TrimSpace(order.InvoiceURL),
		PaidAt:          formatTimePointer(order.PaidAt),
		DeliveredAt:     formatTimePointer(order.DeliveredAt),
		CreatedAt:       formatTime(order.CreatedAt),
	}
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	items := make([]services.OrderLineInput, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, services.OrderLineInput{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}

	cmd := services.CreateOrderCommand{
		Actor:        actorFromIdentity(identity),
		Items:        items,
		DeliveryDate: strings.TrimSpace(req.DeliveryDate),
	}
	if req.Address != nil {
		addr := req.Address.toAddress()
		cmd.Address = &addr
	}

	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	page, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		DeliveryDate: strings.TrimSpace(query.Get("deliveryDate")),
		Limit:        page.PageSize,
	}
	if len(page.Cursor.StartAfter) > 0 {
		cursor, err := orderCursorValues(page.Cursor)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_page_token", "page token is not valid for this listing", http.StatusBadRequest))
			return
		}
		filter.StartAfter = cursor
	}
	for _, raw := range query["status"] {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		status := domain.OrderStatus(trimmed)
		if !domain.ValidOrderStatus(status) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		filter.Status = append(filter.Status, status)
	}

	// Customers only ever see their own orders.
	if !identity.IsAdmin() {
		filter.CustomerID = strings.TrimSpace(identity.UserID)
	} else if customerID := strings.TrimSpace(query.Get("customerId")); customerID != "" {
		filter.CustomerID = customerID
	}

	orders, err := h.orders.List(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}

	response := map[string]any{"items": items}
	if page.PageSize > 0 && len(orders) == page.PageSize {
		last := orders[len(orders)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.CreatedAt.UTC().Format(time.RFC3339Nano)},
		})
		if err == nil && token != "" {
			response["nextPageToken"] = token
		}
	}
	writeJSONResponse(w, http.StatusOK, response)
}

// orderCursorValues converts the decoded page token back into the Firestore
// cursor values matching the createdAt ordering of the listing.
func orderCursorValues(cursor pagination.Cursor) ([]any, error) {
	if len(cursor.StartAfter) != 1 {
		return nil, errors.New("unexpected cursor shape")
	}
	raw, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, errors.New("unexpected cursor value type")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return []any{createdAt}, nil
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, orderID, actorFromIdentity(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	// Ownership check rides on the order lookup: customers cannot see
	// invoices for orders that are not theirs.
	order, err := h.orders.Get(ctx, orderID, actorFromIdentity(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	invoice, err := h.invoices.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, services.ErrInvoiceNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("invoice_not_found", "no invoice issued for this order", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invoice_error", "failed to load invoice", http.StatusInternalServerError))
		return
	}

	payload := map[string]any{
		"id":            invoice.ID,
		"orderId":       invoice.OrderID,
		"invoiceNumber": invoice.InvoiceNumber,
		"amount":        invoice.Amount,
		"issuedAt":      formatTime(invoice.IssuedAt),
		"documentUrl":   invoice.DocumentURL,
	}
	if h.links != nil && invoice.DocumentURL != "" {
		url, expiresAt, err := h.links.InvoiceDownloadURL(ctx, invoice.InvoiceNumber, invoice.IssuedAt, identity, order.CustomerID)
		if err == nil {
			payload["downloadUrl"] = url
			payload["downloadExpiresAt"] = formatTime(expiresAt)
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"invoice": payload})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateOrderStatusRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	status := domain.OrderStatus(strings.TrimSpace(req.Status))
	if !domain.ValidOrderStatus(status) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: status,
		ActorID:      strings.TrimSpace(identity.UserID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) bulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	var req bulkStatusUpdateRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	status := domain.OrderStatus(strings.TrimSpace(req.Status))
	if !domain.ValidOrderStatus(status) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	result, err := h.orders.BulkUpdateStatus(ctx, services.BulkStatusUpdateCommand{
		OrderIDs:     req.OrderIDs,
		TargetStatus: status,
		ActorID:      strings.TrimSpace(identity.UserID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"updatedCount": result.UpdatedCount})
}

func (h *OrderHandlers) requireService(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrForbiddenActor):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden_actor", "admin accounts cannot place orders", http.StatusForbidden))
	case errors.Is(err, services.ErrMissingContact):
		httpx.WriteError(ctx, w, httpx.NewError("missing_contact", "customer email is required before ordering", http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
