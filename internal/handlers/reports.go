package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/platform/auth"
	"github.com/farmcart/api/internal/platform/httpx"
	"github.com/farmcart/api/internal/services"
)

// ReportHandlers exposes admin-only aggregation and export endpoints.
type ReportHandlers struct {
	authn   *auth.Authenticator
	reports services.ReportService
}

// NewReportHandlers constructs a new ReportHandlers instance.
func NewReportHandlers(authn *auth.Authenticator, reports services.ReportService) *ReportHandlers {
	return &ReportHandlers{
		authn:   authn,
		reports: reports,
	}
}

// Routes registers the /reports endpoints.
func (h *ReportHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Get("/delivery-summaries", h.deliverySummaries)
	r.Get("/orders-export", h.exportOrders)
}

type productTotalPayload struct {
	ProductName   string  `json:"productName"`
	Unit          string  `json:"unit"`
	TotalQuantity float64 `json:"totalQuantity"`
	TotalAmount   float64 `json:"totalAmount"`
	OrderCount    int     `json:"orderCount"`
}

type deliverySummaryPayload struct {
	Date            string                `json:"date"`
	TotalOrders     int                   `json:"totalOrders"`
	UniqueCustomers int                   `json:"uniqueCustomers"`
	TotalAmount     float64               `json:"totalAmount"`
	Products        []productTotalPayload `json:"products"`
}

func buildDeliverySummaryPayload(summary services.DeliverySummary) deliverySummaryPayload {
	products := make([]productTotalPayload, 0, len(summary.Products))
	for _, product := range summary.Products {
		products = append(products, productTotalPayload{
			ProductName:   product.ProductName,
			Unit:          string(product.Unit),
			TotalQuantity: product.TotalQuantity,
			TotalAmount:   product.TotalAmount,
			OrderCount:    product.OrderCount,
		})
	}
	return deliverySummaryPayload{
		Date:            summary.Date,
		TotalOrders:     summary.TotalOrders,
		UniqueCustomers: summary.UniqueCustomers,
		TotalAmount:     summary.TotalAmount,
		Products:        products,
	}
}

func (h *ReportHandlers) deliverySummaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, ok := h.parseFilter(ctx, w, r)
	if !ok {
		return
	}

	summaries, err := h.reports.DeliverySummaries(ctx, filter)
	if err != nil {
		writeReportError(ctx, w, err)
		return
	}

	items := make([]deliverySummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		items = append(items, buildDeliverySummaryPayload(summary))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ReportHandlers) exportOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, ok := h.parseFilter(ctx, w, r)
	if !ok {
		return
	}

	result, err := h.reports.ExportOrders(ctx, filter)
	if err != nil {
		writeReportError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (h *ReportHandlers) parseFilter(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.OrderListFilter, bool) {
	if h.reports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("report_service_unavailable", "report service unavailable", http.StatusServiceUnavailable))
		return services.OrderListFilter{}, false
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		DeliveryDate: strings.TrimSpace(query.Get("deliveryDate")),
	}
	for _, raw := range query["status"] {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		status := domain.OrderStatus(trimmed)
		if !domain.ValidOrderStatus(status) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return services.OrderListFilter{}, false
		}
		filter.Status = append(filter.Status, status)
	}
	return filter, true
}

func writeReportError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrReportInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("report_error", "failed to build report", http.StatusInternalServerError))
	}
}
