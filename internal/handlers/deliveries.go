package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/platform/auth"
	"github.com/farmcart/api/internal/platform/httpx"
	"github.com/farmcart/api/internal/services"
)

const maxDeliveryBodySize = 64 * 1024

// DeliveryHandlers exposes delivery batch endpoints: customer reads, admin writes.
type DeliveryHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewDeliveryHandlers constructs a new DeliveryHandlers instance.
func NewDeliveryHandlers(authn *auth.Authenticator, catalog services.CatalogService) *DeliveryHandlers {
	return &DeliveryHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes registers the /deliveries endpoints.
func (h *DeliveryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth())
		}
		g.Get("/", h.listBatches)
		g.Get("/{batchID}", h.getBatch)
	})
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(auth.RoleAdmin))
		}
		g.Post("/", h.createBatch)
		g.Patch("/{batchID}/status", h.updateBatchStatus)
	})
}

type batchLineRequest struct {
	ProductID string   `json:"productId"`
	Price     *float64 `json:"price,omitempty"`
	Quantity  *float64 `json:"quantity,omitempty"`
}

type createBatchRequest struct {
	DeliveryDate string             `json:"deliveryDate"`
	Lines        []batchLineRequest `json:"lines"`
}

type updateBatchStatusRequest struct {
	Status string `json:"status"`
}

type deliveryLinePayload struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Description string  `json:"description,omitempty"`
	Image       string  `json:"image,omitempty"`
}

type deliveryBatchPayload struct {
	ID           string                `json:"id"`
	DeliveryDate string                `json:"deliveryDate"`
	Status       string                `json:"status"`
	Lines        []deliveryLinePayload `json:"lines"`
	CreatedAt    string                `json:"createdAt,omitempty"`
}

func buildDeliveryBatchPayload(batch services.DeliveryBatch) deliveryBatchPayload {
	lines := make([]deliveryLinePayload, 0, len(batch.Lines))
	for _, line := range batch.Lines {
		lines = append(lines, deliveryLinePayload{
			ProductID:   strings.TrimSpace(line.ProductID),
			ProductName: strings.TrimSpace(line.ProductName),
			Price:       line.Price,
			Quantity:    line.Quantity,
			Unit:        string(line.Unit),
			Description: strings.TrimSpace(line.Description),
			Image:       strings.TrimSpace(line.Image),
		})
	}
	return deliveryBatchPayload{
		ID:           strings.TrimSpace(batch.ID),
		DeliveryDate: strings.TrimSpace(batch.DeliveryDate),
		Status:       string(batch.Status),
		Lines:        lines,
		CreatedAt:    formatTime(batch.CreatedAt),
	}
}

func (h *DeliveryHandlers) listBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	filter := services.DeliveryListFilter{
		DeliveryDate: strings.TrimSpace(query.Get("deliveryDate")),
		FromDate:     strings.TrimSpace(query.Get("fromDate")),
	}
	for _, raw := range query["status"] {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			filter.Status = append(filter.Status, domain.BatchStatus(trimmed))
		}
	}

	batches, err := h.catalog.ListDeliveryBatches(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]deliveryBatchPayload, 0, len(batches))
	for _, batch := range batches {
		items = append(items, buildDeliveryBatchPayload(batch))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *DeliveryHandlers) getBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	batchID := strings.TrimSpace(chi.URLParam(r, "batchID"))
	if batchID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "batch id is required", http.StatusBadRequest))
		return
	}

	batch, err := h.catalog.GetDeliveryBatch(ctx, batchID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"batch": buildDeliveryBatchPayload(batch)})
}

func (h *DeliveryHandlers) createBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createBatchRequest
	if err := decodeJSONBody(r, maxDeliveryBodySize, &req); err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	lines := make([]services.BatchLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.BatchLineInput{
			ProductID: strings.TrimSpace(line.ProductID),
			Price:     line.Price,
			Quantity:  line.Quantity,
		})
	}

	cmd := services.CreateDeliveryBatchCommand{
		DeliveryDate: strings.TrimSpace(req.DeliveryDate),
		Lines:        lines,
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		cmd.ActorID = strings.TrimSpace(identity.UserID)
	}

	batch, err := h.catalog.CreateDeliveryBatch(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"batch": buildDeliveryBatchPayload(batch)})
}

func (h *DeliveryHandlers) updateBatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	batchID := strings.TrimSpace(chi.URLParam(r, "batchID"))
	if batchID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "batch id is required", http.StatusBadRequest))
		return
	}

	var req updateBatchStatusRequest
	if err := decodeJSONBody(r, maxDeliveryBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.UpdateBatchStatusCommand{
		BatchID: batchID,
		Status:  domain.BatchStatus(strings.TrimSpace(req.Status)),
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		cmd.ActorID = strings.TrimSpace(identity.UserID)
	}

	batch, err := h.catalog.UpdateDeliveryBatchStatus(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"batch": buildDeliveryBatchPayload(batch)})
}
