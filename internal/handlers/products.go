package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/platform/auth"
	"github.com/farmcart/api/internal/platform/httpx"
	"github.com/farmcart/api/internal/services"
)

const maxProductBodySize = 32 * 1024

// ProductHandlers exposes catalog endpoints: customer reads, admin writes.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth())
		}
		g.Get("/", h.listProducts)
		g.Get("/{productID}", h.getProduct)
	})
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(auth.RoleAdmin))
		}
		g.Post("/", h.createProduct)
		g.Put("/{productID}", h.updateProduct)
	})
}

type productRequest struct {
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	AvailableDate string  `json:"availableDate"`
	Description   string  `json:"description"`
	Image         string  `json:"image"`
}

type productPayload struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	AvailableDate string  `json:"availableDate,omitempty"`
	Description   string  `json:"description,omitempty"`
	Image         string  `json:"image,omitempty"`
	CreatedAt     string  `json:"createdAt,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:            strings.TrimSpace(product.ID),
		Name:          strings.TrimSpace(product.Name),
		Price:         product.Price,
		Quantity:      product.Quantity,
		Unit:          string(product.Unit),
		AvailableDate: strings.TrimSpace(product.AvailableDate),
		Description:   strings.TrimSpace(product.Description),
		Image:         strings.TrimSpace(product.Image),
		CreatedAt:     formatTime(product.CreatedAt),
	}
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	filter := services.ProductListFilter{
		AvailableDate: strings.TrimSpace(r.URL.Query().Get("availableDate")),
	}

	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(products))
	for _, product := range products {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.upsertProduct(w, r, "")
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	h.upsertProduct(w, r, productID)
}

func (h *ProductHandlers) upsertProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, _ := auth.IdentityFromContext(ctx)

	var req productRequest
	if err := decodeJSONBody(r, maxProductBodySize, &req); err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	cmd := services.UpsertProductCommand{
		ProductID:     productID,
		Name:          strings.TrimSpace(req.Name),
		Price:         req.Price,
		Quantity:      req.Quantity,
		Unit:          domain.Unit(strings.TrimSpace(req.Unit)),
		AvailableDate: strings.TrimSpace(req.AvailableDate),
		Description:   req.Description,
		Image:         strings.TrimSpace(req.Image),
	}
	if identity != nil {
		cmd.ActorID = strings.TrimSpace(identity.UserID)
	}

	var (
		product services.Product
		err     error
		status  = http.StatusCreated
	)
	if productID == "" {
		product, err = h.catalog.CreateProduct(ctx, cmd)
	} else {
		product, err = h.catalog.UpdateProduct(ctx, cmd)
		status = http.StatusOK
	}
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, map[string]any{"product": buildProductPayload(product)})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrBatchNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("batch_not_found", "delivery batch not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDuplicateBatchDate):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_batch_date", "a delivery batch already exists for this date", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
