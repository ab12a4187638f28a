package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid catalog data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates no batch line or catalog entry matched the product.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrBatchNotFound indicates the delivery batch could not be located.
	ErrBatchNotFound = errors.New("catalog: delivery batch not found")
	// ErrDuplicateBatchDate indicates a batch already exists for the delivery date.
	ErrDuplicateBatchDate = errors.New("catalog: delivery batch already exists for date")
)

const (
	productIDPrefix = "prd_"
	batchIDPrefix   = "dlv_"
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Deliveries  repositories.DeliveryBatchRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	deliveries repositories.DeliveryBatchRepository
	clock      func() time.Time
	newID      func() string
	sanitizer  *bluemonday.Policy
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Deliveries == nil {
		return nil, errors.New("catalog service: delivery repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products:   deps.Products,
		deliveries: deps.Deliveries,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger,
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product, err := s.validateProduct(cmd)
	if err != nil {
		return Product{}, err
	}

	product.ID = productIDPrefix + s.newID()
	product.CreatedAt = s.clock()

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapCatalogError(err, ErrProductNotFound)
	}

	s.logger(ctx, "catalog.product.created", map[string]any{
		"productId": product.ID,
		"name":      product.Name,
		"actorId":   cmd.ActorID,
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	id := strings.TrimSpace(cmd.ProductID)
	if id == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	existing, err := s.products.FindByID(ctx, id)
	if err != nil {
		return Product{}, mapCatalogError(err, ErrProductNotFound)
	}

	product, err := s.validateProduct(cmd)
	if err != nil {
		return Product{}, err
	}

	product.ID = existing.ID
	product.CreatedAt = existing.CreatedAt

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, mapCatalogError(err, ErrProductNotFound)
	}
	return product, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return Product{}, mapCatalogError(err, ErrProductNotFound)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error) {
	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, mapCatalogError(err, ErrProductNotFound)
	}
	return products, nil
}

// CreateDeliveryBatch snapshots the referenced products into a date-scoped
// batch. Later edits to the master catalog never alter the stored lines.
func (s *catalogService) CreateDeliveryBatch(ctx context.Context, cmd CreateDeliveryBatchCommand) (DeliveryBatch, error) {
	date := strings.TrimSpace(cmd.DeliveryDate)
	if date == "" {
		return DeliveryBatch{}, fmt.Errorf("%w: delivery date is required", ErrCatalogInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return DeliveryBatch{}, fmt.Errorf("%w: at least one product line is required", ErrCatalogInvalidInput)
	}

	lines := make([]DeliveryLine, 0, len(cmd.Lines))
	for i, input := range cmd.Lines {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" {
			return DeliveryBatch{}, fmt.Errorf("%w: line %d is missing a product id", ErrCatalogInvalidInput, i)
		}

		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return DeliveryBatch{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
			}
			return DeliveryBatch{}, mapCatalogError(err, ErrProductNotFound)
		}

		line := DeliveryLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    product.Quantity,
			Unit:        product.Unit,
			Description: product.Description,
			Image:       product.Image,
		}
		if input.Price != nil {
			if *input.Price <= 0 {
				return DeliveryBatch{}, fmt.Errorf("%w: line %d price must be positive", ErrCatalogInvalidInput, i)
			}
			line.Price = *input.Price
		}
		if input.Quantity != nil {
			if *input.Quantity < 0 {
				return DeliveryBatch{}, fmt.Errorf("%w: line %d quantity must not be negative", ErrCatalogInvalidInput, i)
			}
			line.Quantity = *input.Quantity
		}
		lines = append(lines, line)
	}

	batch := DeliveryBatch{
		ID:           batchIDPrefix + s.newID(),
		DeliveryDate: date,
		Lines:        lines,
		Status:       domain.BatchStatusActive,
		CreatedAt:    s.clock(),
	}

	if err := s.deliveries.Insert(ctx, batch); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return DeliveryBatch{}, fmt.Errorf("%w: %s", ErrDuplicateBatchDate, date)
		}
		return DeliveryBatch{}, mapCatalogError(err, ErrBatchNotFound)
	}

	s.logger(ctx, "catalog.batch.created", map[string]any{
		"batchId":      batch.ID,
		"deliveryDate": date,
		"lines":        len(lines),
		"actorId":      cmd.ActorID,
	})
	return batch, nil
}

func (s *catalogService) UpdateDeliveryBatchStatus(ctx context.Context, cmd UpdateBatchStatusCommand) (DeliveryBatch, error) {
	id := strings.TrimSpace(cmd.BatchID)
	if id == "" {
		return DeliveryBatch{}, fmt.Errorf("%w: batch id is required", ErrCatalogInvalidInput)
	}
	switch cmd.Status {
	case domain.BatchStatusActive, domain.BatchStatusCompleted, domain.BatchStatusCancelled:
	default:
		return DeliveryBatch{}, fmt.Errorf("%w: unknown batch status %q", ErrCatalogInvalidInput, cmd.Status)
	}

	batch, err := s.deliveries.FindByID(ctx, id)
	if err != nil {
		return DeliveryBatch{}, mapCatalogError(err, ErrBatchNotFound)
	}

	batch.Status = cmd.Status
	if err := s.deliveries.Update(ctx, batch); err != nil {
		return DeliveryBatch{}, mapCatalogError(err, ErrBatchNotFound)
	}
	return batch, nil
}

func (s *catalogService) GetDeliveryBatch(ctx context.Context, batchID string) (DeliveryBatch, error) {
	id := strings.TrimSpace(batchID)
	if id == "" {
		return DeliveryBatch{}, fmt.Errorf("%w: batch id is required", ErrCatalogInvalidInput)
	}

	batch, err := s.deliveries.FindByID(ctx, id)
	if err != nil {
		return DeliveryBatch{}, mapCatalogError(err, ErrBatchNotFound)
	}
	return batch, nil
}

func (s *catalogService) ListDeliveryBatches(ctx context.Context, filter DeliveryListFilter) ([]DeliveryBatch, error) {
	batches, err := s.deliveries.List(ctx, filter)
	if err != nil {
		return nil, mapCatalogError(err, ErrBatchNotFound)
	}
	return batches, nil
}

// Resolve prefers the delivery batch line for the date over the master
// catalog entry. The fallback ignores the product's own available date so
// deployments without a configured batch keep working.
func (s *catalogService) Resolve(ctx context.Context, productID string, deliveryDate string) (ResolvedLine, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return ResolvedLine{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	date := strings.TrimSpace(deliveryDate)
	if date == "" {
		return ResolvedLine{}, fmt.Errorf("%w: delivery date is required", ErrCatalogInvalidInput)
	}

	batch, err := s.deliveries.FindActiveByDate(ctx, date)
	switch {
	case err == nil:
		if batch.Status != domain.BatchStatusCancelled {
			for _, line := range batch.Lines {
				if line.ProductID == id {
					return ResolvedLine{
						ProductID:         line.ProductID,
						Name:              line.ProductName,
						Price:             line.Price,
						Unit:              line.Unit,
						AvailableQuantity: line.Quantity,
						FromBatch:         true,
					}, nil
				}
			}
		}
	default:
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return ResolvedLine{}, mapCatalogError(err, ErrBatchNotFound)
		}
	}

	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return ResolvedLine{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return ResolvedLine{}, mapCatalogError(err, ErrProductNotFound)
	}

	return ResolvedLine{
		ProductID:         product.ID,
		Name:              product.Name,
		Price:             product.Price,
		Unit:              product.Unit,
		AvailableQuantity: product.Quantity,
		FromBatch:         false,
	}, nil
}

func (s *catalogService) validateProduct(cmd UpsertProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	if cmd.Quantity < 0 {
		return Product{}, fmt.Errorf("%w: quantity must not be negative", ErrCatalogInvalidInput)
	}
	if !domain.ValidUnit(cmd.Unit) {
		return Product{}, fmt.Errorf("%w: unknown unit %q", ErrCatalogInvalidInput, cmd.Unit)
	}

	return Product{
		Name:          name,
		Price:         cmd.Price,
		Quantity:      cmd.Quantity,
		Unit:          cmd.Unit,
		AvailableDate: strings.TrimSpace(cmd.AvailableDate),
		Description:   s.sanitizer.Sanitize(cmd.Description),
		Image:         strings.TrimSpace(cmd.Image),
	}, nil
}

func mapCatalogError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrDuplicateBatchDate, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}
