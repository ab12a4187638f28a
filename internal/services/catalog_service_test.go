package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/farmcart/api/internal/domain"
)

func newTestCatalogService(t *testing.T, products *stubProductRepository, deliveries *stubDeliveryRepository) CatalogService {
	t.Helper()

	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    products,
		Deliveries:  deliveries,
		Clock:       fixedClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		IDGenerator: sequentialIDs("id"),
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func TestResolvePrefersActiveBatchLine(t *testing.T) {
	products := newStubProductRepository(domain.Product{
		ID:       "prd_1",
		Name:     "Tomato",
		Price:    40,
		Quantity: 100,
		Unit:     domain.UnitKilo,
	})
	deliveries := newStubDeliveryRepository(domain.DeliveryBatch{
		ID:           "dlv_1",
		DeliveryDate: "2025-03-12",
		Status:       domain.BatchStatusActive,
		Lines: []domain.DeliveryLine{{
			ProductID:   "prd_1",
			ProductName: "Tomato",
			Price:       35,
			Quantity:    50,
			Unit:        domain.UnitKilo,
		}},
	})
	svc := newTestCatalogService(t, products, deliveries)

	resolved, err := svc.Resolve(context.Background(), "prd_1", "2025-03-12")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resolved.FromBatch {
		t.Fatal("expected batch line, got catalog fallback")
	}
	if resolved.Price != 35 {
		t.Fatalf("expected batch price 35, got %g", resolved.Price)
	}
	if resolved.AvailableQuantity != 50 {
		t.Fatalf("expected batch quantity 50, got %g", resolved.AvailableQuantity)
	}
}

func TestResolveFallsBackToCatalog(t *testing.T) {
	products := newStubProductRepository(domain.Product{
		ID:       "prd_1",
		Name:     "Tomato",
		Price:    40,
		Quantity: 100,
		Unit:     domain.UnitKilo,
	})
	deliveries := newStubDeliveryRepository()
	svc := newTestCatalogService(t, products, deliveries)

	resolved, err := svc.Resolve(context.Background(), "prd_1", "2025-03-12")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.FromBatch {
		t.Fatal("expected catalog fallback, got batch line")
	}
	if resolved.Price != 40 {
		t.Fatalf("expected catalog price 40, got %g", resolved.Price)
	}
}

func TestResolveFallsBackWhenProductMissingFromBatch(t *testing.T) {
	products := newStubProductRepository(domain.Product{
		ID:    "prd_2",
		Name:  "Onion",
		Price: 30,
		Unit:  domain.UnitKilo,
	})
	deliveries := newStubDeliveryRepository(domain.DeliveryBatch{
		ID:           "dlv_1",
		DeliveryDate: "2025-03-12",
		Status:       domain.BatchStatusActive,
		Lines: []domain.DeliveryLine{{
			ProductID: "prd_1",
			Price:     35,
			Unit:      domain.UnitKilo,
		}},
	})
	svc := newTestCatalogService(t, products, deliveries)

	resolved, err := svc.Resolve(context.Background(), "prd_2", "2025-03-12")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.FromBatch {
		t.Fatal("expected catalog fallback for product absent from batch")
	}
	if resolved.Price != 30 {
		t.Fatalf("expected price 30, got %g", resolved.Price)
	}
}

func TestResolveUnknownProduct(t *testing.T) {
	svc := newTestCatalogService(t, newStubProductRepository(), newStubDeliveryRepository())

	_, err := svc.Resolve(context.Background(), "prd_missing", "2025-03-12")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCreateDeliveryBatchSnapshotsAndOverrides(t *testing.T) {
	products := newStubProductRepository(domain.Product{
		ID:       "prd_1",
		Name:     "Tomato",
		Price:    40,
		Quantity: 100,
		Unit:     domain.UnitKilo,
	})
	deliveries := newStubDeliveryRepository()
	svc := newTestCatalogService(t, products, deliveries)

	override := 32.0
	batch, err := svc.CreateDeliveryBatch(context.Background(), CreateDeliveryBatchCommand{
		DeliveryDate: "2025-03-12",
		Lines: []BatchLineInput{{
			ProductID: "prd_1",
			Price:     &override,
		}},
	})
	if err != nil {
		t.Fatalf("CreateDeliveryBatch: %v", err)
	}
	if batch.Status != domain.BatchStatusActive {
		t.Fatalf("expected active batch, got %s", batch.Status)
	}
	if len(batch.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(batch.Lines))
	}
	line := batch.Lines[0]
	if line.Price != 32 {
		t.Fatalf("expected overridden price 32, got %g", line.Price)
	}
	if line.ProductName != "Tomato" || line.Quantity != 100 {
		t.Fatalf("expected snapshot of product name and quantity, got %+v", line)
	}
}

func TestCreateDeliveryBatchDuplicateDate(t *testing.T) {
	products := newStubProductRepository(domain.Product{
		ID:    "prd_1",
		Name:  "Tomato",
		Price: 40,
		Unit:  domain.UnitKilo,
	})
	deliveries := newStubDeliveryRepository(domain.DeliveryBatch{
		ID:           "dlv_existing",
		DeliveryDate: "2025-03-12",
		Status:       domain.BatchStatusActive,
	})
	svc := newTestCatalogService(t, products, deliveries)

	_, err := svc.CreateDeliveryBatch(context.Background(), CreateDeliveryBatchCommand{
		DeliveryDate: "2025-03-12",
		Lines:        []BatchLineInput{{ProductID: "prd_1"}},
	})
	if !errors.Is(err, ErrDuplicateBatchDate) {
		t.Fatalf("expected ErrDuplicateBatchDate, got %v", err)
	}
}

func TestCreateDeliveryBatchUnknownProduct(t *testing.T) {
	svc := newTestCatalogService(t, newStubProductRepository(), newStubDeliveryRepository())

	_, err := svc.CreateDeliveryBatch(context.Background(), CreateDeliveryBatchCommand{
		DeliveryDate: "2025-03-12",
		Lines:        []BatchLineInput{{ProductID: "prd_missing"}},
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCreateProductValidatesInput(t *testing.T) {
	svc := newTestCatalogService(t, newStubProductRepository(), newStubDeliveryRepository())

	cases := []struct {
		name string
		cmd  UpsertProductCommand
	}{
		{name: "missing name", cmd: UpsertProductCommand{Price: 10, Unit: domain.UnitKilo}},
		{name: "zero price", cmd: UpsertProductCommand{Name: "Tomato", Unit: domain.UnitKilo}},
		{name: "unknown unit", cmd: UpsertProductCommand{Name: "Tomato", Price: 10, Unit: "litres"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateProduct(context.Background(), tc.cmd); !errors.Is(err, ErrCatalogInvalidInput) {
				t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateProductSanitizesDescription(t *testing.T) {
	products := newStubProductRepository()
	svc := newTestCatalogService(t, products, newStubDeliveryRepository())

	product, err := svc.CreateProduct(context.Background(), UpsertProductCommand{
		Name:        "Tomato",
		Price:       40,
		Unit:        domain.UnitKilo,
		Description: `Fresh <script>alert("x")</script>stock`,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if product.Description != "Fresh stock" {
		t.Fatalf("expected sanitized description, got %q", product.Description)
	}
}

func TestUpdateDeliveryBatchStatus(t *testing.T) {
	deliveries := newStubDeliveryRepository(domain.DeliveryBatch{
		ID:           "dlv_1",
		DeliveryDate: "2025-03-12",
		Status:       domain.BatchStatusActive,
	})
	svc := newTestCatalogService(t, newStubProductRepository(), deliveries)

	batch, err := svc.UpdateDeliveryBatchStatus(context.Background(), UpdateBatchStatusCommand{
		BatchID: "dlv_1",
		Status:  domain.BatchStatusCompleted,
	})
	if err != nil {
		t.Fatalf("UpdateDeliveryBatchStatus: %v", err)
	}
	if batch.Status != domain.BatchStatusCompleted {
		t.Fatalf("expected completed, got %s", batch.Status)
	}

	if _, err := svc.UpdateDeliveryBatchStatus(context.Background(), UpdateBatchStatusCommand{
		BatchID: "dlv_missing",
		Status:  domain.BatchStatusCancelled,
	}); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}
