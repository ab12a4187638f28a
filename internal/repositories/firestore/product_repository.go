package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/farmcart/api/internal/domain"
	pfirestore "github.com/farmcart/api/internal/platform/firestore"
	"github.com/farmcart/api/internal/repositories"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const productCollection = "products"

type productDocument struct {
	Name          string    `firestore:"name"`
	Price         float64   `firestore:"price"`
	Quantity      float64   `firestore:"quantity"`
	Unit          string    `firestore:"unit"`
	AvailableDate string    `firestore:"availableDate,omitempty"`
	Description   string    `firestore:"description,omitempty"`
	Image         string    `firestore:"image,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

// ProductRepository persists base catalog entries in Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

// Insert creates the product document.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product id is required")
	}

	_, err := r.base.Set(ctx, product.ID, fromDomainProduct(product))
	return err
}

// Update overwrites the stored product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product id is required")
	}

	_, err := r.base.Set(ctx, product.ID, fromDomainProduct(product))
	return err
}

// FindByID loads the product by document ID.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	if strings.TrimSpace(productID) == "" {
		return domain.Product{}, errors.New("product id is required")
	}

	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	product := toDomainProduct(doc.Data)
	product.ID = doc.ID
	if product.CreatedAt.IsZero() {
		product.CreatedAt = doc.CreateTime
	}
	return product, nil
}

// List returns catalog entries ordered by creation time, optionally filtered
// by availability date.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if date := strings.TrimSpace(filter.AvailableDate); date != "" {
			q = q.Where("availableDate", "==", date)
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product := toDomainProduct(doc.Data)
		product.ID = doc.ID
		if product.CreatedAt.IsZero() {
			product.CreatedAt = doc.CreateTime
		}
		products = append(products, product)
	}
	return products, nil
}

// DecrementQuantity atomically reduces the remaining stock, clamping at zero.
// Missing products are reported as not-found repository errors.
func (r *ProductRepository) DecrementQuantity(ctx context.Context, productID string, quantity float64) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("product id is required")
	}
	if quantity <= 0 {
		return errors.New("quantity must be positive")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return status.Errorf(codes.Internal, "decode product %s: %v", id, err)
		}

		remaining := doc.Quantity - quantity
		if remaining < 0 {
			remaining = 0
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "quantity", Value: remaining},
		})
	})
	if err != nil {
		return pfirestore.WrapError("products.decrement", err)
	}
	return nil
}

func fromDomainProduct(product domain.Product) productDocument {
	createdAt := product.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return productDocument{
		Name:          strings.TrimSpace(product.Name),
		Price:         product.Price,
		Quantity:      product.Quantity,
		Unit:          string(product.Unit),
		AvailableDate: strings.TrimSpace(product.AvailableDate),
		Description:   product.Description,
		Image:         strings.TrimSpace(product.Image),
		CreatedAt:     createdAt.UTC(),
	}
}

func toDomainProduct(doc productDocument) domain.Product {
	return domain.Product{
		Name:          doc.Name,
		Price:         doc.Price,
		Quantity:      doc.Quantity,
		Unit:          domain.Unit(doc.Unit),
		AvailableDate: doc.AvailableDate,
		Description:   doc.Description,
		Image:         doc.Image,
		CreatedAt:     doc.CreatedAt,
	}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
