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
)

const deliveryCollection = "deliveries"

type deliveryLineDocument struct {
	ProductID   string  `firestore:"productId"`
	ProductName string  `firestore:"productName"`
	Price       float64 `firestore:"price"`
	Quantity    float64 `firestore:"quantity"`
	Unit        string  `firestore:"unit"`
	Description string  `firestore:"description,omitempty"`
	Image       string  `firestore:"image,omitempty"`
}

type deliveryDocument struct {
	DeliveryDate string                 `firestore:"deliveryDate"`
	Lines        []deliveryLineDocument `firestore:"products"`
	Status       string                 `firestore:"status"`
	CreatedAt    time.Time              `firestore:"createdAt"`
}

// DeliveryRepository persists per-date delivery batches in Firestore.
type DeliveryRepository struct {
	base     *pfirestore.BaseRepository[deliveryDocument]
	provider *pfirestore.Provider
}

// NewDeliveryRepository constructs a Firestore-backed delivery batch repository.
func NewDeliveryRepository(provider *pfirestore.Provider) (*DeliveryRepository, error) {
	if provider == nil {
		return nil, errors.New("delivery repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[deliveryDocument](provider, deliveryCollection, nil, nil)
	return &DeliveryRepository{base: base, provider: provider}, nil
}

// Insert creates the batch document inside a transaction. The uniqueness
// check and the write share the same transaction, so two concurrent creates
// for the same delivery date settle with exactly one winner and one
// conflict error.
func (r *DeliveryRepository) Insert(ctx context.Context, batch domain.DeliveryBatch) error {
	if r == nil || r.base == nil || r.provider == nil {
		return errors.New("delivery repository not initialised")
	}
	if strings.TrimSpace(batch.ID) == "" {
		return errors.New("delivery batch id is required")
	}
	date := strings.TrimSpace(batch.DeliveryDate)
	if date == "" {
		return errors.New("delivery date is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		coll, err := r.base.CollectionRef(ctx)
		if err != nil {
			return err
		}

		query := coll.Where("deliveryDate", "==", date).
			Where("status", "==", string(domain.BatchStatusActive)).
			Limit(1)
		existing, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return conflictErr("delivery batch already exists for " + date)
		}

		payload, err := r.base.Encode(ctx, fromDomainDelivery(batch))
		if err != nil {
			return err
		}
		return tx.Set(coll.Doc(batch.ID), payload)
	})
	return pfirestore.WrapError("deliveries.insert", err)
}

// Update overwrites the stored batch document.
func (r *DeliveryRepository) Update(ctx context.Context, batch domain.DeliveryBatch) error {
	if r == nil || r.base == nil {
		return errors.New("delivery repository not initialised")
	}
	if strings.TrimSpace(batch.ID) == "" {
		return errors.New("delivery batch id is required")
	}

	_, err := r.base.Set(ctx, batch.ID, fromDomainDelivery(batch))
	return err
}

// FindByID loads the batch by document ID.
func (r *DeliveryRepository) FindByID(ctx context.Context, batchID string) (domain.DeliveryBatch, error) {
	if r == nil || r.base == nil {
		return domain.DeliveryBatch{}, errors.New("delivery repository not initialised")
	}
	if strings.TrimSpace(batchID) == "" {
		return domain.DeliveryBatch{}, errors.New("delivery batch id is required")
	}

	doc, err := r.base.Get(ctx, batchID)
	if err != nil {
		return domain.DeliveryBatch{}, err
	}

	batch := toDomainDelivery(doc.Data)
	batch.ID = doc.ID
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = doc.CreateTime
	}
	return batch, nil
}

// FindActiveByDate returns the single active batch scheduled for the date.
func (r *DeliveryRepository) FindActiveByDate(ctx context.Context, deliveryDate string) (domain.DeliveryBatch, error) {
	if r == nil || r.base == nil {
		return domain.DeliveryBatch{}, errors.New("delivery repository not initialised")
	}
	date := strings.TrimSpace(deliveryDate)
	if date == "" {
		return domain.DeliveryBatch{}, errors.New("delivery date is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("deliveryDate", "==", date).
			Where("status", "==", string(domain.BatchStatusActive)).
			Limit(1)
	})
	if err != nil {
		return domain.DeliveryBatch{}, err
	}
	if len(docs) == 0 {
		return domain.DeliveryBatch{}, pfirestore.WrapError("deliveries.findactive", notFoundErr("no active delivery batch for "+date))
	}

	batch := toDomainDelivery(docs[0].Data)
	batch.ID = docs[0].ID
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = docs[0].CreateTime
	}
	return batch, nil
}

// List returns batches matching the filter, newest delivery date first.
func (r *DeliveryRepository) List(ctx context.Context, filter repositories.DeliveryListFilter) ([]domain.DeliveryBatch, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("delivery repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if date := strings.TrimSpace(filter.DeliveryDate); date != "" {
			q = q.Where("deliveryDate", "==", date)
		}
		if from := strings.TrimSpace(filter.FromDate); from != "" {
			q = q.Where("deliveryDate", ">=", from)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		return q.OrderBy("deliveryDate", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	batches := make([]domain.DeliveryBatch, 0, len(docs))
	for _, doc := range docs {
		batch := toDomainDelivery(doc.Data)
		batch.ID = doc.ID
		if batch.CreatedAt.IsZero() {
			batch.CreatedAt = doc.CreateTime
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func fromDomainDelivery(batch domain.DeliveryBatch) deliveryDocument {
	lines := make([]deliveryLineDocument, 0, len(batch.Lines))
	for _, line := range batch.Lines {
		lines = append(lines, deliveryLineDocument{
			ProductID:   strings.TrimSpace(line.ProductID),
			ProductName: strings.TrimSpace(line.ProductName),
			Price:       line.Price,
			Quantity:    line.Quantity,
			Unit:        string(line.Unit),
			Description: line.Description,
			Image:       strings.TrimSpace(line.Image),
		})
	}

	createdAt := batch.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	status := batch.Status
	if status == "" {
		status = domain.BatchStatusActive
	}

	return deliveryDocument{
		DeliveryDate: strings.TrimSpace(batch.DeliveryDate),
		Lines:        lines,
		Status:       string(status),
		CreatedAt:    createdAt.UTC(),
	}
}

func toDomainDelivery(doc deliveryDocument) domain.DeliveryBatch {
	lines := make([]domain.DeliveryLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, domain.DeliveryLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Price:       line.Price,
			Quantity:    line.Quantity,
			Unit:        domain.Unit(line.Unit),
			Description: line.Description,
			Image:       line.Image,
		})
	}

	return domain.DeliveryBatch{
		DeliveryDate: doc.DeliveryDate,
		Lines:        lines,
		Status:       domain.BatchStatus(doc.Status),
		CreatedAt:    doc.CreatedAt,
	}
}

var _ repositories.DeliveryBatchRepository = (*DeliveryRepository)(nil)
