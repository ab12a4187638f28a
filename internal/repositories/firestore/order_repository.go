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

const orderCollection = "orders"

type orderItemDocument struct {
	ProductID   string  `firestore:"productId"`
	ProductName string  `firestore:"productName"`
	Quantity    float64 `firestore:"quantity"`
	Unit        string  `firestore:"unit"`
	Price       float64 `firestore:"price"`
	Total       float64 `firestore:"total"`
}

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	CustomerID      string              `firestore:"customerId"`
	CustomerName    string              `firestore:"customerName"`
	CustomerMobile  string              `firestore:"customerMobile"`
	CustomerAddress addressDocument     `firestore:"customerAddress,omitempty"`
	Items           []orderItemDocument `firestore:"items"`
	TotalAmount     float64             `firestore:"totalAmount"`
	Status          string              `firestore:"status"`
	DeliveryDate    string              `firestore:"deliveryDate"`
	PaymentLink     string              `firestore:"paymentLink,omitempty"`
	PaymentQRCode   string              `firestore:"paymentQrCode,omitempty"`
	InvoiceURL      string              `firestore:"invoiceUrl,omitempty"`
	PaidAt          *time.Time          `firestore:"paidAt,omitempty"`
	DeliveredAt     *time.Time          `firestore:"deliveredAt,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
}

// OrderRepository persists order documents in Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}

	_, err := r.base.Set(ctx, order.ID, fromDomainOrder(order))
	return err
}

// Update overwrites the stored order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}

	_, err := r.base.Set(ctx, order.ID, fromDomainOrder(order))
	return err
}

// FindByID loads the order by document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	order := toDomainOrder(doc.Data)
	order.ID = doc.ID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = doc.CreateTime
	}
	return order, nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if customer := strings.TrimSpace(filter.CustomerID); customer != "" {
			q = q.Where("customerId", "==", customer)
		}
		if date := strings.TrimSpace(filter.DeliveryDate); date != "" {
			q = q.Where("deliveryDate", "==", date)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if len(filter.StartAfter) > 0 {
			q = q.StartAfter(filter.StartAfter...)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := toDomainOrder(doc.Data)
		order.ID = doc.ID
		if order.CreatedAt.IsZero() {
			order.CreatedAt = doc.CreateTime
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ApplyStatusUpdate persists a typed status mutation and returns the updated order.
func (r *OrderRepository) ApplyStatusUpdate(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	if update.Status == "" {
		return domain.Order{}, errors.New("order status is required")
	}

	updates := []firestore.Update{
		{Path: "status", Value: string(update.Status)},
	}
	if update.PaymentLink != nil {
		updates = append(updates, firestore.Update{Path: "paymentLink", Value: *update.PaymentLink})
	}
	if update.PaymentQRCode != nil {
		updates = append(updates, firestore.Update{Path: "paymentQrCode", Value: *update.PaymentQRCode})
	}
	if update.InvoiceURL != nil {
		updates = append(updates, firestore.Update{Path: "invoiceUrl", Value: *update.InvoiceURL})
	}
	if update.DeliveredAt != nil {
		updates = append(updates, firestore.Update{Path: "deliveredAt", Value: update.DeliveredAt.UTC()})
	}
	if update.PaidAt != nil {
		updates = append(updates, firestore.Update{Path: "paidAt", Value: update.PaidAt.UTC()})
	}

	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, id)
}

// MarkPaid transitions the order to paid inside a transaction. When the stored
// status is already paid the call is a no-op and performed reports false, so
// concurrent callback and webhook deliveries settle exactly one winner.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (domain.Order, bool, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, false, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, false, errors.New("order id is required")
	}

	performed := false
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		performed = false

		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return status.Errorf(codes.Internal, "decode order %s: %v", id, err)
		}

		if doc.Status == string(domain.OrderStatusPaid) {
			return nil
		}

		performed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(domain.OrderStatusPaid)},
			{Path: "paidAt", Value: paidAt.UTC()},
		})
	})
	if err != nil {
		return domain.Order{}, false, pfirestore.WrapError("orders.markpaid", err)
	}

	order, err := r.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, performed, err
	}
	return order, performed, nil
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID:   strings.TrimSpace(item.ProductID),
			ProductName: strings.TrimSpace(item.ProductName),
			Quantity:    item.Quantity,
			Unit:        string(item.Unit),
			Price:       item.Price,
			Total:       item.Total,
		})
	}

	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	doc := orderDocument{
		OrderNumber:    strings.TrimSpace(order.OrderNumber),
		CustomerID:     strings.TrimSpace(order.CustomerID),
		CustomerName:   strings.TrimSpace(order.CustomerName),
		CustomerMobile: strings.TrimSpace(order.CustomerMobile),
		CustomerAddress: addressDocument{
			CommunityName: strings.TrimSpace(order.CustomerAddress.CommunityName),
			ApartmentName: strings.TrimSpace(order.CustomerAddress.ApartmentName),
			RoomNo:        strings.TrimSpace(order.CustomerAddress.RoomNo),
			Street:        strings.TrimSpace(order.CustomerAddress.Street),
			City:          strings.TrimSpace(order.CustomerAddress.City),
			Pincode:       strings.TrimSpace(order.CustomerAddress.Pincode),
		},
		Items:         items,
		TotalAmount:   order.TotalAmount,
		Status:        string(order.Status),
		DeliveryDate:  strings.TrimSpace(order.DeliveryDate),
		PaymentLink:   strings.TrimSpace(order.PaymentLink),
		PaymentQRCode: order.PaymentQRCode,
		InvoiceURL:    strings.TrimSpace(order.InvoiceURL),
		CreatedAt:     createdAt.UTC(),
	}
	if order.PaidAt != nil {
		paidAt := order.PaidAt.UTC()
		doc.PaidAt = &paidAt
	}
	if order.DeliveredAt != nil {
		deliveredAt := order.DeliveredAt.UTC()
		doc.DeliveredAt = &deliveredAt
	}
	return doc
}

func toDomainOrder(doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Unit:        domain.Unit(item.Unit),
			Price:       item.Price,
			Total:       item.Total,
		})
	}

	return domain.Order{
		OrderNumber:    doc.OrderNumber,
		CustomerID:     doc.CustomerID,
		CustomerName:   doc.CustomerName,
		CustomerMobile: doc.CustomerMobile,
		CustomerAddress: domain.Address{
			CommunityName: doc.CustomerAddress.CommunityName,
			ApartmentName: doc.CustomerAddress.ApartmentName,
			RoomNo:        doc.CustomerAddress.RoomNo,
			Street:        doc.CustomerAddress.Street,
			City:          doc.CustomerAddress.City,
			Pincode:       doc.CustomerAddress.Pincode,
		},
		Items:         items,
		TotalAmount:   doc.TotalAmount,
		Status:        domain.OrderStatus(doc.Status),
		DeliveryDate:  doc.DeliveryDate,
		PaymentLink:   doc.PaymentLink,
		PaymentQRCode: doc.PaymentQRCode,
		InvoiceURL:    doc.InvoiceURL,
		PaidAt:        doc.PaidAt,
		DeliveredAt:   doc.DeliveredAt,
		CreatedAt:     doc.CreatedAt,
	}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
