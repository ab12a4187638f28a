package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/repositories"
)

// ErrReportInvalidInput signals the caller provided invalid report parameters.
var ErrReportInvalidInput = errors.New("report: invalid input")

const exportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportServiceDeps bundles collaborators required to construct the report service.
type ReportServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type reportService struct {
	orders repositories.OrderRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewReportService wires dependencies into a concrete ReportService implementation.
func NewReportService(deps ReportServiceDeps) (ReportService, error) {
	if deps.Orders == nil {
		return nil, errors.New("report service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reportService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *reportService) DeliverySummaries(ctx context.Context, filter OrderListFilter) ([]DeliverySummary, error) {
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return AggregateByDeliveryDate(orders), nil
}

// AggregateByDeliveryDate groups orders by delivery date and rolls up
// per-product quantity, amount, and order-count statistics. Pure function;
// product rollups keep first-seen order keyed by product id and unit.
func AggregateByDeliveryDate(orders []domain.Order) []DeliverySummary {
	type productKey struct {
		productID string
		unit      domain.Unit
	}
	type group struct {
		summary   DeliverySummary
		customers map[string]struct{}
		products  map[productKey]int
	}

	groups := make(map[string]*group)
	var dates []string

	for _, order := range orders {
		g, ok := groups[order.DeliveryDate]
		if !ok {
			g = &group{
				summary:   DeliverySummary{Date: order.DeliveryDate},
				customers: make(map[string]struct{}),
				products:  make(map[productKey]int),
			}
			groups[order.DeliveryDate] = g
			dates = append(dates, order.DeliveryDate)
		}

		g.summary.TotalOrders++
		g.summary.TotalAmount += order.TotalAmount
		g.customers[order.CustomerID] = struct{}{}

		for _, item := range order.Items {
			key := productKey{productID: item.ProductID, unit: item.Unit}
			idx, ok := g.products[key]
			if !ok {
				idx = len(g.summary.Products)
				g.products[key] = idx
				g.summary.Products = append(g.summary.Products, ProductTotal{
					ProductName: item.ProductName,
					Unit:        item.Unit,
				})
			}
			g.summary.Products[idx].TotalQuantity += item.Quantity
			g.summary.Products[idx].TotalAmount += item.Total
			g.summary.Products[idx].OrderCount++
		}
	}

	summaries := make([]DeliverySummary, 0, len(dates))
	for _, date := range dates {
		g := groups[date]
		g.summary.UniqueCustomers = len(g.customers)
		summaries = append(summaries, g.summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Date < summaries[j].Date
	})
	return summaries
}

// ExportOrders renders the matching orders into a spreadsheet for download.
func (s *reportService) ExportOrders(ctx context.Context, filter OrderListFilter) (ExportResult, error) {
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return ExportResult{}, err
	}

	data, err := renderOrdersSheet(orders)
	if err != nil {
		return ExportResult{}, fmt.Errorf("report: render export: %w", err)
	}

	name := "orders"
	if date := strings.TrimSpace(filter.DeliveryDate); date != "" {
		name += "-" + date
	} else {
		name += "-" + s.clock().Format("2006-01-02")
	}

	s.logger(ctx, "report.export.rendered", map[string]any{
		"orders": len(orders),
		"file":   name + ".xlsx",
	})

	return ExportResult{
		FileName:    name + ".xlsx",
		ContentType: exportContentType,
		Data:        data,
	}, nil
}

var exportHeader = []string{
	"Order Number", "Customer Name", "Mobile", "Community / Apartment",
	"Room No", "Items", "Total", "Status", "Delivery Date", "Order Date", "Paid At",
}

func renderOrdersSheet(orders []domain.Order) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	const sheet = "Orders"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for col, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, err
		}
	}

	for row, order := range orders {
		community := strings.TrimSpace(order.CustomerAddress.CommunityName)
		if apartment := strings.TrimSpace(order.CustomerAddress.ApartmentName); apartment != "" {
			if community != "" {
				community += " / "
			}
			community += apartment
		}

		items := make([]string, 0, len(order.Items))
		for _, item := range order.Items {
			items = append(items, fmt.Sprintf("%s x%g %s", item.ProductName, item.Quantity, item.Unit))
		}

		paidAt := ""
		if order.PaidAt != nil {
			paidAt = order.PaidAt.Format("2006-01-02 15:04")
		}

		values := []any{
			order.OrderNumber,
			order.CustomerName,
			order.CustomerMobile,
			community,
			order.CustomerAddress.RoomNo,
			strings.Join(items, ", "),
			order.TotalAmount,
			string(order.Status),
			order.DeliveryDate,
			order.CreatedAt.Format("2006-01-02 15:04"),
			paidAt,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
