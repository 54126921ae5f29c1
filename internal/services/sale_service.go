package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/models"
	apperrors "github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/metrics"
)

// totalTolerance is the largest drift allowed between a client-supplied total
// and the recomputed one, in currency units. Anything above half a cent means
// the client priced the cart differently than the catalogue.
const totalTolerance = 0.005

var (
	// ErrInsufficientStock rejects sales that would drive stock negative.
	ErrInsufficientStock = apperrors.New("INSUFFICIENT_STOCK", "Not enough stock to complete this sale", http.StatusConflict)
	// ErrTotalMismatch rejects sales whose client-computed total disagrees with the catalogue.
	ErrTotalMismatch = apperrors.New("TOTAL_MISMATCH", "Sale total does not match current item prices", http.StatusBadRequest)
	// ErrSaleNotFound indicates the sale does not exist in this workspace.
	ErrSaleNotFound = apperrors.New("SALE_NOT_FOUND", "Sale not found", http.StatusNotFound)
)

// SaleLineInput is one cart line in a sale request.
type SaleLineInput struct {
	ItemID          string
	Quantity        int
	DiscountPercent float64
}

// RecordSaleInput describes a sale to be committed. Total is advisory: when
// set, it is checked against the server-side recomputation and the sale is
// rejected on disagreement. OccurredAt defaults to now.
type RecordSaleInput struct {
	OccurredAt *time.Time
	Total      *float64
	Lines      []SaleLineInput
}

// SaleFilters narrows sale listings to a time window.
type SaleFilters struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// SalesSummary aggregates a workspace's sales over a window.
type SalesSummary struct {
	SaleCount    int64   `json:"sale_count"`
	GrossRevenue float64 `json:"gross_revenue"`
	UnitsSold    int64   `json:"units_sold"`
}

// BestSeller is one row of the best-sellers ranking.
type BestSeller struct {
	ItemID    string  `json:"item_id"`
	Name      string  `json:"name"`
	UnitsSold int64   `json:"units_sold"`
	Revenue   float64 `json:"revenue"`
}

// ItemSaleRecord is one historical sale line for an item.
type ItemSaleRecord struct {
	SaleID          string    `json:"sale_id"`
	OccurredAt      time.Time `json:"occurred_at"`
	Quantity        int       `json:"quantity"`
	UnitPrice       float64   `json:"unit_price"`
	DiscountPercent float64   `json:"discount_percent"`
	Subtotal        float64   `json:"subtotal"`
}

// SaleOption customises SaleService behaviour.
type SaleOption func(*SaleService)

// WithSaleClock injects a custom clock primarily for testing.
func WithSaleClock(clock func() time.Time) SaleOption {
	return func(s *SaleService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// SaleService commits sale transactions and answers sales questions.
type SaleService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSaleService constructs a SaleService.
func NewSaleService(db *gorm.DB, opts ...SaleOption) (*SaleService, error) {
	if db == nil {
		return nil, errors.New("sale service: db is required")
	}

	service := &SaleService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// RecordSale validates and commits a sale in a single transaction: every line
// is checked against a locked item row, prices and the total are recomputed
// from the catalogue, and stock is decremented. Either the whole cart commits
// or nothing does.
func (s *SaleService) RecordSale(ctx context.Context, workspaceID, actorID string, input RecordSaleInput) (*models.Sale, error) {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx)

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}
	if err := validateSaleLines(input.Lines); err != nil {
		return nil, err
	}

	occurredAt := s.now().UTC()
	if input.OccurredAt != nil {
		occurredAt = input.OccurredAt.UTC()
	}

	var sale *models.Sale
	err := db.Transaction(func(tx *gorm.DB) error {
		items, err := s.lockSaleItems(tx, workspaceID, input.Lines)
		if err != nil {
			return err
		}

		lines := make([]models.SaleLine, 0, len(input.Lines))
		var total float64
		for _, line := range input.Lines {
			item := items[line.ItemID]
			subtotal := roundCents(item.Price * float64(line.Quantity) * (1 - line.DiscountPercent/100))
			total += subtotal
			lines = append(lines, models.SaleLine{
				ItemID:          line.ItemID,
				Quantity:        line.Quantity,
				UnitPrice:       item.Price,
				DiscountPercent: line.DiscountPercent,
				Subtotal:        subtotal,
			})
		}
		total = roundCents(total)

		if input.Total != nil && math.Abs(total-*input.Total) > totalTolerance {
			return ErrTotalMismatch.Detailf("submitted total %.2f does not match computed total %.2f", *input.Total, total)
		}

		sale = &models.Sale{
			WorkspaceID:  workspaceID,
			RecordedByID: actorID,
			OccurredAt:   occurredAt,
			Total:        total,
		}
		if err := tx.Create(sale).Error; err != nil {
			return fmt.Errorf("create sale: %w", err)
		}

		for i := range lines {
			lines[i].SaleID = sale.ID
		}
		if err := tx.Create(&lines).Error; err != nil {
			return fmt.Errorf("create sale lines: %w", err)
		}
		sale.Lines = lines

		for itemID, quantity := range quantitiesByItem(input.Lines) {
			if err := tx.Model(&models.InventoryItem{}).
				Where("id = ?", itemID).
				Update("stock_level", gorm.Expr("stock_level - ?", quantity)).Error; err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if isSaleRejection(err) {
			metrics.SalesRecorded.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}

	metrics.SalesRecorded.WithLabelValues("committed").Inc()
	return sale, nil
}

// lockSaleItems loads every referenced item under a row lock, in a stable
// order so concurrent sales cannot deadlock, and checks workspace scope,
// active state and stock.
func (s *SaleService) lockSaleItems(tx *gorm.DB, workspaceID string, lines []SaleLineInput) (map[string]*models.InventoryItem, error) {
	needed := quantitiesByItem(lines)

	ids := make([]string, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make(map[string]*models.InventoryItem, len(ids))
	for _, id := range ids {
		var item models.InventoryItem
		err := lockForUpdate(tx).First(&item, "id = ? AND workspace_id = ?", id, workspaceID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrItemNotFound
			}
			return nil, fmt.Errorf("lock item: %w", err)
		}
		if !item.IsActive {
			return nil, ErrItemInactive.Detailf("%q has been deactivated and cannot be sold", item.Name)
		}
		if item.StockLevel < needed[id] {
			return nil, ErrInsufficientStock.Detailf("%q has %d in stock, sale requires %d", item.Name, item.StockLevel, needed[id])
		}
		items[id] = &item
	}
	return items, nil
}

// ListSales returns committed sales with their lines, newest first.
func (s *SaleService) ListSales(ctx context.Context, workspaceID, actorID string, filters SaleFilters) ([]models.Sale, error) {
	db := s.db.WithContext(ensureContext(ctx))

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}

	query := db.Preload("Lines").Where("workspace_id = ?", workspaceID)
	if filters.From != nil {
		query = query.Where("occurred_at >= ?", filters.From.UTC())
	}
	if filters.To != nil {
		query = query.Where("occurred_at < ?", filters.To.UTC())
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	var sales []models.Sale
	if err := query.Order("occurred_at DESC").Find(&sales).Error; err != nil {
		return nil, fmt.Errorf("sale service: list sales: %w", err)
	}
	return sales, nil
}

// Summary aggregates sale count, revenue and units sold over a window.
func (s *SaleService) Summary(ctx context.Context, workspaceID, actorID string, filters SaleFilters) (*SalesSummary, error) {
	db := s.db.WithContext(ensureContext(ctx))

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}

	saleQuery := db.Model(&models.Sale{}).Where("workspace_id = ?", workspaceID)
	lineQuery := db.Model(&models.SaleLine{}).
		Joins("JOIN sales ON sales.id = sale_lines.sale_id").
		Where("sales.workspace_id = ?", workspaceID)
	if filters.From != nil {
		saleQuery = saleQuery.Where("occurred_at >= ?", filters.From.UTC())
		lineQuery = lineQuery.Where("sales.occurred_at >= ?", filters.From.UTC())
	}
	if filters.To != nil {
		saleQuery = saleQuery.Where("occurred_at < ?", filters.To.UTC())
		lineQuery = lineQuery.Where("sales.occurred_at < ?", filters.To.UTC())
	}

	var summary SalesSummary
	if err := saleQuery.Count(&summary.SaleCount).Error; err != nil {
		return nil, fmt.Errorf("sale service: count sales: %w", err)
	}

	var revenue *float64
	if err := saleQuery.Select("SUM(total)").Scan(&revenue).Error; err != nil {
		return nil, fmt.Errorf("sale service: sum revenue: %w", err)
	}
	if revenue != nil {
		summary.GrossRevenue = roundCents(*revenue)
	}

	var units *int64
	if err := lineQuery.Select("SUM(sale_lines.quantity)").Scan(&units).Error; err != nil {
		return nil, fmt.Errorf("sale service: sum units: %w", err)
	}
	if units != nil {
		summary.UnitsSold = *units
	}

	return &summary, nil
}

// BestSellers ranks items by units sold, descending. Limit defaults to 5.
func (s *SaleService) BestSellers(ctx context.Context, workspaceID, actorID string, limit int) ([]BestSeller, error) {
	db := s.db.WithContext(ensureContext(ctx))

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	var rows []BestSeller
	err := db.Model(&models.SaleLine{}).
		Select("sale_lines.item_id AS item_id, inventory_items.name AS name, SUM(sale_lines.quantity) AS units_sold, SUM(sale_lines.subtotal) AS revenue").
		Joins("JOIN sales ON sales.id = sale_lines.sale_id").
		Joins("JOIN inventory_items ON inventory_items.id = sale_lines.item_id").
		Where("sales.workspace_id = ?", workspaceID).
		Group("sale_lines.item_id, inventory_items.name").
		Order("units_sold DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sale service: best sellers: %w", err)
	}
	return rows, nil
}

// ItemHistory returns an item's sale lines, newest first.
func (s *SaleService) ItemHistory(ctx context.Context, workspaceID, actorID, itemID string) ([]ItemSaleRecord, error) {
	db := s.db.WithContext(ensureContext(ctx))

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}

	var count int64
	if err := db.Model(&models.InventoryItem{}).
		Where("id = ? AND workspace_id = ?", itemID, workspaceID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("sale service: check item: %w", err)
	}
	if count == 0 {
		return nil, ErrItemNotFound
	}

	var records []ItemSaleRecord
	err := db.Model(&models.SaleLine{}).
		Select("sale_lines.sale_id AS sale_id, sales.occurred_at AS occurred_at, sale_lines.quantity AS quantity, sale_lines.unit_price AS unit_price, sale_lines.discount_percent AS discount_percent, sale_lines.subtotal AS subtotal").
		Joins("JOIN sales ON sales.id = sale_lines.sale_id").
		Where("sale_lines.item_id = ? AND sales.workspace_id = ?", itemID, workspaceID).
		Order("sales.occurred_at DESC").
		Scan(&records).Error
	if err != nil {
		return nil, fmt.Errorf("sale service: item history: %w", err)
	}
	return records, nil
}

func validateSaleLines(lines []SaleLineInput) error {
	if len(lines) == 0 {
		return apperrors.NewBadRequest("a sale needs at least one line")
	}
	for _, line := range lines {
		if line.ItemID == "" {
			return apperrors.NewBadRequest("every sale line needs an item id")
		}
		if line.Quantity <= 0 {
			return apperrors.NewBadRequest("quantity must be positive")
		}
		if line.DiscountPercent < 0 || line.DiscountPercent > 100 {
			return apperrors.NewBadRequest("discount must be between 0 and 100")
		}
	}
	return nil
}

func quantitiesByItem(lines []SaleLineInput) map[string]int {
	needed := make(map[string]int, len(lines))
	for _, line := range lines {
		needed[line.ItemID] += line.Quantity
	}
	return needed
}

func isSaleRejection(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrTotalMismatch) ||
		errors.Is(err, ErrItemInactive) ||
		errors.Is(err, ErrItemNotFound)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
