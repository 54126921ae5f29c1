package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/models"
)

type saleFixture struct {
	db        *gorm.DB
	ownerID   string
	workspace string
	mug       *models.InventoryItem
	apron     *models.InventoryItem
	sales     *SaleService
	inventory *InventoryService
}

func newSaleFixture(t *testing.T, opts ...SaleOption) *saleFixture {
	t.Helper()

	db := openServiceTestDB(t)
	owner, workspace := registerTestUser(t, db, "owner@example.com", "Olive")

	inventory, err := NewInventoryService(db)
	require.NoError(t, err)
	sales, err := NewSaleService(db, opts...)
	require.NoError(t, err)

	ctx := context.Background()
	mug, err := inventory.AddItem(ctx, workspace.ID, owner.ID, AddItemInput{Name: "Mug", Price: 9.5, StockLevel: 20})
	require.NoError(t, err)
	apron, err := inventory.AddItem(ctx, workspace.ID, owner.ID, AddItemInput{Name: "Apron", Price: 24, StockLevel: 5})
	require.NoError(t, err)

	return &saleFixture{
		db:        db,
		ownerID:   owner.ID,
		workspace: workspace.ID,
		mug:       mug,
		apron:     apron,
		sales:     sales,
		inventory: inventory,
	}
}

func (f *saleFixture) stockOf(t *testing.T, itemID string) int {
	t.Helper()

	var item models.InventoryItem
	require.NoError(t, f.db.First(&item, "id = ?", itemID).Error)
	return item.StockLevel
}

func TestRecordSaleCommitsAndDecrementsStock(t *testing.T) {
	occurred := time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)
	f := newSaleFixture(t, WithSaleClock(func() time.Time { return occurred }))
	ctx := context.Background()

	sale, err := f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		Lines: []SaleLineInput{
			{ItemID: f.mug.ID, Quantity: 2},
			{ItemID: f.apron.ID, Quantity: 1, DiscountPercent: 10},
		},
	})
	require.NoError(t, err)

	// 2 * 9.50 + 24 * 0.9 = 40.60
	require.Equal(t, 40.60, sale.Total)
	require.Equal(t, occurred, sale.OccurredAt.UTC())
	require.Len(t, sale.Lines, 2)
	require.Equal(t, 9.5, sale.Lines[0].UnitPrice)
	require.Equal(t, 19.0, sale.Lines[0].Subtotal)
	require.Equal(t, 21.6, sale.Lines[1].Subtotal)

	require.Equal(t, 18, f.stockOf(t, f.mug.ID))
	require.Equal(t, 4, f.stockOf(t, f.apron.ID))
}

func TestRecordSaleInsufficientStockRollsBack(t *testing.T) {
	f := newSaleFixture(t)
	ctx := context.Background()

	_, err := f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		Lines: []SaleLineInput{
			{ItemID: f.mug.ID, Quantity: 2},
			{ItemID: f.apron.ID, Quantity: 6}, // only 5 in stock
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "Apron")

	// Nothing committed, no stock moved.
	require.Equal(t, 20, f.stockOf(t, f.mug.ID))
	require.Equal(t, 5, f.stockOf(t, f.apron.ID))

	var count int64
	require.NoError(t, f.db.Model(&models.Sale{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestRecordSaleAggregatesDuplicateLines(t *testing.T) {
	f := newSaleFixture(t)
	ctx := context.Background()

	// 3 + 3 = 6 exceeds the 5 in stock even though each line alone fits.
	_, err := f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		Lines: []SaleLineInput{
			{ItemID: f.apron.ID, Quantity: 3},
			{ItemID: f.apron.ID, Quantity: 3},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	sale, err := f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		Lines: []SaleLineInput{
			{ItemID: f.apron.ID, Quantity: 2},
			{ItemID: f.apron.ID, Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Len(t, sale.Lines, 2)
	require.Equal(t, 0, f.stockOf(t, f.apron.ID))
}

func TestRecordSaleRejectsInactiveAndForeignItems(t *testing.T) {
	f := newSaleFixture(t)
	ctx := context.Background()

	require.NoError(t, f.inventory.DeactivateItem(ctx, f.workspace, f.ownerID, f.mug.ID))
	_, err := f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		Lines: []SaleLineInput{{ItemID: f.mug.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrItemInactive)

	// An item from another workspace is invisible here.
	other, otherWorkspace := registerTestUser(t, f.db, "other@example.com", "Odette")
	foreign, err := f.inventory.AddItem(ctx, otherWorkspace.ID, other.ID, AddItemInput{Name: "Vase", Price: 30, StockLevel: 3})
	require.NoError(t, err)

	_, err = f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		Lines: []SaleLineInput{{ItemID: foreign.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrItemNotFound)
	require.Equal(t, 3, f.stockOf(t, foreign.ID))
}

func TestRecordSaleTotalCheck(t *testing.T) {
	f := newSaleFixture(t)
	ctx := context.Background()

	lines := []SaleLineInput{{ItemID: f.mug.ID, Quantity: 2}}

	wrong := 18.0 // catalogue says 19.00
	_, err := f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{Total: &wrong, Lines: lines})
	require.ErrorIs(t, err, ErrTotalMismatch)
	require.Equal(t, 20, f.stockOf(t, f.mug.ID))

	// Sub-tolerance drift from client float arithmetic is accepted.
	approx := 19.001
	sale, err := f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{Total: &approx, Lines: lines})
	require.NoError(t, err)
	require.Equal(t, 19.0, sale.Total)
}

func TestRecordSaleValidation(t *testing.T) {
	f := newSaleFixture(t)
	ctx := context.Background()

	_, err := f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{})
	require.Error(t, err)

	_, err = f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		Lines: []SaleLineInput{{ItemID: f.mug.ID, Quantity: 0}},
	})
	require.Error(t, err)

	_, err = f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		Lines: []SaleLineInput{{ItemID: f.mug.ID, Quantity: 1, DiscountPercent: 120}},
	})
	require.Error(t, err)

	outsider, _ := registerTestUser(t, f.db, "outsider@example.com", "Oscar")
	_, err = f.sales.RecordSale(ctx, f.workspace, outsider.ID, RecordSaleInput{
		Lines: []SaleLineInput{{ItemID: f.mug.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrNotMember)
}

func TestListSalesAndSummary(t *testing.T) {
	f := newSaleFixture(t)
	ctx := context.Background()

	day1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

	_, err := f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		OccurredAt: &day1,
		Lines:      []SaleLineInput{{ItemID: f.mug.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	_, err = f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		OccurredAt: &day2,
		Lines:      []SaleLineInput{{ItemID: f.apron.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	sales, err := f.sales.ListSales(ctx, f.workspace, f.ownerID, SaleFilters{})
	require.NoError(t, err)
	require.Len(t, sales, 2)
	require.Equal(t, day2, sales[0].OccurredAt.UTC()) // newest first
	require.Len(t, sales[0].Lines, 1)

	summary, err := f.sales.Summary(ctx, f.workspace, f.ownerID, SaleFilters{})
	require.NoError(t, err)
	require.EqualValues(t, 2, summary.SaleCount)
	require.Equal(t, 43.0, summary.GrossRevenue)
	require.EqualValues(t, 3, summary.UnitsSold)

	// Window that only covers day1.
	cutoff := day1.Add(12 * time.Hour)
	windowed, err := f.sales.Summary(ctx, f.workspace, f.ownerID, SaleFilters{To: &cutoff})
	require.NoError(t, err)
	require.EqualValues(t, 1, windowed.SaleCount)
	require.Equal(t, 19.0, windowed.GrossRevenue)
}

func TestBestSellersAndItemHistory(t *testing.T) {
	f := newSaleFixture(t)
	ctx := context.Background()

	_, err := f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		Lines: []SaleLineInput{
			{ItemID: f.mug.ID, Quantity: 5},
			{ItemID: f.apron.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	_, err = f.sales.RecordSale(ctx, f.workspace, f.ownerID, RecordSaleInput{
		Lines: []SaleLineInput{{ItemID: f.mug.ID, Quantity: 3}},
	})
	require.NoError(t, err)

	best, err := f.sales.BestSellers(ctx, f.workspace, f.ownerID, 10)
	require.NoError(t, err)
	require.Len(t, best, 2)
	require.Equal(t, "Mug", best[0].Name)
	require.EqualValues(t, 8, best[0].UnitsSold)
	require.Equal(t, 76.0, best[0].Revenue)

	history, err := f.sales.ItemHistory(ctx, f.workspace, f.ownerID, f.mug.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 9.5, history[0].UnitPrice)

	_, err = f.sales.ItemHistory(ctx, f.workspace, f.ownerID, "no-such-item")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestSummaryEmptyWorkspace(t *testing.T) {
	f := newSaleFixture(t)

	summary, err := f.sales.Summary(context.Background(), f.workspace, f.ownerID, SaleFilters{})
	require.NoError(t, err)
	require.EqualValues(t, 0, summary.SaleCount)
	require.Equal(t, 0.0, summary.GrossRevenue)
	require.EqualValues(t, 0, summary.UnitsSold)
}
