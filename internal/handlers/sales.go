package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tallyhq/tally/internal/services"
	apperrors "github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/response"
)

// SaleHandler exposes the sale recording and reporting endpoints.
type SaleHandler struct {
	sales *services.SaleService
}

// NewSaleHandler constructs a SaleHandler.
func NewSaleHandler(sales *services.SaleService) *SaleHandler {
	return &SaleHandler{sales: sales}
}

type saleLineRequest struct {
	ItemID          string  `json:"item_id" validate:"required"`
	Quantity        int     `json:"quantity" validate:"required,gt=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
}

type recordSaleRequest struct {
	OccurredAt *time.Time        `json:"occurred_at"`
	Total      *float64          `json:"total" validate:"omitempty,gte=0"`
	Lines      []saleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// Record commits a sale transaction.
func (h *SaleHandler) Record(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	var req recordSaleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.RecordSaleInput{
		OccurredAt: req.OccurredAt,
		Total:      req.Total,
		Lines:      make([]services.SaleLineInput, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, services.SaleLineInput{
			ItemID:          line.ItemID,
			Quantity:        line.Quantity,
			DiscountPercent: line.DiscountPercent,
		})
	}

	sale, err := h.sales.RecordSale(requestContext(c), c.Param("id"), userID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, sale)
}

// List returns committed sales, newest first. ?from= and ?to= take RFC 3339
// timestamps and ?limit= caps the result.
func (h *SaleHandler) List(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	filters, ok := parseSaleFilters(c)
	if !ok {
		return
	}

	sales, err := h.sales.ListSales(requestContext(c), c.Param("id"), userID, filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, sales)
}

// Summary aggregates the workspace's sales over an optional window.
func (h *SaleHandler) Summary(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	filters, ok := parseSaleFilters(c)
	if !ok {
		return
	}

	summary, err := h.sales.Summary(requestContext(c), c.Param("id"), userID, filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// BestSellers ranks items by units sold.
func (h *SaleHandler) BestSellers(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	best, err := h.sales.BestSellers(requestContext(c), c.Param("id"), userID, parseIntQuery(c, "limit", 5))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, best)
}

func parseSaleFilters(c *gin.Context) (services.SaleFilters, bool) {
	filters := services.SaleFilters{Limit: parseIntQuery(c, "limit", 0)}

	for key, dest := range map[string]**time.Time{"from": &filters.From, "to": &filters.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest(key+" must be an RFC 3339 timestamp"))
			return services.SaleFilters{}, false
		}
		*dest = &parsed
	}
	return filters, true
}
