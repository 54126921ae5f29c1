package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tallyhq/tally/internal/services"
	"github.com/tallyhq/tally/pkg/response"
)

// ItemHandler exposes the workspace catalogue endpoints.
type ItemHandler struct {
	inventory *services.InventoryService
	sales     *services.SaleService
}

// NewItemHandler constructs an ItemHandler.
func NewItemHandler(inventory *services.InventoryService, sales *services.SaleService) *ItemHandler {
	return &ItemHandler{inventory: inventory, sales: sales}
}

type addItemRequest struct {
	Name       string  `json:"name" validate:"required,max=200"`
	Price      float64 `json:"price" validate:"gte=0"`
	StockLevel int     `json:"stock_level" validate:"gte=0"`
	ImagePath  string  `json:"image_path" validate:"max=500"`
}

type updateItemRequest struct {
	Name       *string  `json:"name" validate:"omitempty,max=200"`
	Price      *float64 `json:"price" validate:"omitempty,gte=0"`
	StockLevel *int     `json:"stock_level" validate:"omitempty,gte=0"`
	ImagePath  *string  `json:"image_path" validate:"omitempty,max=500"`
}

// List returns catalogue items. ?active=true limits to active items, ?q=
// filters by name and ?price_min/?price_max/?stock_min/?stock_max bound the
// price and stock ranges.
func (h *ItemHandler) List(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	filters := services.ItemFilters{
		ActiveOnly: strings.EqualFold(c.Query("active"), "true"),
		Query:      c.Query("q"),
		MinPrice:   parseFloatQuery(c, "price_min"),
		MaxPrice:   parseFloatQuery(c, "price_max"),
		MinStock:   parseOptionalIntQuery(c, "stock_min"),
		MaxStock:   parseOptionalIntQuery(c, "stock_max"),
	}

	items, err := h.inventory.ListItems(requestContext(c), c.Param("id"), userID, filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// Create adds a catalogue item.
func (h *ItemHandler) Create(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	var req addItemRequest
	if !bindAndValidate(c, &req) {
		return
	}

	item, err := h.inventory.AddItem(requestContext(c), c.Param("id"), userID, services.AddItemInput{
		Name:       req.Name,
		Price:      req.Price,
		StockLevel: req.StockLevel,
		ImagePath:  req.ImagePath,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}

// Get returns one item.
func (h *ItemHandler) Get(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	item, err := h.inventory.GetItem(requestContext(c), c.Param("id"), userID, c.Param("itemID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// Update edits an item.
func (h *ItemHandler) Update(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	var req updateItemRequest
	if !bindAndValidate(c, &req) {
		return
	}

	item, err := h.inventory.UpdateItem(requestContext(c), c.Param("id"), userID, c.Param("itemID"), services.UpdateItemInput{
		Name:       req.Name,
		Price:      req.Price,
		StockLevel: req.StockLevel,
		ImagePath:  req.ImagePath,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// Deactivate soft-deletes an item, keeping its sale history.
func (h *ItemHandler) Deactivate(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	if err := h.inventory.DeactivateItem(requestContext(c), c.Param("id"), userID, c.Param("itemID")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "item deactivated"})
}

// History returns the item's sale lines, newest first.
func (h *ItemHandler) History(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	history, err := h.sales.ItemHistory(requestContext(c), c.Param("id"), userID, c.Param("itemID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, history)
}
