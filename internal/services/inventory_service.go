package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/models"
	apperrors "github.com/tallyhq/tally/pkg/errors"
)

var (
	// ErrItemNotFound indicates the item does not exist in this workspace.
	ErrItemNotFound = apperrors.New("ITEM_NOT_FOUND", "Item not found", http.StatusNotFound)
	// ErrDuplicateItemName signals an active item with the same name already exists.
	ErrDuplicateItemName = apperrors.New("DUPLICATE_ITEM_NAME", "An active item with this name already exists", http.StatusConflict)
	// ErrItemInactive rejects operations on deactivated items.
	ErrItemInactive = apperrors.New("ITEM_INACTIVE", "This item has been deactivated", http.StatusConflict)
)

// AddItemInput describes a new catalogue item.
type AddItemInput struct {
	Name       string
	Price      float64
	StockLevel int
	ImagePath  string
}

// UpdateItemInput enumerates the mutable item attributes. Nil fields are left
// unchanged.
type UpdateItemInput struct {
	Name       *string
	Price      *float64
	StockLevel *int
	ImagePath  *string
}

// ItemFilters narrows catalogue listings. Nil bounds are open-ended.
type ItemFilters struct {
	ActiveOnly bool
	Query      string
	MinPrice   *float64
	MaxPrice   *float64
	MinStock   *int
	MaxStock   *int
}

// InventoryService manages the per-workspace product catalogue.
type InventoryService struct {
	db *gorm.DB
}

// NewInventoryService constructs an InventoryService.
func NewInventoryService(db *gorm.DB) (*InventoryService, error) {
	if db == nil {
		return nil, errors.New("inventory service: db is required")
	}
	return &InventoryService{db: db}, nil
}

// AddItem creates a catalogue item. Member only. Name uniqueness among active
// items is enforced by the partial index, so concurrent adds cannot slip
// through.
func (s *InventoryService) AddItem(ctx context.Context, workspaceID, actorID string, input AddItemInput) (*models.InventoryItem, error) {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx)

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}
	if err := validateItemFields(input.Name, input.Price, input.StockLevel); err != nil {
		return nil, err
	}

	item := &models.InventoryItem{
		WorkspaceID: workspaceID,
		Name:        strings.TrimSpace(input.Name),
		Price:       input.Price,
		StockLevel:  input.StockLevel,
		ImagePath:   strings.TrimSpace(input.ImagePath),
		IsActive:    true,
	}

	if err := db.Create(item).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateItemName.Detailf("an active item named %q already exists", item.Name)
		}
		return nil, fmt.Errorf("inventory service: create item: %w", err)
	}
	return item, nil
}

// UpdateItem edits an active item. Member only. Renames compete on the same
// active-name rule as AddItem.
func (s *InventoryService) UpdateItem(ctx context.Context, workspaceID, actorID, itemID string, input UpdateItemInput) (*models.InventoryItem, error) {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx)

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}

	item, err := s.findItem(db, workspaceID, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, ErrItemInactive
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("item name is required")
		}
		updates["name"] = name
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return nil, apperrors.NewBadRequest("price cannot be negative")
		}
		updates["price"] = *input.Price
	}
	if input.StockLevel != nil {
		if *input.StockLevel < 0 {
			return nil, apperrors.NewBadRequest("stock level cannot be negative")
		}
		updates["stock_level"] = *input.StockLevel
	}
	if input.ImagePath != nil {
		updates["image_path"] = strings.TrimSpace(*input.ImagePath)
	}
	if len(updates) == 0 {
		return item, nil
	}

	if err := db.Model(item).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateItemName
		}
		return nil, fmt.Errorf("inventory service: update item: %w", err)
	}
	return s.findItem(db, workspaceID, itemID)
}

// DeactivateItem soft-deletes an item. Sale history keeps pointing at the row,
// and the name becomes reusable for a fresh item.
func (s *InventoryService) DeactivateItem(ctx context.Context, workspaceID, actorID, itemID string) error {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx)

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return err
	}

	result := db.Model(&models.InventoryItem{}).
		Where("id = ? AND workspace_id = ? AND is_active = ?", itemID, workspaceID, true).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("inventory service: deactivate item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// GetItem returns a single item scoped to the workspace. Member only.
func (s *InventoryService) GetItem(ctx context.Context, workspaceID, actorID, itemID string) (*models.InventoryItem, error) {
	db := s.db.WithContext(ensureContext(ctx))

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}
	return s.findItem(db, workspaceID, itemID)
}

// ListItems returns catalogue items, name-ordered. Member only.
func (s *InventoryService) ListItems(ctx context.Context, workspaceID, actorID string, filters ItemFilters) ([]models.InventoryItem, error) {
	db := s.db.WithContext(ensureContext(ctx))

	if err := requireMember(db, workspaceID, actorID); err != nil {
		return nil, err
	}

	query := db.Where("workspace_id = ?", workspaceID)
	if filters.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if q := strings.TrimSpace(filters.Query); q != "" {
		query = query.Where("name LIKE ?", "%"+q+"%")
	}
	if filters.MinPrice != nil {
		query = query.Where("price >= ?", *filters.MinPrice)
	}
	if filters.MaxPrice != nil {
		query = query.Where("price <= ?", *filters.MaxPrice)
	}
	if filters.MinStock != nil {
		query = query.Where("stock_level >= ?", *filters.MinStock)
	}
	if filters.MaxStock != nil {
		query = query.Where("stock_level <= ?", *filters.MaxStock)
	}

	var items []models.InventoryItem
	if err := query.Order("name ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("inventory service: list items: %w", err)
	}
	return items, nil
}

func (s *InventoryService) findItem(db *gorm.DB, workspaceID, itemID string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := db.First(&item, "id = ? AND workspace_id = ?", itemID, workspaceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("inventory service: load item: %w", err)
	}
	return &item, nil
}

func validateItemFields(name string, price float64, stock int) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewBadRequest("item name is required")
	}
	if price < 0 {
		return apperrors.NewBadRequest("price cannot be negative")
	}
	if stock < 0 {
		return apperrors.NewBadRequest("stock level cannot be negative")
	}
	return nil
}
