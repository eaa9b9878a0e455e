package repositories

import (
	"errors"
	"fmt"

	"grocetrack/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMItemRepository is a GORM implementation of ItemRepository.
type GORMItemRepository struct {
	db *gorm.DB
}

// NewGORMItemRepository creates a new instance of GORMItemRepository.
func NewGORMItemRepository(db *gorm.DB) *GORMItemRepository {
	return &GORMItemRepository{
		db: db,
	}
}

// GetAllByUser retrieves every item owned by the given user.
func (r *GORMItemRepository) GetAllByUser(userID string) ([]models.GroceryItem, error) {
	var items []models.GroceryItem
	if err := r.db.Where("user_id = ?", userID).Order("created_at").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to get items for user %s: %w", userID, err)
	}
	return items, nil
}

// GetByIDForUser retrieves a single item by id, scoped to its owner. A
// nonexistent id and an ownership mismatch are indistinguishable to the
// caller.
func (r *GORMItemRepository) GetByIDForUser(id, userID string) (*models.GroceryItem, error) {
	var item models.GroceryItem
	if err := r.db.First(&item, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item with ID %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get item by ID %s: %w", id, err)
	}
	return &item, nil
}

// Create creates a new item in the database.
func (r *GORMItemRepository) Create(item *models.GroceryItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if err := r.db.Create(item).Error; err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// Update updates an existing item in the database. Save writes all fields,
// including null nutrition values.
func (r *GORMItemRepository) Update(item *models.GroceryItem) error {
	res := r.db.Save(item)
	if res.Error != nil {
		return fmt.Errorf("failed to update item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("item with ID %s not found for update: %w", item.ID, gorm.ErrRecordNotFound)
	}
	return nil
}

// Delete deletes an item by its ID from the database.
func (r *GORMItemRepository) Delete(id string) error {
	res := r.db.Delete(&models.GroceryItem{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("item with ID %s not found for deletion: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
