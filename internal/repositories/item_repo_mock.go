package repositories

import (
	"fmt"
	"sort"
	"sync"

	"grocetrack/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MockItemRepository is an in-memory implementation of ItemRepository.
type MockItemRepository struct {
	items map[string]models.GroceryItem
	mu    sync.RWMutex
}

// NewMockItemRepository creates a new instance of MockItemRepository.
func NewMockItemRepository() *MockItemRepository {
	return &MockItemRepository{
		items: make(map[string]models.GroceryItem),
	}
}

// GetAllByUser returns all items owned by the given user.
func (r *MockItemRepository) GetAllByUser(userID string) ([]models.GroceryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	itemList := make([]models.GroceryItem, 0)
	for _, item := range r.items {
		if item.UserID == userID {
			itemList = append(itemList, item)
		}
	}
	sort.Slice(itemList, func(i, j int) bool {
		return itemList[i].CreatedAt.Before(itemList[j].CreatedAt)
	})
	return itemList, nil
}

// GetByIDForUser returns an item by id if it is owned by the given user.
func (r *MockItemRepository) GetByIDForUser(id, userID string) (*models.GroceryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok || item.UserID != userID {
		return nil, fmt.Errorf("item with ID %s not found: %w", id, gorm.ErrRecordNotFound)
	}
	return &item, nil
}

// Create adds a new item.
func (r *MockItemRepository) Create(item *models.GroceryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	r.items[item.ID] = *item
	return nil
}

// Update modifies an existing item.
func (r *MockItemRepository) Update(item *models.GroceryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.items[item.ID]
	if !ok {
		return fmt.Errorf("item with ID %s not found for update: %w", item.ID, gorm.ErrRecordNotFound)
	}
	r.items[item.ID] = *item
	return nil
}

// Delete removes an item by its ID.
func (r *MockItemRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.items[id]
	if !ok {
		return fmt.Errorf("item with ID %s not found for deletion: %w", id, gorm.ErrRecordNotFound)
	}
	delete(r.items, id)
	return nil
}
