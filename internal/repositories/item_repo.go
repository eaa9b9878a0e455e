package repositories

import "grocetrack/internal/models"

// ItemRepository defines the interface for grocery item data access. All
// reads are filtered by the owning user so one user can never observe
// another's items.
type ItemRepository interface {
	GetAllByUser(userID string) ([]models.GroceryItem, error)
	GetByIDForUser(id, userID string) (*models.GroceryItem, error)
	Create(item *models.GroceryItem) error
	Update(item *models.GroceryItem) error
	Delete(id string) error
}
