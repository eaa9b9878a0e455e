package models

import "time"

// PlaceholderName is persisted as the item name until image analysis finishes.
const PlaceholderName = "Processing..."

// GroceryItem represents one grocery purchase record.
//
// An item is created in a "processing" state (placeholder name, no image
// references) and finalized once both images are stored and analyzed. The
// nutrition fields are pointers because "unknown" is null, not zero.
type GroceryItem struct {
	ID          string   `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	UserID      string   `json:"user_id" gorm:"index;type:varchar(36);not null"`
	Name        string   `json:"name" gorm:"type:varchar(100);not null"`
	Price       float64  `json:"price" validate:"gte=0"`
	Quantity    int      `json:"quantity" validate:"gte=1"`
	Calories    *float64 `json:"calories"`
	Protein     *float64 `json:"protein"`
	Carbs       *float64 `json:"carbs"`
	Fat         *float64 `json:"fat"`
	Fiber       *float64 `json:"fiber"`
	Sugar       *float64 `json:"sugar"`
	Sodium      *float64 `json:"sodium"`
	Cholesterol *float64 `json:"cholesterol"`

	// Filenames inside the upload area, not binary content.
	ProductImage   string `json:"product_image" gorm:"type:varchar(255)"`
	NutritionImage string `json:"nutrition_image" gorm:"type:varchar(255)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
