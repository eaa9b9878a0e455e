package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"grocetrack/internal/models"
	"grocetrack/internal/repositories"
	"grocetrack/pkg/imageutil"
	"grocetrack/pkg/vision"

	"github.com/spf13/afero"
	"gorm.io/gorm"
)

// VisionAnalyzer extracts a product name or nutrition facts from an image.
// Implementations never fail; they degrade to fallback values instead.
type VisionAnalyzer interface {
	ProductName(ctx context.Context, image []byte) string
	NutritionFacts(ctx context.Context, image []byte) vision.NutritionFacts
}

// EventPublisher emits item lifecycle events. Publication is best-effort:
// failures are logged and never surfaced to API clients.
type EventPublisher interface {
	PublishItemEvent(event string, payload map[string]interface{}) error
}

// ImageUpload is one uploaded image file: its client-supplied filename (used
// only for extension validation) and raw content.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// ItemService orchestrates the grocery item ingestion pipeline: validate,
// normalize, persist a placeholder row, store images, analyze, finalize.
// Each ingestion is a staged commit sequence (Created -> ImagesStored ->
// Finalized) with compensating deletion on failure from any non-terminal
// state, so a crash mid-analysis leaves a recoverable row while a failed
// request leaves nothing behind.
type ItemService struct {
	itemRepo  repositories.ItemRepository
	analyzer  VisionAnalyzer
	fs        afero.Fs
	uploadDir string
	publisher EventPublisher
}

// NewItemService creates a new ItemService. publisher may be nil, in which
// case no events are emitted.
func NewItemService(itemRepo repositories.ItemRepository, analyzer VisionAnalyzer, fs afero.Fs, uploadDir string, publisher EventPublisher) *ItemService {
	return &ItemService{
		itemRepo:  itemRepo,
		analyzer:  analyzer,
		fs:        fs,
		uploadDir: uploadDir,
		publisher: publisher,
	}
}

// CreateItem runs the full ingestion workflow for one grocery purchase.
//
// Validation failures return ErrValidation before anything is persisted.
// Once the placeholder row exists, any later failure removes the row and any
// written image files before the error is surfaced, so a failed ingestion
// has zero net effect. Analysis failures are not failures here: the vision
// layer degrades to fallback values and the item still finalizes.
func (s *ItemService) CreateItem(ctx context.Context, userID string, price float64, quantity int, productUpload, nutritionUpload ImageUpload) (*models.GroceryItem, error) {
	if err := validateUpload(productUpload, "product image"); err != nil {
		return nil, err
	}
	if err := validateUpload(nutritionUpload, "nutrition image"); err != nil {
		return nil, err
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: price must be non-negative", ErrValidation)
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	productData := imageutil.Normalize(productUpload.Data)
	nutritionData := imageutil.Normalize(nutritionUpload.Data)

	// Commit the placeholder before the slow analysis work so price and
	// quantity survive a crash mid-pipeline.
	item := &models.GroceryItem{
		UserID:   userID,
		Name:     models.PlaceholderName,
		Price:    price,
		Quantity: quantity,
	}
	if err := s.itemRepo.Create(item); err != nil {
		return nil, fmt.Errorf("failed to create item record: %w", err)
	}

	if err := s.finalizeItem(ctx, item, productData, nutritionData); err != nil {
		s.removeImageFiles(item.ID)
		if delErr := s.itemRepo.Delete(item.ID); delErr != nil {
			log.Printf("Failed to roll back item %s: %v", item.ID, delErr)
		}
		return nil, err
	}

	s.publishEvent("item.created", item)
	return item, nil
}

// finalizeItem stores both images, records their references, then merges the
// analysis results into the row.
func (s *ItemService) finalizeItem(ctx context.Context, item *models.GroceryItem, productData, nutritionData []byte) error {
	productFile := productImageName(item.ID)
	nutritionFile := nutritionImageName(item.ID)

	if err := s.writeImage(productFile, productData); err != nil {
		return err
	}
	if err := s.writeImage(nutritionFile, nutritionData); err != nil {
		return err
	}

	item.ProductImage = productFile
	item.NutritionImage = nutritionFile
	if err := s.itemRepo.Update(item); err != nil {
		return fmt.Errorf("failed to store image references: %w", err)
	}

	item.Name = s.analyzer.ProductName(ctx, productData)
	facts := s.analyzer.NutritionFacts(ctx, nutritionData)
	item.Calories = facts.Calories
	item.Protein = facts.Protein
	item.Carbs = facts.Carbs
	item.Fat = facts.Fat
	item.Fiber = facts.Fiber
	item.Sugar = facts.Sugar
	item.Sodium = facts.Sodium
	item.Cholesterol = facts.Cholesterol

	if err := s.itemRepo.Update(item); err != nil {
		return fmt.Errorf("failed to finalize item: %w", err)
	}
	return nil
}

// ListItems retrieves every item owned by the given user.
func (s *ItemService) ListItems(userID string) ([]models.GroceryItem, error) {
	return s.itemRepo.GetAllByUser(userID)
}

// DeleteItem removes an item owned by the given user along with its stored
// images. Image removal is best-effort; a missing file never blocks the row
// deletion. A nonexistent id and an ownership mismatch both yield
// ErrNotFound.
func (s *ItemService) DeleteItem(userID, itemID string) error {
	item, err := s.itemRepo.GetByIDForUser(itemID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
		}
		return err
	}

	s.removeImageFiles(item.ID)
	if err := s.itemRepo.Delete(item.ID); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", itemID, err)
	}

	s.publishEvent("item.deleted", item)
	return nil
}

// nutritionSetters is the explicit allow-list of patchable nutrition fields.
// Unknown names are rejected rather than silently applied.
var nutritionSetters = map[string]func(*models.GroceryItem, *float64){
	"calories":    func(i *models.GroceryItem, v *float64) { i.Calories = v },
	"protein":     func(i *models.GroceryItem, v *float64) { i.Protein = v },
	"carbs":       func(i *models.GroceryItem, v *float64) { i.Carbs = v },
	"fat":         func(i *models.GroceryItem, v *float64) { i.Fat = v },
	"fiber":       func(i *models.GroceryItem, v *float64) { i.Fiber = v },
	"sugar":       func(i *models.GroceryItem, v *float64) { i.Sugar = v },
	"sodium":      func(i *models.GroceryItem, v *float64) { i.Sodium = v },
	"cholesterol": func(i *models.GroceryItem, v *float64) { i.Cholesterol = v },
}

// UpdateNutrition applies manual corrections to an item's nutrition values.
// Only the eight known nutrition fields are accepted.
func (s *ItemService) UpdateNutrition(userID, itemID string, values map[string]*float64) (*models.GroceryItem, error) {
	item, err := s.itemRepo.GetByIDForUser(itemID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
		}
		return nil, err
	}

	for field, value := range values {
		setter, ok := nutritionSetters[field]
		if !ok {
			return nil, fmt.Errorf("%w: unknown nutrition field '%s'", ErrValidation, field)
		}
		setter(item, value)
	}

	if err := s.itemRepo.Update(item); err != nil {
		return nil, fmt.Errorf("failed to update nutrition for item %s: %w", itemID, err)
	}
	return item, nil
}

var allowedExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

func validateUpload(upload ImageUpload, label string) error {
	if upload.Filename == "" || len(upload.Data) == 0 {
		return fmt.Errorf("%w: %s is required", ErrValidation, label)
	}
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: only PNG, JPG, and JPEG files are allowed", ErrValidation)
	}
	return nil
}

func productImageName(itemID string) string {
	return fmt.Sprintf("product_%s.jpg", itemID)
}

func nutritionImageName(itemID string) string {
	return fmt.Sprintf("nutrition_%s.jpg", itemID)
}

func (s *ItemService) writeImage(name string, data []byte) error {
	path := filepath.Join(s.uploadDir, name)
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write image %s: %w", name, err)
	}
	return nil
}

// removeImageFiles deletes the item's stored images by their deterministic
// names. Failures are swallowed: file cleanup must never block row cleanup.
func (s *ItemService) removeImageFiles(itemID string) {
	for _, name := range []string{productImageName(itemID), nutritionImageName(itemID)} {
		if err := s.fs.Remove(filepath.Join(s.uploadDir, name)); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
			log.Printf("Failed to remove image file %s: %v", name, err)
		}
	}
}

func (s *ItemService) publishEvent(event string, item *models.GroceryItem) {
	if s.publisher == nil {
		return
	}
	payload := map[string]interface{}{
		"item_id": item.ID,
		"user_id": item.UserID,
		"name":    item.Name,
	}
	if err := s.publisher.PublishItemEvent(event, payload); err != nil {
		log.Printf("Warning: Failed to publish %s event for item %s: %v", event, item.ID, err)
	}
}
