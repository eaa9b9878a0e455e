package handlers

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"strconv"

	"grocetrack/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ItemHandler handles HTTP requests for grocery items.
type ItemHandler struct {
	service *services.ItemService
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(service *services.ItemService) *ItemHandler {
	return &ItemHandler{
		service: service,
	}
}

// RegisterRoutes registers the item routes. The router is expected to sit
// behind the auth middleware.
func (h *ItemHandler) RegisterRoutes(router fiber.Router) {
	itemRoutes := router.Group("/items")
	itemRoutes.Get("/", h.HandleGetItems)
	itemRoutes.Post("/", h.HandleCreateItem)
	itemRoutes.Delete("/:id", h.HandleDeleteItem)
	itemRoutes.Patch("/:id/nutrition", h.HandleUpdateNutrition)
}

// HandleGetItems returns every item owned by the authenticated user.
func (h *ItemHandler) HandleGetItems(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	items, err := h.service.ListItems(userID)
	if err != nil {
		log.Printf("Error getting items for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not retrieve items",
		})
	}
	return c.JSON(items)
}

// HandleCreateItem runs the ingestion workflow on a multipart upload with
// product_image and nutrition_image file parts plus price and quantity form
// fields.
func (h *ItemHandler) HandleCreateItem(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	productFile, err := c.FormFile("product_image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Both product and nutrition images are required",
		})
	}
	nutritionFile, err := c.FormFile("nutrition_image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Both product and nutrition images are required",
		})
	}

	price, quantity, err := parsePriceQuantity(c.FormValue("price"), c.FormValue("quantity"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid price or quantity format",
		})
	}

	productUpload, err := readUpload(productFile)
	if err != nil {
		log.Printf("Error reading product image upload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read uploaded images",
		})
	}
	nutritionUpload, err := readUpload(nutritionFile)
	if err != nil {
		log.Printf("Error reading nutrition image upload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read uploaded images",
		})
	}

	item, err := h.service.CreateItem(c.Context(), userID, price, quantity, productUpload, nutritionUpload)
	if err != nil {
		log.Printf("Error creating item for user %s: %v", userID, err)
		if errors.Is(err, services.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not process item",
		})
	}

	return c.JSON(item)
}

// HandleDeleteItem removes one of the authenticated user's items.
func (h *ItemHandler) HandleDeleteItem(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	itemID := c.Params("id")

	if err := h.service.DeleteItem(userID, itemID); err != nil {
		log.Printf("Error deleting item %s for user %s: %v", itemID, userID, err)
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Item not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not delete item",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Item deleted successfully",
	})
}

// HandleUpdateNutrition applies manual nutrition corrections from a JSON
// mapping of field name to value (or null).
func (h *ItemHandler) HandleUpdateNutrition(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	itemID := c.Params("id")

	var values map[string]*float64
	if err := c.BodyParser(&values); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if _, err := h.service.UpdateNutrition(userID, itemID, values); err != nil {
		log.Printf("Error updating nutrition for item %s: %v", itemID, err)
		switch {
		case errors.Is(err, services.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Item not found",
			})
		case errors.Is(err, services.ErrValidation):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Could not update nutrition values",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message": "Nutrition values updated successfully",
	})
}

// parsePriceQuantity applies the form defaults (price 0, quantity 1) and
// parses the remainder strictly.
func parsePriceQuantity(priceStr, quantityStr string) (float64, int, error) {
	price := 0.0
	quantity := 1
	var err error

	if priceStr != "" {
		if price, err = strconv.ParseFloat(priceStr, 64); err != nil {
			return 0, 0, err
		}
	}
	if quantityStr != "" {
		if quantity, err = strconv.Atoi(quantityStr); err != nil {
			return 0, 0, err
		}
	}
	return price, quantity, nil
}

func readUpload(fileHeader *multipart.FileHeader) (services.ImageUpload, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return services.ImageUpload{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return services.ImageUpload{}, err
	}
	return services.ImageUpload{
		Filename: fileHeader.Filename,
		Data:     data,
	}, nil
}
