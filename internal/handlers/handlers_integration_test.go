package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"grocetrack/internal/handlers"
	"grocetrack/internal/middleware"
	"grocetrack/internal/models"
	"grocetrack/internal/repositories"
	"grocetrack/internal/services"
	"grocetrack/pkg/vision"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testJWTSecret = "test_jwt_secret"

// stubAnalyzer stands in for the external vision model.
type stubAnalyzer struct {
	name  string
	facts vision.NutritionFacts
}

func (s *stubAnalyzer) ProductName(ctx context.Context, image []byte) string {
	return s.name
}

func (s *stubAnalyzer) NutritionFacts(ctx context.Context, image []byte) vision.NutritionFacts {
	return s.facts
}

// setupApp builds a Fiber app over an in-memory SQLite database, a
// mem-backed upload area and a stubbed vision analyzer.
func setupApp(t *testing.T, analyzer services.VisionAnalyzer) (*fiber.App, afero.Fs) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "failed to open in-memory database")
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.GroceryItem{}))

	userRepo := repositories.NewGORMUserRepository(db)
	itemRepo := repositories.NewGORMItemRepository(db)

	fs := afero.NewMemMapFs()

	authService := services.NewAuthService(userRepo, testJWTSecret)
	itemService := services.NewItemService(itemRepo, analyzer, fs, "uploads", nil)

	authHandler := handlers.NewAuthHandler(authService)
	itemHandler := handlers.NewItemHandler(itemService)

	app := fiber.New(fiber.Config{
		BodyLimit:    16 * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler,
	})

	api := app.Group("/api")
	authHandler.RegisterRoutes(api)

	protected := api.Group("", middleware.AuthRequired(authService))
	authHandler.RegisterProtectedRoutes(protected)
	itemHandler.RegisterRoutes(protected)

	return app, fs
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	code := m.Run()
	os.Exit(code)
}

func registerAndLogin(t *testing.T, app *fiber.App, username string) string {
	t.Helper()

	creds := map[string]string{"username": username, "password": "password123"}
	jsonBody, _ := json.Marshal(creds)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loginResp))
	resp.Body.Close()
	require.NotEmpty(t, loginResp.Token)
	return loginResp.Token
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height)), nil))
	return buf.Bytes()
}

type filePart struct {
	field    string
	filename string
	data     []byte
}

func itemRequest(t *testing.T, token, price, quantity string, files ...filePart) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, file := range files {
		part, err := writer.CreateFormFile(file.field, file.filename)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.WriteField("price", price))
	require.NoError(t, writer.WriteField("quantity", quantity))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/items", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func listItems(t *testing.T, app *fiber.App, token string) []models.GroceryItem {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []models.GroceryItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	resp.Body.Close()
	return items
}

func TestAuthRegisterAndLogin(t *testing.T) {
	app, _ := setupApp(t, &stubAnalyzer{})

	userToRegister := map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "password123",
	}
	jsonBody, _ := json.Marshal(userToRegister)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var registerResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registerResp))
	assert.NotEmpty(t, registerResp["token"], "registration issues a token")
	resp.Body.Close()

	// Duplicate registration fails
	req = httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Login succeeds and the token passes verification
	loginBody, _ := json.Marshal(map[string]string{"username": "testuser", "password": "password123"})
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(loginBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var loginResp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loginResp))
	resp.Body.Close()
	assert.NotEmpty(t, loginResp.Token)
	assert.NotNil(t, loginResp.User.LastLogin, "login stamps last_login")

	req = httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Wrong password is rejected
	badBody, _ := json.Marshal(map[string]string{"username": "testuser", "password": "wrong"})
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(badBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestItemLifecycle(t *testing.T) {
	app, fs := setupApp(t, &stubAnalyzer{
		name: "Instant Oatmeal",
		facts: vision.NutritionFacts{
			Calories: ptr(160.0),
			Sugar:    ptr(1.0),
		},
	})
	token := registerAndLogin(t, app, "alice")

	// Upload a 2000x2000 product PNG and a JPEG nutrition label
	req := itemRequest(t, token, "3.49", "2",
		filePart{"product_image", "cereal.png", pngBytes(t, 2000, 2000)},
		filePart{"nutrition_image", "label.jpeg", jpegBytes(t, 400, 600)},
	)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var item models.GroceryItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&item))
	resp.Body.Close()

	assert.Equal(t, "Instant Oatmeal", item.Name)
	assert.Equal(t, 3.49, item.Price)
	assert.Equal(t, 2, item.Quantity)
	require.NotNil(t, item.Calories)
	assert.Equal(t, 160.0, *item.Calories)
	assert.Equal(t, "product_"+item.ID+".jpg", item.ProductImage)
	assert.Equal(t, "nutrition_"+item.ID+".jpg", item.NutritionImage)
	assert.False(t, item.CreatedAt.IsZero())

	// Exactly two files stored, and the oversized upload was bounded
	stored, err := afero.ReadFile(fs, "uploads/"+item.ProductImage)
	require.NoError(t, err)
	decoded, format, err := image.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.LessOrEqual(t, decoded.Bounds().Dx(), 1024)
	assert.LessOrEqual(t, decoded.Bounds().Dy(), 1024)

	entries, err := afero.ReadDir(fs, "uploads")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// The item shows up in the owner's list
	items := listItems(t, app, token)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)

	// Manual nutrition correction
	patchBody, _ := json.Marshal(map[string]interface{}{"calories": 200, "sugar": nil})
	patchReq := httptest.NewRequest(http.MethodPatch, "/api/items/"+item.ID+"/nutrition", bytes.NewReader(patchBody))
	patchReq.Header.Set("Content-Type", "application/json")
	patchReq.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(patchReq, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	items = listItems(t, app, token)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Calories)
	assert.Equal(t, 200.0, *items[0].Calories)
	assert.Nil(t, items[0].Sugar)

	// Delete removes the row and its files
	delReq := httptest.NewRequest(http.MethodDelete, "/api/items/"+item.ID, nil)
	delReq.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(delReq, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var delResp map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&delResp))
	assert.Contains(t, delResp["message"], "deleted")
	resp.Body.Close()

	assert.Empty(t, listItems(t, app, token))
	entries, err = afero.ReadDir(fs, "uploads")
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A second delete reports not found
	delReq = httptest.NewRequest(http.MethodDelete, "/api/items/"+item.ID, nil)
	delReq.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(delReq, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestItemAnalysisDegradation(t *testing.T) {
	// Analyzer total failure: fallback name and all-null facts, still a 200
	app, _ := setupApp(t, &stubAnalyzer{name: vision.FallbackProductName})
	token := registerAndLogin(t, app, "bob")

	req := itemRequest(t, token, "1.99", "1",
		filePart{"product_image", "front.png", pngBytes(t, 100, 100)},
		filePart{"nutrition_image", "label.png", pngBytes(t, 100, 100)},
	)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var item models.GroceryItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&item))
	resp.Body.Close()

	assert.Equal(t, vision.FallbackProductName, item.Name)
	assert.Nil(t, item.Calories)
	assert.Nil(t, item.Cholesterol)
}

func TestItemValidationErrors(t *testing.T) {
	app, fs := setupApp(t, &stubAnalyzer{name: "ignored"})
	token := registerAndLogin(t, app, "carol")

	product := filePart{"product_image", "front.png", pngBytes(t, 50, 50)}
	nutrition := filePart{"nutrition_image", "label.png", pngBytes(t, 50, 50)}

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"missing nutrition image", itemRequest(t, token, "1.00", "1", product)},
		{"negative price", itemRequest(t, token, "-1", "1", product, nutrition)},
		{"zero quantity", itemRequest(t, token, "1.00", "0", product, nutrition)},
		{"malformed price", itemRequest(t, token, "abc", "1", product, nutrition)},
		{"disallowed extension", itemRequest(t, token, "1.00", "1",
			filePart{"product_image", "front.bmp", pngBytes(t, 50, 50)}, nutrition)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(tc.req, -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var errResp map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			assert.NotEmpty(t, errResp["error"])
			resp.Body.Close()
		})
	}

	// No rows and no files survive failed validations
	assert.Empty(t, listItems(t, app, token))
	entries, _ := afero.ReadDir(fs, "uploads")
	assert.Empty(t, entries)
}

func TestItemEndpointsRequireAuth(t *testing.T) {
	app, _ := setupApp(t, &stubAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req = httptest.NewRequest(http.MethodPost, "/api/items", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestUnmatchedRouteReturnsJSONError(t *testing.T) {
	app, _ := setupApp(t, &stubAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.NotEmpty(t, errResp["error"])
	resp.Body.Close()
}

func TestDeleteItemNonOwner(t *testing.T) {
	app, fs := setupApp(t, &stubAnalyzer{name: "Peanut Butter"})
	aliceToken := registerAndLogin(t, app, "alice2")
	malloryToken := registerAndLogin(t, app, "mallory")

	req := itemRequest(t, aliceToken, "4.99", "1",
		filePart{"product_image", "front.png", pngBytes(t, 64, 64)},
		filePart{"nutrition_image", "label.png", pngBytes(t, 64, 64)},
	)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var item models.GroceryItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&item))
	resp.Body.Close()

	// Another user's delete reads as not found, leaking nothing
	delReq := httptest.NewRequest(http.MethodDelete, "/api/items/"+item.ID, nil)
	delReq.Header.Set("Authorization", "Bearer "+malloryToken)
	resp, err = app.Test(delReq, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// The row and both image files are untouched
	require.Len(t, listItems(t, app, aliceToken), 1)
	entries, err := afero.ReadDir(fs, "uploads")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPatchNutritionRejectsUnknownFields(t *testing.T) {
	app, _ := setupApp(t, &stubAnalyzer{name: "Salsa"})
	token := registerAndLogin(t, app, "dave")

	req := itemRequest(t, token, "2.50", "1",
		filePart{"product_image", "front.png", pngBytes(t, 64, 64)},
		filePart{"nutrition_image", "label.png", pngBytes(t, 64, 64)},
	)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var item models.GroceryItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&item))
	resp.Body.Close()

	patchBody, _ := json.Marshal(map[string]interface{}{"name": 1})
	patchReq := httptest.NewRequest(http.MethodPatch, "/api/items/"+item.ID+"/nutrition", bytes.NewReader(patchBody))
	patchReq.Header.Set("Content-Type", "application/json")
	patchReq.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(patchReq, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// The item is unchanged
	items := listItems(t, app, token)
	require.Len(t, items, 1)
	assert.Equal(t, "Salsa", items[0].Name)
}

func ptr(v float64) *float64 {
	return &v
}
