package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"grocetrack/pkg/imageutil"
)

// FallbackProductName is returned whenever product-name analysis fails or
// comes back empty.
const FallbackProductName = "Unknown Product"

const (
	defaultModel   = "gpt-4o"
	defaultBaseURL = "https://api.openai.com"
	defaultTimeout = 30 * time.Second

	productPrompt = "What is the exact product name shown in this image? Return ONLY the name, no other text."

	nutritionPrompt = `Analyze this nutrition label. Return ONLY a JSON object with these fields (no other text):
{
    "calories": number,
    "protein": number,
    "carbs": number,
    "fat": number,
    "fiber": number,
    "sugar": number,
    "sodium": number,
    "cholesterol": number
}
Use null for missing values. Remove units. For "<1g" use 0.5.`
)

// Config holds the settings for the vision model client.
type Config struct {
	APIKey  string
	Model   string        // defaults to gpt-4o
	BaseURL string        // defaults to the public OpenAI endpoint
	Timeout time.Duration // bounds the model call, defaults to 30s
}

// Client calls an external multimodal model to analyze grocery images.
//
// The client never returns an error to its callers: any transport, API or
// parsing failure degrades to fallback values (FallbackProductName, or an
// all-null NutritionFacts) and is logged for observability.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a vision client from cfg, applying defaults for any
// unset value.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ProductName extracts the exact product name shown in the image. The image
// is normalized before transmission. On any failure, or an empty model
// response, FallbackProductName is returned.
func (c *Client) ProductName(ctx context.Context, image []byte) string {
	result, err := c.complete(ctx, productPrompt, image, 150)
	if err != nil {
		log.Printf("vision: product name analysis failed: %v", err)
		return FallbackProductName
	}
	name := strings.TrimSpace(result)
	if name == "" {
		return FallbackProductName
	}
	return name
}

// NutritionFacts extracts structured nutrition facts from a nutrition-label
// image. On any failure the returned mapping has all eight fields null.
func (c *Client) NutritionFacts(ctx context.Context, image []byte) NutritionFacts {
	result, err := c.complete(ctx, nutritionPrompt, image, 500)
	if err != nil {
		log.Printf("vision: nutrition analysis failed: %v", err)
		return NutritionFacts{}
	}
	return parseNutrition(result)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete normalizes the image, embeds it as a base64 data URI and issues a
// single chat-completion request. It returns the raw text of the first
// choice.
func (c *Client) complete(ctx context.Context, prompt string, image []byte, maxTokens int) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(imageutil.Normalize(image))

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:image/jpeg;base64," + encoded,
				}},
			},
		}},
		MaxTokens:   maxTokens,
		Temperature: 0.1,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model API error: %s - %s", resp.Status, string(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode model response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
