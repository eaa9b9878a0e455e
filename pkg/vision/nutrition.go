package vision

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// NutritionFacts holds the eight nutrition fields extracted from a label.
// Each field is independently nullable; "unknown" is nil, never zero. The
// zero value is the all-null fallback.
type NutritionFacts struct {
	Calories    *float64 `json:"calories"`
	Protein     *float64 `json:"protein"`
	Carbs       *float64 `json:"carbs"`
	Fat         *float64 `json:"fat"`
	Fiber       *float64 `json:"fiber"`
	Sugar       *float64 `json:"sugar"`
	Sodium      *float64 `json:"sodium"`
	Cholesterol *float64 `json:"cholesterol"`
}

// parseNutrition turns free-text model output into NutritionFacts. Models
// asked for bare JSON still wrap it in prose or markdown often enough that
// the parser slices from the first '{' to the last '}' and tolerates
// single-quoted near-JSON. Any parse or coercion failure degrades to the
// all-null result, never an error.
func parseNutrition(raw string) NutritionFacts {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "'", `"`)

	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start == -1 || end <= start {
			log.Printf("vision: no JSON object in nutrition response")
			return NutritionFacts{}
		}
		s = s[start : end+1]
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		log.Printf("vision: failed to parse nutrition response: %v", err)
		return NutritionFacts{}
	}

	var facts NutritionFacts
	targets := map[string]**float64{
		"calories":    &facts.Calories,
		"protein":     &facts.Protein,
		"carbs":       &facts.Carbs,
		"fat":         &facts.Fat,
		"fiber":       &facts.Fiber,
		"sugar":       &facts.Sugar,
		"sodium":      &facts.Sodium,
		"cholesterol": &facts.Cholesterol,
	}
	for field, target := range targets {
		value, ok := values[field]
		if !ok || value == nil {
			continue
		}
		number, err := coerceFloat(value)
		if err != nil {
			log.Printf("vision: cannot coerce nutrition field %q: %v", field, err)
			return NutritionFacts{}
		}
		*target = &number
	}
	return facts
}

func coerceFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", value)
	}
}
