package cooking

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Step is one instruction of a recipe
type Step struct {
	Order               int    `json:"order"`
	Text                string `json:"text"`
	DurationSeconds     int    `json:"duration_seconds,omitempty"`
	MediaIngredientSlug string `json:"media_ingredient_slug,omitempty"`
}

// Recipe is a titled list of steps
type Recipe struct {
	Title            string `json:"title"`
	Summary          string `json:"summary,omitempty"`
	TotalTimeMinutes int    `json:"total_time_minutes,omitempty"`
	Steps            []Step `json:"steps"`
}

// Validate checks that the recipe can be navigated
func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("recipe title is empty")
	}
	if len(r.Steps) == 0 {
		return errors.New("recipe has no steps")
	}
	for i, s := range r.Steps {
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("recipe step %d has no text", i+1)
		}
	}
	return nil
}

// LoadRecipe reads a JSON recipe file. An empty path returns the sample recipe.
func LoadRecipe(path string) (*Recipe, error) {
	if path == "" {
		return SampleRecipe(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	return ParseRecipe(data)
}

// ParseRecipe decodes a JSON recipe, numbering steps that omit an order
func ParseRecipe(data []byte) (*Recipe, error) {
	var r Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse recipe: %w", err)
	}
	for i := range r.Steps {
		if r.Steps[i].Order == 0 {
			r.Steps[i].Order = i + 1
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// SampleRecipe returns the built-in demo recipe
func SampleRecipe() *Recipe {
	return &Recipe{
		Title:            "Garlic Onion Chicken",
		Summary:          "Sear, simmer, and finish with aromatics.",
		TotalTimeMinutes: 35,
		Steps: []Step{
			{Order: 1, Text: "Pat the chicken dry and season with salt and pepper.", DurationSeconds: 120},
			{Order: 2, Text: "Slice the onion thinly and mince the garlic.", DurationSeconds: 180, MediaIngredientSlug: "onion"},
			{Order: 3, Text: "Sear the chicken for 4 minutes per side until golden.", DurationSeconds: 480},
			{Order: 4, Text: "Add onion and garlic, stir for 2 minutes, then add broth.", DurationSeconds: 300, MediaIngredientSlug: "garlic"},
			{Order: 5, Text: "Simmer for 10 minutes, then rest for 3 minutes before serving.", DurationSeconds: 780},
		},
	}
}
