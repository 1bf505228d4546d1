package cooking

import (
	"sync"

	"github.com/lexiqai/voice-command-gateway/internal/utterance"
)

// Position is the cursor's view of the current step
type Position struct {
	Index int  `json:"index"`
	Total int  `json:"total"`
	Step  Step `json:"step"`
	// Moved is false when a command hit the first or last step, and for Repeat
	Moved bool `json:"moved"`
}

// Cursor tracks the current step of a recipe. It is safe for concurrent use.
type Cursor struct {
	recipe *Recipe

	mu    sync.Mutex
	index int
}

// NewCursor starts at the first step
func NewCursor(recipe *Recipe) *Cursor {
	return &Cursor{recipe: recipe}
}

// Recipe returns the recipe being followed
func (c *Cursor) Recipe() *Recipe {
	return c.recipe
}

// Current returns the current position
func (c *Cursor) Current() Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position(false)
}

// Apply moves the cursor for a navigation command. Next and Previous stop at
// the ends of the recipe; Repeat leaves the cursor where it is.
func (c *Cursor) Apply(cmd utterance.CommandKind) Position {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.index
	switch cmd {
	case utterance.CommandNext:
		if c.index < len(c.recipe.Steps)-1 {
			c.index++
		}
	case utterance.CommandPrevious:
		if c.index > 0 {
			c.index--
		}
	}
	return c.position(c.index != prev)
}

// Context is the Q&A context for questions asked while cooking
func (c *Cursor) Context() string {
	return c.recipe.Title
}

func (c *Cursor) position(moved bool) Position {
	return Position{
		Index: c.index,
		Total: len(c.recipe.Steps),
		Step:  c.recipe.Steps[c.index],
		Moved: moved,
	}
}
