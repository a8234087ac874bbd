// Package category holds the user-mutable set of analysis categories.
// The schema is an explicit value owned by the caller (typically a session or
// request context) and passed into prompt synthesis and batch runs; there is
// no implicit global.
package category

import (
	"errors"
	"strings"
	"sync"

	"github.com/propdoc/analyzer/constants"
)

// Category is one yes/no+confidence+description question evaluated by the
// model against a page or image.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrDuplicateID is returned when two display names slugify to the same id.
var ErrDuplicateID = errors.New("category id already exists")

func defaults() []Category {
	return []Category{
		{ID: constants.CategoryForSaleSign, Name: "For Sale Sign", Description: `Is there a "For Sale" sign visible?`},
		{ID: constants.CategorySolarPanels, Name: "Solar Panels", Description: "Are there solar panels installed on the property?"},
		{ID: constants.CategoryHumanPresence, Name: "Human Presence", Description: "Are there any people visible?"},
		{ID: constants.CategoryPotentialDamage, Name: "Potential Damage", Description: "Is there any visible damage to the property (roof damage, broken windows, structural issues, etc.)?"},
	}
}

// Schema is an ordered, mutable category set. Safe for concurrent readers;
// batch runs only read it.
type Schema struct {
	mu   sync.RWMutex
	cats []Category
}

// NewSchema returns a schema populated with the four default categories.
func NewSchema() *Schema {
	return &Schema{cats: defaults()}
}

// SlugID derives a category id from a display name: lowercase, with spaces
// and hyphens mapped to underscores.
func SlugID(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-':
			return '_'
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
}

// Add appends a user-created category. The id is derived from the name;
// a duplicate id is rejected rather than silently overwritten.
func (s *Schema) Add(name, description string) (Category, error) {
	id := SlugID(name)
	if id == "" {
		return Category{}, errors.New("category name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cats {
		if c.ID == id {
			return Category{}, ErrDuplicateID
		}
	}
	cat := Category{ID: id, Name: name, Description: description}
	s.cats = append(s.cats, cat)
	return cat, nil
}

// Reset replaces the current set with the fixed defaults. The schema is never
// empty after Reset.
func (s *Schema) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cats = defaults()
}

// List returns a copy of the active categories in order.
func (s *Schema) List() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Category, len(s.cats))
	copy(out, s.cats)
	return out
}
