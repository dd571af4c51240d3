// Package style turns the user's style selection into calls against the
// generation service and feeds styled photos and generated backgrounds back
// into the collage.
package style

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/fpang/photo-booth/internal/assets"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// ErrUnknownStyle is returned for a style ID that is not in its catalog.
var ErrUnknownStyle = errors.New("unknown style")

// Kind says which catalog a style belongs to.
type Kind int

const (
	KindBackground Kind = iota
	KindSubject
)

func (k Kind) String() string {
	if k == KindSubject {
		return "subject"
	}
	return "background"
}

// Style is one catalog entry.
type Style struct {
	ID     string `toml:"id" json:"id"`
	Label  string `toml:"label" json:"label"`
	Prompt string `toml:"prompt" json:"-"`
	Kind   Kind   `toml:"-" json:"-"`
}

// Catalog holds the background and subject style lists. The two lists never
// share an ID.
type Catalog struct {
	Backgrounds []Style `toml:"background" json:"backgrounds"`
	Subjects    []Style `toml:"subject" json:"subjects"`

	byID map[string]Style
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(assets.StylesTOML)
}

// LoadCatalog reads a catalog file in the embedded catalog's format.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a TOML catalog. Unknown keys, empty
// IDs or prompts, and IDs repeated within or across lists are errors.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse style catalog: %w", err)
	}

	c.byID = make(map[string]Style, len(c.Backgrounds)+len(c.Subjects))
	add := func(list []Style, kind Kind) error {
		for i := range list {
			list[i].Kind = kind
			s := list[i]
			if s.ID == "" || s.Prompt == "" {
				return fmt.Errorf("%s style %d: id and prompt are required", kind, i)
			}
			if prev, dup := c.byID[s.ID]; dup {
				return fmt.Errorf("style %q appears in both the %s and %s catalogs", s.ID, prev.Kind, kind)
			}
			if s.Label == "" {
				list[i].Label = s.ID
				s.Label = s.ID
			}
			c.byID[s.ID] = s
		}
		return nil
	}
	if err := add(c.Backgrounds, KindBackground); err != nil {
		return nil, err
	}
	if err := add(c.Subjects, KindSubject); err != nil {
		return nil, err
	}

	log.Debug().
		Int("backgrounds", len(c.Backgrounds)).
		Int("subjects", len(c.Subjects)).
		Msg("Style catalog loaded")
	return &c, nil
}

// Background looks up a background style.
func (c *Catalog) Background(id string) (Style, error) {
	return c.lookup(id, KindBackground)
}

// Subject looks up a subject style.
func (c *Catalog) Subject(id string) (Style, error) {
	return c.lookup(id, KindSubject)
}

func (c *Catalog) lookup(id string, kind Kind) (Style, error) {
	s, ok := c.byID[id]
	if !ok || s.Kind != kind {
		return Style{}, fmt.Errorf("%w: %s style %q", ErrUnknownStyle, kind, id)
	}
	return s, nil
}

// Selection is the user's current choice. An empty ID means none.
type Selection struct {
	BackgroundID string `json:"background,omitempty"`
	SubjectID    string `json:"subject,omitempty"`
}

// HasBackground reports whether a background style is selected.
func (s Selection) HasBackground() bool { return s.BackgroundID != "" }

// HasSubject reports whether a subject style is selected.
func (s Selection) HasSubject() bool { return s.SubjectID != "" }

// Validate checks that every selected ID exists in the right catalog.
func (c *Catalog) Validate(sel Selection) error {
	if sel.HasBackground() {
		if _, err := c.Background(sel.BackgroundID); err != nil {
			return err
		}
	}
	if sel.HasSubject() {
		if _, err := c.Subject(sel.SubjectID); err != nil {
			return err
		}
	}
	return nil
}
