// Package series holds the static catalog of podcast series.
package series

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"podcaster/internal/domain"
)

//go:embed catalog.toml
var defaultCatalog []byte

type catalogFile struct {
	Series []entry `toml:"series"`
}

type entry struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Prompt      string `toml:"prompt"`
	VoiceID     string `toml:"voice_id"`
	Cadence     string `toml:"cadence"`
	Category    string `toml:"category"`
}

// Registry is an immutable, ordered set of series built once at startup.
type Registry struct {
	order []string
	byID  map[string]domain.Series
}

var _ domain.SeriesCatalog = (*Registry)(nil)

// Default returns the registry compiled into the binary.
func Default() (*Registry, error) {
	return Parse(defaultCatalog)
}

// Load reads a TOML catalog from path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read series catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse series catalog: %w", err)
	}

	list := make([]domain.Series, 0, len(file.Series))
	for _, e := range file.Series {
		list = append(list, domain.Series{
			ID:          strings.TrimSpace(e.ID),
			Name:        strings.TrimSpace(e.Name),
			Description: strings.TrimSpace(e.Description),
			Prompt:      strings.TrimSpace(e.Prompt),
			VoiceID:     strings.TrimSpace(e.VoiceID),
			Cadence:     domain.Cadence(strings.ToLower(strings.TrimSpace(e.Cadence))),
			Category:    strings.TrimSpace(e.Category),
		})
	}

	return New(list...)
}

// New builds a registry preserving the given order.
func New(list ...domain.Series) (*Registry, error) {
	if len(list) == 0 {
		return nil, errors.New("series catalog is empty")
	}

	r := &Registry{
		order: make([]string, 0, len(list)),
		byID:  make(map[string]domain.Series, len(list)),
	}

	for i, s := range list {
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("series %d: %w", i, err)
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("series %q defined twice", s.ID)
		}
		r.order = append(r.order, s.ID)
		r.byID[s.ID] = s
	}

	return r, nil
}

func validate(s domain.Series) error {
	switch {
	case s.ID == "":
		return errors.New("id is required")
	case s.Name == "":
		return fmt.Errorf("%s: name is required", s.ID)
	case s.Prompt == "":
		return fmt.Errorf("%s: prompt is required", s.ID)
	case s.VoiceID == "":
		return fmt.Errorf("%s: voice_id is required", s.ID)
	case !s.Cadence.Valid():
		return fmt.Errorf("%s: unknown cadence %q", s.ID, s.Cadence)
	}
	return nil
}

func (r *Registry) Lookup(id string) (domain.Series, bool) {
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry) All() []domain.Series {
	out := make([]domain.Series, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
