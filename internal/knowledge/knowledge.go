// Package knowledge is the local ingredient reference table. Lookups are
// pure, synchronous and safe for concurrent use.
package knowledge

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/kiranshivaraju/labelscan/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	missDescription  = "No detailed information available in local database for this ingredient."
	missHealthImpact = "Unknown from local database."
)

//go:embed ingredients.yaml
var ingredientsYAML []byte

var reWhitespace = regexp.MustCompile(`\s+`)

// record is one entry of ingredients.yaml.
type record struct {
	Aliases      []string `yaml:"aliases"`
	Related      []string `yaml:"related"`
	Description  string   `yaml:"description"`
	HealthImpact string   `yaml:"health_impact"`
	RiskLevel    string   `yaml:"risk_level"`
	Alternatives []string `yaml:"alternatives"`

	canonical string
	risk      models.RiskLevel
}

// Base is an immutable ingredient table indexed by normalized name and alias.
type Base struct {
	byName map[string]*record
	names  []string // canonical names, sorted
}

var (
	defaultOnce sync.Once
	defaultBase *Base
)

// Default returns the table compiled into the binary. It panics if the
// embedded document is invalid, which the package tests rule out.
func Default() *Base {
	defaultOnce.Do(func() {
		b, err := Parse(ingredientsYAML)
		if err != nil {
			panic(fmt.Sprintf("knowledge: embedded table: %v", err))
		}
		defaultBase = b
	})
	return defaultBase
}

// Parse builds a Base from a YAML document keyed by canonical ingredient name.
func Parse(data []byte) (*Base, error) {
	var raw map[string]*record
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing ingredient table: %w", err)
	}

	b := &Base{byName: make(map[string]*record, len(raw)*2)}
	for name, rec := range raw {
		if rec == nil {
			return nil, fmt.Errorf("ingredient %q has no data", name)
		}
		risk, ok := models.ParseRiskLevel(rec.RiskLevel)
		if !ok || risk == models.RiskUnknown {
			return nil, fmt.Errorf("ingredient %q: invalid risk_level %q", name, rec.RiskLevel)
		}
		rec.canonical = name
		rec.risk = risk

		for _, key := range append([]string{name}, rec.Aliases...) {
			norm := Normalize(key)
			if prev, dup := b.byName[norm]; dup {
				return nil, fmt.Errorf("name %q is claimed by both %q and %q", key, prev.canonical, name)
			}
			b.byName[norm] = rec
		}
		b.names = append(b.names, name)
	}
	sort.Strings(b.names)

	return b, nil
}

// Normalize lowercases name, trims it and collapses inner whitespace runs.
func Normalize(name string) string {
	name = reWhitespace.ReplaceAllString(name, " ")
	return strings.ToLower(strings.TrimSpace(name))
}

// Lookup returns the record for name, or an Unknown record on a miss. The
// returned Name is always the caller's name as given.
func (b *Base) Lookup(name string) models.Ingredient {
	rec, ok := b.byName[Normalize(name)]
	if !ok {
		return Unknown(name)
	}
	ing := models.Ingredient{
		Name:         name,
		Description:  rec.Description,
		HealthImpact: rec.HealthImpact,
		RiskLevel:    rec.risk,
	}
	if len(rec.Alternatives) > 0 {
		ing.Alternatives = append([]string(nil), rec.Alternatives...)
	}
	return ing
}

// Known reports whether name resolves to a record.
func (b *Base) Known(name string) bool {
	_, ok := b.byName[Normalize(name)]
	return ok
}

// Canonical returns the canonical display name name resolves to.
func (b *Base) Canonical(name string) (string, bool) {
	rec, ok := b.byName[Normalize(name)]
	if !ok {
		return "", false
	}
	return rec.canonical, true
}

// Names returns the canonical ingredient names in sorted order.
func (b *Base) Names() []string {
	return append([]string(nil), b.names...)
}

// Synonyms returns the other names an ingredient is known by: its canonical
// name and aliases (excluding name itself) followed by related names. Returns
// an empty slice, never nil, for unknown names.
func (b *Base) Synonyms(name string) []string {
	rec, ok := b.byName[Normalize(name)]
	if !ok {
		return []string{}
	}

	self := Normalize(name)
	out := make([]string, 0, 1+len(rec.Aliases)+len(rec.Related))
	for _, n := range append([]string{rec.canonical}, rec.Aliases...) {
		if Normalize(n) != self {
			out = append(out, n)
		}
	}
	return append(out, rec.Related...)
}

// Unknown is the record returned for names the table does not hold.
func Unknown(name string) models.Ingredient {
	return models.Ingredient{
		Name:         name,
		Description:  missDescription,
		HealthImpact: missHealthImpact,
		RiskLevel:    models.RiskUnknown,
	}
}

// AlternativeProducts builds one placeholder product per flagged ingredient.
// It backs the suggester's product lookup tool until a product catalogue
// exists.
func AlternativeProducts(ingredients []string) []models.AlternativeProduct {
	out := make([]models.AlternativeProduct, 0, len(ingredients))
	for _, name := range ingredients {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, models.AlternativeProduct{
			Name:        "Alternative to " + name,
			Description: "This product is a safer alternative to products containing " + name + ".",
			Reason:      "Does not contain " + name,
		})
	}
	return out
}
