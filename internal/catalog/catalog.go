// Package catalog caches the vendor concept catalog and answers name and code
// lookups for the resolver and attribution pipeline.
package catalog

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/limitup-cli/internal/model"
)

// excludedConcepts are broad index memberships that say nothing about why a
// stock moved. They are filtered out of every candidate set.
var excludedConcepts = map[string]bool{
	"融资融券":     true,
	"深股通":      true,
	"沪股通":      true,
	"标普道琼斯A股":  true,
	"中证500成份股": true,
	"上证380成份股": true,
	"沪深300样本股": true,
	"同花顺漂亮100": true,
}

// IsExcluded reports whether a concept name is index-membership noise.
func IsExcluded(name string) bool {
	return excludedConcepts[name]
}

// Catalog is an in-memory snapshot of the eligible concept universe plus the
// operator-maintained keyword dictionary. It is read-only after construction.
type Catalog struct {
	byName     map[string]model.ConceptMeta
	names      []string
	customDict map[string][]string
}

// New filters the raw catalog down to eligible concepts and indexes them by
// name. customDict maps an operator-defined theme name to the reason keywords
// that imply it; custom themes need not exist in the vendor catalog.
func New(metas []model.ConceptMeta, customDict map[string][]string) *Catalog {
	c := &Catalog{
		byName:     make(map[string]model.ConceptMeta),
		customDict: make(map[string][]string, len(customDict)),
	}
	for _, m := range metas {
		if !Eligible(m) || IsExcluded(m.Name) {
			continue
		}
		if _, dup := c.byName[m.Name]; dup {
			zap.L().Warn("catalog: duplicate concept name, keeping first",
				zap.String("name", m.Name),
				zap.String("code", m.Code),
			)
			continue
		}
		c.byName[m.Name] = m
		c.names = append(c.names, m.Name)
	}
	sort.Strings(c.names)

	for theme, keywords := range customDict {
		c.customDict[theme] = append([]string(nil), keywords...)
	}
	return c
}

// Eligible reports whether a catalog row belongs in the attribution universe:
// available A-share concept (N) and industry (I) boards, plus the one special
// board we track.
func Eligible(m model.ConceptMeta) bool {
	if !m.Available || m.Exchange != "A" {
		return false
	}
	switch m.Type {
	case "N", "I":
		return true
	case "S":
		return m.Name == "破净股"
	}
	return false
}

// LoadCustomDict reads the operator keyword dictionary, a JSON object mapping
// theme names to lists of reason keywords. A missing file is not an error.
func LoadCustomDict(path string) (map[string][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "catalog: read custom dict")
	}
	var dict map[string][]string
	if err := json.Unmarshal(raw, &dict); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal custom dict")
	}
	return dict, nil
}

// Has reports whether name is an eligible catalog concept.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Meta returns the catalog row for a concept name.
func (c *Catalog) Meta(name string) (model.ConceptMeta, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// CodeFor returns the vendor code for a concept name, or "" when unknown.
func (c *Catalog) CodeFor(name string) string {
	return c.byName[name].Code
}

// Names returns every eligible concept name, sorted.
func (c *Catalog) Names() []string {
	return c.names
}

// Len returns the number of eligible concepts.
func (c *Catalog) Len() int {
	return len(c.byName)
}

// HasCustomTheme reports whether name is an operator-defined theme.
func (c *Catalog) HasCustomTheme(name string) bool {
	_, ok := c.customDict[name]
	return ok
}

// ThemesMatchingTokens returns every custom theme one of whose keywords
// contains any of the given tokens as a substring, sorted.
func (c *Catalog) ThemesMatchingTokens(tokens []string) []string {
	var matched []string
	for theme, keywords := range c.customDict {
		if themeMatches(keywords, tokens) {
			matched = append(matched, theme)
		}
	}
	sort.Strings(matched)
	return matched
}

func themeMatches(keywords, tokens []string) bool {
	for _, kw := range keywords {
		for _, tok := range tokens {
			if tok != "" && strings.Contains(kw, tok) {
				return true
			}
		}
	}
	return false
}
