package affiliate

import (
	_ "embed"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/hubizz/hubizz/internal/model"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// RulesFile is the on-disk shape of the detection rules.
type RulesFile struct {
	Categories []CategoryRules `yaml:"categories"`
	Indicators []string        `yaml:"indicators"`
}

// CategoryRules lists the keywords and patterns of one product category.
type CategoryRules struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

type category struct {
	name     string
	keywords []string
	patterns []*regexp.Regexp
}

// Rules is the validated, immutable form of a RulesFile.
type Rules struct {
	categories []category
	indicators []string
}

// DefaultRules returns the embedded rule set.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRulesYAML)
}

// LoadRules reads rules from path. An empty path selects the embedded rules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.Wrap(model.ErrConfiguration, eris.Wrapf(err, "affiliate: read rules %s", path))
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rule set. Every pattern is compiled
// case-insensitively; any malformed entry fails the whole set.
func ParseRules(data []byte) (*Rules, error) {
	var f RulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, model.Wrap(model.ErrConfiguration, eris.Wrap(err, "affiliate: decode rules"))
	}
	return Compile(f)
}

// Compile validates f and compiles its patterns.
func Compile(f RulesFile) (*Rules, error) {
	if len(f.Categories) == 0 {
		return nil, model.Wrap(model.ErrConfiguration, eris.New("affiliate: rules define no categories"))
	}

	r := &Rules{}
	seen := make(map[string]bool, len(f.Categories))
	for i, c := range f.Categories {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			return nil, model.Wrap(model.ErrConfiguration, eris.Errorf("affiliate: category %d has no name", i))
		}
		if seen[name] {
			return nil, model.Wrap(model.ErrConfiguration, eris.Errorf("affiliate: duplicate category %q", name))
		}
		seen[name] = true

		cat := category{name: name}
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				return nil, model.Wrap(model.ErrConfiguration, eris.Errorf("affiliate: empty keyword in category %q", name))
			}
			cat.keywords = append(cat.keywords, kw)
		}
		for _, p := range c.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, model.Wrap(model.ErrConfiguration, eris.Wrapf(err, "affiliate: category %q pattern %q", name, p))
			}
			cat.patterns = append(cat.patterns, re)
		}
		r.categories = append(r.categories, cat)
	}

	for _, ind := range f.Indicators {
		ind = strings.ToLower(strings.TrimSpace(ind))
		if ind == "" {
			return nil, model.Wrap(model.ErrConfiguration, eris.New("affiliate: empty product indicator"))
		}
		r.indicators = append(r.indicators, ind)
	}
	return r, nil
}

// Categories returns the category names in rule order.
func (r *Rules) Categories() []string {
	out := make([]string, len(r.categories))
	for i, c := range r.categories {
		out[i] = c.name
	}
	return out
}

// selectCategories returns the rules for filter. An empty or unknown filter selects every category.
func (r *Rules) selectCategories(filter string) []category {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter != "" {
		for _, c := range r.categories {
			if c.name == filter {
				return []category{c}
			}
		}
	}
	return r.categories
}
