package affiliate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubizz/hubizz/internal/model"
)

func TestDefaultRules(t *testing.T) {
	r, err := DefaultRules()
	require.NoError(t, err)
	assert.Equal(t, []string{"tech", "life", "biz"}, r.Categories())
	assert.Contains(t, r.indicators, "price")
	assert.Len(t, r.categories[0].patterns, 5)
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "categories: [unclosed"},
		{"no categories", "indicators: [buy]"},
		{"bad regex", "categories:\n  - name: tech\n    patterns: ['(unclosed']"},
		{"duplicate category", "categories:\n  - name: tech\n  - name: TECH"},
		{"unnamed category", "categories:\n  - keywords: [a]"},
		{"empty keyword", "categories:\n  - name: tech\n    keywords: ['  ']"},
		{"empty indicator", "categories:\n  - name: tech\nindicators: ['']"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrConfiguration))
		})
	}
}

func TestLoadRules_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	yaml := "categories:\n  - name: Audio\n    keywords: [Turntable]\n    patterns: ['Sonos\\s+\\w+']\nindicators: [deal]\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	r, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"audio"}, r.Categories())
	assert.Equal(t, []string{"turntable"}, r.categories[0].keywords)
	assert.True(t, r.categories[0].patterns[0].MatchString("SONOS one"))
}

func TestLoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}

func TestLoadRules_EmptyPathUsesEmbedded(t *testing.T) {
	r, err := LoadRules("")
	require.NoError(t, err)
	assert.Len(t, r.Categories(), 3)
}

func TestSelectCategories(t *testing.T) {
	r, err := DefaultRules()
	require.NoError(t, err)

	assert.Len(t, r.selectCategories(""), 3)
	assert.Len(t, r.selectCategories("nope"), 3)
	got := r.selectCategories(" Life ")
	require.Len(t, got, 1)
	assert.Equal(t, "life", got[0].name)
}
