// Package catalog loads the affiliate product catalog from CSV, XLSX, or JSON
// files on disk or behind an http(s) or ftp URL.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/fetcher"
	"github.com/hubizz/hubizz/internal/model"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// Reader reads a whole source. *fetcher.Opener satisfies it.
type Reader interface {
	ReadAll(ctx context.Context, source string) ([]byte, error)
}

// Upserter writes catalog entries. store.Store satisfies it.
type Upserter interface {
	UpsertCatalogEntries(ctx context.Context, entries []model.CatalogEntry) (int64, error)
}

// Loader imports catalog files into the store.
type Loader struct {
	src   Reader
	store Upserter
}

// NewLoader creates a Loader.
func NewLoader(src Reader, st Upserter) *Loader {
	return &Loader{src: src, store: st}
}

// Load reads source, parses it by its file extension, and upserts every
// entry. It returns the number of rows written.
func (l *Loader) Load(ctx context.Context, source string) (int64, error) {
	return l.LoadFormat(ctx, source, "")
}

// LoadFormat is Load with an explicit format. An empty format is inferred.
func (l *Loader) LoadFormat(ctx context.Context, source, format string) (int64, error) {
	if format == "" {
		format = DetectFormat(source)
	}
	data, err := l.src.ReadAll(ctx, source)
	if err != nil {
		return 0, eris.Wrapf(err, "catalog: read %s", source)
	}
	entries, err := Parse(ctx, data, format)
	if err != nil {
		return 0, eris.Wrapf(err, "catalog: parse %s", source)
	}
	n, err := l.store.UpsertCatalogEntries(ctx, entries)
	if err != nil {
		return 0, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "catalog: upsert"))
	}
	zap.L().Info("catalog: loaded",
		zap.String("source", source),
		zap.String("format", format),
		zap.Int64("entries", n),
	)
	return n, nil
}

// DetectFormat maps the extension of a path or URL to a format, defaulting to CSV.
func DetectFormat(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) {
	case "xlsx":
		return FormatXLSX
	case "json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// Parse decodes catalog entries in format.
func Parse(ctx context.Context, data []byte, format string) ([]model.CatalogEntry, error) {
	switch format {
	case FormatCSV:
		rows, err := fetcher.ReadCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true})
		if err != nil {
			return nil, model.Wrap(model.ErrInvalidInput, err)
		}
		return fromRows(rows)
	case FormatXLSX:
		rows, err := fetcher.ReadXLSXBytes(data, fetcher.XLSXOptions{})
		if err != nil {
			return nil, model.Wrap(model.ErrInvalidInput, err)
		}
		return fromRows(rows)
	case FormatJSON:
		return fromJSON(ctx, data)
	default:
		return nil, model.Wrap(model.ErrInvalidInput, eris.Errorf("catalog: unknown format %q", format))
	}
}

var columns = []string{"id", "name", "category", "keywords", "is_active"}

// fromRows maps a header row plus data rows to entries. Column order is free
// and only id and name are required.
func fromRows(rows [][]string) ([]model.CatalogEntry, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	idx := map[string]int{}
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range columns[:2] {
		if _, ok := idx[c]; !ok {
			return nil, model.Wrap(model.ErrInvalidInput, eris.Errorf("catalog: missing %q column", c))
		}
	}
	cell := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	entries := make([]model.CatalogEntry, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		if blank(row) {
			continue
		}
		id, err := strconv.ParseInt(cell(row, "id"), 10, 64)
		if err != nil {
			return nil, model.Wrap(model.ErrInvalidInput, eris.Wrapf(err, "catalog: row %d: bad id", line))
		}
		active, err := parseActive(cell(row, "is_active"))
		if err != nil {
			return nil, model.Wrap(model.ErrInvalidInput, eris.Wrapf(err, "catalog: row %d: bad is_active", line))
		}
		e := model.CatalogEntry{
			ID:       id,
			Name:     cell(row, "name"),
			Category: cell(row, "category"),
			Keywords: SplitKeywords(cell(row, "keywords")),
			IsActive: active,
		}
		if e.Name == "" {
			return nil, model.Wrap(model.ErrInvalidInput, eris.Errorf("catalog: row %d: empty name", line))
		}
		entries = append(entries, e)
	}
	return entries, nil
}

type jsonEntry struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Keywords json.RawMessage `json:"keywords"`
	IsActive *bool           `json:"is_active"`
}

// fromJSON reads a top-level array. Keywords may be an array or a delimited string.
func fromJSON(ctx context.Context, data []byte) ([]model.CatalogEntry, error) {
	items, err := fetcher.ReadJSONArray[jsonEntry](ctx, bytes.NewReader(data))
	if err != nil {
		return nil, model.Wrap(model.ErrInvalidInput, err)
	}
	entries := make([]model.CatalogEntry, 0, len(items))
	for i, it := range items {
		if it.ID == 0 || strings.TrimSpace(it.Name) == "" {
			return nil, model.Wrap(model.ErrInvalidInput, eris.Errorf("catalog: item %d: id and name are required", i))
		}
		kw, err := jsonKeywords(it.Keywords)
		if err != nil {
			return nil, model.Wrap(model.ErrInvalidInput, eris.Wrapf(err, "catalog: item %d: keywords", i))
		}
		e := model.CatalogEntry{
			ID:       it.ID,
			Name:     strings.TrimSpace(it.Name),
			Category: strings.TrimSpace(it.Category),
			Keywords: kw,
			IsActive: true,
		}
		if it.IsActive != nil {
			e.IsActive = *it.IsActive
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func jsonKeywords(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return SplitKeywords(strings.Join(list, "|")), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return SplitKeywords(s), nil
}

// SplitKeywords splits on "|" or ";" and drops empty parts.
func SplitKeywords(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseActive(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "yes", "y", "active":
		return true, nil
	case "no", "n", "inactive":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
