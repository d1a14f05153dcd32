package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubizz/hubizz/internal/model"
)

func TestScheme(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"https://example.com/catalog.csv", "https"},
		{"HTTP://example.com/x", "http"},
		{"ftp://feeds.example.com/a.xlsx", "ftp"},
		{"file:///tmp/catalog.json", "file"},
		{"/var/data/catalog.csv", ""},
		{"catalog.csv", ""},
		{"C:\\data\\catalog.csv", ""},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, Scheme(tt.source))
		})
	}
}

func TestOpener_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n"), 0o644))

	o := NewOpener(nil, nil)
	data, err := o.ReadAll(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n", string(data))

	data, err = o.ReadAll(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n", string(data))
}

func TestOpener_MissingFile(t *testing.T) {
	_, err := NewOpener(nil, nil).Open(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestOpener_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	o := NewOpener(newTestFetcher(), nil)
	rc, err := o.Open(context.Background(), srv.URL+"/catalog.json")
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, string(data))
}

func TestOpener_MissingFetcher(t *testing.T) {
	o := NewOpener(nil, nil)

	_, err := o.Open(context.Background(), "https://example.com/a.csv")
	assert.ErrorIs(t, err, model.ErrConfiguration)

	_, err = o.Open(context.Background(), "ftp://example.com/a.csv")
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestOpener_UnsupportedScheme(t *testing.T) {
	_, err := NewOpener(nil, nil).Open(context.Background(), "s3://bucket/catalog.csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
