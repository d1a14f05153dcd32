package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubizz/hubizz/internal/model"
)

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "", nil)
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "open.db"), nil)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.NoError(t, st.Ping(context.Background()))
}

func TestLimitOrDefault(t *testing.T) {
	assert.Equal(t, defaultListLimit, limitOrDefault(0))
	assert.Equal(t, defaultListLimit, limitOrDefault(-3))
	assert.Equal(t, 7, limitOrDefault(7))
}

func TestEncodeMetadata_Nil(t *testing.T) {
	b, err := encodeMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}
