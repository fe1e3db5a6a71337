package store

import (
	"testing"
	"time"

	"github.com/safar/sportshop/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := OrderCursor{CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), ID: 42}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeEmptyCursor(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.After(time.Now()))
}

func TestDecodeGarbageCursor(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, database.ErrInvalidCursor)
}

func TestNormalizePage(t *testing.T) {
	page, size := normalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPageSize, size)

	_, size = normalizePage(3, 1000)
	assert.Equal(t, maxPageSize, size)
}

func TestNewOffsetPage(t *testing.T) {
	p := newOffsetPage([]int{1, 2}, 21, 1, 10)
	assert.Equal(t, 3, p.TotalPages)

	p = newOffsetPage([]int{}, 0, 1, 10)
	assert.Equal(t, 0, p.TotalPages)
}
