package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeToken(t *testing.T) {
	createdAt := time.Date(2026, 5, 15, 14, 30, 45, 123456789, time.UTC)

	token := EncodeToken(createdAt, "batch-42")
	assert.NotEmpty(t, token, "Token should not be empty")

	cursor, err := DecodeToken(token)
	assert.NoError(t, err, "Decoding should not return an error")
	assert.Equal(t, createdAt, cursor.CreatedAt, "Created at time should match after decode")
	assert.Equal(t, "batch-42", cursor.ID)

	// Non-UTC input is normalised
	local := createdAt.In(time.FixedZone("CET", 3600))
	cursor, err = DecodeToken(EncodeToken(local, "batch-43"))
	assert.NoError(t, err)
	assert.True(t, local.Equal(cursor.CreatedAt))
}

func TestDecodeTokenError(t *testing.T) {
	_, err := DecodeToken("this is not base64!")
	assert.Error(t, err, "Should return an error for invalid base64")
	assert.Contains(t, err.Error(), "base64 decode")

	noSeparator := base64.StdEncoding.EncodeToString([]byte("2026-05-15T00:00:00Z"))
	_, err = DecodeToken(noSeparator)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "split")

	emptyID := base64.StdEncoding.EncodeToString([]byte("2026-05-15T00:00:00Z|"))
	_, err = DecodeToken(emptyID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "split")

	badDate := base64.StdEncoding.EncodeToString([]byte("notadate|batch-1"))
	_, err = DecodeToken(badDate)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "created_at parse")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(0, 20, 100))
	assert.Equal(t, 20, ClampLimit(-3, 20, 100))
	assert.Equal(t, 5, ClampLimit(5, 20, 100))
	assert.Equal(t, 100, ClampLimit(500, 20, 100))
}
