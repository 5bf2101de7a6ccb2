package util

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffMimeType_ReplaysHeader(t *testing.T) {
	content := "\x89PNG\r\n\x1a\n" + strings.Repeat("a", 1024)
	mime, body, err := SniffMimeType(strings.NewReader(content), []string{MimeImage})
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	all, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, content, string(all))
}

func TestSniffMimeType_Rejects(t *testing.T) {
	mime, body, err := SniffMimeType(strings.NewReader("just some text"), []string{MimeImage})
	assert.ErrorIs(t, err, ErrMimeMismatch)
	assert.Nil(t, body)
	assert.True(t, strings.HasPrefix(mime, "text/plain"))
}
