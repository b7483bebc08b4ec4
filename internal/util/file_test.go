package util

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffAvatar(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	r := bytes.NewReader(png)

	mimeType, ext, err := SniffAvatar(r, int64(len(png)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, ".png", ext)

	// 读取位置已回到开头
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, png, rest)
}

func TestSniffAvatarRejects(t *testing.T) {
	text := []byte("hello, not an image")
	_, _, err := SniffAvatar(bytes.NewReader(text), int64(len(text)))
	assert.ErrorIs(t, err, ErrInvalidFileType)

	_, _, err = SniffAvatar(bytes.NewReader(nil), MaxAvatarSize+1)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("7", 1))
	assert.Equal(t, 1, ParseIntDefault("x", 1))
	assert.Equal(t, 1, ParseIntDefault("", 1))
	assert.Equal(t, uint(42), MustParseUint("42"))
	assert.Equal(t, uint(0), MustParseUint("-1"))
	assert.Equal(t, uint(0), MustParseUint("abc"))
	assert.Equal(t, 100, ClampInt(500, 1, 100))
	assert.Equal(t, 1, ClampInt(-5, 1, 100))
}
