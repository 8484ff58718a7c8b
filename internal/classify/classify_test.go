package classify

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transclip/pkg/types"
)

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestNormalize_Text(t *testing.T) {
	c, err := Normalize(TagText, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, types.KindText, c.Kind)
	assert.Equal(t, "hello", c.Text)
	assert.Empty(t, c.Data)
}

func TestNormalize_URLString(t *testing.T) {
	// A URL arriving as plain text must still classify as url so it gets
	// URL-specific handling.
	for _, declared := range []string{TagText, TagURL, ""} {
		c, err := Normalize(declared, []byte("https://example.com/"))
		require.NoError(t, err, "declared %q", declared)
		assert.Equal(t, types.KindURL, c.Kind, "declared %q", declared)
		assert.Equal(t, "https://example.com/", c.Text)
	}
}

func TestNormalize_SchemeWithoutHostIsText(t *testing.T) {
	c, err := Normalize(TagText, []byte("mailto:someone"))
	require.NoError(t, err)
	assert.Equal(t, types.KindText, c.Kind)
}

func TestNormalize_MultiTokenStringIsText(t *testing.T) {
	c, err := Normalize("", []byte("see https://example.com/ for details"))
	require.NoError(t, err)
	assert.Equal(t, types.KindText, c.Kind)
}

func TestNormalize_DeclaredURLThatDoesNotParse(t *testing.T) {
	c, err := Normalize(TagURL, []byte("not a url at all"))
	require.NoError(t, err)
	assert.Equal(t, types.KindText, c.Kind)
}

func TestNormalize_PNGPassthrough(t *testing.T) {
	data := encodePNG(t)
	c, err := Normalize("", data)
	require.NoError(t, err)
	assert.Equal(t, types.KindImage, c.Kind)
	assert.Equal(t, data, c.Data)
}

func TestNormalize_JPEGReencodedAsPNG(t *testing.T) {
	c, err := Normalize(TagImage, encodeJPEG(t))
	require.NoError(t, err)
	assert.Equal(t, types.KindImage, c.Kind)
	// PNG signature
	assert.True(t, bytes.HasPrefix(c.Data, []byte("\x89PNG")))
}

func TestNormalize_BinaryFallsBackToFile(t *testing.T) {
	payload := []byte{0x00, 0xff, 0xfe, 0x00, 0x01}
	c, err := Normalize("", payload)
	require.NoError(t, err)
	assert.Equal(t, types.KindFile, c.Kind)
	assert.Equal(t, payload, c.Data)
}

func TestNormalize_DeclaredFileKeepsUTF8Opaque(t *testing.T) {
	c, err := Normalize(TagFile, []byte("looks like text"))
	require.NoError(t, err)
	assert.Equal(t, types.KindFile, c.Kind)
}

func TestNormalize_NoContent(t *testing.T) {
	_, err := Normalize(TagText, nil)
	assert.ErrorIs(t, err, ErrNoContent)

	_, err = Normalize(TagText, []byte("   \n"))
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestNormalize_MIMETags(t *testing.T) {
	c, err := Normalize("text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, types.KindText, c.Kind)

	c, err = Normalize("image/png", encodePNG(t))
	require.NoError(t, err)
	assert.Equal(t, types.KindImage, c.Kind)
}

func TestHashContent_Deterministic(t *testing.T) {
	c, err := Normalize(TagText, []byte("hello"))
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("hello"))
	want := hex.EncodeToString(sum[:])

	assert.Equal(t, want, HashContent(c))
	assert.Equal(t, HashContent(c), HashContent(c))
}

func TestHashContent_URLUsesCanonicalForm(t *testing.T) {
	a, err := Normalize(TagURL, []byte("https://example.com/"))
	require.NoError(t, err)
	b, err := Normalize(TagText, []byte("  https://example.com/  "))
	require.NoError(t, err)

	assert.Equal(t, HashContent(a), HashContent(b))
}

func TestURLHost(t *testing.T) {
	c, err := Normalize(TagURL, []byte("https://example.com/path?q=1"))
	require.NoError(t, err)
	assert.Equal(t, "example.com", c.URLHost())

	text, err := Normalize(TagText, []byte("hello"))
	require.NoError(t, err)
	assert.Empty(t, text.URLHost())
}
