package sha256

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, helloDigest, got)

	fromReader, err := h.HashReader(strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, fromReader)

	other, err := h.Hash([]byte("hello world!"))
	require.NoError(t, err)
	require.NotEqual(t, got, other)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestHashReaderError(t *testing.T) {
	t.Parallel()

	_, err := New().HashReader(failingReader{})
	require.ErrorContains(t, err, "boom")
}
