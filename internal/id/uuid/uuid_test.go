package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
	require.Less(t, id1, id2, "v7 ids sort by creation time")
}

func TestParse(t *testing.T) {
	t.Parallel()

	got, err := Parse("0192F3A4-7B1C-7D2E-8F00-1234567890AB")
	require.NoError(t, err)
	require.Equal(t, "0192f3a4-7b1c-7d2e-8f00-1234567890ab", got)

	_, err = Parse("not-a-uuid")
	require.ErrorContains(t, err, "invalid run id")
}
