package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"esovm.org/esovm"
	"esovm.org/esovm/internal/cadata"
)

func TestMem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMem(esovm.Hash, 16)

	id, err := s.Post(ctx, []byte("abc"))
	require.NoError(t, err)
	require.Equal(t, esovm.Hash([]byte("abc")), id)
	_, err = s.Post(ctx, make([]byte, 17))
	require.ErrorIs(t, err, cadata.ErrTooLarge)

	buf := make([]byte, s.MaxSize())
	n, err := s.Get(ctx, id, buf)
	require.NoError(t, err)
	require.Equal(t, "abc", string(buf[:n]))
	require.Equal(t, []cadata.ID{id}, s.All())

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id, buf)
	require.True(t, cadata.IsNotFound(err))
	require.Equal(t, 0, s.Len())
}

func TestUnion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := NewMem(esovm.Hash, 16), NewMem(esovm.Hash, 16)
	id, err := b.Post(ctx, []byte("in b"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := Union{a, b}.Get(ctx, id, buf)
	require.NoError(t, err)
	require.Equal(t, "in b", string(buf[:n]))

	_, err = Union{a}.Get(ctx, id, buf)
	require.True(t, cadata.IsNotFound(err))
}
