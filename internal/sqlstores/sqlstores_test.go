package sqlstores

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.brendoncarroll.net/state"

	"esovm.org/esovm"
	"esovm.org/esovm/internal/cadata"
	"esovm.org/esovm/internal/dbutil"
	"esovm.org/esovm/internal/migrations"
)

func TestStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := dbutil.NewTestDB(t)
	require.NoError(t, migrations.Migrate(ctx, db, Migration(migrations.InitialState())))

	newStore := func() *Store {
		sid, err := dbutil.DoTx1(ctx, db, CreateStore)
		require.NoError(t, err)
		return NewStore(db, esovm.Hash, 1024, sid)
	}
	s1, s2 := newStore(), newStore()
	require.NotEqual(t, s1.intID, s2.intID)

	data := []byte("hello world")
	id, err := s1.Post(ctx, data)
	require.NoError(t, err)
	require.Equal(t, esovm.Hash(data), id)

	buf := make([]byte, s1.MaxSize())
	n, err := s1.Get(ctx, id, buf)
	require.NoError(t, err)
	require.Equal(t, data, buf[:n])

	// stores do not see each others blobs
	_, err = s2.Get(ctx, id, buf)
	require.True(t, cadata.IsNotFound(err))
	yes, err := s2.Exists(ctx, id)
	require.NoError(t, err)
	require.False(t, yes)

	_, err = s1.Post(ctx, make([]byte, 2048))
	require.ErrorIs(t, err, cadata.ErrTooLarge)

	_, err = s2.Post(ctx, data)
	require.NoError(t, err)
	require.NoError(t, s1.Delete(ctx, id))
	yes, err = s1.Exists(ctx, id)
	require.NoError(t, err)
	require.False(t, yes)
	// still referenced by s2
	n, err = s2.Get(ctx, id, buf)
	require.NoError(t, err)
	require.Equal(t, data, buf[:n])

	require.NoError(t, dbutil.DoTx(ctx, db, func(tx *sqlx.Tx) error {
		return DropStore(tx, s2.intID)
	}))
	var count int
	require.NoError(t, db.Get(&count, `SELECT count(*) FROM blobs`))
	require.Zero(t, count)
}

func TestList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := dbutil.NewTestDB(t)
	require.NoError(t, migrations.Migrate(ctx, db, Migration(migrations.InitialState())))
	sid, err := dbutil.DoTx1(ctx, db, CreateStore)
	require.NoError(t, err)
	s := NewStore(db, esovm.Hash, 1024, sid)

	var expected []cadata.ID
	for i := 0; i < 5; i++ {
		id, err := s.Post(ctx, []byte{byte(i)})
		require.NoError(t, err)
		expected = append(expected, id)
	}
	var actual []cadata.ID
	require.NoError(t, cadata.ForEach(ctx, s, state.TotalSpan[cadata.ID](), func(id cadata.ID) error {
		actual = append(actual, id)
		return nil
	}))
	require.ElementsMatch(t, expected, actual)

	count, err := dbutil.DoTx1(ctx, db, func(tx *sqlx.Tx) (int64, error) {
		return CountBlobs(tx, sid)
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), count)
}
