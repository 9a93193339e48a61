package esocmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"esovm.org/esovm/esoasm"
	"esovm.org/esovm/esoimg"
	"esovm.org/esovm/esoss"
	"esovm.org/esovm/internal/testutil"
)

func TestReadImage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "main.s")
	require.NoError(t, os.WriteFile(src, []byte(".entry main\nmain:\n\thalt\n"), 0o644))
	img, err := readImage(src)
	require.NoError(t, err)
	require.Equal(t, "main", img.EntryName)

	data, err := esoimg.Marshal(img)
	require.NoError(t, err)
	p := filepath.Join(dir, "main.img")
	require.NoError(t, os.WriteFile(p, data, 0o644))
	img2, err := readImage(p)
	require.NoError(t, err)
	require.Equal(t, img.Code, img2.Code)

	bad := filepath.Join(dir, "bad.asm")
	require.NoError(t, os.WriteFile(bad, []byte("frob r0"), 0o644))
	_, err = readImage(bad)
	require.ErrorContains(t, err, "bad.asm")

	// an image file which is assembly text
	require.NoError(t, os.WriteFile(p, []byte("halt"), 0o644))
	_, err = readImage(p)
	require.Error(t, err)
}

func TestOpenSystemAt(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	p := filepath.Join(t.TempDir(), "esovm.db")
	img, err := esoasm.Assemble(".entry main\nmain:\n\thalt\n")
	require.NoError(t, err)

	sys, closeDB, err := openSystemAt(ctx, esoss.DefaultConfig(), p)
	require.NoError(t, err)
	id, err := sys.Put(ctx, "main", img)
	require.NoError(t, err)
	require.NoError(t, closeDB())

	sys, closeDB, err = openSystemAt(ctx, esoss.DefaultConfig(), p)
	require.NoError(t, err)
	defer closeDB()
	infos, err := sys.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, id, infos[0].ID)

	cfg := esoss.DefaultConfig()
	cfg.Sched.Mode = "lottery"
	_, closeDB2, err := openSystemAt(ctx, cfg, filepath.Join(t.TempDir(), "bad.db"))
	require.ErrorContains(t, err, "sched.mode")
	require.Nil(t, closeDB2)
}
