package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"esovm.org/esovm/esoasm"
	"esovm.org/esovm/esoimg"
	"esovm.org/esovm/esoss"
	"esovm.org/esovm/internal/testutil"
)

const counter = `
; prints its argument, read from the console, counting down to 1
.entry main i8=1 i32=2
main:
	load.i32 r0, #0
digit:
	in.i8 r0, #0
	sub.i8 r0, r0, #'0'
	test.i8 r0
	cjump neg, @count	; end of input, or a newline
	mul.i32 r0, r0, #10
	convert.i8.i32 r1, r0
	add.i32 r0, r0, r1
	jump @digit
count:
	test.i32 r0
	cjump eq, @done
	out.i32 r0, #1
	sub.i32 r0, r0, #1
	jump @count
done:
	halt
`

// TestReopen stores images, closes the database, and runs them from a new System.
func TestReopen(t *testing.T) {
	ctx := testutil.Context(t)
	cfg := esoss.DefaultConfig()
	cfg.Store.DB = filepath.Join(t.TempDir(), "esovm.db")

	sys := openSystem(t, ctx, cfg)
	img, err := esoasm.Assemble(counter)
	require.NoError(t, err)
	id, err := sys.Put(ctx, "counter", img)
	require.NoError(t, err)
	_, err = sys.Put(ctx, "abort", mustAssemble(t, `halt "stop"`))
	require.NoError(t, err)

	sys = openSystem(t, ctx, cfg)
	infos, err := sys.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	id2, err := sys.Resolve(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, id, id2)
	abortID, err := sys.Resolve(ctx, "abort")
	require.NoError(t, err)

	out := &bytes.Buffer{}
	results, err := sys.Run(ctx, esoss.Stdio{In: bytes.NewReader([]byte("12\n")), Out: out}, id, abortID)
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	require.ErrorContains(t, results[1].Err, "stop")
	require.Equal(t, "12\n11\n10\n9\n8\n7\n6\n5\n4\n3\n2\n1\n", out.String())

	sys = openSystem(t, ctx, cfg)
	st, err := sys.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Images)
	require.Equal(t, 2, st.Runs)
	require.Equal(t, 1, st.Faults)
	require.Zero(t, st.Loaded)
}

func openSystem(t testing.TB, ctx context.Context, cfg esoss.Config) *esoss.System {
	db, err := esoss.OpenDB(cfg.Store.DB)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, esoss.SetupDB(ctx, db))
	sys, err := esoss.NewSystem(ctx, db, cfg)
	require.NoError(t, err)
	return sys
}

func mustAssemble(t testing.TB, src string) *esoimg.Image {
	img, err := esoasm.Assemble(src)
	require.NoError(t, err)
	return img
}
