// package esocmd implements the esovm command line tool.
package esocmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"esovm.org/esovm/esoasm"
	"esovm.org/esovm/esoimg"
	"esovm.org/esovm/esoss"
)

func Root() star.Command {
	return root
}

var root = star.NewDir(star.Metadata{
	Short: "esovm virtual machine",
}, map[star.Symbol]star.Command{
	"run":     run,
	"asm":     asm,
	"inspect": inspect,

	"store":  storeCmd,
	"status": status,
})

var storeCmd = star.NewDir(star.Metadata{
	Short: "manage the images stored in the database",
}, map[star.Symbol]star.Command{
	"put":  put,
	"list": list,
	"drop": drop,
	"run":  storeRun,
})

var status = star.Command{
	Metadata: star.Metadata{
		Short: "summarize the images and runs in the database",
	},
	Flags: []star.IParam{configParam, dbParam, logParam},
	F: func(c star.Context) error {
		ctx := newContext(c)
		sys, closeDB, err := openSystem(ctx, c)
		if err != nil {
			return err
		}
		defer closeDB()
		st, err := sys.Status(ctx)
		if err != nil {
			return err
		}
		c.Printf("IMAGES: %d\n", st.Images)
		c.Printf("BLOBS:  %d\n", st.Blobs)
		c.Printf("RUNS:   %d (%d faulted)\n", st.Runs, st.Faults)
		return nil
	},
}

var configParam = star.Param[string]{
	Name:    "config",
	Default: star.Ptr(""),
	Parse:   star.ParseString,
}

// dbParam overrides store.db from the config
var dbParam = star.Param[string]{
	Name:    "db",
	Default: star.Ptr(""),
	Parse:   star.ParseString,
}

var logParam = star.Param[zapcore.Level]{
	Name:    "log",
	Default: star.Ptr("warn"),
	Parse:   zapcore.ParseLevel,
}

func loadConfig(c star.Context) (esoss.Config, error) {
	p := configParam.Load(c)
	if p == "" {
		return esoss.DefaultConfig(), nil
	}
	return esoss.LoadConfig(p)
}

// newContext returns the command's context with a logger at the level of the log flag
func newContext(c star.Context) context.Context {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(logParam.Load(c))
	l, err := zcfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return logctx.NewContext(c.Context, l)
}

func openDB(ctx context.Context, p string) (*sqlx.DB, error) {
	db, err := esoss.OpenDB(p)
	if err != nil {
		return nil, err
	}
	if err := esoss.SetupDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openSystem opens the database named by the flags or config.
// The returned func closes the database.
func openSystem(ctx context.Context, c star.Context) (*esoss.System, func() error, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	p := dbParam.Load(c)
	if p == "" {
		p = cfg.Store.DB
	}
	return openSystemAt(ctx, cfg, p)
}

func openSystemAt(ctx context.Context, cfg esoss.Config, p string) (*esoss.System, func() error, error) {
	db, err := openDB(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	logctx.Debug(ctx, "opened database", zap.String("path", p))
	sys, err := esoss.NewSystem(ctx, db, cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return sys, db.Close, nil
}

// readImage reads an image file, or assembles it if it is assembly source
func readImage(p string) (*esoimg.Image, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	if isSource(p) {
		img, err := esoasm.Assemble(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		return img, nil
	}
	return esoimg.Parse(data)
}

func isSource(p string) bool {
	return strings.HasSuffix(p, ".s") || strings.HasSuffix(p, ".asm")
}
