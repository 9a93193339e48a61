package esocmd

import (
	"context"
	"fmt"
	"strings"

	"go.brendoncarroll.net/exp/slices2"
	"go.brendoncarroll.net/star"

	"esovm.org/esovm/esoimg"
	"esovm.org/esovm/esoss"
	"esovm.org/esovm/internal/cadata"
)

var run = star.Command{
	Metadata: star.Metadata{
		Short: "run image or assembly files, each on its own thread",
	},
	Flags: []star.IParam{configParam, logParam},
	Pos:   []star.IParam{pathsParam},
	F: func(c star.Context) error {
		ctx := newContext(c)
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		// files are run without touching the configured database
		sys, closeDB, err := openSystemAt(ctx, cfg, ":memory:")
		if err != nil {
			return err
		}
		defer closeDB()
		var ids []cadata.ID
		for _, p := range pathsParam.LoadAll(c) {
			img, err := readImage(p)
			if err != nil {
				return err
			}
			data, err := esoimg.Marshal(img)
			if err != nil {
				return err
			}
			id, err := sys.Load(ctx, data)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return runAndReport(ctx, c, sys, ids)
	},
}

var storeRun = star.Command{
	Metadata: star.Metadata{
		Short: "run stored images by name or ID",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{configParam, dbParam, logParam},
	Pos:   []star.IParam{refsParam},
	F: func(c star.Context) error {
		ctx := newContext(c)
		sys, closeDB, err := openSystem(ctx, c)
		if err != nil {
			return err
		}
		defer closeDB()
		var ids []cadata.ID
		for _, ref := range refsParam.LoadAll(c) {
			id, err := sys.Resolve(ctx, ref)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return runAndReport(ctx, c, sys, ids)
	},
}

func runAndReport(ctx context.Context, c star.Context, sys *esoss.System, ids []cadata.ID) error {
	results, err := sys.Run(ctx, esoss.Stdio{In: c.StdIn, Out: c.StdOut}, ids...)
	if err != nil {
		return err
	}
	total := len(results)
	failed := slices2.Filter(results, func(r esoss.Result) bool { return r.Err != nil })
	if len(failed) == 0 {
		return nil
	}
	lines := slices2.Map(failed, func(r esoss.Result) string { return r.String() })
	c.Printf("%s\n", strings.Join(lines, "\n"))
	return fmt.Errorf("%d of %d threads failed", len(failed), total)
}

var pathsParam = star.Param[string]{
	Name:     "path",
	Repeated: true,
	Parse:    star.ParseString,
}

var refsParam = star.Param[string]{
	Name:     "ref",
	Repeated: true,
	Parse:    star.ParseString,
}
