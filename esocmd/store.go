package esocmd

import (
	"github.com/dustin/go-humanize"
	"go.brendoncarroll.net/star"
)

var put = star.Command{
	Metadata: star.Metadata{
		Short: "store an image or assembly file under a name",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{configParam, dbParam, logParam},
	Pos:   []star.IParam{nameParam, srcParam},
	F: func(c star.Context) error {
		ctx := newContext(c)
		sys, closeDB, err := openSystem(ctx, c)
		if err != nil {
			return err
		}
		defer closeDB()
		img, err := readImage(srcParam.Load(c))
		if err != nil {
			return err
		}
		id, err := sys.Put(ctx, nameParam.Load(c), img)
		if err != nil {
			return err
		}
		c.Printf("%v\n", id)
		return nil
	},
}

var list = star.Command{
	Metadata: star.Metadata{
		Short: "list the stored images",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{configParam, dbParam, logParam},
	F: func(c star.Context) error {
		ctx := newContext(c)
		sys, closeDB, err := openSystem(ctx, c)
		if err != nil {
			return err
		}
		defer closeDB()
		infos, err := sys.List(ctx)
		if err != nil {
			return err
		}
		c.Printf("%-20s %-44s %s\n", "NAME", "ID", "SIZE")
		for _, info := range infos {
			c.Printf("%-20s %-44v %s\n", info.Name, info.ID, humanize.IBytes(uint64(info.Size)))
		}
		return nil
	},
}

var drop = star.Command{
	Metadata: star.Metadata{
		Short: "remove a stored image",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{configParam, dbParam, logParam},
	Pos:   []star.IParam{nameParam},
	F: func(c star.Context) error {
		ctx := newContext(c)
		sys, closeDB, err := openSystem(ctx, c)
		if err != nil {
			return err
		}
		defer closeDB()
		return sys.Drop(ctx, nameParam.Load(c))
	},
}

var nameParam = star.Param[string]{
	Name:  "name",
	Parse: star.ParseString,
}
