package esocmd

import (
	"os"

	"github.com/dustin/go-humanize"
	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"

	"esovm.org/esovm/esoasm"
	"esovm.org/esovm/esoimg"
)

var asm = star.Command{
	Metadata: star.Metadata{
		Short: "assembles a source file and writes the image to a file",
	},
	Flags: []star.IParam{logParam},
	Pos:   []star.IParam{outputFileParam, srcParam},
	F: func(c star.Context) error {
		ctx := newContext(c)
		src := srcParam.Load(c)
		outFile := outputFileParam.Load(c)
		img, err := readImage(src)
		if err != nil {
			outFile.Close()
			return err
		}
		data, err := esoimg.Marshal(img)
		if err != nil {
			outFile.Close()
			return err
		}
		logctx.Infof(ctx, "assembled %s into %s", src, outFile.Name())
		if _, err := outFile.Write(data); err != nil {
			outFile.Close()
			return err
		}
		return outFile.Close()
	},
}

var inspect = star.Command{
	Metadata: star.Metadata{
		Short: "print the header and disassembly of an image",
	},
	Pos: []star.IParam{srcParam},
	F: func(c star.Context) error {
		img, err := readImage(srcParam.Load(c))
		if err != nil {
			return err
		}
		id, err := esoimg.ID(img)
		if err != nil {
			return err
		}
		c.Printf("ID:        %v\n", id)
		c.Printf("CODE:      %s (%d instructions)\n", humanize.IBytes(uint64(len(img.Code))), len(img.Code)/8)
		c.Printf("CONSTANTS: %d\n", len(img.Constants))
		c.Printf("METHODS:   %d\n", len(img.Methods))
		c.Printf("\n%s", esoasm.Disassemble(img))
		return nil
	},
}

var srcParam = star.Param[string]{
	Name:  "src",
	Parse: star.ParseString,
}

var outputFileParam = star.Param[*os.File]{
	Name:  "o",
	Parse: os.Create,
}
