package main

import (
	"fmt"
	"regexp"

	"github.com/urfave/cli/v2"

	"github.com/811Alex/MC-World-Analysis-Tools/world"
)

var chunksCommand = &cli.Command{
	Name:  "chunks",
	Usage: "list the chunks stored in region files, by default the fully generated ones",
	Description: "Prints xPos,zPos for every chunk of the region files in <regionpath> (or of a\n" +
		"single region file) whose generation status matches the filter.",
	ArgsUsage: "<regionpath>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "status",
			Aliases: []string{"s"},
			Value:   "full",
			Usage:   "chunk status filter (regular expression)",
		},
		&cli.BoolFlag{
			Name:    "print-status",
			Aliases: []string{"p"},
			Usage:   "also print each chunk's status",
		},
		outputFlag,
	},
	Action: listChunks,
}

func listChunks(c *cli.Context) error {
	path, err := pathArg(c, "regionpath")
	if err != nil {
		return err
	}
	filter, err := regexp.Compile(c.String("status"))
	if err != nil {
		return fmt.Errorf("invalid status filter: %w", err)
	}
	printStatus := c.Bool("print-status")

	out, err := openOutput(c)
	if err != nil {
		return err
	}
	defer out.Close()

	matched, err := newWalker(c, out).Regions(c.Context, path, func(chunk world.Chunk) error {
		if chunk.Root == nil {
			return nil
		}
		record, err := world.ParseChunk(chunk.File, chunk.Root)
		if err != nil {
			return err
		}
		if !filter.MatchString(record.Status) {
			return nil
		}
		if printStatus {
			_, err = fmt.Fprintf(out, "%d,%d,%s\n", record.X, record.Z, record.Status)
		} else {
			_, err = fmt.Fprintf(out, "%d,%d\n", record.X, record.Z)
		}
		return err
	})
	if err := walkError(path, world.RegionExt, matched, err); err != nil {
		return err
	}
	return out.Done()
}
