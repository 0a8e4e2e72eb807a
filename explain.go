package main

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/811Alex/MC-World-Analysis-Tools/anvil"
	"github.com/811Alex/MC-World-Analysis-Tools/nbt"
	"github.com/811Alex/MC-World-Analysis-Tools/world"
)

var explainCommand = &cli.Command{
	Name:      "explain",
	Usage:     "print every tag of an NBT file, or of one chunk of a region file",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "x", Usage: "cell `X` within the region (0-31)"},
		&cli.IntFlag{Name: "z", Usage: "cell `Z` within the region (0-31)"},
		outputFlag,
	},
	Action: explain,
}

func explain(c *cli.Context) error {
	path, err := pathArg(c, "file")
	if err != nil {
		return err
	}

	var root *nbt.Compound
	if filepath.Ext(path) == world.RegionExt {
		if !c.IsSet("x") || !c.IsSet("z") {
			return fmt.Errorf("%s is a region file, pick a chunk with -x and -z", path)
		}
		if root, err = readChunk(path, c.Int("x"), c.Int("z")); err != nil {
			return err
		}
	} else if root, err = nbt.ReadFile(path); err != nil {
		return fmt.Errorf("could not read %s: %w", path, err)
	}

	out, err := openOutput(c)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := nbt.Explain(out, "", root); err != nil {
		return err
	}
	return out.Done()
}

func readChunk(path string, x, z int) (*nbt.Compound, error) {
	region, err := anvil.Open(path)
	if err != nil {
		return nil, err
	}
	defer region.Close()

	root, err := region.Chunk(x, z)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("region %q holds no chunk at (%d,%d)", region.Name, x, z)
	}
	return root, nil
}
