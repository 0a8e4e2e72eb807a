package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/811Alex/MC-World-Analysis-Tools/mojang"
	"github.com/811Alex/MC-World-Analysis-Tools/world"
)

var errNothingToPrint = errors.New("nothing to print, change arguments")

var playersCommand = &cli.Command{
	Name:  "players",
	Usage: "list the players found in player data files",
	Description: "Prints uuid[,name][,x,y,z] for every .dat file in <playerdatapath> (or for a\n" +
		"single file). Names are looked up online; when only names are printed,\n" +
		"players without one are skipped, otherwise " + mojang.Unknown + " or " + mojang.Floodgate + " is printed.",
	ArgsUsage: "<playerdatapath>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "no-uuid",
			Aliases: []string{"u"},
			Usage:   "don't print player UUIDs",
		},
		&cli.BoolFlag{
			Name:    "name",
			Aliases: []string{"n"},
			Usage:   "print player names (needs internet connectivity, much slower)",
		},
		&cli.BoolFlag{
			Name:    "position",
			Aliases: []string{"p"},
			Usage:   "print player positions",
		},
		outputFlag,
		&cli.StringFlag{
			Name:    "name-endpoint",
			Value:   mojang.DefaultEndpoint,
			Usage:   "profile endpoint the hex UUID is appended to",
			EnvVars: []string{"MCWAT_NAME_ENDPOINT"},
		},
		&cli.DurationFlag{
			Name:    "name-delay",
			Value:   mojang.DefaultDelay,
			Usage:   "minimum time between name lookups",
			EnvVars: []string{"MCWAT_NAME_DELAY"},
		},
		&cli.DurationFlag{
			Name:    "name-timeout",
			Value:   mojang.DefaultTimeout,
			Usage:   "timeout of a single name lookup",
			EnvVars: []string{"MCWAT_NAME_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "name-retries",
			Value:   mojang.DefaultRetries,
			Usage:   "retries of a throttled name lookup",
			EnvVars: []string{"MCWAT_NAME_RETRIES"},
		},
	},
	Action: listPlayers,
}

func listPlayers(c *cli.Context) error {
	printUUID := !c.Bool("no-uuid")
	printName := c.Bool("name")
	printPos := c.Bool("position")
	if !printUUID && !printName && !printPos {
		return errNothingToPrint
	}

	path, err := pathArg(c, "playerdatapath")
	if err != nil {
		return err
	}

	var names *mojang.Client
	if printName {
		names = &mojang.Client{
			HTTP:     &http.Client{Timeout: c.Duration("name-timeout")},
			Endpoint: c.String("name-endpoint"),
			Delay:    c.Duration("name-delay"),
			Retries:  c.Int("name-retries"),
			Log:      logger(c),
		}
	}

	out, err := openOutput(c)
	if err != nil {
		return err
	}
	defer out.Close()

	matched, err := newWalker(c, out).Players(c.Context, path, func(player world.Player) error {
		record, err := world.ParsePlayer(player.File, player.Root)
		if err != nil {
			return err
		}

		var fields []string
		if printUUID {
			fields = append(fields, record.UUID.String())
		}
		if printName {
			name, found, err := names.Name(c.Context, record.UUID)
			if err != nil {
				return err
			}
			if found || printUUID || printPos {
				fields = append(fields, name)
			}
		}
		if printPos {
			if !record.HasPos {
				return fmt.Errorf("%w: Pos", world.ErrMissingField)
			}
			for _, v := range record.Pos {
				fields = append(fields, strconv.FormatFloat(v, 'f', -1, 64))
			}
		}

		if len(fields) == 0 {
			return nil
		}
		_, err = fmt.Fprintln(out, strings.Join(fields, ","))
		return err
	})
	if err := walkError(path, world.PlayerExt, matched, err); err != nil {
		return err
	}
	return out.Done()
}
