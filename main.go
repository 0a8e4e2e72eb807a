package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/811Alex/MC-World-Analysis-Tools/world"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mcwat",
		Usage: "inspect the region and player data of a Minecraft world",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Value:   1,
				Usage:   "number of files decoded concurrently",
				EnvVars: []string{"MCWAT_WORKERS"},
			},
			&cli.BoolFlag{
				Name:    "keep-going",
				Usage:   "log unreadable records and continue instead of stopping",
				EnvVars: []string{"MCWAT_KEEP_GOING"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "one of panic, fatal, error, warn, info, debug, trace",
				EnvVars: []string{"MCWAT_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			log := logrus.New()
			log.SetOutput(c.App.ErrWriter)
			log.SetLevel(level)
			if c.App.Metadata == nil {
				c.App.Metadata = make(map[string]interface{})
			}
			c.App.Metadata["log"] = log
			return nil
		},
		Commands: []*cli.Command{
			chunksCommand,
			playersCommand,
			explainCommand,
			exportCommand,
		},
	}
}

func logger(c *cli.Context) *logrus.Logger {
	if log, ok := c.App.Metadata["log"].(*logrus.Logger); ok {
		return log
	}
	return logrus.StandardLogger()
}

var outputFlag = &cli.StringFlag{
	Name:    "output-file",
	Aliases: []string{"o"},
	Usage:   "write to `FILE` instead of stdout",
}

func pathArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected one <%s> argument, got %d", name, c.NArg())
	}
	return c.Args().First(), nil
}

func newWalker(c *cli.Context, out *output) *world.Walker {
	log := logger(c)
	w := &world.Walker{Workers: c.Int("workers"), Log: log}
	if c.Bool("keep-going") {
		w.OnError = func(err error) error {
			log.WithError(err).Warn("skipping unreadable record")
			return nil
		}
	}
	if out.file != nil {
		w.OnFile = out.progress
	}
	return w
}

// walkError turns an unmatched walk into an error that says why nothing was
// read.
func walkError(path, ext string, matched bool, err error) error {
	if err != nil || matched {
		return err
	}
	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		return fmt.Errorf("%w: no %s files found in %s", world.ErrNoMatchingFiles, ext, path)
	}
	return fmt.Errorf("%w: %s is not a %s file", world.ErrNoMatchingFiles, path, ext)
}

// output is where a command prints its records. When it is a file, progress
// is drawn on the error writer.
type output struct {
	io.Writer

	name    string
	file    *os.File
	buf     *bufio.Writer
	console io.Writer
	bar     *progressbar.ProgressBar
}

func openOutput(c *cli.Context) (*output, error) {
	out := &output{Writer: c.App.Writer, console: c.App.Writer}
	name := c.String("output-file")
	if name == "" || name == "-" {
		return out, nil
	}

	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out.console, "Writing to file: %s\n", name)

	out.name = name
	out.file = file
	out.buf = bufio.NewWriter(file)
	out.Writer = out.buf
	out.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(c.App.ErrWriter),
		progressbar.OptionSetDescription("Processing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
	)
	return out, nil
}

func (o *output) progress(processed, total int, name string) {
	if o.bar == nil {
		return
	}
	if o.bar.GetMax() != total {
		o.bar.ChangeMax(total)
	}
	o.bar.Describe("Current: " + name)
	o.bar.Set(processed)
}

// Done flushes and closes a file output.
func (o *output) Done() error {
	if o.file == nil {
		return nil
	}
	if o.bar != nil {
		o.bar.Finish()
	}
	err := errors.Join(o.buf.Flush(), o.file.Close())
	o.file = nil
	if err != nil {
		return err
	}
	fmt.Fprintln(o.console, "\nDone!")
	return nil
}

// Close releases a file output that was not finished with Done.
func (o *output) Close() error {
	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file = nil
	return err
}
