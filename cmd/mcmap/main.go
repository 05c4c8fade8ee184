package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/bodgit/mcmap"
	"github.com/bodgit/mcmap/cleanup"
	"github.com/bodgit/mcmap/config"
	"github.com/bodgit/mcmap/mapdata"
	"github.com/bodgit/mcmap/metrics"
	"github.com/bodgit/mcmap/palette"
	"github.com/bodgit/mcmap/source"
	"github.com/bodgit/mcmap/tile"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

var gridFlags = []cli.Flag{
	&cli.IntFlag{
		Name:    "columns",
		Aliases: []string{"c"},
		Value:   4,
		Usage:   "number of maps across each frame",
	},
	&cli.IntFlag{
		Name:    "rows",
		Aliases: []string{"r"},
		Value:   3,
		Usage:   "number of maps down each frame",
	},
	&cli.IntFlag{
		Name:  "rate",
		Value: 20,
		Usage: "frames per second to keep",
	},
	&cli.IntFlag{
		Name:  "first-id",
		Usage: "ID of the first map written",
	},
	&cli.BoolFlag{
		Name:  "append",
		Usage: "continue map IDs after those recorded by earlier jobs",
	},
	&cli.IntFlag{
		Name:  "colors",
		Usage: "posterize frames to at most 256 colors first, 0 disables",
	},
	&cli.StringFlag{
		Name:  "resampling",
		Usage: "resize filter, box or nearest",
	},
}

// setup loads the environment, applies flag overrides and opens the
// catalog. The returned function releases everything.
func setup(c *cli.Context) (*config.Config, *zap.Logger, *mcmap.JobDB, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	if c.IsSet("db") {
		cfg.DB = c.String("db")
	}
	if c.IsSet("output") {
		cfg.OutputDir = c.String("output")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("resampling") {
		cfg.Resampling = c.String("resampling")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel, c.Bool("verbose"))
	if err != nil {
		return nil, nil, nil, nil, err
	}

	db, err := mcmap.NewJobDB(cfg.DB)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, nil, err
	}

	return cfg, logger, db, func() {
		db.Close()
		logger.Sync()
	}, nil
}

func convert(c *cli.Context, remote bool) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	cfg, logger, db, done, err := setup(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer done()

	resampling, err := tile.ParseResampling(cfg.Resampling)
	if err != nil {
		return cli.Exit(err, 1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	conv, err := mcmap.New(mcmap.Options{
		OutputDir:   cfg.MapDir(),
		Workers:     cfg.Workers,
		QueueDepth:  cfg.QueueDepth,
		FirstMapID:  c.Int("first-id"),
		Append:      c.Bool("append"),
		DataVersion: cfg.DataVersion,
		Resampling:  resampling,
		Colors:      c.Int("colors"),
		Source: source.Options{
			FFmpeg:       cfg.FFmpeg,
			FFprobe:      cfg.FFprobe,
			Retries:      cfg.Retries,
			RetryBackoff: time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		},
		Progress: func(p mcmap.Progress) {
			if p.Total > 0 {
				fmt.Fprintf(os.Stderr, "\rframe %d/%d (%d maps)", p.Done, p.Total, p.Artifacts)
			} else {
				fmt.Fprintf(os.Stderr, "\rframe %d (%d maps)", p.Done, p.Artifacts)
			}
		},
	}, db, logger)
	if err != nil {
		return cli.Exit(err, 1)
	}

	job := mcmap.Job{
		Source:  c.Args().First(),
		Remote:  remote,
		Columns: c.Int("columns"),
		Rows:    c.Int("rows"),
		Rate:    c.Int("rate"),
	}

	result, err := conv.Run(ctx, job)
	if result != nil {
		fmt.Fprintln(os.Stderr)
		fmt.Printf("%d frames, %d maps (IDs %d to %d) in %s\n", result.Frames, result.Artifacts, result.FirstMapID, result.LastMapID, result.Elapsed.Round(time.Millisecond))
	}
	if err != nil {
		if errors.Is(err, mcmap.ErrCancelled) {
			return cli.Exit(err, 130)
		}
		return cli.Exit(err, 1)
	}

	return nil
}

func main() {
	app := cli.NewApp()

	app.Name = "mcmap"
	app.Usage = "Convert videos into Minecraft map animations"
	app.Version = "1.0.0"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "db",
			Usage: "path to job catalog (default $MCMAP_DB)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "directory to write maps to (default <world>/data/video/maps)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "concurrent tile workers (default number of CPUs)",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "serve Prometheus metrics on this address",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "file",
			Usage:     "Convert a local video file",
			ArgsUsage: "FILE",
			Flags:     gridFlags,
			Action: func(c *cli.Context) error {
				return convert(c, false)
			},
		},
		{
			Name:      "url",
			Usage:     "Convert a video streamed over HTTP(S)",
			ArgsUsage: "URL",
			Flags:     gridFlags,
			Action: func(c *cli.Context) error {
				return convert(c, true)
			},
		},
		{
			Name:  "clean",
			Usage: "Remove previously written maps",
			Action: func(c *cli.Context) error {
				cfg, logger, db, done, err := setup(c)
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer done()

				result, err := cleanup.Run(cfg.MapDir(), func(i, n int) {
					logger.Debug("removed map", zap.Int("n", i), zap.Int("of", n))
				})
				if err != nil {
					return cli.Exit(err, 1)
				}
				if _, err := db.ForgetArtifacts(); err != nil {
					return cli.Exit(err, 1)
				}

				fmt.Println(result)

				return nil
			},
		},
		{
			Name:  "jobs",
			Usage: "List recorded jobs",
			Action: func(c *cli.Context) error {
				_, _, db, done, err := setup(c)
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer done()

				jobs, err := db.Jobs()
				if err != nil {
					return cli.Exit(err, 1)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tGRID\tRATE\tFRAMES\tMAPS\tFIRST\tSOURCE")
				for _, j := range jobs {
					fmt.Fprintf(w, "%s\t%s\t%dx%d\t%d\t%d\t%d\t%d\t%s\n", j.ID, j.Status, j.Columns, j.Rows, j.Rate, j.Frames, j.Artifacts, j.FirstMapID, j.Source)
				}

				return w.Flush()
			},
		},
		{
			Name:      "inspect",
			Usage:     "Render a map file as a PNG",
			ArgsUsage: "MAP OUTPUT",
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				in, err := os.Open(c.Args().Get(0))
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer in.Close()

				m, err := mapdata.Decode(in)
				if err != nil {
					return cli.Exit(err, 1)
				}

				out, err := os.Create(c.Args().Get(1))
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer out.Close()

				if err := png.Encode(out, m.Image(palette.Minecraft())); err != nil {
					return cli.Exit(err, 1)
				}

				fmt.Printf("%dx%d, data version %d, %s, locked %t\n", m.Width, m.Height, m.DataVersion, m.Dimension, m.Locked)

				return out.Close()
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
