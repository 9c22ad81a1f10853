// Command ffc is a parallel file integrity checker: it fingerprints every
// regular file under the configured roots and populates, verifies, or
// reconciles an embedded database of those fingerprints.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/fastfilecheck/ffc/internal/config"
	"github.com/fastfilecheck/ffc/internal/engine"
	"github.com/fastfilecheck/ffc/internal/logging"
	"github.com/fastfilecheck/ffc/internal/store"
	"github.com/fastfilecheck/ffc/internal/types"
	"github.com/fastfilecheck/ffc/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "ffc",
		Usage:   "Fast parallel file integrity checking",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   config.DefaultConfigPath,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"V"},
				Usage:   "Enable verbose console output and debug logs",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Scan the configured directories and store a record for every file",
				Action: func(c *cli.Context) error { return run(c, types.ModePopulate, false) },
			},
			{
				Name:   "check",
				Usage:  "Verify every file against its stored record and report changes",
				Action: func(c *cli.Context) error { return run(c, types.ModeVerify, false) },
			},
			{
				Name:   "update",
				Usage:  "Rewrite drifted records and prune entries for deleted files",
				Action: func(c *cli.Context) error { return run(c, types.ModeReconcile, false) },
			},
			{
				Name:   "watch",
				Usage:  "Reconcile once, then keep the database in step with filesystem events",
				Action: func(c *cli.Context) error { return run(c, types.ModeReconcile, true) },
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run drives one mode end to end. Setup failures (config, store) exit
// non-zero before any worker starts; per-file failures are handled inside
// the engine and never abort the run.
func run(c *cli.Context, mode types.Mode, watch bool) error {
	verbose := c.Bool("verbose")

	boot, closeBoot, err := logging.New(logging.Options{Verbose: verbose})
	if err != nil {
		return cli.Exit(err, 1)
	}

	cfg, err := config.Load(c.String("config"), mode, verbose, boot)
	closeBoot()
	if err != nil {
		return cli.Exit(fmt.Sprintf("ffc: %v", err), 1)
	}

	log, closeLog, err := logging.New(logging.Options{
		Verbose: verbose,
		ToFile:  cfg.LogToFile,
		Dir:     cfg.LogPath,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("ffc: %v", err), 1)
	}
	defer closeLog()

	st, err := store.Open(cfg.DBPath, cfg.DBMaxSize, store.Options{
		NoSync:         cfg.DBNoSync,
		NoFreelistSync: cfg.DBNoFreelistSync,
		NoGrowSync:     cfg.DBNoGrowSync,
	}, log)
	if err != nil {
		return cli.Exit(fmt.Sprintf("ffc: %v", err), 1)
	}
	defer st.Close()

	log.Infof("starting %s run over %d roots with %d workers", mode, len(cfg.Roots), cfg.WorkerCount)

	eng := engine.New(cfg, st, log)
	if err := eng.Run(); err != nil {
		return cli.Exit(fmt.Sprintf("ffc: %v", err), 1)
	}

	if watch {
		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log.Infof("watching for changes, press Ctrl-C to stop")
		if err := eng.Watch(ctx); err != nil {
			return cli.Exit(fmt.Sprintf("ffc: %v", err), 1)
		}
	}

	eng.Summary().Print(os.Stdout, cfg.Mode)
	return nil
}
