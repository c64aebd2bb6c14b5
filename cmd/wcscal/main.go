package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wcscal/internal/cli"
	"wcscal/internal/config"
	"wcscal/internal/fitsfile"
	"wcscal/internal/fsutil"
	"wcscal/internal/logging"
	"wcscal/internal/pipeline"
	"wcscal/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "wcscal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, logFile, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	defer logFile.Close()

	tdd, err := cfg.TDD.Params()
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Paths.DatabasePath, err)
	}
	defer store.Close()

	tables, err := fitsfile.NewCache(func(name string) (string, error) {
		return fsutil.ExpandRef(name, cfg.Paths.ReferenceDirs)
	}, log)
	if err != nil {
		return fmt.Errorf("reference table cache: %w", err)
	}
	defer tables.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe := pipeline.New(ctx, cfg.Processing.ParallelJobs, log, store, pipeline.Settings{
		Tables:   tables,
		TDD:      tdd,
		Output:   cfg.Output,
		Parallel: cfg.Processing.ParallelJobs,
	})
	defer pipe.Stop()

	return cli.NewRoot(pipe, cfg, log, store).Run(ctx, os.Args[1:])
}
