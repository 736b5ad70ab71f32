package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tbf/internal/batchjson"
	"github.com/samcharles93/tbf/internal/logger"
	"github.com/samcharles93/tbf/internal/safetensors"
	"github.com/samcharles93/tbf/pkg/tbf"
)

func packCmd() *cli.Command {
	var (
		inPath   string
		stPaths  []string
		outPath  string
		pageSize int
		noSync   bool
	)

	return &cli.Command{
		Name:  "pack",
		Usage: "Build a .tbf file from a JSON batch description or safetensors files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input-path",
				Aliases:     []string{"in"},
				Usage:       "JSON batch file",
				Destination: &inPath,
			},
			&cli.StringSliceFlag{
				Name:        "safetensors",
				Aliases:     []string{"st"},
				Usage:       "safetensors file to pack as one record (repeatable)",
				Destination: &stPaths,
			},
			&cli.StringFlag{
				Name:        "output-path",
				Aliases:     []string{"out"},
				Usage:       "output .tbf path",
				Destination: &outPath,
				Required:    true,
			},
			&cli.IntFlag{
				Name:        "page-size",
				Usage:       "payload alignment in bytes",
				Value:       tbf.DefaultPageSize,
				Destination: &pageSize,
			},
			&cli.BoolFlag{Name: "no-sync", Usage: "skip fsync on close", Destination: &noSync},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			if (inPath == "") == (len(stPaths) == 0) {
				return fmt.Errorf("pack: exactly one of --in or --safetensors is required")
			}

			var (
				records []tbf.Record
				err     error
			)
			if inPath != "" {
				records, err = loadBatch(cmd, inPath, &pageSize)
			} else {
				applyPageSize(cmd, cfg, &pageSize, 0)
				records, err = loadSafetensors(stPaths)
			}
			if err != nil {
				return fmt.Errorf("pack: %w", err)
			}

			w, err := tbf.Create(outPath,
				tbf.WithPageSize(pageSize),
				tbf.WithSync(!noSync),
				tbf.WithLogger(log.Slog()),
			)
			if err != nil {
				return fmt.Errorf("pack: %w", err)
			}
			if err := w.AddRecords(records...); err != nil {
				_ = w.Close()
				_ = os.Remove(outPath)
				return fmt.Errorf("pack: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("pack: %w", err)
			}

			log.Info("packed",
				"out", outPath,
				"records", w.RecordCount(),
				"tensors", w.EntryCount(),
				"bytes", w.Offset(),
				"page_size", pageSize,
			)
			return nil
		},
	}
}

func loadBatch(cmd *cli.Command, path string, pageSize *int) ([]tbf.Record, error) {
	batch, err := batchjson.Load(path)
	if err != nil {
		return nil, err
	}
	applyPageSize(cmd, cfg, pageSize, batch.PageSize)
	return batch.TBFRecords()
}

// loadSafetensors reads each file as one record, in argument order.
func loadSafetensors(paths []string) ([]tbf.Record, error) {
	records := make([]tbf.Record, 0, len(paths))
	for _, p := range paths {
		f, err := safetensors.Open(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		rec, err := f.Record()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
