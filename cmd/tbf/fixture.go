package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tbf/internal/logger"
	"github.com/samcharles93/tbf/pkg/tbf"
	"github.com/samcharles93/tbf/pkg/tensor"
)

// fixtureRecords is the reference batch shared with other TBF producers:
// record 0 holds x (int32 2x2) and y (uint8 3); record 1 holds z (float32 2).
func fixtureRecords() ([]tbf.Record, error) {
	x, err := tensor.FromSlice([]int64{2, 2}, []int32{1, 2, 3, 4})
	if err != nil {
		return nil, err
	}
	y, err := tensor.FromSlice([]int64{3}, []uint8{9, 8, 7})
	if err != nil {
		return nil, err
	}
	z, err := tensor.FromSlice([]int64{2}, []float32{1.5, -2.0})
	if err != nil {
		return nil, err
	}
	return []tbf.Record{
		{{Key: "x", Tensor: x}, {Key: "y", Tensor: y}},
		{{Key: "z", Tensor: z}},
	}, nil
}

func genFixtureCmd() *cli.Command {
	var (
		outPath  string
		pageSize int
	)

	return &cli.Command{
		Name:  "gen-fixture",
		Usage: "Write the reference two-record fixture used for cross-producer checks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output-path",
				Aliases:     []string{"out"},
				Usage:       "output .tbf path",
				Value:       "fixture.tbf",
				Destination: &outPath,
			},
			&cli.IntFlag{
				Name:        "page-size",
				Usage:       "payload alignment in bytes",
				Value:       tbf.DefaultPageSize,
				Destination: &pageSize,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyPageSize(cmd, cfg, &pageSize, 0)

			records, err := fixtureRecords()
			if err != nil {
				return err
			}
			if err := tbf.WriteFile(outPath, records, tbf.WithPageSize(pageSize), tbf.WithLogger(log.Slog())); err != nil {
				return fmt.Errorf("gen-fixture: %w", err)
			}
			log.Info("fixture written", "out", outPath, "page_size", pageSize)
			return nil
		},
	}
}
