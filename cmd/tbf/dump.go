package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tbf/internal/batchjson"
	"github.com/samcharles93/tbf/internal/logger"
	"github.com/samcharles93/tbf/pkg/tbf"
)

func dumpCmd() *cli.Command {
	var (
		asJSON bool
		record int64
		all    bool
		limit  int64
	)

	return &cli.Command{
		Name:      "dump",
		Usage:     "Print the tensors stored in a .tbf file",
		ArgsUsage: "<file.tbf>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print records in the JSON form accepted by pack", Destination: &asJSON},
			&cli.Int64Flag{Name: "record", Aliases: []string{"r"}, Usage: "record to print; negative counts from the end", Destination: &record},
			&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "print every record", Destination: &all},
			&cli.Int64Flag{Name: "limit", Usage: "maximum elements shown per tensor (0 = all)", Value: 16, Destination: &limit},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 1, "a .tbf file"); err != nil {
				return err
			}
			log := logger.FromContext(ctx)
			r, err := tbf.Open(cmd.Args().First(), tbf.WithLogger(log.Slog()))
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			indices := []int{int(record)}
			if all {
				indices = make([]int, r.Len())
				for i := range indices {
					indices[i] = i
				}
			}

			batch := batchjson.Batch{Records: make([][]batchjson.Field, 0, len(indices))}
			out := outWriter(cmd)
			for _, i := range indices {
				rec, err := r.Record(i)
				if err != nil {
					return err
				}
				if i < 0 {
					i += r.Len()
				}
				fields := batchjson.FromRecord(rec, int(limit))
				if asJSON {
					batch.Records = append(batch.Records, fields)
					continue
				}
				printRecord(out, i, fields)
			}
			if asJSON {
				return batchjson.Encode(out, batch, true)
			}
			return nil
		},
	}
}

func printRecord(out io.Writer, i int, fields []batchjson.Field) {
	_, _ = fmt.Fprintf(out, "record %d (%d tensors)\n", i, len(fields))
	for _, f := range fields {
		vals := make([]string, len(f.Data))
		for j, v := range f.Data {
			vals[j] = fmt.Sprint(v)
		}
		more := ""
		if f.Truncated {
			more = " ..."
		}
		_, _ = fmt.Fprintf(out, "  %q %s %v = [%s%s]\n", f.Key, f.DType, f.Shape, strings.Join(vals, " "), more)
	}
}
