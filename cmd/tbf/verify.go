package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/tbf/internal/logger"
	"github.com/samcharles93/tbf/pkg/tbf"
)

var errVerifyFailed = errors.New("verify: one or more files failed")

type verifyResult struct {
	Path    string
	Records uint64
	Entries uint64
	Bytes   uint64
	Err     error
}

func verifyCmd() *cli.Command {
	var (
		concurrency int
		pageSize    int
		quiet       bool
	)

	return &cli.Command{
		Name:      "verify",
		Usage:     "Check the structure of .tbf files and decode every record",
		ArgsUsage: "<file.tbf>...",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "concurrency",
				Aliases:     []string{"j"},
				Usage:       "files verified in parallel",
				Value:       runtime.GOMAXPROCS(0),
				Destination: &concurrency,
			},
			&cli.IntFlag{
				Name:        "page-size",
				Usage:       "also require payloads to start on this alignment (0 = skip)",
				Destination: &pageSize,
			},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only report failures", Destination: &quiet},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 1, "at least one .tbf file"); err != nil {
				return err
			}
			applyVerifyConfig(cmd, cfg, &concurrency)
			log := logger.FromContext(ctx)

			results, err := verifyFiles(ctx, cmd.Args().Slice(), concurrency, pageSize)
			if err != nil {
				return err
			}

			out := outWriter(cmd)
			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
					_, _ = fmt.Fprintf(out, "FAIL %s: %v\n", res.Path, res.Err)
					continue
				}
				if !quiet {
					_, _ = fmt.Fprintf(out, "ok   %s (%d records, %d tensors, %d bytes)\n", res.Path, res.Records, res.Entries, res.Bytes)
				}
			}
			log.Debug("verify done", "files", len(results), "failed", failed)
			if failed > 0 {
				return fmt.Errorf("%w (%d of %d)", errVerifyFailed, failed, len(results))
			}
			return nil
		},
	}
}

// verifyFiles checks every path with at most concurrency readers open at once.
// Per-file failures are reported in the results; the error is only set when
// ctx is cancelled.
func verifyFiles(ctx context.Context, paths []string, concurrency, pageSize int) ([]verifyResult, error) {
	results := make([]verifyResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = verifyFile(path, pageSize)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func verifyFile(path string, pageSize int) (res verifyResult) {
	res.Path = path
	r, err := tbf.Open(path)
	if err != nil {
		res.Err = err
		return res
	}
	defer func() { _ = r.Close() }()

	info := r.Info()
	res.Records = info.RecordCount
	res.Entries = info.EntryCount
	res.Bytes = info.FileSize

	if err := checkPayloadLayout(r.Metadata(), info.IndexOffset, pageSize); err != nil {
		res.Err = err
		return res
	}
	for _, err := range r.Records() {
		if err != nil {
			res.Err = err
			return res
		}
	}
	return res
}

// checkPayloadLayout requires every payload to sit between the file header
// and the index without overlapping another payload.
func checkPayloadLayout(entries []tbf.IndexEntry, indexOffset uint64, pageSize int) error {
	for i := range entries {
		e := &entries[i]
		if pageSize > 0 && e.DataOffset%uint64(pageSize) != 0 {
			return fmt.Errorf("entry %q (record %d) at %d is not %d-byte aligned", e.Key, e.RecordID, e.DataOffset, pageSize)
		}
		if e.NBytes == 0 {
			continue
		}
		if e.DataOffset < tbf.FileHeaderSize || e.End() < e.DataOffset || e.End() > indexOffset {
			return fmt.Errorf("entry %q (record %d) payload [%d, +%d) outside payload region [%d, %d)",
				e.Key, e.RecordID, e.DataOffset, e.NBytes, tbf.FileHeaderSize, indexOffset)
		}
	}

	spans := slices.DeleteFunc(slices.Clone(entries), func(e tbf.IndexEntry) bool { return e.NBytes == 0 })
	slices.SortFunc(spans, func(a, b tbf.IndexEntry) int { return cmp.Compare(a.DataOffset, b.DataOffset) })
	for i := 1; i < len(spans); i++ {
		if spans[i].DataOffset < spans[i-1].End() {
			return fmt.Errorf("payloads of %q and %q overlap", spans[i-1].Key, spans[i].Key)
		}
	}
	return nil
}
