package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tbf/internal/batchjson"
	"github.com/samcharles93/tbf/internal/logger"
	"github.com/samcharles93/tbf/pkg/tbf"
)

type inspectEntry struct {
	Record     uint64  `json:"record"`
	Key        string  `json:"key"`
	DType      string  `json:"dtype"`
	DTypeCode  uint16  `json:"dtype_code"`
	Shape      []int64 `json:"shape"`
	DataOffset uint64  `json:"data_offset"`
	NBytes     uint64  `json:"nbytes"`
}

type inspectReport struct {
	Path        string         `json:"path"`
	Version     uint32         `json:"version"`
	FileSize    uint64         `json:"file_size"`
	IndexOffset uint64         `json:"index_offset"`
	IndexSize   uint64         `json:"index_size"`
	RecordCount uint64         `json:"record_count"`
	EntryCount  uint64         `json:"entry_count"`
	Entries     []inspectEntry `json:"entries,omitempty"`
}

func inspectCmd() *cli.Command {
	var (
		asJSON      bool
		showEntries bool
		noMmap      bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the header, footer and index of a .tbf file",
		ArgsUsage: "<file.tbf>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
			&cli.BoolFlag{Name: "entries", Aliases: []string{"e"}, Usage: "list every index entry", Destination: &showEntries},
			&cli.BoolFlag{Name: "no-mmap", Usage: "read the file instead of mapping it", Destination: &noMmap},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, 1, "a .tbf file"); err != nil {
				return err
			}
			path := cmd.Args().First()
			log := logger.FromContext(ctx)

			r, err := tbf.Open(path, tbf.WithLogger(log.Slog()), tbf.WithMmap(!noMmap))
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			rep := buildInspectReport(path, r, showEntries || asJSON)
			if asJSON {
				return batchjson.Encode(outWriter(cmd), rep, true)
			}
			return printInspectReport(outWriter(cmd), rep)
		},
	}
}

func buildInspectReport(path string, r *tbf.Reader, withEntries bool) inspectReport {
	info := r.Info()
	rep := inspectReport{
		Path:        path,
		Version:     info.Version,
		FileSize:    info.FileSize,
		IndexOffset: info.IndexOffset,
		IndexSize:   info.IndexSize,
		RecordCount: info.RecordCount,
		EntryCount:  info.EntryCount,
	}
	if !withEntries {
		return rep
	}
	for _, e := range r.Metadata() {
		rep.Entries = append(rep.Entries, inspectEntry{
			Record:     e.RecordID,
			Key:        e.Key,
			DType:      e.DTypeCode.String(),
			DTypeCode:  uint16(e.DTypeCode),
			Shape:      e.Shape,
			DataOffset: e.DataOffset,
			NBytes:     e.NBytes,
		})
	}
	return rep
}

func printInspectReport(out io.Writer, rep inspectReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "File:\t%s\n", rep.Path)
	_, _ = fmt.Fprintf(w, "Version:\t%d\n", rep.Version)
	_, _ = fmt.Fprintf(w, "Size:\t%d bytes\n", rep.FileSize)
	_, _ = fmt.Fprintf(w, "Index:\toffset %d, %d bytes\n", rep.IndexOffset, rep.IndexSize)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", rep.RecordCount)
	_, _ = fmt.Fprintf(w, "Entries:\t%d\n", rep.EntryCount)
	if err := w.Flush(); err != nil {
		return err
	}
	if len(rep.Entries) == 0 {
		return nil
	}

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RECORD\tKEY\tDTYPE\tSHAPE\tOFFSET\tNBYTES")
	for _, e := range rep.Entries {
		_, _ = fmt.Fprintf(w, "%d\t%q\t%s\t%v\t%d\t%d\n", e.Record, e.Key, e.DType, e.Shape, e.DataOffset, e.NBytes)
	}
	return w.Flush()
}
