package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tbf/internal/batchjson"
	"github.com/samcharles93/tbf/internal/version"
	"github.com/samcharles93/tbf/pkg/tbf"
)

func versionCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			out := outWriter(cmd)
			if asJSON {
				return batchjson.Encode(out, struct {
					version.Info
					FormatVersion uint32 `json:"format_version"`
				}{info, tbf.Version}, false)
			}
			_, _ = fmt.Fprintf(out, "version:    %s\n", info.Version)
			if info.Commit != "" {
				_, _ = fmt.Fprintf(out, "commit:     %s\n", info.Commit)
			}
			if info.BuildTime != "" {
				_, _ = fmt.Fprintf(out, "build time: %s\n", info.BuildTime)
			}
			_, _ = fmt.Fprintf(out, "go:         %s\n", info.GoVersion)
			_, _ = fmt.Fprintf(out, "format:     TBF v%d\n", tbf.Version)
			return nil
		},
	}
}
