package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/seekgz"
)

var (
	cmdBuild = &cobra.Command{
		Use:   "build FILE",
		Short: "Build an access-point index for a gzip file",
		Long: `Decompress FILE once and write an index that allows later reads to start
near any offset. The index is written to FILE.idx unless --output is set.`,
		Args: cobra.ExactArgs(1),
		RunE: runBuild,

		SilenceUsage: true,
	}
	buildSpan        int64
	buildWindow      int
	buildOutput      string
	buildMultistream bool
)

func init() {
	root.AddCommand(cmdBuild)
	cmdBuild.Flags().Int64Var(&buildSpan, "span", seekgz.DefaultSpan, "uncompressed bytes between access points")
	cmdBuild.Flags().IntVar(&buildWindow, "window", seekgz.DefaultWindowSize, "history bytes stored per access point")
	cmdBuild.Flags().StringVarP(&buildOutput, "output", "o", "", "index path (default FILE.idx)")
	cmdBuild.Flags().BoolVar(&buildMultistream, "multistream", true, "index concatenated gzip members")
}

func runBuild(cmd *cobra.Command, args []string) error {
	path := args[0]
	idx, err := seekgz.BuildIndexFile(cmd.Context(), path,
		seekgz.WithSpan(buildSpan),
		seekgz.WithWindowSize(buildWindow),
		seekgz.WithMultistream(buildMultistream),
		seekgz.WithBuildLogger(logger))
	if err != nil {
		return fmt.Errorf("building index for %s: %w", path, err)
	}

	out := buildOutput
	if out == "" {
		out = seekgz.IndexPath(path)
	}
	if err := idx.Save(out); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d access points, %d bytes uncompressed\n", out, idx.Len(), idx.TotalLength())
	return nil
}
