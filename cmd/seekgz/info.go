package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meigma/seekgz"
)

var (
	cmdInfo = &cobra.Command{
		Use:   "info INDEX",
		Short: "Print the header and access points of an index file",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,

		SilenceUsage: true,
	}
	infoPoints bool
)

func init() {
	root.AddCommand(cmdInfo)
	cmdInfo.Flags().BoolVar(&infoPoints, "points", true, "list access points")
}

func runInfo(cmd *cobra.Command, args []string) error {
	idx, err := seekgz.LoadIndexFile(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "version:          %d\n", idx.Version())
	fmt.Fprintf(out, "span:             %d\n", idx.Span())
	fmt.Fprintf(out, "window size:      %d\n", idx.WindowSize())
	fmt.Fprintf(out, "total length:     %d\n", idx.TotalLength())
	fmt.Fprintf(out, "compressed size:  %d\n", idx.CompressedSize())
	fmt.Fprintf(out, "access points:    %d\n", idx.Len())
	if !infoPoints {
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tuncompressed\tcompressed\tbits\twindow\t")
	i := 0
	for p := range idx.Points() {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t\n", i, p.UncompressedOffset, p.CompressedOffset, p.Bits, len(p.Window))
		i++
	}
	return tw.Flush()
}
