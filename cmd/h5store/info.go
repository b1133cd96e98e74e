package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-h5store/h5store"
)

func newInfoCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file> <entry>",
		Short: "Show the resolved properties of an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			f, err := h5store.Open(args[0],
				h5store.WithConfig(cfg),
				h5store.WithCreateMode(h5store.ModeOpen),
				h5store.WithAccessMode(h5store.ReadOnly),
				h5store.WithLogger(log))
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.EntryInfo(args[1])
			if err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
}

func printInfo(w io.Writer, info h5store.EntryInfo) {
	fmt.Fprintf(w, "entry:        %s\n", info.Name)
	fmt.Fprintf(w, "rank:         %d\n", info.Rank)
	fmt.Fprintf(w, "extent:       %v\n", info.Extent)
	fmt.Fprintf(w, "max extent:   %s\n", formatMax(info.MaxExtent))
	fmt.Fprintf(w, "layout:       %s\n", info.Layout)
	if info.Layout == h5store.Chunked {
		fmt.Fprintf(w, "chunk:        %v\n", info.ChunkShape)
		fmt.Fprintf(w, "compression:  %d\n", info.CompressionLevel)
	}
	fmt.Fprintf(w, "extensible:   %t\n", info.Extensible)
	fmt.Fprintf(w, "element size: %d\n", info.ElementSize)
	fmt.Fprintf(w, "elements:     %d\n", info.ElementCount)
	fmt.Fprintf(w, "bytes:        %d\n", info.ByteCount)
}

func formatMax(max []uint64) string {
	s := "["
	for i, m := range max {
		if i > 0 {
			s += " "
		}
		if m == h5store.Unlimited {
			s += "unlimited"
		} else {
			s += fmt.Sprint(m)
		}
	}
	return s + "]"
}
